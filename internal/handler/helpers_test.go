package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
	"github.com/vimrace/race-server/internal/registry"
	"github.com/vimrace/race-server/internal/service"
)

// fakePeer is both the dispatcher's peer and the registry's connection.
type fakePeer struct {
	playerID string
	mu       sync.Mutex
	events   []protocol.Outbound
}

func (p *fakePeer) ID() string       { return "conn-" + p.playerID }
func (p *fakePeer) PlayerID() string { return p.playerID }
func (p *fakePeer) Close() error     { return nil }

func (p *fakePeer) Send(event protocol.Outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePeer) Events() []protocol.Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Outbound(nil), p.events...)
}

func eventsOf[T protocol.Outbound](p *fakePeer) []T {
	var out []T
	for _, e := range p.Events() {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

type stubContent struct{}

func (stubContent) FetchRaceContent(ctx context.Context) (*model.RaceContent, error) {
	return &model.RaceContent{ID: "race-1", StartText: "hello", GoalText: "hello world"}, nil
}

// testGame wires real services around fake peers. Player ids equal their
// usernames.
type testGame struct {
	registry   *registry.Registry
	users      *mockUserRepo
	matches    *service.MatchService
	challenges *service.ChallengeService
	dispatcher *Dispatcher
	peers      map[string]*fakePeer
}

func newTestGame(t *testing.T, players ...string) *testGame {
	t.Helper()

	reg := registry.New()
	users := new(mockUserRepo)
	users.On("FindByUsername", mock.Anything, "nobody").Return(nil, nil).Maybe()
	matches := service.NewMatchService(reg, stubContent{}, time.Hour)
	challenges := service.NewChallengeService(reg, users, matches, nil, service.ChallengeServiceConfig{})

	g := &testGame{
		registry:   reg,
		users:      users,
		matches:    matches,
		challenges: challenges,
		dispatcher: NewDispatcher(challenges, matches),
		peers:      make(map[string]*fakePeer),
	}
	for _, id := range players {
		peer := &fakePeer{playerID: id}
		reg.Register(id, id, peer)
		g.peers[id] = peer
		users.On("FindByUsername", mock.Anything, id).Return(&model.User{ID: id, Username: id}, nil).Maybe()
		users.On("FindByID", mock.Anything, id).Return(&model.User{ID: id, Username: id}, nil).Maybe()
	}
	return g
}

func (g *testGame) dispatch(t *testing.T, playerID string, event string, payload string) {
	t.Helper()
	env := protocol.Envelope{Type: event}
	if payload != "" {
		env.Data = []byte(payload)
	}
	g.dispatcher.Dispatch(context.Background(), g.peers[playerID], env)
}

func lastError(p *fakePeer) (protocol.Error, bool) {
	errs := eventsOf[protocol.Error](p)
	if len(errs) == 0 {
		return protocol.Error{}, false
	}
	return errs[len(errs)-1], true
}

func hasCode(e protocol.Error, code apperrors.ErrorCode) bool {
	return e.Code == code
}
