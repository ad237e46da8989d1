package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
	"github.com/vimrace/race-server/internal/registry"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []protocol.Outbound
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ConnectionClosed()
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Events() []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Outbound(nil), c.events...)
}

// eventsOf returns the events of type T received by c, in order.
func eventsOf[T protocol.Outbound](c *fakeConn) []T {
	var out []T
	for _, e := range c.Events() {
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

type stubContent struct {
	mu    sync.Mutex
	race  model.RaceContent
	err   error
	calls int
}

func (s *stubContent) FetchRaceContent(ctx context.Context) (*model.RaceContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	race := s.race
	return &race, nil
}

type stubLimiter struct {
	allowed bool
}

func (s stubLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	return s.allowed, time.Now().Add(window)
}

var errDirectoryDown = errors.New("directory unavailable")

// testEnv wires a registry, coordinator and challenge service around fake
// connections. Players are registered under ids equal to their usernames.
type testEnv struct {
	registry   *registry.Registry
	users      *mockUserRepo
	content    *stubContent
	matches    *MatchService
	challenges *ChallengeService
	conns      map[string]*fakeConn
}

func newTestEnv(t *testing.T, players ...string) *testEnv {
	t.Helper()

	reg := registry.New()
	users := new(mockUserRepo)
	content := &stubContent{race: model.RaceContent{StartText: "hello", GoalText: "hello world"}}
	matches := NewMatchService(reg, content, time.Hour)

	env := &testEnv{
		registry: reg,
		users:    users,
		content:  content,
		matches:  matches,
		challenges: NewChallengeService(reg, users, matches, nil, ChallengeServiceConfig{
			TTL: 10 * time.Minute,
		}),
		conns: make(map[string]*fakeConn),
	}
	for _, p := range players {
		env.connect(p)
	}
	return env
}

func (e *testEnv) connect(id string) *fakeConn {
	conn := &fakeConn{id: "conn-" + id}
	e.registry.Register(id, id, conn)
	e.conns[id] = conn
	e.users.On("FindByUsername", mock.Anything, id).Return(&model.User{ID: id, Username: id}, nil).Maybe()
	return conn
}

func (e *testEnv) disconnect(id string) {
	e.registry.Unregister(id, e.conns[id])
}

// challenge sends a challenge from sender to receiver and returns it.
func (e *testEnv) challenge(t *testing.T, sender, receiver string) model.Challenge {
	t.Helper()
	c, err := e.challenges.Send(context.Background(), sender, receiver)
	require.NoError(t, err)
	return *c
}

// startSession creates a running session between a and b.
func (e *testEnv) startSession(t *testing.T, a, b string) string {
	t.Helper()
	session, err := e.matches.CreateMatch(context.Background(), a, b)
	require.NoError(t, err)
	require.NoError(t, e.matches.Loaded(session.ID, a))
	require.NoError(t, e.matches.Loaded(session.ID, b))
	return session.ID
}
