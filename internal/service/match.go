package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/audit"
	"github.com/vimrace/race-server/internal/config"
	"github.com/vimrace/race-server/internal/diff"
	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
	"github.com/vimrace/race-server/internal/registry"
)

// liveSession guards one session's state machine. The coordinator mutex and
// a session mutex are never held at the same time.
type liveSession struct {
	mu sync.Mutex
	s  model.Session
}

// MatchService owns every live session and the random matchmaking queue.
type MatchService struct {
	registry    *registry.Registry
	content     RaceContentSource
	maxDuration time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
	byPlayer map[string]string // playerID -> sessionID
	queue    []model.MatchRequest
}

// NewMatchService returns a coordinator and registers its disconnect hook on
// reg. A zero maxDuration disables the idle-session timeout.
func NewMatchService(reg *registry.Registry, content RaceContentSource, maxDuration time.Duration) *MatchService {
	s := &MatchService{
		registry:    reg,
		content:     content,
		maxDuration: maxDuration,
		now:         time.Now,
		sessions:    make(map[string]*liveSession),
		byPlayer:    make(map[string]string),
	}
	reg.OnDisconnect(s.HandleDisconnect)
	return s
}

// CreateMatch reserves both players and starts a session for them. Players
// must be idle or searching.
func (s *MatchService) CreateMatch(ctx context.Context, a, b string) (*model.Session, error) {
	s.mu.Lock()
	err := s.reserveLocked(a, b, model.PresenceIdle, model.PresenceSearching)
	if err == nil {
		s.dequeueLocked(a)
		s.dequeueLocked(b)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.withdrawOutgoing(a, b)
	return s.StartReserved(ctx, a, b)
}

// Reserve moves two idle players to in_session so no other path can claim
// them. It must be followed by StartReserved.
func (s *MatchService) Reserve(a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{a, b} {
		if s.queuedLocked(id) {
			return apperrors.StateError("Player is searching for a match")
		}
	}
	return s.reserveLocked(a, b, model.PresenceIdle)
}

func (s *MatchService) reserveLocked(a, b string, from ...model.Presence) error {
	for _, id := range []string{a, b} {
		if _, ok := s.byPlayer[id]; ok {
			return apperrors.StateError("Player is already in a game")
		}
	}
	err := s.registry.ReservePair(a, b, from...)
	if apperrors.HasCode(err, apperrors.ErrCodePlayerInGame) {
		return apperrors.StateError("Player is already in a game")
	}
	return err
}

// StartReserved fetches race content and opens a session for two reserved
// players, sending "match found" to both. On failure both players are
// released to idle and told why.
func (s *MatchService) StartReserved(ctx context.Context, a, b string) (*model.Session, error) {
	pa, okA := s.registry.Player(a)
	pb, okB := s.registry.Player(b)
	if !okA || !okB {
		s.abort(a, b, apperrors.StateError("Opponent disconnected"))
		return nil, apperrors.PlayerOffline()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, config.RaceContentTimeout)
	race, err := s.content.FetchRaceContent(fetchCtx)
	cancel()
	if err != nil {
		appErr := apperrors.External("race content", err)
		log.Error().Err(err).Str("player1", a).Str("player2", b).Msg("failed to fetch race content")
		s.abort(a, b, appErr)
		return nil, appErr
	}

	session := model.Session{
		ID:        uuid.NewString(),
		Players:   [2]model.PlayerInfo{pa.Info(), pb.Info()},
		StartText: race.StartText,
		GoalText:  race.GoalText,
		State:     model.SessionStateCreated,
		Status: map[string]model.PlayerStatus{
			a: model.PlayerStatusPlaying,
			b: model.PlayerStatusPlaying,
		},
		Loaded:    map[string]bool{},
		CreatedAt: s.now(),
	}

	// A player who disconnected or reconnected during the fetch is no longer
	// in_session; their disconnect hook found no session to forfeit.
	s.mu.Lock()
	if s.registry.Presence(a) != model.PresenceInSession || s.registry.Presence(b) != model.PresenceInSession {
		s.mu.Unlock()
		s.abort(a, b, apperrors.StateError("Opponent disconnected"))
		return nil, apperrors.PlayerOffline()
	}
	s.sessions[session.ID] = &liveSession{s: session.Clone()}
	s.byPlayer[a] = session.ID
	s.byPlayer[b] = session.ID
	s.mu.Unlock()

	initial := diff.Compute(session.StartText, session.GoalText)
	for i, me := range session.Players {
		s.send(me.ID, protocol.MatchFound{
			SessionID: session.ID,
			Player1:   session.Players[0],
			Player2:   session.Players[1],
			Opponent:  session.Players[1-i],
			StartText: session.StartText,
			GoalText:  session.GoalText,
			Diff:      initial,
		})
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("player1", a).
		Str("player2", b).
		Msg("session created")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventMatchStart,
		SessionID: session.ID,
		Details: map[string]interface{}{
			"player1": a,
			"player2": b,
		},
	})

	return &session, nil
}

// abort releases reserved players that will not get a session.
func (s *MatchService) abort(a, b string, cause error) {
	for _, id := range []string{a, b} {
		if s.registry.TransitionPresence(id, model.PresenceIdle, model.PresenceInSession) {
			s.send(id, protocol.ErrorFor("", cause))
		}
	}
}

// Loaded records that playerID finished loading. When both participants
// have loaded the session starts and both receive "start".
func (s *MatchService) Loaded(sessionID, playerID string) error {
	ls, err := s.lookup(sessionID, playerID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	switch ls.s.State {
	case model.SessionStateFinished:
		ls.mu.Unlock()
		return apperrors.StateError("Session is finished")
	case model.SessionStateRunning:
		ls.mu.Unlock()
		return nil
	}

	ls.s.Loaded[playerID] = true
	started := false
	if ls.s.Loaded[ls.s.Players[0].ID] && ls.s.Loaded[ls.s.Players[1].ID] {
		ls.s.State = model.SessionStateReady
		now := s.now()
		ls.s.StartedAt = &now
		ls.s.State = model.SessionStateRunning
		started = true
	}
	id := ls.s.ID
	players := ls.s.PlayerIDs()
	ls.mu.Unlock()

	if started {
		for _, p := range players {
			s.send(p, protocol.Start{SessionID: id})
		}
		log.Info().Str("sessionId", id).Msg("session started")
	}
	return nil
}

// RelayKeystroke forwards event from senderID to the opponent only.
// Delivery failures are not session errors.
func (s *MatchService) RelayKeystroke(sessionID, senderID string, event json.RawMessage) error {
	ls, err := s.lookup(sessionID, senderID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	if ls.s.State != model.SessionStateRunning {
		ls.mu.Unlock()
		return apperrors.StateError("Session is not running")
	}
	id := ls.s.ID
	opponent := ls.s.Opponent(senderID).ID
	ls.mu.Unlock()

	s.send(opponent, protocol.KeystrokeRelay{SessionID: id, ID: senderID, Event: event})
	return nil
}

// Validate checks a submission against the goal text. An exact match wins
// the session; anything else is reported back to the submitter only.
func (s *MatchService) Validate(ctx context.Context, sessionID, playerID, submission string) error {
	ls, err := s.lookup(sessionID, playerID)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	if ls.s.State != model.SessionStateRunning {
		ls.mu.Unlock()
		return apperrors.StateError("Session is not running")
	}

	ls.s.Status[playerID] = model.PlayerStatusValidating
	if diff.Equal(submission, ls.s.GoalText) {
		snapshot := s.finishLocked(ls, playerID, model.FinishReasonCompleted)
		ls.mu.Unlock()
		s.afterFinish(ctx, snapshot)
		return nil
	}

	edits := diff.Compute(submission, ls.s.GoalText)
	ls.s.Status[playerID] = model.PlayerStatusFail
	id := ls.s.ID
	ls.mu.Unlock()

	s.send(playerID, protocol.Fail{
		SessionID:  id,
		ID:         playerID,
		Diff:       edits,
		Submission: submission,
	})
	return nil
}

// HandleDisconnect removes playerID from the matchmaking queue and forfeits
// any session they are in. The opponent wins.
func (s *MatchService) HandleDisconnect(playerID string) {
	s.mu.Lock()
	s.dequeueLocked(playerID)
	ls := s.sessions[s.byPlayer[playerID]]
	s.mu.Unlock()

	if ls == nil {
		return
	}

	ls.mu.Lock()
	if ls.s.State == model.SessionStateFinished {
		ls.mu.Unlock()
		return
	}
	snapshot := s.finishLocked(ls, ls.s.Opponent(playerID).ID, model.FinishReasonForfeit)
	ls.mu.Unlock()

	log.Info().
		Str("sessionId", snapshot.ID).
		Str("playerId", playerID).
		Msg("player forfeited by disconnecting")
	s.afterFinish(context.Background(), snapshot)
}

// ExpireIdle finishes sessions older than the configured maximum duration
// with no winner.
func (s *MatchService) ExpireIdle(ctx context.Context) (int64, error) {
	if s.maxDuration <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.maxDuration)

	s.mu.Lock()
	var candidates []*liveSession
	for _, ls := range s.sessions {
		candidates = append(candidates, ls)
	}
	s.mu.Unlock()

	var count int64
	for _, ls := range candidates {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		ls.mu.Lock()
		if ls.s.State == model.SessionStateFinished || !ls.s.CreatedAt.Before(cutoff) {
			ls.mu.Unlock()
			continue
		}
		snapshot := s.finishLocked(ls, "", model.FinishReasonTimeout)
		ls.mu.Unlock()

		s.afterFinish(ctx, snapshot)
		count++
	}
	return count, nil
}

// finishLocked moves the session to FINISHED. ls.mu must be held and the
// session must not already be finished.
func (s *MatchService) finishLocked(ls *liveSession, winnerID string, reason model.FinishReason) model.Session {
	now := s.now()
	ls.s.State = model.SessionStateFinished
	ls.s.WinnerID = winnerID
	ls.s.Reason = reason
	ls.s.FinishedAt = &now

	if winnerID != "" {
		for _, id := range ls.s.PlayerIDs() {
			if id == winnerID {
				ls.s.Status[id] = model.PlayerStatusSuccess
			} else {
				ls.s.Status[id] = model.PlayerStatusLost
			}
		}
	}
	return ls.s.Clone()
}

// afterFinish drops a finished session, returns its players to idle and
// sends "finish" to both.
func (s *MatchService) afterFinish(ctx context.Context, session model.Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID)
	for _, id := range session.PlayerIDs() {
		if s.byPlayer[id] == session.ID {
			delete(s.byPlayer, id)
		}
	}
	s.mu.Unlock()

	for _, id := range session.PlayerIDs() {
		s.registry.TransitionPresence(id, model.PresenceIdle, model.PresenceInSession)
	}

	finish := protocol.Finish{
		SessionID: session.ID,
		WinnerID:  session.WinnerID,
		Reason:    session.Reason,
	}
	for _, id := range session.PlayerIDs() {
		s.send(id, finish)
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("winnerId", session.WinnerID).
		Str("reason", string(session.Reason)).
		Msg("session finished")
	audit.Log(ctx, audit.Event{
		Type:      audit.EventMatchFinish,
		PlayerID:  session.WinnerID,
		SessionID: session.ID,
		Details: map[string]interface{}{
			"reason": string(session.Reason),
		},
	})
}

// lookup resolves a session for playerID. An empty sessionID means the
// player's current session.
func (s *MatchService) lookup(sessionID, playerID string) (*liveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == "" {
		sessionID = s.byPlayer[playerID]
	}
	ls, ok := s.sessions[sessionID]
	if !ok || s.byPlayer[playerID] != sessionID {
		return nil, apperrors.NotFound("Session")
	}
	return ls, nil
}

// Session returns a snapshot of a live session.
func (s *MatchService) Session(sessionID string) (model.Session, error) {
	s.mu.Lock()
	ls, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return model.Session{}, apperrors.NotFound("Session")
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.Clone(), nil
}

// SessionOf returns the id of the session playerID is in, if any.
func (s *MatchService) SessionOf(playerID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	return id, ok
}

func (s *MatchService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *MatchService) send(playerID string, event protocol.Outbound) {
	if err := s.registry.Send(playerID, event); err != nil {
		log.Debug().
			Err(err).
			Str("playerId", playerID).
			Str("event", event.EventName()).
			Msg("event not delivered")
	}
}
