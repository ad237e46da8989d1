package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
)

type pairing struct {
	a, b string
}

// RequestMatch queues an idle player for random matchmaking. Whenever two
// players are waiting, the two longest-waiting are paired and a session is
// started for them.
func (s *MatchService) RequestMatch(ctx context.Context, playerID string) error {
	s.mu.Lock()
	if s.queuedLocked(playerID) {
		s.mu.Unlock()
		return apperrors.Conflict("Already searching for a match")
	}
	if _, ok := s.byPlayer[playerID]; ok {
		s.mu.Unlock()
		return apperrors.Conflict("Already in a game")
	}

	player, online := s.registry.Player(playerID)
	if !online {
		s.mu.Unlock()
		return apperrors.PlayerOffline()
	}
	if !s.registry.TransitionPresence(playerID, model.PresenceSearching, model.PresenceIdle) {
		s.mu.Unlock()
		return apperrors.Conflict("Player is not idle")
	}

	s.queue = append(s.queue, model.MatchRequest{
		PlayerID:   playerID,
		Username:   player.Username,
		EnqueuedAt: s.now(),
	})
	position := len(s.queue)
	pairs, dropped := s.pairLocked()
	s.mu.Unlock()

	s.send(playerID, protocol.MatchmakingQueued{Position: position})
	log.Debug().Str("playerId", playerID).Int("position", position).Msg("player queued for matchmaking")

	for _, id := range dropped {
		s.send(id, protocol.MatchmakingCancelled{})
	}
	for _, p := range pairs {
		s.withdrawOutgoing(p.a, p.b)
		if _, err := s.StartReserved(ctx, p.a, p.b); err != nil {
			log.Warn().
				Err(err).
				Str("player1", p.a).
				Str("player2", p.b).
				Msg("matchmaking pair could not start")
		}
	}
	return nil
}

// CancelMatchmaking removes playerID from the queue and returns them to
// idle. If a pairing already claimed the player the cancel is a no-op and
// the session stands.
func (s *MatchService) CancelMatchmaking(playerID string) error {
	s.mu.Lock()
	removed := s.dequeueLocked(playerID)
	if removed {
		s.registry.TransitionPresence(playerID, model.PresenceIdle, model.PresenceSearching)
	}
	s.mu.Unlock()

	if removed {
		s.send(playerID, protocol.MatchmakingCancelled{})
		log.Debug().Str("playerId", playerID).Msg("matchmaking cancelled")
	}
	return nil
}

// QueueLen returns the number of players waiting for a match.
func (s *MatchService) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// pairLocked drops queue entries whose player is no longer searching, then
// pairs and reserves from the head of the queue in FIFO order. An entry
// that cannot be reserved is dropped and pairing continues with the rest;
// players dropped while still searching are returned idle so the caller can
// tell them.
func (s *MatchService) pairLocked() (pairs []pairing, dropped []string) {
	s.queue = s.eligibleLocked(s.queue)

	for len(s.queue) >= 2 {
		a, b := s.queue[0].PlayerID, s.queue[1].PlayerID
		if err := s.reserveLocked(a, b, model.PresenceSearching); err != nil {
			log.Warn().Err(err).Str("player1", a).Str("player2", b).Msg("failed to reserve matchmaking pair")

			remaining := s.eligibleLocked(s.queue)
			if len(remaining) == len(s.queue) {
				// both still searching, so one of them cannot be matched at all
				culprit := a
				if _, stale := s.byPlayer[a]; !stale {
					if _, stale := s.byPlayer[b]; stale {
						culprit = b
					}
				}
				s.registry.TransitionPresence(culprit, model.PresenceIdle, model.PresenceSearching)
				dropped = append(dropped, culprit)
				remaining = s.eligibleLocked(remaining)
			}
			s.queue = remaining
			continue
		}
		s.queue = s.queue[2:]
		pairs = append(pairs, pairing{a: a, b: b})
	}
	return pairs, dropped
}

// eligibleLocked returns the entries of queue whose player is still
// searching, in a new slice.
func (s *MatchService) eligibleLocked(queue []model.MatchRequest) []model.MatchRequest {
	eligible := make([]model.MatchRequest, 0, len(queue))
	for _, req := range queue {
		if s.registry.Presence(req.PlayerID) == model.PresenceSearching {
			eligible = append(eligible, req)
		}
	}
	return eligible
}

// withdrawOutgoing runs the session entry cascade for two freshly reserved
// players and tells both sides of every withdrawn challenge.
func (s *MatchService) withdrawOutgoing(a, b string) {
	invalidated := sessionEntryInvalidation(s.registry, a, b, "")
	for _, c := range invalidated {
		s.send(c.SenderID, protocol.ChallengeRemoved{Challenge: c})
		s.send(c.ReceiverID, protocol.ChallengeRemoved{Challenge: c})
	}
	if len(invalidated) > 0 {
		log.Info().
			Str("player1", a).
			Str("player2", b).
			Int("invalidated", len(invalidated)).
			Msg("outgoing challenges withdrawn on session entry")
	}
}

func (s *MatchService) queuedLocked(playerID string) bool {
	for _, req := range s.queue {
		if req.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (s *MatchService) dequeueLocked(playerID string) bool {
	for i, req := range s.queue {
		if req.PlayerID == playerID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}
