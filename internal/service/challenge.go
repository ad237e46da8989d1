package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/audit"
	"github.com/vimrace/race-server/internal/config"
	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
	redisclient "github.com/vimrace/race-server/internal/redis"
	"github.com/vimrace/race-server/internal/registry"
	"github.com/vimrace/race-server/internal/repository"
)

type limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

type ChallengeServiceConfig struct {
	// RateLimitPerMin caps challenges sent per player per minute. Zero
	// disables the limit.
	RateLimitPerMin int
	// TTL is how long an unanswered challenge lives. Zero disables expiry.
	TTL time.Duration
}

// ChallengeService runs the challenge lifecycle: a challenge is proposed by
// Send and resolved by exactly one of Accept, Decline, Cancel, a disconnect
// or expiry.
type ChallengeService struct {
	registry    *registry.Registry
	userRepo    repository.UserRepository
	matches     *MatchService
	rateLimiter limiter
	cfg         ChallengeServiceConfig
	locks       *keyLocks
	now         func() time.Time
}

// NewChallengeService creates a challenge service. rateLimiter may be nil.
func NewChallengeService(
	reg *registry.Registry,
	userRepo repository.UserRepository,
	matches *MatchService,
	rateLimiter limiter,
	cfg ChallengeServiceConfig,
) *ChallengeService {
	return &ChallengeService{
		registry:    reg,
		userRepo:    userRepo,
		matches:     matches,
		rateLimiter: rateLimiter,
		cfg:         cfg,
		locks:       newKeyLocks(),
		now:         time.Now,
	}
}

// Send proposes a race from senderID to the user named receiverUsername.
// Rejections are checked in order: unknown user, self, offline, in a game.
func (s *ChallengeService) Send(ctx context.Context, senderID, receiverUsername string) (*model.Challenge, error) {
	unlock := s.locks.Lock(senderID)
	defer unlock()

	if s.rateLimiter != nil && s.cfg.RateLimitPerMin > 0 {
		allowed, resetAt := s.rateLimiter.CheckLimit(ctx, redisclient.ChallengeLimitKey(senderID), s.cfg.RateLimitPerMin, config.RateLimitWindow)
		if !allowed {
			audit.Log(ctx, audit.Event{
				Type:     audit.EventRateLimitExceed,
				PlayerID: senderID,
				Details:  map[string]interface{}{"action": "send_challenge"},
			})
			return nil, apperrors.RateLimitExceeded().WithDetails(map[string]interface{}{
				"resetAt": resetAt.Unix(),
			})
		}
	}

	user, err := s.userRepo.FindByUsername(ctx, receiverUsername)
	if err != nil {
		return nil, apperrors.External("user directory", err)
	}
	if user == nil {
		return nil, apperrors.PlayerNotFound()
	}
	if user.ID == senderID {
		return nil, apperrors.SelfChallenge()
	}

	receiver, online := s.registry.Player(user.ID)
	if !online {
		return nil, apperrors.PlayerOffline()
	}
	if receiver.Presence == model.PresenceInSession {
		return nil, apperrors.PlayerInGame()
	}

	sender, online := s.registry.Player(senderID)
	if !online {
		return nil, apperrors.ConnectionClosed()
	}
	if sender.Presence == model.PresenceInSession {
		return nil, apperrors.Conflict("Cannot send a challenge while in a game")
	}

	c := model.Challenge{
		UUID:             uuid.NewString(),
		SenderID:         sender.ID,
		SenderUsername:   sender.Username,
		ReceiverID:       receiver.ID,
		ReceiverUsername: receiver.Username,
		CreatedAt:        s.now(),
	}
	if err := s.registry.AddChallenge(c); err != nil {
		return nil, err
	}

	s.send(senderID, protocol.ChallengeSent{Challenge: c})
	s.send(receiver.ID, protocol.NewChallenge{Challenge: c})

	log.Info().
		Str("challengeUuid", c.UUID).
		Str("senderId", c.SenderID).
		Str("receiverId", c.ReceiverID).
		Msg("challenge sent")
	audit.Log(ctx, audit.Event{
		Type:     audit.EventChallengeSend,
		PlayerID: senderID,
		Details:  map[string]interface{}{"challengeUuid": c.UUID, "receiverId": c.ReceiverID},
	})

	return &c, nil
}

// Decline removes a challenge addressed to receiverID and tells both sides.
func (s *ChallengeService) Decline(ctx context.Context, receiverID, challengeUUID string) error {
	c, err := s.registry.GetChallengeByReceiver(receiverID, challengeUUID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(c.SenderID, receiverID)
	defer unlock()

	c, err = s.registry.GetChallengeByReceiver(receiverID, challengeUUID)
	if err != nil {
		return err
	}
	if !s.registry.RemoveChallenge(c) {
		return apperrors.NotFound("Challenge")
	}

	s.notifyRemoved(c)
	audit.Log(ctx, audit.Event{
		Type:     audit.EventChallengeDecline,
		PlayerID: receiverID,
		Details:  map[string]interface{}{"challengeUuid": c.UUID},
	})
	return nil
}

// Cancel withdraws a challenge sent by senderID and tells both sides.
func (s *ChallengeService) Cancel(ctx context.Context, senderID, challengeUUID string) error {
	c, err := s.registry.GetChallengeBySender(senderID, challengeUUID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(senderID, c.ReceiverID)
	defer unlock()

	c, err = s.registry.GetChallengeBySender(senderID, challengeUUID)
	if err != nil {
		return err
	}
	if !s.registry.RemoveChallenge(c) {
		return apperrors.NotFound("Challenge")
	}

	s.notifyRemoved(c)
	audit.Log(ctx, audit.Event{
		Type:     audit.EventChallengeCancel,
		PlayerID: senderID,
		Details:  map[string]interface{}{"challengeUuid": c.UUID},
	})
	return nil
}

// Accept resolves a challenge addressed to receiverID by starting a session
// between its two players. Both must be idle. Other challenges either player
// has sent are withdrawn before the session starts.
func (s *ChallengeService) Accept(ctx context.Context, receiverID, challengeUUID string) error {
	c, err := s.registry.GetChallengeByReceiver(receiverID, challengeUUID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(c.SenderID, receiverID)
	c, err = s.registry.GetChallengeByReceiver(receiverID, challengeUUID)
	if err != nil {
		unlock()
		return err
	}
	if !s.registry.IsOnline(c.SenderID) {
		unlock()
		return apperrors.PlayerOffline()
	}
	if err := s.matches.Reserve(c.SenderID, c.ReceiverID); err != nil {
		unlock()
		return err
	}

	invalidated := sessionEntryInvalidation(s.registry, c.SenderID, c.ReceiverID, c.UUID)
	s.registry.RemoveChallenge(c)
	unlock()

	for _, other := range invalidated {
		s.notifyRemoved(other)
	}

	log.Info().
		Str("challengeUuid", c.UUID).
		Str("senderId", c.SenderID).
		Str("receiverId", c.ReceiverID).
		Int("invalidated", len(invalidated)).
		Msg("challenge accepted")
	audit.Log(ctx, audit.Event{
		Type:     audit.EventChallengeAccept,
		PlayerID: receiverID,
		Details:  map[string]interface{}{"challengeUuid": c.UUID, "senderId": c.SenderID},
	})

	// Both players are told about a failed start by the coordinator.
	if _, err := s.matches.StartReserved(ctx, c.SenderID, c.ReceiverID); err != nil {
		log.Warn().Err(err).Str("challengeUuid", c.UUID).Msg("accepted challenge did not start a session")
	}
	return nil
}

// ExpireStale removes challenges older than the configured TTL and tells
// both sides of each.
func (s *ChallengeService) ExpireStale(ctx context.Context) (int64, error) {
	if s.cfg.TTL <= 0 {
		return 0, nil
	}

	expired := s.registry.ExpireChallenges(s.now().Add(-s.cfg.TTL))
	for _, c := range expired {
		s.notifyRemoved(c)
		audit.Log(ctx, audit.Event{
			Type:     audit.EventChallengeExpire,
			PlayerID: c.SenderID,
			Details:  map[string]interface{}{"challengeUuid": c.UUID, "receiverId": c.ReceiverID},
		})
	}
	return int64(len(expired)), nil
}

func (s *ChallengeService) notifyRemoved(c model.Challenge) {
	s.send(c.SenderID, protocol.ChallengeRemoved{Challenge: c})
	s.send(c.ReceiverID, protocol.ChallengeRemoved{Challenge: c})
}

func (s *ChallengeService) send(playerID string, event protocol.Outbound) {
	if err := s.registry.Send(playerID, event); err != nil {
		log.Debug().
			Err(err).
			Str("playerId", playerID).
			Str("event", event.EventName()).
			Msg("event not delivered")
	}
}
