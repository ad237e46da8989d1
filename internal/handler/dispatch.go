package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/protocol"
	"github.com/vimrace/race-server/internal/service"
)

// Peer is the connection an inbound event arrived on.
type Peer interface {
	PlayerID() string
	Send(event protocol.Outbound) error
}

// Dispatcher routes decoded inbound events to the challenge and match
// services. Failures are reported to the originating connection only.
type Dispatcher struct {
	challenges *service.ChallengeService
	matches    *service.MatchService
}

func NewDispatcher(challenges *service.ChallengeService, matches *service.MatchService) *Dispatcher {
	return &Dispatcher{
		challenges: challenges,
		matches:    matches,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, peer Peer, env protocol.Envelope) {
	in, err := protocol.Decode(env)
	if err != nil {
		d.reply(peer, env.Type, err)
		return
	}

	playerID := peer.PlayerID()
	if claimant := in.Claimant(); claimant != "" && claimant != playerID {
		log.Warn().
			Str("playerId", playerID).
			Str("claimant", claimant).
			Str("event", in.EventName()).
			Msg("payload claims another player")
		d.reply(peer, in.EventName(), apperrors.ValidationError("Payload player does not match connection"))
		return
	}

	switch e := in.(type) {
	case *protocol.SendChallenge:
		if _, err := d.challenges.Send(ctx, playerID, e.ReceiverUsername); err != nil {
			d.logUnexpected(playerID, in.EventName(), err)
			pub := apperrors.Public(err)
			d.deliver(peer, protocol.CannotSendChallenge{Error: pub.Message, Code: pub.Code})
		}
		return
	case *protocol.DeclineChallenge:
		err = d.challenges.Decline(ctx, playerID, e.ChallengeUUID)
	case *protocol.CancelChallenge:
		err = d.challenges.Cancel(ctx, playerID, e.ChallengeUUID)
	case *protocol.AcceptChallenge:
		err = d.challenges.Accept(ctx, playerID, e.ChallengeUUID)
	case *protocol.RequestMatch:
		err = d.matches.RequestMatch(ctx, playerID)
	case *protocol.CancelMatchmaking:
		err = d.matches.CancelMatchmaking(playerID)
	case *protocol.Loaded:
		err = d.matches.Loaded(e.SessionID, playerID)
	case *protocol.Keystroke:
		err = d.matches.RelayKeystroke(e.SessionID, playerID, e.Event)
	case *protocol.Validate:
		err = d.matches.Validate(ctx, e.SessionID, playerID, e.SubmissionText)
	default:
		err = apperrors.UnknownEvent(in.EventName())
	}

	if err != nil {
		d.reply(peer, in.EventName(), err)
	}
}

func (d *Dispatcher) reply(peer Peer, event string, err error) {
	d.logUnexpected(peer.PlayerID(), event, err)
	d.deliver(peer, protocol.ErrorFor(event, err))
}

func (d *Dispatcher) deliver(peer Peer, event protocol.Outbound) {
	if err := peer.Send(event); err != nil {
		log.Debug().
			Err(err).
			Str("playerId", peer.PlayerID()).
			Str("event", event.EventName()).
			Msg("failed to deliver reply")
	}
}

func (d *Dispatcher) logUnexpected(playerID, event string, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if ok && appErr.Code != apperrors.ErrCodeDatabase && appErr.Code != apperrors.ErrCodeExternal && appErr.Code != apperrors.ErrCodeInternal {
		return
	}
	log.Error().
		Err(err).
		Str("playerId", playerID).
		Str("event", event).
		Msg("event handling failed")
}
