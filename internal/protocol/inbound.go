package protocol

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/vimrace/race-server/internal/errors"
)

// Inbound event names
const (
	EventSendChallenge     = "send challenge"
	EventDeclineChallenge  = "decline challenge"
	EventCancelChallenge   = "cancel challenge"
	EventAcceptChallenge   = "accept challenge"
	EventRequestMatch      = "request match"
	EventCancelMatchmaking = "cancel matchmaking"
	EventLoaded            = "loaded"
	EventKeystroke         = "keystroke"
	EventValidate          = "validate"
)

// Inbound is an event received from a connection. The set of implementations
// is closed; dispatchers switch over the concrete pointer types.
type Inbound interface {
	EventName() string
	// Claimant is the player id the payload claims to act for, or "" when the
	// payload does not carry one. It must match the connection's player.
	Claimant() string
	Validate() error
	inbound()
}

type SendChallenge struct {
	SenderID         string `json:"senderId,omitempty"`
	SenderUsername   string `json:"senderUsername,omitempty"`
	ReceiverUsername string `json:"receiverUsername"`
}

func (*SendChallenge) EventName() string  { return EventSendChallenge }
func (e *SendChallenge) Claimant() string { return e.SenderID }
func (*SendChallenge) inbound()           {}

func (e *SendChallenge) Validate() error {
	e.ReceiverUsername = strings.TrimSpace(e.ReceiverUsername)
	if e.ReceiverUsername == "" {
		return apperrors.MissingRequired("receiverUsername")
	}
	return nil
}

type DeclineChallenge struct {
	ReceiverID    string `json:"receiverId,omitempty"`
	ChallengeUUID string `json:"challengeUuid"`
}

func (*DeclineChallenge) EventName() string  { return EventDeclineChallenge }
func (e *DeclineChallenge) Claimant() string { return e.ReceiverID }
func (*DeclineChallenge) inbound()           {}
func (e *DeclineChallenge) Validate() error  { return validateChallengeUUID(e.ChallengeUUID) }

type CancelChallenge struct {
	SenderID      string `json:"senderId,omitempty"`
	ChallengeUUID string `json:"challengeUuid"`
}

func (*CancelChallenge) EventName() string  { return EventCancelChallenge }
func (e *CancelChallenge) Claimant() string { return e.SenderID }
func (*CancelChallenge) inbound()           {}
func (e *CancelChallenge) Validate() error  { return validateChallengeUUID(e.ChallengeUUID) }

type AcceptChallenge struct {
	ReceiverID    string `json:"receiverId,omitempty"`
	ChallengeUUID string `json:"challengeUuid"`
}

func (*AcceptChallenge) EventName() string  { return EventAcceptChallenge }
func (e *AcceptChallenge) Claimant() string { return e.ReceiverID }
func (*AcceptChallenge) inbound()           {}
func (e *AcceptChallenge) Validate() error  { return validateChallengeUUID(e.ChallengeUUID) }

type RequestMatch struct {
	PlayerID string `json:"playerId,omitempty"`
}

func (*RequestMatch) EventName() string  { return EventRequestMatch }
func (e *RequestMatch) Claimant() string { return e.PlayerID }
func (*RequestMatch) inbound()           {}
func (*RequestMatch) Validate() error    { return nil }

type CancelMatchmaking struct {
	PlayerID string `json:"playerId,omitempty"`
}

func (*CancelMatchmaking) EventName() string  { return EventCancelMatchmaking }
func (e *CancelMatchmaking) Claimant() string { return e.PlayerID }
func (*CancelMatchmaking) inbound()           {}
func (*CancelMatchmaking) Validate() error    { return nil }

// Loaded signals that the player's editor is ready. SessionID may be empty,
// in which case the player's current session is used.
type Loaded struct {
	SessionID string `json:"sessionId,omitempty"`
	PlayerID  string `json:"playerId,omitempty"`
}

func (*Loaded) EventName() string  { return EventLoaded }
func (e *Loaded) Claimant() string { return e.PlayerID }
func (*Loaded) inbound()           {}
func (*Loaded) Validate() error    { return nil }

// Keystroke carries an opaque editor input event that is relayed verbatim.
type Keystroke struct {
	SessionID string          `json:"sessionId,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	Event     json.RawMessage `json:"event"`
}

func (*Keystroke) EventName() string  { return EventKeystroke }
func (e *Keystroke) Claimant() string { return e.SenderID }
func (*Keystroke) inbound()           {}

func (e *Keystroke) Validate() error {
	if len(e.Event) == 0 || string(e.Event) == "null" {
		return apperrors.MissingRequired("event")
	}
	return nil
}

type Validate struct {
	SessionID      string `json:"sessionId,omitempty"`
	PlayerID       string `json:"playerId,omitempty"`
	SubmissionText string `json:"submissionText"`
}

func (*Validate) EventName() string  { return EventValidate }
func (e *Validate) Claimant() string { return e.PlayerID }
func (*Validate) inbound()           {}
func (*Validate) Validate() error    { return nil }

func validateChallengeUUID(id string) error {
	if id == "" {
		return apperrors.MissingRequired("challengeUuid")
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.ValidationError("challengeUuid must be a uuid")
	}
	return nil
}
