package protocol

import (
	"encoding/json"

	"github.com/vimrace/race-server/internal/diff"
	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
)

// Outbound event names
const (
	EventChallengeSent        = "sent challenge"
	EventNewChallenge         = "new challenge"
	EventCannotSendChallenge  = "cannot send challenge"
	EventChallengeRemoved     = "remove challenge"
	EventMatchFound           = "match found"
	EventStart                = "start"
	EventKeystrokeRelay       = "keystroke"
	EventFail                 = "fail"
	EventFinish               = "finish"
	EventMatchmakingQueued    = "matchmaking queued"
	EventMatchmakingCancelled = "matchmaking cancelled"
	EventError                = "error"
)

// Outbound is an event sent to a connection. The set of implementations is
// closed.
type Outbound interface {
	EventName() string
	outbound()
}

type ChallengeSent struct {
	Challenge model.Challenge `json:"challenge"`
}

func (ChallengeSent) EventName() string { return EventChallengeSent }
func (ChallengeSent) outbound()         {}

type NewChallenge struct {
	Challenge model.Challenge `json:"challenge"`
}

func (NewChallenge) EventName() string { return EventNewChallenge }
func (NewChallenge) outbound()         {}

type CannotSendChallenge struct {
	Error string              `json:"error"`
	Code  apperrors.ErrorCode `json:"code"`
}

func (CannotSendChallenge) EventName() string { return EventCannotSendChallenge }
func (CannotSendChallenge) outbound()         {}

type ChallengeRemoved struct {
	Challenge model.Challenge `json:"challenge"`
}

func (ChallengeRemoved) EventName() string { return EventChallengeRemoved }
func (ChallengeRemoved) outbound()         {}

type MatchFound struct {
	SessionID string           `json:"sessionId"`
	Player1   model.PlayerInfo `json:"player1"`
	Player2   model.PlayerInfo `json:"player2"`
	Opponent  model.PlayerInfo `json:"opponent"`
	StartText string           `json:"startText"`
	GoalText  string           `json:"goalText"`
	Diff      []diff.Edit      `json:"diff"`
}

func (MatchFound) EventName() string { return EventMatchFound }
func (MatchFound) outbound()         {}

type Start struct {
	SessionID string `json:"sessionId"`
}

func (Start) EventName() string { return EventStart }
func (Start) outbound()         {}

// KeystrokeRelay is an opponent's input event, tagged with the sender id.
type KeystrokeRelay struct {
	SessionID string          `json:"sessionId"`
	ID        string          `json:"id"`
	Event     json.RawMessage `json:"event"`
}

func (KeystrokeRelay) EventName() string { return EventKeystrokeRelay }
func (KeystrokeRelay) outbound()         {}

type Fail struct {
	SessionID  string      `json:"sessionId"`
	ID         string      `json:"id"`
	Diff       []diff.Edit `json:"diff"`
	Submission string      `json:"submission"`
}

func (Fail) EventName() string { return EventFail }
func (Fail) outbound()         {}

type Finish struct {
	SessionID string             `json:"sessionId"`
	WinnerID  string             `json:"winnerId"`
	Reason    model.FinishReason `json:"reason"`
}

func (Finish) EventName() string { return EventFinish }
func (Finish) outbound()         {}

type MatchmakingQueued struct {
	Position int `json:"position"`
}

func (MatchmakingQueued) EventName() string { return EventMatchmakingQueued }
func (MatchmakingQueued) outbound()         {}

type MatchmakingCancelled struct{}

func (MatchmakingCancelled) EventName() string { return EventMatchmakingCancelled }
func (MatchmakingCancelled) outbound()         {}

// Error reports a failed inbound event back to the connection that sent it.
type Error struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Event   string              `json:"event,omitempty"`
}

func (Error) EventName() string { return EventError }
func (Error) outbound()         {}

// ErrorFor builds an Error event from err without exposing internals.
func ErrorFor(event string, err error) Error {
	pub := apperrors.Public(err)
	return Error{Code: pub.Code, Message: pub.Message, Event: event}
}
