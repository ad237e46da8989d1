// Package protocol defines the closed set of events exchanged with a race
// client. Every frame on the wire is an Envelope whose Type is the event name.
package protocol

import (
	"encoding/json"

	apperrors "github.com/vimrace/race-server/internal/errors"
)

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps an outbound event in an envelope.
func Encode(event Outbound) (Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: event.EventName(), Data: data}, nil
}

// Decode parses an inbound envelope into its event type and validates it.
func Decode(env Envelope) (Inbound, error) {
	var in Inbound
	switch env.Type {
	case EventSendChallenge:
		in = &SendChallenge{}
	case EventDeclineChallenge:
		in = &DeclineChallenge{}
	case EventCancelChallenge:
		in = &CancelChallenge{}
	case EventAcceptChallenge:
		in = &AcceptChallenge{}
	case EventRequestMatch:
		in = &RequestMatch{}
	case EventCancelMatchmaking:
		in = &CancelMatchmaking{}
	case EventLoaded:
		in = &Loaded{}
	case EventKeystroke:
		in = &Keystroke{}
	case EventValidate:
		in = &Validate{}
	default:
		return nil, apperrors.UnknownEvent(env.Type)
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, in); err != nil {
			return nil, apperrors.ValidationError("malformed " + env.Type + " payload").WithCause(err)
		}
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}
