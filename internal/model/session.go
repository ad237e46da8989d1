package model

import "time"

type SessionState string

const (
	SessionStateCreated  SessionState = "created"
	SessionStateReady    SessionState = "ready"
	SessionStateRunning  SessionState = "running"
	SessionStateFinished SessionState = "finished"
)

type PlayerStatus string

const (
	PlayerStatusPlaying    PlayerStatus = "playing"
	PlayerStatusValidating PlayerStatus = "validating"
	PlayerStatusFail       PlayerStatus = "fail"
	PlayerStatusSuccess    PlayerStatus = "success"
	PlayerStatusLost       PlayerStatus = "lost"
)

type FinishReason string

const (
	FinishReasonCompleted FinishReason = "completed"
	FinishReasonForfeit   FinishReason = "forfeit"
	FinishReasonTimeout   FinishReason = "timeout"
)

// Session is one live race between exactly two players.
type Session struct {
	ID         string                  `json:"id"`
	Players    [2]PlayerInfo           `json:"players"`
	StartText  string                  `json:"startText"`
	GoalText   string                  `json:"goalText"`
	State      SessionState            `json:"state"`
	Status     map[string]PlayerStatus `json:"status"`
	Loaded     map[string]bool         `json:"-"`
	WinnerID   string                  `json:"winnerId,omitempty"`
	Reason     FinishReason            `json:"reason,omitempty"`
	CreatedAt  time.Time               `json:"createdAt"`
	StartedAt  *time.Time              `json:"startedAt,omitempty"`
	FinishedAt *time.Time              `json:"finishedAt,omitempty"`
}

func (s *Session) HasPlayer(playerID string) bool {
	return s.Players[0].ID == playerID || s.Players[1].ID == playerID
}

// Opponent returns the participant that is not playerID.
func (s *Session) Opponent(playerID string) PlayerInfo {
	if s.Players[0].ID == playerID {
		return s.Players[1]
	}
	return s.Players[0]
}

func (s *Session) PlayerIDs() []string {
	return []string{s.Players[0].ID, s.Players[1].ID}
}

// Clone returns a copy that does not share maps with s.
func (s *Session) Clone() Session {
	out := *s
	out.Status = make(map[string]PlayerStatus, len(s.Status))
	for k, v := range s.Status {
		out.Status[k] = v
	}
	out.Loaded = make(map[string]bool, len(s.Loaded))
	for k, v := range s.Loaded {
		out.Loaded[k] = v
	}
	return out
}
