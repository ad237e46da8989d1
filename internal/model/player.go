package model

import "time"

type Presence string

const (
	PresenceOffline   Presence = "offline"
	PresenceIdle      Presence = "idle"
	PresenceSearching Presence = "searching"
	PresenceInSession Presence = "in_session"
)

// Player is the local presence record of a connected user.
type Player struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Presence    Presence  `json:"presence"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// PlayerInfo is the public identity shown to an opponent.
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (p Player) Info() PlayerInfo {
	return PlayerInfo{ID: p.ID, Username: p.Username}
}

// MatchRequest is a random-matchmaking queue entry.
type MatchRequest struct {
	PlayerID   string
	Username   string
	EnqueuedAt time.Time
}
