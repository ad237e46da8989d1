// Package registry is the process-wide directory of online players, their
// connections and their pending challenges.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/protocol"
)

// Conn is a connection handle. The registry holds it without owning it: it
// is only valid while the player is connected.
type Conn interface {
	ID() string
	Send(event protocol.Outbound) error
	Close() error
}

// DisconnectHook runs after a player's connection has been removed and their
// challenges cleared.
type DisconnectHook func(playerID string)

type entry struct {
	player model.Player
	conn   Conn
}

type Registry struct {
	mu         sync.RWMutex
	players    map[string]*entry
	bySender   map[string]map[string]*model.Challenge // senderID -> uuid -> challenge
	byReceiver map[string]map[string]*model.Challenge // receiverID -> uuid -> challenge
	hooks      []DisconnectHook
	now        func() time.Time
}

func New() *Registry {
	return &Registry{
		players:    make(map[string]*entry),
		bySender:   make(map[string]map[string]*model.Challenge),
		byReceiver: make(map[string]map[string]*model.Challenge),
		now:        time.Now,
	}
}

// OnDisconnect registers a hook run for every unregistered or replaced
// connection. Hooks must be registered before connections are accepted.
func (r *Registry) OnDisconnect(hook DisconnectHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Register records conn as playerID's connection with presence idle. A
// previous connection for the same player is treated as disconnected: its
// challenges are cleared and disconnect hooks run. The replaced handle is
// returned so the caller can close it.
func (r *Registry) Register(playerID, username string, conn Conn) Conn {
	r.mu.Lock()
	var stale Conn
	var removed []model.Challenge
	if old, ok := r.players[playerID]; ok && old.conn != conn {
		stale = old.conn
		removed = r.removeAllChallengesLocked(playerID)
	}
	r.players[playerID] = &entry{
		player: model.Player{
			ID:          playerID,
			Username:    username,
			Presence:    model.PresenceIdle,
			ConnectedAt: r.now(),
		},
		conn: conn,
	}
	hooks := r.hooks
	r.mu.Unlock()

	log.Info().
		Str("playerId", playerID).
		Str("username", username).
		Bool("reconnect", stale != nil).
		Msg("player connected")

	if stale != nil {
		r.notifyRemoved(playerID, removed)
		for _, hook := range hooks {
			hook(playerID)
		}
	}
	return stale
}

// Unregister removes playerID's connection if conn is still the current one;
// a stale handle closing after a reconnect is a no-op. All challenges where
// the player is sender or receiver are removed and the counterparts notified,
// then disconnect hooks run.
func (r *Registry) Unregister(playerID string, conn Conn) bool {
	r.mu.Lock()
	e, ok := r.players[playerID]
	if !ok || (conn != nil && e.conn != conn) {
		r.mu.Unlock()
		return false
	}
	delete(r.players, playerID)
	removed := r.removeAllChallengesLocked(playerID)
	hooks := r.hooks
	r.mu.Unlock()

	log.Info().
		Str("playerId", playerID).
		Int("challengesRemoved", len(removed)).
		Msg("player disconnected")

	r.notifyRemoved(playerID, removed)
	for _, hook := range hooks {
		hook(playerID)
	}
	return true
}

func (r *Registry) GetConnection(playerID string) (Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.players[playerID]
	if !ok {
		return nil, apperrors.NotFound("Player connection")
	}
	return e.conn, nil
}

func (r *Registry) IsOnline(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[playerID]
	return ok
}

func (r *Registry) Player(playerID string) (model.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.players[playerID]
	if !ok {
		return model.Player{}, false
	}
	return e.player, true
}

// Presence returns the player's presence, offline when not connected.
func (r *Registry) Presence(playerID string) model.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.players[playerID]; ok {
		return e.player.Presence
	}
	return model.PresenceOffline
}

func (r *Registry) SetPresence(playerID string, p model.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.players[playerID]
	if !ok {
		return apperrors.PlayerOffline()
	}
	e.player.Presence = p
	return nil
}

// TransitionPresence sets the player's presence to `to` if it currently is
// one of from. It reports whether the transition happened.
func (r *Registry) TransitionPresence(playerID string, to model.Presence, from ...model.Presence) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.players[playerID]
	if !ok || !presenceIn(e.player.Presence, from) {
		return false
	}
	e.player.Presence = to
	return true
}

// ReservePair moves both players to in_session at once, provided both are
// online and in one of the from presences. Nothing changes on failure.
func (r *Registry) ReservePair(a, b string, from ...model.Presence) error {
	if a == b {
		return apperrors.ValidationError("A player cannot be matched with themselves")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ea, okA := r.players[a]
	eb, okB := r.players[b]
	if !okA || !okB {
		return apperrors.PlayerOffline()
	}
	for _, e := range []*entry{ea, eb} {
		if !presenceIn(e.player.Presence, from) {
			if e.player.Presence == model.PresenceInSession {
				return apperrors.PlayerInGame()
			}
			return apperrors.StateError(e.player.Username + " is " + string(e.player.Presence))
		}
	}
	ea.player.Presence = model.PresenceInSession
	eb.player.Presence = model.PresenceInSession
	return nil
}

// Send delivers event to the player's current connection.
func (r *Registry) Send(playerID string, event protocol.Outbound) error {
	conn, err := r.GetConnection(playerID)
	if err != nil {
		return err
	}
	return conn.Send(event)
}

// OnlinePlayers lists connected players ordered by username.
func (r *Registry) OnlinePlayers() []model.Player {
	r.mu.RLock()
	out := make([]model.Player, 0, len(r.players))
	for _, e := range r.players {
		out = append(out, e.player)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Username == out[j].Username {
			return out[i].ID < out[j].ID
		}
		return out[i].Username < out[j].Username
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *Registry) notifyRemoved(playerID string, removed []model.Challenge) {
	for _, c := range removed {
		other := c.Counterpart(playerID)
		if err := r.Send(other, protocol.ChallengeRemoved{Challenge: c}); err != nil {
			log.Debug().
				Err(err).
				Str("playerId", other).
				Str("challengeUuid", c.UUID).
				Msg("challenge removal not delivered")
		}
	}
}

func presenceIn(p model.Presence, set []model.Presence) bool {
	for _, s := range set {
		if p == s {
			return true
		}
	}
	return false
}
