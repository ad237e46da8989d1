package registry

import (
	"sort"
	"time"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
)

// AddChallenge indexes c under both its sender and its receiver. A connected
// party that is already in a session cannot take part in a new challenge, so
// a send racing session entry never outlives the entry cascade.
func (r *Registry) AddChallenge(c model.Challenge) error {
	if c.UUID == "" {
		return apperrors.MissingRequired("uuid")
	}
	if c.SenderID == c.ReceiverID {
		return apperrors.SelfChallenge()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySender[c.SenderID][c.UUID]; exists {
		return apperrors.Conflict("Challenge already exists")
	}
	if e, ok := r.players[c.ReceiverID]; ok && e.player.Presence == model.PresenceInSession {
		return apperrors.PlayerInGame()
	}
	if e, ok := r.players[c.SenderID]; ok && e.player.Presence == model.PresenceInSession {
		return apperrors.Conflict("Cannot send a challenge while in a game")
	}

	stored := c
	index(r.bySender, c.SenderID, &stored)
	index(r.byReceiver, c.ReceiverID, &stored)
	return nil
}

// RemoveChallenge drops c from both indices. Removing an absent challenge is
// a no-op; the return value reports whether anything was removed.
func (r *Registry) RemoveChallenge(c model.Challenge) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeChallengeLocked(c)
}

func (r *Registry) GetChallengeByReceiver(receiverID, uuid string) (model.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byReceiver[receiverID][uuid]
	if !ok {
		return model.Challenge{}, apperrors.NotFound("Challenge")
	}
	return *c, nil
}

func (r *Registry) GetChallengeBySender(senderID, uuid string) (model.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.bySender[senderID][uuid]
	if !ok {
		return model.Challenge{}, apperrors.NotFound("Challenge")
	}
	return *c, nil
}

// GetOtherOutgoingChallenges groups the challenges sent by playerID, other
// than excludeUUID, by receiver.
func (r *Registry) GetOtherOutgoingChallenges(playerID, excludeUUID string) map[string][]model.Challenge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]model.Challenge)
	for uuid, c := range r.bySender[playerID] {
		if uuid == excludeUUID {
			continue
		}
		out[c.ReceiverID] = append(out[c.ReceiverID], *c)
	}
	for _, list := range out {
		SortChallenges(list)
	}
	return out
}

// ClearOutgoingChallenges removes every challenge sent by playerID without
// notifying anyone and returns what was removed.
func (r *Registry) ClearOutgoingChallenges(playerID string) []model.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []model.Challenge
	for _, c := range r.bySender[playerID] {
		removed = append(removed, *c)
	}
	for _, c := range removed {
		r.removeChallengeLocked(c)
	}
	SortChallenges(removed)
	return removed
}

// ChallengesOf returns the challenges playerID has sent and received.
func (r *Registry) ChallengesOf(playerID string) (sent, received []model.Challenge) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.bySender[playerID] {
		sent = append(sent, *c)
	}
	for _, c := range r.byReceiver[playerID] {
		received = append(received, *c)
	}
	SortChallenges(sent)
	SortChallenges(received)
	return sent, received
}

// ExpireChallenges removes and returns every challenge created before cutoff.
func (r *Registry) ExpireChallenges(cutoff time.Time) []model.Challenge {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []model.Challenge
	for _, byUUID := range r.bySender {
		for _, c := range byUUID {
			if c.CreatedAt.Before(cutoff) {
				expired = append(expired, *c)
			}
		}
	}
	for _, c := range expired {
		r.removeChallengeLocked(c)
	}
	SortChallenges(expired)
	return expired
}

func (r *Registry) ChallengeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, byUUID := range r.bySender {
		n += len(byUUID)
	}
	return n
}

func (r *Registry) removeChallengeLocked(c model.Challenge) bool {
	_, inSender := r.bySender[c.SenderID][c.UUID]
	_, inReceiver := r.byReceiver[c.ReceiverID][c.UUID]
	unindex(r.bySender, c.SenderID, c.UUID)
	unindex(r.byReceiver, c.ReceiverID, c.UUID)
	return inSender || inReceiver
}

func (r *Registry) removeAllChallengesLocked(playerID string) []model.Challenge {
	var removed []model.Challenge
	for _, c := range r.bySender[playerID] {
		removed = append(removed, *c)
	}
	for _, c := range r.byReceiver[playerID] {
		removed = append(removed, *c)
	}
	for _, c := range removed {
		r.removeChallengeLocked(c)
	}
	SortChallenges(removed)
	return removed
}

func index(m map[string]map[string]*model.Challenge, playerID string, c *model.Challenge) {
	if m[playerID] == nil {
		m[playerID] = make(map[string]*model.Challenge)
	}
	m[playerID][c.UUID] = c
}

func unindex(m map[string]map[string]*model.Challenge, playerID, uuid string) {
	byUUID, ok := m[playerID]
	if !ok {
		return
	}
	delete(byUUID, uuid)
	if len(byUUID) == 0 {
		delete(m, playerID)
	}
}

// SortChallenges orders challenges oldest first, ties broken by uuid.
func SortChallenges(list []model.Challenge) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].UUID < list[j].UUID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
