package service

import (
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/registry"
)

// sessionEntryInvalidation is the cascade applied whenever players a and b
// enter a session, whether through an accepted challenge or a matchmaking
// pairing: every challenge either of them has sent, other than excludeUUID,
// is withdrawn and returned oldest first. Challenges they have received are
// left alone, so a third party keeps the choice to cancel them; those become
// acceptable again once the session ends.
//
// Both players must already be in_session so no new challenge from them can
// be added while the cascade runs.
func sessionEntryInvalidation(reg *registry.Registry, a, b, excludeUUID string) []model.Challenge {
	var invalidated []model.Challenge
	for _, playerID := range []string{a, b} {
		for _, list := range reg.GetOtherOutgoingChallenges(playerID, excludeUUID) {
			invalidated = append(invalidated, list...)
		}
	}
	for _, playerID := range []string{a, b} {
		reg.ClearOutgoingChallenges(playerID)
	}
	registry.SortChallenges(invalidated)
	return invalidated
}
