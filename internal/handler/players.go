package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/registry"
	"github.com/vimrace/race-server/internal/repository"
)

type PlayersHandler struct {
	registry *registry.Registry
	users    repository.UserRepository
}

func NewPlayersHandler(reg *registry.Registry, users repository.UserRepository) *PlayersHandler {
	return &PlayersHandler{
		registry: reg,
		users:    users,
	}
}

func (h *PlayersHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/online", h.Online)
	r.Get("/{id}", h.Get)
	return r
}

func (h *PlayersHandler) Online(w http.ResponseWriter, r *http.Request) {
	players := h.registry.OnlinePlayers()

	items := make([]map[string]any, 0, len(players))
	for _, p := range players {
		items = append(items, formatPlayer(p))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"players": items,
		"count":   len(items),
	})
}

// Get returns a directory user with their live presence and the number of
// pending challenges they have sent and received.
func (h *PlayersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	if user == nil {
		writeError(w, apperrors.NotFound("Player"))
		return
	}

	sent, received := h.registry.ChallengesOf(user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                user.ID,
		"username":          user.Username,
		"profilePictureUrl": user.ProfilePictureURL,
		"lastSignInTime":    formatTime(user.LastSignInTime),
		"presence":          h.registry.Presence(user.ID),
		"pendingChallenges": map[string]int{
			"sent":     len(sent),
			"received": len(received),
		},
	})
}

func formatPlayer(p model.Player) map[string]any {
	return map[string]any{
		"id":       p.ID,
		"username": p.Username,
		"presence": p.Presence,
	}
}
