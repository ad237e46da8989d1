package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/config"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type playerCounter interface {
	Count() int
}

type sessionCounter interface {
	ActiveSessions() int
}

type HealthHandler struct {
	db       pinger
	players  playerCounter
	sessions sessionCounter
}

func NewHealthHandler(db pinger, players playerCounter, sessions sessionCounter) *HealthHandler {
	return &HealthHandler{db: db, players: players, sessions: sessions}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("health check: database unreachable")
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UnixMilli(),
		"playersOnline":  h.players.Count(),
		"activeSessions": h.sessions.ActiveSessions(),
	})
}
