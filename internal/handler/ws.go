package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/audit"
	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/protocol"
	"github.com/vimrace/race-server/internal/registry"
	"github.com/vimrace/race-server/internal/repository"
	"github.com/vimrace/race-server/internal/ws"
)

// WSHandler upgrades GET /v1/ws?username=<name> and runs the connection until
// it closes.
type WSHandler struct {
	users      repository.UserRepository
	registry   *registry.Registry
	dispatcher *Dispatcher
	upgrader   *websocket.Upgrader
	bufferSize int
}

func NewWSHandler(
	users repository.UserRepository,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	upgrader *websocket.Upgrader,
	bufferSize int,
) *WSHandler {
	return &WSHandler{
		users:      users,
		registry:   reg,
		dispatcher: dispatcher,
		upgrader:   upgrader,
		bufferSize: bufferSize,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, apperrors.MissingRequired("username"))
		return
	}

	user, err := h.users.FindByUsername(r.Context(), username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to look up user")
		writeError(w, apperrors.Database(err))
		return
	}
	if user == nil {
		writeError(w, apperrors.NotFound("User"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		log.Debug().Err(err).Str("playerId", user.ID).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, user.ID, h.bufferSize)
	if stale := h.registry.Register(user.ID, user.Username, client); stale != nil {
		_ = stale.Close()
	}
	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventPlayerConnect,
		PlayerID: user.ID,
		Details:  map[string]any{"username": user.Username, "connId": client.ID()},
	})

	// the request context ends when the handler returns, so events use a
	// context scoped to the connection instead
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.registry.Unregister(user.ID, client)
		_ = client.Close()
		audit.LogFromRequest(r, audit.Event{
			Type:     audit.EventPlayerDisconnect,
			PlayerID: user.ID,
			Details:  map[string]any{"connId": client.ID()},
		})
	}()

	go client.WritePump()
	client.ReadPump(ctx, func(ctx context.Context, env protocol.Envelope) {
		h.dispatcher.Dispatch(ctx, client, env)
	})
}
