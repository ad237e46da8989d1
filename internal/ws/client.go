// Package ws adapts a gorilla websocket connection to the registry's
// connection handle: outbound events are queued on a bounded buffer drained by
// a write pump, inbound frames are decoded by a read pump.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/config"
	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/protocol"
)

// Handler processes one decoded inbound envelope.
type Handler func(ctx context.Context, env protocol.Envelope)

type Client struct {
	id        string
	playerID  string
	conn      *websocket.Conn
	send      chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, playerID string, bufferSize int) *Client {
	return &Client{
		id:       uuid.NewString(),
		playerID: playerID,
		conn:     conn,
		send:     make(chan protocol.Envelope, bufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) PlayerID() string { return c.playerID }

// Send queues event for the write pump. It never blocks: a closed client
// returns CONNECTION_CLOSED and a full buffer drops the event with
// SEND_BUFFER_FULL.
func (c *Client) Send(event protocol.Outbound) error {
	env, err := protocol.Encode(event)
	if err != nil {
		return apperrors.Internal("failed to encode event").WithCause(err)
	}

	select {
	case <-c.done:
		return apperrors.ConnectionClosed()
	default:
	}

	select {
	case c.send <- env:
		return nil
	default:
		log.Warn().
			Str("playerId", c.playerID).
			Str("event", env.Type).
			Msg("client send buffer full, dropping event")
		return apperrors.SendBufferFull()
	}
}

// Close stops the write pump and closes the socket, which ends the read
// pump. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(config.WSWriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump reads frames until the connection fails or closes, passing each
// well-formed envelope to handle. Malformed frames are answered with an
// error event and skipped.
func (c *Client) ReadPump(ctx context.Context, handle Handler) {
	c.conn.SetReadLimit(config.WSMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.WSPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("playerId", c.playerID).Msg("websocket read failed")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			_ = c.Send(protocol.Error{
				Code:    apperrors.ErrCodeValidation,
				Message: "Malformed message",
			})
			continue
		}

		handle(ctx, env)
	}
}

// WritePump drains the send buffer onto the socket and keeps the
// connection alive with pings. It returns when the client is closed or a
// write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Str("playerId", c.playerID).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// NewUpgrader returns an upgrader that accepts the given origins. An empty
// list accepts any origin; requests without an Origin header are always
// accepted since they do not come from a browser.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}
