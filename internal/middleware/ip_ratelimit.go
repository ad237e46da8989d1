package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/audit"
	apperrors "github.com/vimrace/race-server/internal/errors"
	"github.com/vimrace/race-server/internal/httputil"
	redisclient "github.com/vimrace/race-server/internal/redis"
)

type limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

// IPRateLimitMiddleware bounds how often one address may open a websocket.
type IPRateLimitMiddleware struct {
	limiter limiter
	limit   int
	window  time.Duration
}

func NewIPRateLimitMiddleware(limiter limiter, limit int, window time.Duration) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := remoteIP(r)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), redisclient.ConnectLimitKey(ip), m.limit, m.window)
		if !allowed {
			log.Warn().Str("ip", ip).Msg("connect rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]any{"scope": "connect"},
			})

			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
