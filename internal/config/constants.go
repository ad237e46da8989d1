package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// WebSocket connection settings
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingPeriod     = (WSPongWait * 9) / 10
	WSMaxMessageSize = 64 << 10
)

// Race content fetch timeout when a match is created
const RaceContentTimeout = 5 * time.Second

// Background job intervals
const SweepJobInterval = 30 * time.Second

// Timeout for plain HTTP requests; the websocket route is exempt
const ServerRequestTimeout = 30 * time.Second

// Sliding window used by the redis rate limiter
const RateLimitWindow = time.Minute
