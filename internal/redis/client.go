package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ChallengeLimitKey is the rate limit bucket for challenges sent by a player.
func ChallengeLimitKey(playerID string) string {
	return fmt.Sprintf("challenge:%s", playerID)
}

// ConnectLimitKey is the rate limit bucket for websocket upgrades from an IP.
func ConnectLimitKey(ip string) string {
	return fmt.Sprintf("connect:%s", ip)
}
