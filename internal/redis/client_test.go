package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "challenge:p1", ChallengeLimitKey("p1"))
	assert.Equal(t, "connect:10.0.0.1", ConnectLimitKey("10.0.0.1"))
	assert.NotEqual(t, ChallengeLimitKey("x"), ConnectLimitKey("x"))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not-a-redis-url")
	assert.Error(t, err)
}
