package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatRateLimiter(t *testing.T) {
	rl := NewChatRateLimiter(3, time.Minute)

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	// Other senders are unaffected.
	assert.True(t, rl.Allow("u2"))
}

func TestChatRateLimiterWindowSlides(t *testing.T) {
	rl := NewChatRateLimiter(1, 10*time.Millisecond)

	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("u1"))
}

func TestChatRateLimiterForget(t *testing.T) {
	rl := NewChatRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	rl.Forget("u1")
	assert.True(t, rl.Allow("u1"))
}

func TestChatRateLimiterDisabled(t *testing.T) {
	rl := NewChatRateLimiter(0, time.Minute)
	for range 5 {
		assert.True(t, rl.Allow("u1"))
	}
}
