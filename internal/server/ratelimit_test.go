package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter(t *testing.T) {
	l := newIPRateLimiter(50*time.Millisecond, 2)

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	// A different client has its own budget.
	assert.True(t, l.Allow("5.6.7.8"))

	// The window slides.
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow("1.2.3.4"))
}

func TestMessageLimiter(t *testing.T) {
	l := newMessageLimiter(3)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow())
	}
	assert.False(t, l.allow())
}
