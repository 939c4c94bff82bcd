package server

import (
	"sync"
	"time"
)

// ipRateLimiter bounds expensive endpoints (LLM quiz generation) per client
// IP with a sliding window of request timestamps.
type ipRateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	history map[string][]time.Time
}

func newIPRateLimiter(window time.Duration, max int) *ipRateLimiter {
	return &ipRateLimiter{
		window:  window,
		max:     max,
		history: make(map[string][]time.Time),
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	recent := l.history[ip][:0]
	for _, t := range l.history[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.max {
		l.history[ip] = recent
		return false
	}
	l.history[ip] = append(recent, now)
	return true
}
