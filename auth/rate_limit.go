package auth

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter throttles handshake attempts per source IP. A client that
// floods /meta/handshake trying to mint fresh ClientIds (and thereby
// exhaust the session registry) gets locked out for lockoutDuration
// rather than accepted indefinitely.
type RateLimiter struct {
	mu sync.Mutex

	attempts map[string]*attemptRecord

	maxAttempts     int
	windowDuration  time.Duration
	lockoutDuration time.Duration

	lastCleanup time.Time
}

type attemptRecord struct {
	attempts    []time.Time
	lockedUntil time.Time
}

// NewRateLimiter creates a rate limiter with defaults suited to
// /meta/handshake: 20 attempts per IP per 15-minute window, half an
// hour lockout past that.
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithConfig(20, 15*time.Minute, 30*time.Minute)
}

// NewRateLimiterWithConfig creates a rate limiter with explicit limits.
func NewRateLimiterWithConfig(maxAttempts int, window, lockout time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:        make(map[string]*attemptRecord),
		maxAttempts:     maxAttempts,
		windowDuration:  window,
		lockoutDuration: lockout,
		lastCleanup:     time.Now(),
	}
}

// CheckRateLimit reports whether ip is still allowed to attempt a
// handshake, and if not, how long until it may try again.
func (rl *RateLimiter) CheckRateLimit(ip string) (allowed bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupIfNeeded()

	now := time.Now()
	record, exists := rl.attempts[ip]
	if !exists {
		return true, 0
	}

	if record.lockedUntil.After(now) {
		return false, record.lockedUntil.Sub(now)
	}

	if rl.countRecentAttempts(record, now) >= rl.maxAttempts {
		record.lockedUntil = now.Add(rl.lockoutDuration)
		return false, rl.lockoutDuration
	}

	return true, 0
}

// RecordAttempt records a handshake attempt from ip.
func (rl *RateLimiter) RecordAttempt(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	record, exists := rl.attempts[ip]
	if !exists {
		record = &attemptRecord{}
		rl.attempts[ip] = record
	}
	record.attempts = append(record.attempts, time.Now())
}

func (rl *RateLimiter) countRecentAttempts(record *attemptRecord, now time.Time) int {
	cutoff := now.Add(-rl.windowDuration)
	var recent []time.Time
	for _, attempt := range record.attempts {
		if attempt.After(cutoff) {
			recent = append(recent, attempt)
		}
	}
	record.attempts = recent
	return len(recent)
}

// cleanupIfNeeded runs at most once an hour to keep the attempts map
// from growing unbounded across long-lived server processes.
func (rl *RateLimiter) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(rl.lastCleanup) < time.Hour {
		return
	}
	cutoff := now.Add(-24 * time.Hour)

	for ip, record := range rl.attempts {
		var kept []time.Time
		for _, attempt := range record.attempts {
			if attempt.After(cutoff) {
				kept = append(kept, attempt)
			}
		}
		record.attempts = kept
		if len(record.attempts) == 0 && record.lockedUntil.Before(now) {
			delete(rl.attempts, ip)
		}
	}
	rl.lastCleanup = now
}

// ClientIP extracts a request's source IP, preferring X-Forwarded-For
// when present (the server usually sits behind a reverse proxy) and
// falling back to RemoteAddr. Exported for meta's handshake middleware,
// which owns the buffalo.MiddlewareFunc wrapper around this limiter,
// so auth itself stays free of any HTTP framework dependency.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if comma := indexByte(xff, ','); comma != -1 {
			return xff[:comma]
		}
		return xff
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
