package pubdocs

import (
	"context"
	"sync"
	"time"
)

// AuthLimiter counts failed authorizations per IP address and blocks an IP
// once it reaches max failures within window.
type AuthLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time
}

// NewAuthLimiter creates an AuthLimiter that allows max failures per window.
func NewAuthLimiter(max int, window time.Duration) *AuthLimiter {
	return &AuthLimiter{
		failures: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// Run prunes expired entries every window until ctx is done.
func (l *AuthLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *AuthLimiter) prune() {
	cutoff := l.now().Add(-l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, hits := range l.failures {
		kept := recent(hits, cutoff)
		if len(kept) == 0 {
			delete(l.failures, ip)
		} else {
			l.failures[ip] = kept
		}
	}
}

// Check returns true if the IP has not exceeded the limit.
// It does not record anything; call Record on failure.
func (l *AuthLimiter) Check(ip string) bool {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := recent(l.failures[ip], cutoff)
	l.failures[ip] = kept
	return len(kept) < l.max
}

// Record registers a failed authorization for the given IP.
func (l *AuthLimiter) Record(ip string) {
	l.mu.Lock()
	l.failures[ip] = append(l.failures[ip], l.now())
	l.mu.Unlock()
}

// Tracked reports how many IPs currently have recorded failures.
func (l *AuthLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

func recent(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
