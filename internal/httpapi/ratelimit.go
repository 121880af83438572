package httpapi

import (
	"net"
	"sync"
	"time"
)

const (
	rateWindow = time.Hour
	rateMax    = 100
	rateMaxIPs = 10000 // max tracked IPs to prevent memory exhaustion
)

// rateLimiter tracks webhook requests per IP over a sliding window. The
// messaging platform retries aggressively, so the webhook caps per-IP
// volume rather than trusting upstream to back off.
type rateLimiter struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		now:  time.Now,
		seen: make(map[string][]time.Time),
	}
}

// allow records a request from remoteAddr and reports whether it is
// within the window limit.
func (l *rateLimiter) allow(remoteAddr string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-rateWindow)
	recent := l.seen[host]
	filtered := recent[:0]
	for _, t := range recent {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) >= rateMax {
		l.seen[host] = filtered
		return false
	}

	if _, exists := l.seen[host]; !exists && len(l.seen) >= rateMaxIPs {
		l.evictOldest()
	}

	l.seen[host] = append(filtered, l.now())
	return true
}

// evictOldest drops the IP with the stalest first entry. Caller holds mu.
func (l *rateLimiter) evictOldest() {
	var oldestIP string
	var oldestTime time.Time
	for ip, times := range l.seen {
		if len(times) > 0 && (oldestIP == "" || times[0].Before(oldestTime)) {
			oldestIP = ip
			oldestTime = times[0]
		}
	}
	if oldestIP != "" {
		delete(l.seen, oldestIP)
	}
}
