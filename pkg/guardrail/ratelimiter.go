package guardrail

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is pipeline layer one: sliding window (via token bucket)
// plus a burst limit per client key, with whitelist bypass and
// blacklist immediate BLOCK. Exceeding the limit places the key on the
// block-list for BlockDuration.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	blocked    map[string]time.Time
	whitelist  map[string]bool
	blacklist  map[string]bool
	rps        rate.Limit
	burst      int
	BlockDuration time.Duration
}

// NewRateLimiter builds a limiter allowing rps requests/sec with the
// given burst, blocking an offending key for blockDuration once it
// exceeds the limit.
func NewRateLimiter(rps float64, burst int, blockDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		blocked:       make(map[string]time.Time),
		whitelist:     make(map[string]bool),
		blacklist:     make(map[string]bool),
		rps:           rate.Limit(rps),
		burst:         burst,
		BlockDuration: blockDuration,
	}
}

func (l *RateLimiter) Name() string { return "rate_limiter" }

// Whitelist exempts key from rate limiting entirely.
func (l *RateLimiter) Whitelist(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.whitelist[key] = true
}

// Blacklist makes key always BLOCK, regardless of its rate.
func (l *RateLimiter) Blacklist(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blacklist[key] = true
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

func (l *RateLimiter) Run(_ context.Context, req *Request) LayerResult {
	key := req.ClientKey()

	l.mu.Lock()
	whitelisted := l.whitelist[key]
	blacklisted := l.blacklist[key]
	blockedUntil, isBlocked := l.blocked[key]
	l.mu.Unlock()

	if whitelisted {
		return LayerResult{Action: ActionAllow}
	}
	if blacklisted {
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "blacklisted_client", Severity: SeverityCritical, Detail: key,
		}}}
	}
	if isBlocked {
		if time.Now().Before(blockedUntil) {
			return LayerResult{Action: ActionBlock, Violations: []Violation{{
				Rule: "rate_limit_block_active", Severity: SeverityHigh, Detail: key,
			}}}
		}
		l.mu.Lock()
		delete(l.blocked, key)
		l.mu.Unlock()
	}

	if !l.limiterFor(key).Allow() {
		l.mu.Lock()
		l.blocked[key] = time.Now().Add(l.BlockDuration)
		l.mu.Unlock()
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "rate_limit_exceeded", Severity: SeverityHigh, Detail: key,
		}}}
	}

	return LayerResult{Action: ActionAllow}
}
