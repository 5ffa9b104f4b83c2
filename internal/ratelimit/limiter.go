// Package ratelimit provides per-key token bucket rate limiting for the MCP
// tools and the HTTP scenario run endpoint.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned by CheckLimit when a bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate describes one bucket: refill speed and capacity.
type Rate struct {
	PerMinute float64
	Burst     int
}

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// NewLimiterFromRate creates a limiter from a per-minute Rate.
func NewLimiterFromRate(r Rate) *Limiter {
	return NewLimiter(r.PerMinute/60.0, r.Burst)
}

// Allow reports whether a request for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// DefaultToolRates are generous for interactive use. Reads are cheap;
// scenario runs and file switches are throttled harder.
var DefaultToolRates = map[string]Rate{
	"cogmap_get_map":         {PerMinute: 120, Burst: 20},
	"cogmap_history":         {PerMinute: 120, Burst: 20},
	"cogmap_list_scenarios":  {PerMinute: 120, Burst: 20},
	"cogmap_matrix":          {PerMinute: 60, Burst: 10},
	"cogmap_metrics":         {PerMinute: 60, Burst: 10},
	"cogmap_replace_map":     {PerMinute: 30, Burst: 5},
	"cogmap_set_cell":        {PerMinute: 60, Burst: 10},
	"cogmap_undo":            {PerMinute: 60, Burst: 10},
	"cogmap_redo":            {PerMinute: 60, Burst: 10},
	"cogmap_create_scenario": {PerMinute: 30, Burst: 5},
	"cogmap_update_scenario": {PerMinute: 30, Burst: 5},
	"cogmap_delete_scenario": {PerMinute: 30, Burst: 5},
	"cogmap_run_scenario":    {PerMinute: 20, Burst: 3},
	"cogmap_save":            {PerMinute: 10, Burst: 3},
	"cogmap_open":            {PerMinute: 10, Burst: 2},
	"cogmap_new":             {PerMinute: 5, Burst: 1},
}

// HTTPRunRate limits POST /scenarios/{id}/run per client address.
var HTTPRunRate = Rate{PerMinute: 120, Burst: 10}

// NewToolLimiters creates one limiter per entry of rates.
func NewToolLimiters(rates map[string]Rate) ToolLimiters {
	limiters := make(ToolLimiters, len(rates))
	for name, r := range rates {
		limiters[name] = NewLimiterFromRate(r)
	}
	return limiters
}

// CheckLimit checks the rate limit for a given tool name.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, toolName)
	}
	return nil
}
