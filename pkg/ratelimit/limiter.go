package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Reserve returns a reservation for a future event
func (m *MultiLimiter) Reserve(name string) (*rate.Reservation, error) {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Reserve(), nil
}

// Default rate limiter names. Per-source syndication limiters are added
// dynamically under a "syndication:<source-name>" key; these are the
// process-wide ones known ahead of time.
const (
	// LimiterSyndication is the fallback politeness limiter shared by any
	// syndication source that hasn't been given its own named limiter.
	LimiterSyndication = "syndication"
	// LimiterChatRPC paces outgoing RPCs against the chat protocol beyond
	// what the library's own flood-wait handling enforces.
	LimiterChatRPC = "chat_rpc"
)

// NewDefaultLimiter creates a limiter with default rate limits for the
// process-wide services. Per-source syndication limiters are added by the
// Syndication Poller via AddLimiter using the source's own poll_interval.
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// Syndication fallback: be polite, 1 request per second, burst 5.
	m.AddLimiter(LimiterSyndication, 1, 5)

	// Chat RPC: conservative pacing on top of the library's flood-wait
	// handling — 2 requests per second, burst 4.
	m.AddLimiter(LimiterChatRPC, 2, 4)

	return m
}
