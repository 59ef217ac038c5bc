// Package ratelimit implements per-source admission control using the token
// bucket algorithm, one bucket per source address.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits or rejects packets from a source address using a lazily
// created token bucket per source. A source's bucket is created on its first
// packet with a full allowance, then refilled continuously at
// maxPackets/windowMs tokens per millisecond.
//
// Buckets idle for more than 10x the window are dropped by a periodic sweep,
// matching the teacher's stale-entry cleanup in its own rate limiter.
type Limiter struct {
	maxTokens float64
	refillPerMs float64
	idleAfter time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stop chan struct{}
	once sync.Once
}

type bucket struct {
	tokens         float64
	lastRefillMono time.Time
}

// New creates a Limiter admitting up to maxPackets per windowMs for each
// distinct source key. A background sweep runs every 5 minutes to drop
// buckets that have gone idle.
func New(maxPackets int, windowMs int) *Limiter {
	l := &Limiter{
		maxTokens:   float64(maxPackets),
		refillPerMs: float64(maxPackets) / float64(windowMs),
		idleAfter:   time.Duration(10*windowMs) * time.Millisecond,
		buckets:     make(map[string]*bucket),
		stop:        make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether a packet from key should be admitted, consuming a
// token from its bucket when it is.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.maxTokens - 1, lastRefillMono: now}
		l.buckets[key] = b
		return true
	}

	elapsedMs := now.Sub(b.lastRefillMono).Seconds() * 1000
	if elapsedMs > 0 {
		b.tokens += elapsedMs * l.refillPerMs
		if b.tokens > l.maxTokens {
			b.tokens = l.maxTokens
		}
		b.lastRefillMono = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Close stops the background sweep goroutine.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastRefillMono) > l.idleAfter {
			delete(l.buckets, key)
		}
	}
}

// Len reports the number of tracked source buckets, for tests and diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
