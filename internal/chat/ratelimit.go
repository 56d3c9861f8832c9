package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter implements a per-visitor token bucket.
// The key is the visitor ID only, not visitor:session, so clients cannot
// bypass throttling by rotating tab session IDs.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitorLimiter
	limit    rate.Limit
	burst    int
	window   time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window for each key and starts the
// background eviction goroutine. Call Close to stop it.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	rl := newRateLimiter(requests, window, time.Now)
	rl.startEviction()
	return rl
}

func newRateLimiter(requests int, window time.Duration, now func() time.Time) *RateLimiter {
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		visitors: make(map[string]*visitorLimiter),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		window:   window,
		now:      now,
		done:     make(chan struct{}),
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	v, ok := r.visitors[key]
	if !ok {
		v = &visitorLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evict drops limiters idle for a full window; their buckets have refilled
// and a fresh limiter behaves identically.
func (r *RateLimiter) evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	removed := 0
	for key, v := range r.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(r.visitors, key)
			removed++
		}
	}
	return removed
}

func (r *RateLimiter) startEviction() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.evict()
			case <-r.done:
				return
			}
		}
	}()
}

// Close stops the eviction goroutine.
func (r *RateLimiter) Close() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}
