package httpx

import (
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter answers whether a client identified by key may make another
// request within the current window. Implementations must make the
// check-and-increment atomic per key so concurrent bursts cannot slip past
// the threshold.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

// memoryRateLimiter keeps fixed-window counters in process memory. Suitable
// for single-process deployments only; multi-instance setups should use the
// redis limiter so all instances share one counter.
type memoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]rateWindow
	stopCh  chan struct{}
	once    sync.Once
}

type rateWindow struct {
	count int
	ends  time.Time
}

// NewMemoryRateLimiter constructs an in-memory RateLimiter with a background
// sweep that drops expired windows.
func NewMemoryRateLimiter() RateLimiter {
	rl := &memoryRateLimiter{
		windows: make(map[string]rateWindow),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	win, ok := rl.windows[key]
	if !ok || now.After(win.ends) {
		win = rateWindow{count: 1, ends: now.Add(window)}
		rl.windows[key] = win
		return rateDecision{allowed: true, count: win.count, windowEnd: win.ends}
	}
	if win.count >= limit {
		return rateDecision{allowed: false, count: win.count, windowEnd: win.ends}
	}
	win.count++
	rl.windows[key] = win
	return rateDecision{allowed: true, count: win.count, windowEnd: win.ends}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, win := range rl.windows {
		if now.After(win.ends) {
			delete(rl.windows, key)
		}
	}
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}
