package signal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim *rate.Limiter
	ts  time.Time
}

// RateLimiter is a token bucket per key (the sender identity), shared
// by all of that identity's sockets. Idle keys are dropped after ttl.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[string]*keyLimiter
	r     rate.Limit
	burst int
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

func NewRateLimiter(perSecond float64, burst int, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		m:     make(map[string]*keyLimiter),
		r:     rate.Limit(perSecond),
		burst: burst,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go rl.gc()
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	kl, ok := rl.m[key]
	if !ok {
		kl = &keyLimiter{lim: rate.NewLimiter(rl.r, rl.burst)}
		rl.m[key] = kl
	}
	kl.ts = time.Now()
	lim := kl.lim
	rl.mu.Unlock()
	return lim.Allow()
}

func (rl *RateLimiter) gc() {
	interval := rl.ttl / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for k, v := range rl.m {
				if now.Sub(v.ts) > rl.ttl {
					delete(rl.m, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the gc goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}
