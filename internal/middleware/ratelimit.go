package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rolechat/backend/pkg/utils"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

type rateLimiterSet struct {
	mu    sync.Mutex
	m     map[string]*keyLimiter
	r     rate.Limit
	burst int
	ttl   time.Duration
}

func (rl *rateLimiterSet) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	kl, ok := rl.m[key]
	if ok {
		kl.seen = time.Now()
		return kl.lim
	}
	lim := rate.NewLimiter(rl.r, rl.burst)
	rl.m[key] = &keyLimiter{lim: lim, seen: time.Now()}
	return lim
}

func (rl *rateLimiterSet) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, kl := range rl.m {
			if now.Sub(kl.seen) > rl.ttl {
				delete(rl.m, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit is a per-IP token bucket, used on the credential endpoints to
// slow brute-force attempts.
func RateLimit(r rate.Limit, burst int) fiber.Handler {
	rl := &rateLimiterSet{
		m:     make(map[string]*keyLimiter),
		r:     r,
		burst: burst,
		ttl:   2 * time.Minute,
	}
	go rl.gc()

	return func(c *fiber.Ctx) error {
		key := c.IP() + "|" + c.Path()
		if !rl.get(key).Allow() {
			return utils.Error(c, fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}
