package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// limiterPool holds one token bucket per user
type limiterPool struct {
	mu    sync.Mutex
	m     map[uuid.UUID]*entry
	rps   rate.Limit
	burst int
}

type entry struct {
	l    *rate.Limiter
	seen time.Time
}

func (p *limiterPool) allow(id uuid.UUID, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[id]
	if !ok {
		e = &entry{l: rate.NewLimiter(p.rps, p.burst)}
		p.m[id] = e
	}
	e.seen = now
	return e.l.AllowN(now, 1)
}

// sweep forgets users idle for longer than idle
func (p *limiterPool) sweep(now time.Time, idle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.m {
		if now.Sub(e.seen) > idle {
			delete(p.m, id)
		}
	}
}

// SendRateLimit throttles message-producing requests per authenticated user.
// rps <= 0 disables it.
func SendRateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	pool := &limiterPool{m: make(map[uuid.UUID]*entry), rps: rate.Limit(rps), burst: burst}
	var sweeps int

	return func(c *gin.Context) {
		now := time.Now()
		if !pool.allow(UserID(c), now) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Slow down"})
			return
		}
		pool.mu.Lock()
		sweeps++
		due := sweeps%1024 == 0
		pool.mu.Unlock()
		if due {
			pool.sweep(now, 10*time.Minute)
		}
		c.Next()
	}
}
