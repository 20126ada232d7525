package middleware

import (
	"sync"
	"time"

	"stop-spying-server/internal/common"
	"stop-spying-server/internal/common/httpx"
	"stop-spying-server/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL         = 3 * time.Minute
	limiterCleanupInterval = time.Minute
)

type IPRateLimiter struct {
	ips sync.Map
	mu  sync.Mutex
	r   rate.Limit
	b   int
	now func() time.Time
}

type client struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := newIPRateLimiter(r, b)

	go i.cleanupLoop()

	return i
}

func newIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	if b <= 0 {
		b = 1
	}
	return &IPRateLimiter{r: r, b: b, now: time.Now}
}

// Allow 消耗 ip 的一个令牌。
func (i *IPRateLimiter) Allow(ip string) bool {
	now := i.now()
	return i.getClient(ip, now).limiter.AllowN(now, 1)
}

func (i *IPRateLimiter) getClient(ip string, now time.Time) *client {
	if v, ok := i.ips.Load(ip); ok {
		c := v.(*client)
		c.touch(now)
		return c
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	// Double check
	if v, ok := i.ips.Load(ip); ok {
		c := v.(*client)
		c.touch(now)
		return c
	}

	c := &client{limiter: rate.NewLimiter(i.r, i.b), lastSeen: now}
	i.ips.Store(ip, c)
	return c
}

func (c *client) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

func (c *client) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

func (i *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		i.evictIdle()
	}
}

// evictIdle 移除长时间未访问的 IP，窗口内没有请求的 IP 其令牌桶必然已回满。
func (i *IPRateLimiter) evictIdle() {
	now := i.now()
	ttl := limiterIdleTTL
	if i.r > 0 {
		if refill := time.Duration(float64(i.b) / float64(i.r) * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	i.ips.Range(func(key, value any) bool {
		if value.(*client).idleSince(now) > ttl {
			i.ips.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware 按客户端 IP 限流：每个窗口最多 Requests 次，允许一次性用完。
func RateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.Requests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewIPRateLimiter(limitFor(cfg), cfg.Requests)
	return rateLimitHandler(limiter)
}

func limitFor(cfg config.RateLimitConfig) rate.Limit {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Hour
	}
	return rate.Every(window / time.Duration(cfg.Requests))
}

func rateLimitHandler(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP 只在远端属于受信代理时才采用 X-Forwarded-For
		if !limiter.Allow(c.ClientIP()) {
			httpx.WriteServiceError(c, common.NewTooManyRequestsError("请求过于频繁，请稍后再试"), "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}
		c.Next()
	}
}
