package httpapi

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// maxTrackedClients 限流表的容量上限. 满了先清理空闲的客户端, 仍然满时淘汰最久没出现的那个.
const maxTrackedClients = 4096

// idleAfter 超过这个时间没请求的客户端视为空闲
const idleAfter = 10 * time.Minute

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter 按客户端IP限流的令牌桶
type ClientLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientEntry
	limit      rate.Limit
	burst      int
	maxClients int
	nowFunc    func() time.Time
}

// NewClientLimiter 每个客户端每分钟允许 perMinute 次请求, 突发 burst 次
func NewClientLimiter(perMinute float64, burst int) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiter{
		clients:    make(map[string]*clientEntry),
		limit:      rate.Limit(perMinute / 60),
		burst:      burst,
		maxClients: maxTrackedClients,
		nowFunc:    time.Now,
	}
}

// Allow 记录一次来自 ip 的请求并判断是否放行; 拒绝时 wait 是距下一个令牌的时间
func (l *ClientLimiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	e, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= l.maxClients {
			l.pruneLocked(now)
		}
		e = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *ClientLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-idleAfter)
	oldestIP := ""
	var oldest time.Time
	for ip, e := range l.clients {
		if e.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			continue
		}
		if oldestIP == "" || e.lastSeen.Before(oldest) {
			oldestIP, oldest = ip, e.lastSeen
		}
	}
	// 全是活跃客户端: 淘汰最久没出现的
	if len(l.clients) >= l.maxClients && oldestIP != "" {
		delete(l.clients, oldestIP)
	}
}

// Tracked 当前记录的客户端数量
func (l *ClientLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// AnalyzeRateLimit 超出客户端配额的分析请求直接返回 429
func AnalyzeRateLimit(limiter *ClientLimiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		allowed, wait := limiter.Allow(clientIP)
		if allowed {
			c.Next()
			return
		}

		waitSeconds := int(math.Ceil(wait.Seconds()))
		if waitSeconds < 1 {
			waitSeconds = 1
		}
		logger.Info("rate limit triggered", "ip", clientIP, "wait_seconds", waitSeconds)
		c.Header("Retry-After", fmt.Sprint(waitSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":        fmt.Sprintf("Rate limit reached. Please wait %d seconds before trying again.", waitSeconds),
			"wait_seconds": waitSeconds,
		})
	}
}

// RequestLogger 每个请求记一行日志
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP())
	}
}
