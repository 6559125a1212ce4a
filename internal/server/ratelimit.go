package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"contract-run-go/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RateLimiterConfig struct {
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
}

// HeartbeatLimits converts a per-minute rate into a limiter config
func HeartbeatLimits(perMinute float64, burst int) RateLimiterConfig {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return RateLimiterConfig{
		Rate:            rate.Limit(perMinute / 60.0),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per user
type RateLimiter struct {
	config  RateLimiterConfig
	metrics metrics.Recorder

	mu       sync.RWMutex
	limiters map[string]*userLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(config RateLimiterConfig, rec metrics.Recorder) *RateLimiter {
	if rec == nil {
		rec = metrics.Noop{}
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:   config,
		metrics:  rec,
		limiters: make(map[string]*userLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware must be mounted behind requireUser
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, err := UserIdFromContext(r.Context())
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Message: err.Error()})
			return
		}

		if !rl.getOrCreate(userId).Allow() {
			rl.metrics.HeartbeatThrottled()
			zap.L().Warn("Heartbeat rate limit exceeded", zap.String("user_id", userId))
			rl.writeLimited(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) getOrCreate(userId string) *rate.Limiter {
	rl.mu.RLock()
	ul, exists := rl.limiters[userId]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		ul.lastAccess = time.Now()
		rl.mu.Unlock()
		return ul.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// double check
	if ul, exists := rl.limiters[userId]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.limiters[userId] = &userLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
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

// cleanup drops limiters idle for more than two cleanup intervals
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for userId, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.limiters, userId)
		}
	}
}

func (rl *RateLimiter) writeLimited(w http.ResponseWriter) {
	retryAfter := int(math.Ceil(1.0 / float64(rl.config.Rate)))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Code:    "rate_limit_exceeded",
		Message: "too many heartbeats, retry later",
	})
}
