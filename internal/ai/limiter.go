package ai

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
)

// LimiterManager holds one token bucket per task so a burst of one task
// cannot starve the others.
type LimiterManager struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	done     chan struct{}
	once     sync.Once
	logger   *errors.Logger
}

// NewLimiterManager returns nil when rate limiting is disabled
func NewLimiterManager(cfg config.RateLimitConfig, logger *errors.Logger) *LimiterManager {
	if !cfg.Enabled || cfg.RequestsPerMin <= 0 {
		return nil
	}
	burst := cfg.BurstCapacity
	if burst < 1 {
		burst = 1
	}

	m := &LimiterManager{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:    burst,
		done:     make(chan struct{}),
		logger:   logger,
	}

	go m.cleanupRoutine(10 * time.Minute)
	return m
}

// GetLimiter retrieves or creates a limiter for a given key.
func (m *LimiterManager) GetLimiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, exists := m.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(m.rate, m.burst)
		m.limiters[key] = limiter
	}
	m.lastSeen[key] = time.Now()

	return limiter
}

// Wait blocks until key may proceed and reports how long it waited. A nil
// manager never waits.
func (m *LimiterManager) Wait(ctx context.Context, key string) (time.Duration, error) {
	if m == nil {
		return 0, nil
	}
	start := time.Now()
	if err := m.GetLimiter(key).Wait(ctx); err != nil {
		return time.Since(start), errors.NewAIError(errors.ErrCodeRateLimited,
			"rate limit wait aborted", err).WithContext("task", key)
	}
	waited := time.Since(start)
	if waited > 10*time.Millisecond && m.logger != nil {
		m.logger.Debug("Rate limited provider call", "task", key, "waited", waited.String())
	}
	return waited, nil
}

// GetStats returns current rate limiter statistics
func (m *LimiterManager) GetStats() map[string]any {
	if m == nil {
		return map[string]any{"enabled": false}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"enabled":         true,
		"active_limiters": len(m.limiters),
		"rate_per_minute": float64(m.rate) * 60.0,
		"burst_capacity":  m.burst,
	}
}

// cleanupRoutine periodically removes inactive limiters
func (m *LimiterManager) cleanupRoutine(cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup(cleanupInterval)
		case <-m.done:
			return
		}
	}
}

// cleanup removes limiters that haven't been used for the specified duration
func (m *LimiterManager) cleanup(evictionAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, lastSeen := range m.lastSeen {
		if now.Sub(lastSeen) > evictionAge {
			delete(m.limiters, key)
			delete(m.lastSeen, key)
		}
	}

	if m.logger != nil {
		m.logger.Debug("Rate limiter cleanup completed",
			"remaining_limiters", len(m.limiters))
	}
}

// Close stops the cleanup goroutine
func (m *LimiterManager) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() { close(m.done) })
}
