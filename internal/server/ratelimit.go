package server

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Default per-IP ceilings. Login and upload share the 15 minute window;
// registration is rare enough to get a tighter hourly budget.
const (
	defaultGlobalLimit    = 100
	defaultGlobalWindow   = 15 * time.Minute
	defaultLoginLimit     = 500
	defaultLoginWindow    = 15 * time.Minute
	defaultRegisterLimit  = 10
	defaultRegisterWindow = time.Hour
	defaultUploadLimit    = 100
	defaultUploadWindow   = 15 * time.Minute
)

// RateLimitConfig tunes the per-IP fixed windows and the optional
// process-wide token bucket. Zero values take the defaults; negative limits
// disable a class. When RedisAddr is set the window counters live in Redis
// so multiple replicas share them.
type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int

	GlobalLimit    int
	GlobalWindow   time.Duration
	LoginLimit     int
	LoginWindow    time.Duration
	RegisterLimit  int
	RegisterWindow time.Duration
	UploadLimit    int
	UploadWindow   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration
}

type limitClass struct {
	name   string
	limit  int
	window time.Duration
}

// windowStore counts hits per key inside a fixed window and reports how long
// until the window resets once the ceiling is passed.
type windowStore interface {
	Incr(key string, window time.Duration) (count int64, retryAfter time.Duration, err error)
}

type rateLimiter struct {
	global  *tokenBucket
	classes map[string]limitClass
	store   windowStore
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{classes: make(map[string]limitClass)}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	add := func(name string, limit int, window time.Duration, defLimit int, defWindow time.Duration) {
		if limit == 0 {
			limit = defLimit
		}
		if limit < 0 {
			return
		}
		if window <= 0 {
			window = defWindow
		}
		rl.classes[name] = limitClass{name: name, limit: limit, window: window}
	}
	add("global", cfg.GlobalLimit, cfg.GlobalWindow, defaultGlobalLimit, defaultGlobalWindow)
	add("login", cfg.LoginLimit, cfg.LoginWindow, defaultLoginLimit, defaultLoginWindow)
	add("register", cfg.RegisterLimit, cfg.RegisterWindow, defaultRegisterLimit, defaultRegisterWindow)
	add("upload", cfg.UploadLimit, cfg.UploadWindow, defaultUploadLimit, defaultUploadWindow)

	if cfg.RedisAddr != "" {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisWindowStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, timeout)
	} else {
		rl.store = newMemoryWindowStore()
	}
	return rl
}

// Close releases the window store when it holds external connections, as the
// Redis-backed store does.
func (r *rateLimiter) Close() error {
	if r == nil {
		return nil
	}
	if closer, ok := r.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// AllowRequest consults the optional process-wide token bucket.
func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// Allow counts one hit for the class/IP pair and reports whether it stayed
// under the ceiling. The count happens before the check so rejected requests
// still consume the window.
func (r *rateLimiter) Allow(class, ip string) (bool, time.Duration, error) {
	if r == nil {
		return true, 0, nil
	}
	lc, ok := r.classes[class]
	if !ok {
		return true, 0, nil
	}
	if ip == "" {
		ip = "unknown"
	}
	count, retryAfter, err := r.store.Incr(fmt.Sprintf("mobile-core:%s:%s", class, ip), lc.window)
	if err != nil {
		return false, 0, err
	}
	if count <= int64(lc.limit) {
		return true, 0, nil
	}
	if retryAfter <= 0 {
		retryAfter = lc.window
	}
	return false, retryAfter, nil
}

type windowCounter struct {
	count   int64
	resetAt time.Time
}

type memoryWindowStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	now      func() time.Time
}

func newMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{
		counters: make(map[string]*windowCounter),
		now:      time.Now,
	}
}

func (s *memoryWindowStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[key]
	if !ok || !now.Before(counter.resetAt) {
		counter = &windowCounter{resetAt: now.Add(window)}
		s.counters[key] = counter
		s.cleanupLocked(now)
	}
	counter.count++
	return counter.count, counter.resetAt.Sub(now), nil
}

// cleanupLocked drops counters whose window has long passed so idle IPs do
// not accumulate forever. Called on the new-window path only, which bounds
// the scan frequency.
func (s *memoryWindowStore) cleanupLocked(now time.Time) {
	for key, counter := range s.counters {
		if now.After(counter.resetAt) {
			delete(s.counters, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
