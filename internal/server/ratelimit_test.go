package server

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryWindowStoreCountsAndResets(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newMemoryWindowStore()
	store.now = func() time.Time { return current }

	for want := int64(1); want <= 3; want++ {
		count, retryAfter, err := store.Incr("k", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if count != want {
			t.Fatalf("expected count %d, got %d", want, count)
		}
		if retryAfter <= 0 || retryAfter > time.Minute {
			t.Fatalf("unexpected retryAfter %v", retryAfter)
		}
	}

	current = current.Add(61 * time.Second)
	count, _, err := store.Incr("k", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window to restart at 1, got %d", count)
	}
}

func TestMemoryWindowStoreCleansExpiredCounters(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := newMemoryWindowStore()
	store.now = func() time.Time { return current }

	if _, _, err := store.Incr("stale", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	current = current.Add(2 * time.Minute)
	if _, _, err := store.Incr("fresh", time.Minute); err != nil {
		t.Fatalf("Incr: %v", err)
	}

	store.mu.Lock()
	_, staleKept := store.counters["stale"]
	store.mu.Unlock()
	if staleKept {
		t.Fatal("expected expired counter to be dropped")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	cases := []struct {
		class  string
		limit  int
		window time.Duration
	}{
		{class: "global", limit: 100, window: 15 * time.Minute},
		{class: "login", limit: 500, window: 15 * time.Minute},
		{class: "register", limit: 10, window: time.Hour},
		{class: "upload", limit: 100, window: 15 * time.Minute},
	}
	for _, tc := range cases {
		lc, ok := rl.classes[tc.class]
		if !ok {
			t.Fatalf("expected class %s to exist", tc.class)
		}
		if lc.limit != tc.limit || lc.window != tc.window {
			t.Fatalf("class %s: expected %d/%v, got %d/%v", tc.class, tc.limit, tc.window, lc.limit, lc.window)
		}
	}
}

func TestRateLimiterNegativeLimitDisablesClass(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{RegisterLimit: -1})
	if _, ok := rl.classes["register"]; ok {
		t.Fatal("expected register class to be disabled")
	}
	allowed, _, err := rl.Allow("register", "10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("disabled class must always allow: allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimiterCountsBeforeCheck(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute})

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.Allow("login", "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	allowed, retryAfter, err := rl.Allow("login", "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("third attempt should be rejected")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retryAfter, got %v", retryAfter)
	}

	// A different IP has its own window.
	allowed, _, err = rl.Allow("login", "10.0.0.2")
	if err != nil || !allowed {
		t.Fatalf("other IP should pass: allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimiterGlobalTokenBucket(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{GlobalRPS: 1, GlobalBurst: 2})
	if !rl.AllowRequest() || !rl.AllowRequest() {
		t.Fatal("burst capacity should admit the first two requests")
	}
	if rl.AllowRequest() {
		t.Fatal("third immediate request should be rejected")
	}

	unlimited := newRateLimiter(RateLimitConfig{})
	for i := 0; i < 10; i++ {
		if !unlimited.AllowRequest() {
			t.Fatal("limiter without GlobalRPS must always admit")
		}
	}
}

func TestRedisWindowStoreCountsAndExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newRedisWindowStore(mr.Addr(), "", 0, time.Second)
	t.Cleanup(func() {
		_ = store.Close()
	})

	count, retryAfter, err := store.Incr("mobile-core:login:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if count != 1 || retryAfter != time.Minute {
		t.Fatalf("unexpected first hit: count=%d retryAfter=%v", count, retryAfter)
	}

	count, retryAfter, err = store.Incr("mobile-core:login:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("unexpected retryAfter %v", retryAfter)
	}

	mr.FastForward(61 * time.Second)

	count, _, err = store.Incr("mobile-core:login:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected counter to restart after window, got %d", count)
	}
}

func TestRateLimiterUsesRedisStoreWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := newRateLimiter(RateLimitConfig{
		RegisterLimit:  1,
		RegisterWindow: time.Minute,
		RedisAddr:      mr.Addr(),
	})

	allowed, _, err := rl.Allow("register", "10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("first attempt should pass: allowed=%v err=%v", allowed, err)
	}
	allowed, retryAfter, err := rl.Allow("register", "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("second attempt should be rejected")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retryAfter, got %v", retryAfter)
	}
	if !mr.Exists("mobile-core:register:10.0.0.1") {
		t.Fatal("expected counter key in redis")
	}
}

func TestRateLimiterCloseReleasesRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := newRateLimiter(RateLimitConfig{RedisAddr: mr.Addr()})

	allowed, _, err := rl.Allow("login", "10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("first attempt should pass: allowed=%v err=%v", allowed, err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := rl.Allow("login", "10.0.0.1"); err == nil {
		t.Fatal("expected error after the client was closed")
	}
}

func TestRateLimiterCloseWithMemoryStoreIsNoop(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	allowed, _, err := rl.Allow("login", "10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("memory store must keep working: allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimiterSurfacesStoreErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := newRateLimiter(RateLimitConfig{RedisAddr: mr.Addr(), RedisTimeout: 200 * time.Millisecond})
	mr.Close()

	_, _, err := rl.Allow("login", "10.0.0.1")
	if err == nil {
		t.Fatal("expected error from unreachable redis")
	}
}
