package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, ipThrottle bool) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	return New(rdb, Config{
		Prefix:           "ga:",
		EnableIPThrottle: ipThrottle,
		MaxLoginAttempts: 3,
		LoginWindow:      time.Minute,
	}), mr
}

func TestLoginBudgetPerUsername(t *testing.T) {
	l, mr := newLimiterTest(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("attempt %d: unexpected throttle: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	if err := l.CheckLogin(ctx, "Alice", "10.0.0.2"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "bob", "10.0.0.1"); err != nil {
		t.Fatalf("other user should not be throttled without IP throttle: %v", err)
	}
	if ttl := mr.TTL("ga:al:alice"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	if err := l.CheckLogin(ctx, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("expected window to reset: %v", err)
	}
}

func TestLoginBudgetPerIP(t *testing.T) {
	l, _ := newLimiterTest(t, true)
	ctx := context.Background()

	for _, user := range []string{"a", "b", "c"} {
		if err := l.IncrementLogin(ctx, user, "10.0.0.9"); err != nil {
			t.Fatalf("increment %s: %v", user, err)
		}
	}

	if err := l.CheckLogin(ctx, "d", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "d", "10.0.0.10"); err != nil {
		t.Fatalf("other IP should pass: %v", err)
	}
}

func TestResetLogin(t *testing.T) {
	l, _ := newLimiterTest(t, true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.IncrementLogin(ctx, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if n, err := l.LoginAttempts(ctx, "alice"); err != nil || n != 2 {
		t.Fatalf("LoginAttempts = %d, %v", n, err)
	}

	if err := l.ResetLogin(ctx, "alice"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if n, err := l.LoginAttempts(ctx, "alice"); err != nil || n != 0 {
		t.Fatalf("LoginAttempts after reset = %d, %v", n, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	l, mr := newLimiterTest(t, false)
	mr.Close()

	if err := l.CheckLogin(context.Background(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
