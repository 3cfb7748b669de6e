package services

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	m := NewMemoryLimiter()
	defer m.Stop()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := m.Allow(ctx, "btc_verify:1", time.Minute); !ok {
		t.Fatal("first call should be allowed")
	}
	if ok, _ := m.Allow(ctx, "btc_verify:1", time.Minute); ok {
		t.Error("second call inside the window should be rejected")
	}
	if ok, _ := m.Allow(ctx, "btc_verify:2", time.Minute); !ok {
		t.Error("other keys are independent")
	}

	now = now.Add(time.Minute)
	if ok, _ := m.Allow(ctx, "btc_verify:1", time.Minute); !ok {
		t.Error("call after the window should be allowed")
	}
}

func TestMemoryLimiterCleanup(t *testing.T) {
	m := NewMemoryLimiter()
	defer m.Stop()

	now := time.Now()
	m.now = func() time.Time { return now }
	m.Allow(context.Background(), "idle", time.Minute)

	now = now.Add(2 * time.Hour)
	m.cleanup(time.Hour)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if len(m.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(m.entries))
	}
}
