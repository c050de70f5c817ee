package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/opensource-finance/tollwatch/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
		clocked := NewLRUCache(10)
		clocked.now = func() time.Time { return now }

		_ = clocked.Set(ctx, "expiring", []byte("temp"), time.Minute)
		if val, _ := clocked.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		now = now.Add(2 * time.Minute)
		if val, _ := clocked.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := clocked.Stats(); size != 0 {
			t.Errorf("expired entry should be dropped, size %d", size)
		}
	})

	t.Run("NoTTL", func(t *testing.T) {
		_ = cache.Set(ctx, "forever", []byte("x"), 0)
		if val, _ := cache.Get(ctx, "forever"); string(val) != "x" {
			t.Error("expected entry without ttl to be kept")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' is the oldest
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
		if size, capacity := small.Stats(); size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)

	summary := domain.Summary{TotalTransactions: 3, FlaggedTransactions: 1, Agencies: []string{"NJTP"}}
	if err := SetJSON(ctx, c, domain.CacheKeySummary, summary, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got domain.Summary
	ok, err := GetJSON(ctx, c, domain.CacheKeySummary, &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, got %v %v", ok, err)
	}
	if got.TotalTransactions != 3 || got.Agencies[0] != "NJTP" {
		t.Errorf("unexpected summary %+v", got)
	}

	ok, err = GetJSON(ctx, c, domain.CacheKeyMetrics, &got)
	if err != nil || ok {
		t.Errorf("expected miss, got %v %v", ok, err)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer cache.Close()

	if err := cache.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists(redisKeyPrefix + "k") {
		t.Error("expected prefixed key in redis")
	}

	val, err := cache.Get(ctx, "k")
	if err != nil || string(val) != "v" {
		t.Errorf("expected 'v', got %q %v", val, err)
	}

	mr.FastForward(2 * time.Second)
	if val, _ := cache.Get(ctx, "k"); val != nil {
		t.Error("expected nil after expiration")
	}

	_ = cache.Set(ctx, "gone", []byte("x"), 0)
	if err := cache.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if val, _ := cache.Get(ctx, "gone"); val != nil {
		t.Error("expected nil after delete")
	}
}

func TestTwoPhaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewTwoPhaseCache(domain.CacheConfig{RedisAddr: mr.Addr(), LocalMaxSize: 10, LocalTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to create two-phase cache: %v", err)
	}
	defer c.Close()

	t.Run("WritesBothLevels", func(t *testing.T) {
		_ = c.Set(ctx, "k", []byte("v"), time.Hour)
		if l1, _ := c.local.Get(ctx, "k"); string(l1) != "v" {
			t.Error("expected L1 entry")
		}
		if l2, _ := mr.Get(redisKeyPrefix + "k"); l2 != "v" {
			t.Error("expected L2 entry")
		}
	})

	t.Run("PopulatesL1FromL2", func(t *testing.T) {
		_ = mr.Set(redisKeyPrefix+"remote", "r")
		val, err := c.Get(ctx, "remote")
		if err != nil || string(val) != "r" {
			t.Fatalf("expected L2 hit, got %q %v", val, err)
		}
		if l1, _ := c.local.Get(ctx, "remote"); string(l1) != "r" {
			t.Error("expected L1 to be populated")
		}
	})

	t.Run("DeleteBothLevels", func(t *testing.T) {
		_ = c.Delete(ctx, "k")
		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected miss after delete")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
