package tiered_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/tiered"
	"github.com/Strob0t/CaseForge/internal/port/cache"
	"github.com/Strob0t/CaseForge/internal/port/cache/cachetest"
)

var _ cache.Cache = (*tiered.Cache)(nil)

// memCache is a map-backed cache that can be switched to failing.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestTieredCompliance(t *testing.T) {
	cachetest.RunComplianceTests(t, tiered.New(newMemCache(), newMemCache(), time.Minute))
}

func TestTiered_L2HitBackfillsWithL1Expire(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 30*time.Second)
	key := cache.ProjectStatisticsKey("PROJ_a")
	l2.data[key] = []byte(`{"epic_count":2}`)

	val, found, err := c.Get(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("expected L2 hit, got found=%v err=%v", found, err)
	}
	if string(val) != `{"epic_count":2}` {
		t.Fatalf("unexpected value %s", val)
	}
	if string(l1.data[key]) != `{"epic_count":2}` {
		t.Fatal("expected L1 backfill")
	}
	if l1.ttls[key] != 30*time.Second {
		t.Errorf("expected backfill ttl 30s, got %v", l1.ttls[key])
	}
}

func TestTiered_SetCapsL1TTL(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 30*time.Second)

	if err := c.Set(context.Background(), cache.KeyOverallStatistics, []byte("{}"), 5*time.Minute); err != nil {
		t.Fatal(err)
	}
	if l1.ttls[cache.KeyOverallStatistics] != 30*time.Second {
		t.Errorf("expected L1 ttl capped at 30s, got %v", l1.ttls[cache.KeyOverallStatistics])
	}
	if l2.ttls[cache.KeyOverallStatistics] != 5*time.Minute {
		t.Errorf("expected L2 ttl 5m, got %v", l2.ttls[cache.KeyOverallStatistics])
	}
}

func TestTiered_L2OutageDegradesReads(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.err = errors.New("nats: timeout")
	c := tiered.New(l1, l2, time.Minute)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	if err != nil || found {
		t.Fatalf("expected plain miss, got found=%v err=%v", found, err)
	}

	l1.data["local"] = []byte("v")
	if val, found, _ := c.Get(ctx, "local"); !found || string(val) != "v" {
		t.Error("expected L1 hit while L2 is down")
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Error("expected Set to report the L2 error")
	}
}

func TestTiered_DeleteAttemptsBoth(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, time.Minute)
	l1.data["k"] = []byte("v")
	l2.err = errors.New("down")

	if err := c.Delete(context.Background(), "k"); err == nil {
		t.Fatal("expected L2 delete error")
	}
	if _, ok := l1.data["k"]; ok {
		t.Error("expected L1 entry removed despite L2 failure")
	}
}
