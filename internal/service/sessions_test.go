package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, build SessionBuilder) (*SessionRegistry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	r := newSessionRegistry(config.Sessions{TTL: 30 * time.Minute, SweepInterval: time.Hour}, build, clock.Now)
	t.Cleanup(r.Close)
	return r, clock
}

func TestSessionCreateGetInvalidate(t *testing.T) {
	r, clock := newTestRegistry(t, nil)
	ctx := context.Background()

	s, err := r.Create(ctx, "s1", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID != "s1" || s.UserID != "alice" || !s.CreatedAt.Equal(t0) {
		t.Errorf("unexpected session %+v", s)
	}

	clock.Advance(time.Minute)
	got, ok := r.Get("s1")
	if !ok || !got.LastUsed.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected Get to mark use, got %+v ok=%v", got, ok)
	}

	if !r.Invalidate("s1") {
		t.Error("expected Invalidate to report an existing session")
	}
	if _, ok := r.Get("s1"); ok {
		t.Error("expected session gone")
	}
	if r.Invalidate("s1") {
		t.Error("second Invalidate should report false")
	}
}

func TestSessionCreateRequiresID(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	if _, err := r.Create(context.Background(), "", "u"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	r, clock := newTestRegistry(t, nil)
	ctx := context.Background()
	if _, err := r.Create(ctx, "idle", "u"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create(ctx, "busy", "u"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(20 * time.Minute)
	r.Get("busy")
	clock.Advance(15 * time.Minute)

	if _, ok := r.Get("idle"); ok {
		t.Error("idle session should have expired")
	}
	if n := r.sweep(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if _, ok := r.Get("busy"); !ok {
		t.Error("recently used session should survive")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 session left, got %d", r.Len())
	}
}

func TestGetOrCreateCoalescesBuilds(t *testing.T) {
	var builds atomic.Int32
	release := make(chan struct{})
	r, _ := newTestRegistry(t, func(_ context.Context, _ *Session) error {
		builds.Add(1)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.GetOrCreate(context.Background(), "shared", "u")
			if err != nil {
				t.Error(err)
			}
			results[i] = created
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := builds.Load(); n != 1 {
		t.Errorf("expected one build, got %d", n)
	}
	_, created, err := r.GetOrCreate(context.Background(), "shared", "u")
	if err != nil || created {
		t.Errorf("expected existing session, created=%v err=%v", created, err)
	}
}

func TestGetOrCreateBuildFailure(t *testing.T) {
	boom := errors.New("backend down")
	r, _ := newTestRegistry(t, func(context.Context, *Session) error { return boom })

	if _, _, err := r.GetOrCreate(context.Background(), "s", "u"); !errors.Is(err, boom) {
		t.Fatalf("expected build error, got %v", err)
	}
	if r.Len() != 0 {
		t.Error("failed build must not register a session")
	}
}

func TestSweepLoopEvicts(t *testing.T) {
	clock := &fakeClock{now: t0}
	r := newSessionRegistry(config.Sessions{TTL: time.Minute, SweepInterval: 5 * time.Millisecond}, nil, clock.Now)
	defer r.Close()

	if _, err := r.Create(context.Background(), "s", "u"); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Minute)

	deadline := time.Now().Add(time.Second)
	for r.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Len() != 0 {
		t.Error("expected sweep to evict the idle session")
	}
}
