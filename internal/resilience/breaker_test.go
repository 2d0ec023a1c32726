package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

// step is one Execute call against a breaker with a fake clock.
type step struct {
	advance time.Duration // clock movement before the call
	fnErr   error         // what the protected call returns
	want    error         // what Execute must return
	state   state         // breaker state after the call
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"closed passes calls", []step{
			{fnErr: nil, want: nil, state: stateClosed},
		}},
		{"opens after max failures", []step{
			{fnErr: errTest, want: errTest, state: stateClosed},
			{fnErr: errTest, want: errTest, state: stateClosed},
			{fnErr: errTest, want: errTest, state: stateOpen},
			{fnErr: nil, want: ErrCircuitOpen, state: stateOpen},
		}},
		{"success resets the count", []step{
			{fnErr: errTest, want: errTest, state: stateClosed},
			{fnErr: errTest, want: errTest, state: stateClosed},
			{fnErr: nil, want: nil, state: stateClosed},
			{fnErr: errTest, want: errTest, state: stateClosed},
			{fnErr: errTest, want: errTest, state: stateClosed},
		}},
		{"half-open probe success closes", []step{
			{fnErr: errTest, want: errTest},
			{fnErr: errTest, want: errTest},
			{fnErr: errTest, want: errTest, state: stateOpen},
			{advance: 500 * time.Millisecond, want: ErrCircuitOpen, state: stateOpen},
			{advance: time.Second, fnErr: nil, want: nil, state: stateClosed},
		}},
		{"half-open probe failure reopens", []step{
			{fnErr: errTest, want: errTest},
			{fnErr: errTest, want: errTest},
			{fnErr: errTest, want: errTest, state: stateOpen},
			{advance: time.Second, fnErr: errTest, want: errTest, state: stateOpen},
			{fnErr: nil, want: ErrCircuitOpen, state: stateOpen},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			b := NewBreaker(3, time.Second)
			b.now = func() time.Time { return now }

			for i, st := range tt.steps {
				now = now.Add(st.advance)
				called := false
				err := b.Execute(func() error {
					called = true
					return st.fnErr
				})
				if !errors.Is(err, st.want) {
					t.Fatalf("step %d: expected %v, got %v", i, st.want, err)
				}
				if called == errors.Is(st.want, ErrCircuitOpen) {
					t.Fatalf("step %d: called=%v with result %v", i, called, err)
				}
				b.mu.Lock()
				got := b.state
				b.mu.Unlock()
				if got != st.state {
					t.Fatalf("step %d: expected state %d, got %d", i, st.state, got)
				}
			}
		})
	}
}

func TestUncountedErrorsDoNotTrip(t *testing.T) {
	errClient := errors.New("bad request")
	b := NewBreaker(2, time.Second).CountOnly(func(err error) bool { return !errors.Is(err, errClient) })

	for range 5 {
		if err := b.Execute(func() error { return errClient }); !errors.Is(err, errClient) {
			t.Fatalf("expected client error passed through, got %v", err)
		}
	}
	if b.Open() {
		t.Fatal("expected breaker to stay closed on uncounted errors")
	}

	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return errTest })
	if !b.Open() {
		t.Fatal("expected breaker to open on counted errors")
	}
}

func TestDoSkipsDoneContext(t *testing.T) {
	b := NewBreaker(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without call, got %v (called=%v)", err, called)
	}
	if b.Open() {
		t.Error("expected breaker untouched by cancelled context")
	}
}

func TestOpenClearsAfterTimeout(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errTest })
	if !b.Open() {
		t.Fatal("expected open after failure")
	}
	now = now.Add(time.Second)
	if b.Open() {
		t.Error("expected Open to report false once the timeout elapsed")
	}
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errTest })
	now = now.Add(time.Second)

	var concurrent error
	err := b.Execute(func() error {
		concurrent = b.Execute(func() error { return nil })
		return nil
	})
	if err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if !errors.Is(concurrent, ErrCircuitOpen) {
		t.Errorf("expected a second call during the probe to fail fast, got %v", concurrent)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("expected closed breaker after probe success, got %v", err)
	}
}

func TestCancelledProbeReleasesSlot(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errTest })
	now = now.Add(time.Second)

	_ = b.Execute(func() error { return context.Canceled })
	called := false
	_ = b.Execute(func() error {
		called = true
		return nil
	})
	if !called {
		t.Error("expected the next call to probe after a cancelled probe")
	}
}
