package resilience

import (
	"context"
	"errors"
	"testing"
)

var errTransient = errors.New("session expired")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestRetryOnce(t *testing.T) {
	errPermanent := errors.New("bad request")
	errReset := errors.New("reset failed")

	tests := []struct {
		name      string
		results   []error
		resetErr  error
		wantCalls int
		wantReset int
		wantErr   error
	}{
		{"success first try", []error{nil}, nil, 1, 0, nil},
		{"permanent error not retried", []error{errPermanent}, nil, 1, 0, errPermanent},
		{"transient then success", []error{errTransient, nil}, nil, 2, 1, nil},
		{"transient twice surfaces", []error{errTransient, errTransient}, nil, 2, 1, errTransient},
		{"reset failure stops", []error{errTransient}, errReset, 1, 1, errReset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, resets := 0, 0
			op := func(context.Context) error {
				err := tt.results[calls]
				calls++
				return err
			}
			reset := func(context.Context) error {
				resets++
				return tt.resetErr
			}

			err := RetryOnce(context.Background(), op, isTransient, reset)
			if calls != tt.wantCalls || resets != tt.wantReset {
				t.Errorf("expected %d calls/%d resets, got %d/%d", tt.wantCalls, tt.wantReset, calls, resets)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRetryOnceHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(context.Context) error {
		calls++
		cancel()
		return errTransient
	}

	err := RetryOnce(ctx, op, isTransient, nil)
	if calls != 1 {
		t.Errorf("expected no retry after cancel, got %d calls", calls)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("expected wrapped transient error, got %v", err)
	}
}
