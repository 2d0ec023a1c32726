package resilience

import (
	"context"
	"fmt"
)

// RetryOnce runs op. If op fails with an error that isTransient accepts,
// reset is called to rebuild whatever op depends on and op runs one more
// time. A second failure, or a failing reset, is returned wrapped.
func RetryOnce(ctx context.Context, op func(context.Context) error, isTransient func(error) bool, reset func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !isTransient(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retry aborted: %w", err)
	}
	if reset != nil {
		if rerr := reset(ctx); rerr != nil {
			return fmt.Errorf("reset after %v: %w", err, rerr)
		}
	}
	if err := op(ctx); err != nil {
		return fmt.Errorf("after retry: %w", err)
	}
	return nil
}
