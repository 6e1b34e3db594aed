package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout bounds fn by a deadline derived from ctx. fn receives the
// derived context; when the deadline passes before fn returns, the call is
// abandoned and context.DeadlineExceeded is reported under the operation
// name. A non-positive limit disables the bound.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(bounded) }()

	select {
	case err := <-result:
		return err
	case <-bounded.Done():
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", op, err)
	}
	return fmt.Errorf("%s: %w (limit: %v)", op, context.DeadlineExceeded, limit)
}
