// Package lookup runs the same query against two catalogs and keeps the
// first answer.
package lookup

import (
	"context"
	"errors"
	"fmt"
)

// Func is one catalog query.
type Func[T any] func(ctx context.Context) (T, error)

type result[T any] struct {
	primary bool
	val     T
	err     error
}

// Race runs primary and secondary concurrently and returns the first
// successful value. When both have succeeded by the time a winner is
// picked, primary wins. The loser's context is cancelled. If both fail
// the errors are joined.
func Race[T any](ctx context.Context, primary, secondary Func[T]) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	primaryCh := make(chan result[T], 1)
	secondaryCh := make(chan result[T], 1)
	go func() {
		v, err := primary(ctx)
		primaryCh <- result[T]{primary: true, val: v, err: err}
	}()
	go func() {
		v, err := secondary(ctx)
		secondaryCh <- result[T]{val: v, err: err}
	}()

	var errs []error
	for pending := 2; pending > 0; pending-- {
		var r result[T]
		select {
		case r = <-primaryCh:
			primaryCh = nil
		case r = <-secondaryCh:
			secondaryCh = nil
			if r.err == nil && primaryCh != nil {
				// Tie: prefer a primary answer that is already waiting.
				select {
				case p := <-primaryCh:
					primaryCh = nil
					pending--
					if p.err == nil {
						return p.val, nil
					}
					errs = append(errs, fmt.Errorf("primary: %w", p.err))
				default:
				}
			}
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
		if r.err == nil {
			return r.val, nil
		}
		if r.primary {
			errs = append(errs, fmt.Errorf("primary: %w", r.err))
		} else {
			errs = append(errs, fmt.Errorf("secondary: %w", r.err))
		}
	}
	var zero T
	return zero, errors.Join(errs...)
}
