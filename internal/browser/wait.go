package browser

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Condition is polled by WaitFor. Returning an error stops the wait.
type Condition func(ctx context.Context) (bool, error)

// WaitFor polls cond every interval until it returns true, returns an error,
// or timeout elapses. The first check happens immediately. On timeout the
// returned error wraps ErrWaitTimeout and names what was awaited.
func WaitFor(ctx context.Context, interval, timeout time.Duration, what string, cond Condition) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, wait.ConditionWithContextFunc(cond))
	if err == nil {
		return nil
	}
	if wait.Interrupted(err) {
		// A canceled parent is not a timeout.
		if ctx.Err() != nil {
			return fmt.Errorf("wait for %s interrupted: %w", what, ctx.Err())
		}
		return fmt.Errorf("%w after %s: %s", ErrWaitTimeout, timeout, what)
	}
	return fmt.Errorf("failed while waiting for %s: %w", what, err)
}

// Interactable returns a condition satisfied once sel can be interacted with.
func Interactable(s Session, sel Selector) Condition {
	return func(ctx context.Context) (bool, error) {
		return s.IsInteractable(ctx, sel)
	}
}

// Present returns a condition satisfied once sel matches an element.
func Present(s Session, sel Selector) Condition {
	return func(ctx context.Context) (bool, error) {
		return s.Exists(ctx, sel)
	}
}

// Absent returns a condition satisfied once sel no longer matches.
func Absent(s Session, sel Selector) Condition {
	return func(ctx context.Context) (bool, error) {
		ok, err := s.Exists(ctx, sel)
		return !ok, err
	}
}
