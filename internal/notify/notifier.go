// Package notify announces newly integrated skills to an operator.
//
// Notifications are best-effort. Callers hand names to a Dispatcher, which
// delivers them from a background goroutine and only ever logs failures.
package notify

import (
	"context"
	"fmt"
)

// Notifier delivers a single announcement.
type Notifier interface {
	NotifyNewSkill(ctx context.Context, name string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, name string) error

// NotifyNewSkill calls f(ctx, name).
func (f NotifierFunc) NotifyNewSkill(ctx context.Context, name string) error {
	return f(ctx, name)
}

// Error reports a failed delivery. It is logged, never returned to the
// caller of a forge run.
type Error struct {
	Skill string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notify %q: %v", e.Skill, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
