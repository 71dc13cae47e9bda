package driven

import "context"

// Notifier is a fire-and-forget sink for human-readable event messages.
// Implementations log delivery failures and never propagate them.
type Notifier interface {
	Notify(ctx context.Context, message string)
}
