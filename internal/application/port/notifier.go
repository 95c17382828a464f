package port

import "context"

// Notifier delivers a free-text operator message (Slack webhook).
// Callers treat delivery failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
