// Package settings provides access to global application settings,
// including the queue processing kill-switch.
package settings

import "context"

// KeyQueueEnabled is the kill-switch setting key. When the key is absent
// processing is considered enabled.
const KeyQueueEnabled = "queue_enabled"

// Store reads and writes global settings.
type Store interface {
	// IsQueueEnabled reports whether automatic queue processing is enabled.
	IsQueueEnabled(ctx context.Context) (bool, error)

	// SetQueueEnabled flips the processing kill-switch.
	SetQueueEnabled(ctx context.Context, enabled bool) error
}
