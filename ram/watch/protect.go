package watch

import "time"

// ProtectOptions configures a Protect watcher.
type ProtectOptions struct {
	// IdleInterval is the pause after an idle callback returns Wait.
	// Default: DefaultIdleInterval.
	IdleInterval time.Duration
}
