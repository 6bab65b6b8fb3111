package overlay

import "time"

// Config controls persistence of overlay state.
type Config struct {
	// Debounce is the window in which touches collapse into one write.
	Debounce time.Duration
	// CacheTTL is the expiry of the transport cache key; zero keeps it forever.
	CacheTTL time.Duration
	// IOTimeout bounds hydration and timer-driven persistence.
	IOTimeout time.Duration
	// DefaultAvatarTimeoutSeconds seeds new states.
	DefaultAvatarTimeoutSeconds int
}

// DefaultConfig returns the default persistence settings.
func DefaultConfig() Config {
	return Config{
		Debounce:                    200 * time.Millisecond,
		IOTimeout:                   5 * time.Second,
		DefaultAvatarTimeoutSeconds: 300,
	}
}
