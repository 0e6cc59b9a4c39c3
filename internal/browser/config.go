package browser

import "time"

type Config struct {
	// Headless disables the visible browser window. On for every deployment,
	// off only when debugging a layout change locally.
	Headless bool

	// UserAgent replaces the automation default, which the portal blocks.
	UserAgent string

	WindowWidth  int
	WindowHeight int

	// NetworkIdleAfter is how long the network must stay quiet before the
	// page counts as settled.
	NetworkIdleAfter time.Duration
}

// DefaultConfig returns the launch profile used against the portal.
func DefaultConfig() Config {
	return Config{
		Headless:         true,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120 Safari/537.36",
		WindowWidth:      1920,
		WindowHeight:     1080,
		NetworkIdleAfter: 2 * time.Second,
	}
}
