package session

import "time"

// Config is the single timeout surface for a run. Every wait in the acquirer
// is bounded by one of these; there are no unbounded waits.
type Config struct {
	// LoginURL is the portal login page.
	LoginURL string

	// NavigationTimeout bounds the initial page settle and the post-submit
	// navigation wait.
	NavigationTimeout time.Duration

	// SelectorTimeout bounds how long the acquirer waits for a username
	// field to appear.
	SelectorTimeout time.Duration

	// SettleDelay gives client-side redirects and challenge scripts time to
	// render before classification.
	SettleDelay time.Duration

	// PollInterval is the form-appearance polling cadence.
	PollInterval time.Duration

	// TypingDelay is the pause between keystrokes while entering
	// credentials. Human-cadence pacing, not a performance knob.
	TypingDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		LoginURL:          "https://www.usvisascheduling.com/en-US/login/",
		NavigationTimeout: 45 * time.Second,
		SelectorTimeout:   30 * time.Second,
		SettleDelay:       3 * time.Second,
		PollInterval:      250 * time.Millisecond,
		TypingDelay:       50 * time.Millisecond,
	}
}
