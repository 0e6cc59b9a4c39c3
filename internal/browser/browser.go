// Package browser owns the rendered browsing context: a scriptable page that
// can navigate, expose its DOM, simulate input and issue same-origin requests
// with the session cookies attached.
package browser

import (
	"context"
	"time"
)

// Page is an exclusively-owned, single-use handle to one rendered page and
// its cookie state. A Page is created at pipeline start and must be Released
// on every exit path; it is never reused across runs.
type Page interface {
	// Navigate loads url and returns once the document has loaded.
	Navigate(ctx context.Context, url string) error

	// WaitReady blocks until the page has stopped actively loading
	// (network-idle equivalent), bounded by timeout. Exceeding the bound
	// returns context.DeadlineExceeded.
	WaitReady(ctx context.Context, timeout time.Duration) error

	// HTML returns the current outer HTML of the document.
	HTML(ctx context.Context) (string, error)

	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)

	// ClearAndType clears any pre-filled value in the element matched by
	// selector and types text with keyDelay between keystrokes.
	ClearAndType(ctx context.Context, selector, text string, keyDelay time.Duration) error

	// Click clicks the element matched by selector.
	Click(ctx context.Context, selector string) error

	// PressEnter sends an Enter keystroke to the focused element.
	PressEnter(ctx context.Context) error

	// AwaitNavigation registers a navigation listener and returns a wait
	// function. Registration completes before AwaitNavigation returns, so a
	// submission triggered afterwards cannot be missed. The wait function
	// returns context.DeadlineExceeded when no navigation happens in time.
	AwaitNavigation(ctx context.Context) func(timeout time.Duration) error

	// Eval runs js in the page and unmarshals the result into out.
	Eval(ctx context.Context, js string, out any) error

	// Release tears the page and its browser resources down. Safe to call
	// more than once; only the first call has effect.
	Release()
}

// Launcher creates Pages. The chromedp implementation launches a fresh
// browser per page; tests substitute fakes.
type Launcher interface {
	NewPage(ctx context.Context) (Page, error)
}
