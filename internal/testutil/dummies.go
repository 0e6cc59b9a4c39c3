// Package testutil provides shared test doubles for use across package
// tests. All dummies implement the corresponding interfaces from the
// production code, allowing injection into components under test without
// real I/O or a real browser.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/otarkhan/slotwatch/internal/browser"
	"github.com/otarkhan/slotwatch/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Browser ───────────────────────────────────────────────────────────

// FakePage implements browser.Page against canned DOM content.
//
// HTMLSeq is consumed one element per HTML() call, the last element
// repeating; this lets tests model a form that appears only after a few
// polls. Interactions are recorded for assertions.
type FakePage struct {
	mu sync.Mutex

	// Canned state
	HTMLSeq []string
	URL     string

	// Error injection
	NavigateErr  error
	WaitReadyErr error
	HTMLErr      error
	TypeErr      error
	ClickErr     error
	EnterErr     error
	EvalErr      error

	// NavigationSeen makes the AwaitNavigation wait succeed; otherwise it
	// times out.
	NavigationSeen bool

	// NavigateBlocks makes Navigate hang until the caller's context expires,
	// modeling a server that accepts the connection but never finishes the
	// document.
	NavigateBlocks bool

	// EvalResult is JSON round-tripped into Eval's out parameter.
	EvalResult any

	// Recorded interactions
	NavigatedTo  []string
	htmlCalls    int
	Typed        map[string]string
	TypedOrder   []string
	Clicked      []string
	EnterPressed bool
	EvalScripts  []string
	ReleaseCount int
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.NavigatedTo = append(p.NavigatedTo, url)
	blocks := p.NavigateBlocks
	p.mu.Unlock()
	if blocks {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.NavigateErr
}

func (p *FakePage) WaitReady(_ context.Context, _ time.Duration) error {
	return p.WaitReadyErr
}

func (p *FakePage) HTML(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	if len(p.HTMLSeq) == 0 {
		return "", nil
	}
	idx := p.htmlCalls
	if idx >= len(p.HTMLSeq) {
		idx = len(p.HTMLSeq) - 1
	}
	p.htmlCalls++
	return p.HTMLSeq[idx], nil
}

func (p *FakePage) Location(_ context.Context) (string, error) {
	return p.URL, nil
}

func (p *FakePage) ClearAndType(_ context.Context, selector, text string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TypeErr != nil {
		return p.TypeErr
	}
	if p.Typed == nil {
		p.Typed = make(map[string]string)
	}
	p.Typed[selector] = text
	p.TypedOrder = append(p.TypedOrder, selector)
	return nil
}

func (p *FakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ClickErr != nil {
		return p.ClickErr
	}
	p.Clicked = append(p.Clicked, selector)
	return nil
}

func (p *FakePage) PressEnter(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnterErr != nil {
		return p.EnterErr
	}
	p.EnterPressed = true
	return nil
}

func (p *FakePage) AwaitNavigation(_ context.Context) func(time.Duration) error {
	return func(time.Duration) error {
		if p.NavigationSeen {
			return nil
		}
		return context.DeadlineExceeded
	}
}

func (p *FakePage) Eval(_ context.Context, js string, out any) error {
	p.mu.Lock()
	p.EvalScripts = append(p.EvalScripts, js)
	p.mu.Unlock()
	if p.EvalErr != nil {
		return p.EvalErr
	}
	if p.EvalResult == nil {
		return nil
	}
	enc, err := json.Marshal(p.EvalResult)
	if err != nil {
		return err
	}
	return json.Unmarshal(enc, out)
}

func (p *FakePage) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReleaseCount++
}

// FakeLauncher implements browser.Launcher, handing out a fixed page.
type FakeLauncher struct {
	Page browser.Page
	Err  error

	Launched int
}

func (l *FakeLauncher) NewPage(_ context.Context) (browser.Page, error) {
	l.Launched++
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Page, nil
}
