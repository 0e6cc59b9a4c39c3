package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/otarkhan/slotwatch/internal/logging"
)

// ChromeLauncher launches one throwaway Chrome per page.
type ChromeLauncher struct {
	cfg    Config
	logger logging.Logger
}

func NewChromeLauncher(cfg Config, logger logging.Logger) *ChromeLauncher {
	return &ChromeLauncher{
		cfg:    cfg,
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "browser"}),
	}
}

// NewPage starts a browser process and opens a tab. The process is started
// eagerly so launch failures surface here instead of mid-run.
func (l *ChromeLauncher) NewPage(ctx context.Context) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
		chromedp.UserAgent(l.cfg.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	l.logger.Debug("browser launched",
		logging.Field{Key: "headless", Value: l.cfg.Headless})

	return &chromePage{
		ctx:         tabCtx,
		cfg:         l.cfg,
		logger:      l.logger,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromePage struct {
	ctx         context.Context
	cfg         Config
	logger      logging.Logger
	releaseOnce sync.Once
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// run executes actions on the tab context while honoring the caller context's
// cancellation and deadline.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		opCtx, cancel = context.WithDeadline(opCtx, deadline)
		defer cancel()
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-opCtx.Done():
		}
	}()
	return chromedp.Run(opCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) WaitReady(ctx context.Context, timeout time.Duration) error {
	idleCh := waitNetworkIdle(p.ctx, p.cfg.NetworkIdleAfter)
	select {
	case <-idleCh:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
// The timer starts immediately so a page that issues no further requests
// still counts as idle.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	startTimer()
	return idleChan
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromePage) ClearAndType(ctx context.Context, selector, text string, keyDelay time.Duration) error {
	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
	}
	// One key event per rune with a pause between them. The pacing mimics
	// human input cadence; it is an anti-detection measure, not tuning.
	for _, r := range text {
		actions = append(actions,
			chromedp.KeyEvent(string(r)),
			chromedp.Sleep(keyDelay),
		)
	}
	return p.run(ctx, actions...)
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (p *chromePage) PressEnter(ctx context.Context) error {
	return p.run(ctx, chromedp.KeyEvent(kb.Enter))
}

func (p *chromePage) AwaitNavigation(ctx context.Context) func(timeout time.Duration) error {
	navCh := make(chan struct{}, 1)
	listenCtx, cancelListen := context.WithCancel(p.ctx)

	chromedp.ListenTarget(listenCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				select {
				case navCh <- struct{}{}:
				default:
				}
			}
		case *page.EventNavigatedWithinDocument:
			select {
			case navCh <- struct{}{}:
			default:
			}
		}
	})

	return func(timeout time.Duration) error {
		defer cancelListen()
		select {
		case <-navCh:
			return nil
		case <-time.After(timeout):
			return context.DeadlineExceeded
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
}

func (p *chromePage) Eval(ctx context.Context, js string, out any) error {
	return p.run(ctx,
		chromedp.Evaluate(js, out, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithReturnByValue(true).WithAwaitPromise(true)
		}),
	)
}

func (p *chromePage) Release() {
	p.releaseOnce.Do(func() {
		p.cancelTab()
		p.cancelAlloc()
		p.logger.Debug("browser released")
	})
}
