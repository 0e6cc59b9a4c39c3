// Package session authenticates a browsing context against the portal. The
// acquirer is a sequential state machine; every failure is terminal for the
// run and carries a classified kind so callers can tell "blocked" from "site
// changed" from "timed out".
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/otarkhan/slotwatch/internal/browser"
	"github.com/otarkhan/slotwatch/internal/challenge"
	"github.com/otarkhan/slotwatch/internal/locator"
	"github.com/otarkhan/slotwatch/internal/logging"
	"github.com/otarkhan/slotwatch/internal/model"
)

// State names a position in the acquisition state machine.
type State string

const (
	StateStart                State = "start"
	StateNavigated            State = "navigated"
	StateChallengeCheck       State = "challenge_check"
	StateFormLocated          State = "form_located"
	StateCredentialsSubmitted State = "credentials_submitted"
	StateAuthenticated        State = "authenticated"
	StateFailed               State = "failed"
)

// Event is one state transition, published to an optional sink so callers
// can stream run progress.
type Event struct {
	State  State  `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// EventSink receives state transitions. May be nil.
type EventSink func(Event)

// snippetLen bounds the page excerpt carried on challenge/form failures.
const snippetLen = 512

type Acquirer struct {
	cfg    Config
	logger logging.Logger
}

func New(cfg Config, logger logging.Logger) *Acquirer {
	return &Acquirer{
		cfg:    cfg,
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "session"}),
	}
}

// Acquire drives page from the login URL to an authenticated state. On
// success the page's cookie state carries the session and the caller may
// issue same-origin requests through it. Acquire never releases the page;
// ownership stays with the caller.
func (a *Acquirer) Acquire(ctx context.Context, page browser.Page, creds model.Credentials, sink EventSink) error {
	emit := func(s State, detail string) {
		if sink != nil {
			sink(Event{State: s, Detail: detail})
		}
	}
	fail := func(err *model.Error) error {
		emit(StateFailed, string(err.Kind))
		return err
	}

	emit(StateStart, "")
	a.logger.Info("opening login page", logging.Field{Key: "url", Value: a.cfg.LoginURL})

	// The load itself is bounded, not just the settle wait after it. A portal
	// that accepts the connection and trickles the document forever must still
	// surface as NavigationTimeout.
	navCtx, cancelNav := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	err := page.Navigate(navCtx, a.cfg.LoginURL)
	cancelNav()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(model.Errf(model.KindNavigationTimeout,
				"login page navigation exceeded %s", a.cfg.NavigationTimeout))
		}
		return fail(model.Classify(err))
	}
	if err := page.WaitReady(ctx, a.cfg.NavigationTimeout); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(model.Errf(model.KindNavigationTimeout,
				"login page did not settle within %s", a.cfg.NavigationTimeout))
		}
		return fail(model.Classify(err))
	}
	emit(StateNavigated, "")

	// Let client-side redirects and challenge scripts render before judging
	// what we are looking at.
	select {
	case <-time.After(a.cfg.SettleDelay):
	case <-ctx.Done():
		return fail(model.Classify(ctx.Err()))
	}

	emit(StateChallengeCheck, "")
	content, err := page.HTML(ctx)
	if err != nil {
		return fail(model.Classify(err))
	}
	loc, _ := page.Location(ctx)
	if res := challenge.Classify(content, loc); res.IsChallenge {
		a.logger.Warn("challenge page detected", logging.Field{Key: "reason", Value: res.Reason})
		return fail(&model.Error{
			Kind:    model.KindBotChallenge,
			Message: res.Reason,
			Snippet: challenge.Snippet(content, snippetLen),
		})
	}

	doc, ferr := a.waitForForm(ctx, page)
	if ferr != nil {
		return fail(ferr)
	}
	emit(StateFormLocated, "")

	username, ok := locator.Locate(doc, locator.RoleUsername)
	if !ok {
		// waitForForm only returns once a username field exists, so this is
		// unreachable in practice; kept distinct per the failure taxonomy.
		return fail(model.Errf(model.KindFieldNotFound, "username field not located"))
	}
	password, ok := locator.Locate(doc, locator.RolePassword)
	if !ok {
		return fail(model.Errf(model.KindFieldNotFound, "password field not located"))
	}

	a.logger.Debug("login fields located",
		logging.Field{Key: "username_strategy", Value: username.Strategy},
		logging.Field{Key: "password_strategy", Value: password.Strategy})

	if err := page.ClearAndType(ctx, username.Selector, creds.Username, a.cfg.TypingDelay); err != nil {
		return fail(model.Classify(err))
	}
	if err := page.ClearAndType(ctx, password.Selector, creds.Password, a.cfg.TypingDelay); err != nil {
		return fail(model.Classify(err))
	}

	submit, ok := locator.Locate(doc, locator.RoleSubmit)
	if !ok {
		return fail(model.Errf(model.KindSubmitNotFound, "no submit control matched any strategy"))
	}

	// Register the navigation waiter before triggering submission so the
	// resulting navigation cannot be missed.
	waitNav := page.AwaitNavigation(ctx)

	if err := page.Click(ctx, submit.Selector); err != nil {
		// Some layouts put the control in a shadow host the click misses;
		// the password field still has focus, so Enter submits the form.
		a.logger.Debug("submit click failed, falling back to keyboard submit",
			logging.Field{Key: "error", Value: err.Error()})
		if kerr := page.PressEnter(ctx); kerr != nil {
			return fail(model.Classify(kerr))
		}
	}
	emit(StateCredentialsSubmitted, "")

	// Some successful logins are single-page transitions that never emit a
	// navigation event. The timeout here is therefore non-fatal.
	if err := waitNav(a.cfg.NavigationTimeout); err != nil {
		a.logger.Debug("no navigation observed after submit, proceeding",
			logging.Field{Key: "error", Value: err.Error()})
	}

	a.verifyAuthenticated(ctx, page)

	emit(StateAuthenticated, "")
	a.logger.Info("session acquired")
	return nil
}

// waitForForm polls until a username-role field appears, bounded by
// SelectorTimeout. On timeout the page is re-classified so a late challenge
// surfaces as BotChallenge, keeping FormNotFound reserved for "site changed".
func (a *Acquirer) waitForForm(ctx context.Context, page browser.Page) (*goquery.Document, *model.Error) {
	deadline := time.Now().Add(a.cfg.SelectorTimeout)
	var lastContent string

	for {
		content, err := page.HTML(ctx)
		if err == nil {
			lastContent = content
			if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(content)); derr == nil {
				if _, ok := locator.Locate(doc, locator.RoleUsername); ok {
					return doc, nil
				}
			}
		}

		if time.Now().After(deadline) {
			break
		}
		select {
		case <-time.After(a.cfg.PollInterval):
		case <-ctx.Done():
			return nil, model.Classify(ctx.Err())
		}
	}

	loc, _ := page.Location(ctx)
	if res := challenge.Classify(lastContent, loc); res.IsChallenge {
		return nil, &model.Error{
			Kind:    model.KindBotChallenge,
			Message: res.Reason,
			Snippet: challenge.Snippet(lastContent, snippetLen),
		}
	}
	return nil, &model.Error{
		Kind:    model.KindFormNotFound,
		Message: "no username field appeared within " + a.cfg.SelectorTimeout.String(),
		Snippet: challenge.Snippet(lastContent, snippetLen),
	}
}

// verifyAuthenticated is a soft post-login check. Still sitting on the login
// URL with a password field present usually means rejected credentials, but
// some portal variants serve the schedule API without ever leaving /login, so
// this only warns; the data fetch's HTTP status stays the authority.
func (a *Acquirer) verifyAuthenticated(ctx context.Context, page browser.Page) {
	loc, err := page.Location(ctx)
	if err != nil || !strings.Contains(strings.ToLower(loc), "login") {
		return
	}
	content, err := page.HTML(ctx)
	if err != nil {
		return
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return
	}
	if _, ok := locator.Locate(doc, locator.RolePassword); ok {
		a.logger.Warn("still on login page after submit, credentials may be invalid",
			logging.Field{Key: "url", Value: loc})
	}
}
