// Package checker runs the slot-check pipeline: acquire an authenticated
// browsing context, fetch the schedule payload through it, normalize the
// result. One run owns exactly one browsing context and releases it on every
// exit path; runs share no state and are never retried internally.
package checker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/otarkhan/slotwatch/internal/browser"
	"github.com/otarkhan/slotwatch/internal/fetcher"
	"github.com/otarkhan/slotwatch/internal/logging"
	"github.com/otarkhan/slotwatch/internal/model"
	"github.com/otarkhan/slotwatch/internal/session"
	"github.com/otarkhan/slotwatch/internal/slots"
)

type Checker struct {
	launcher   browser.Launcher
	acquirer   *session.Acquirer
	fetcher    *fetcher.Fetcher
	normalizer *slots.Normalizer
	logger     logging.Logger
}

func New(launcher browser.Launcher, acquirer *session.Acquirer, f *fetcher.Fetcher, normalizer *slots.Normalizer, logger logging.Logger) *Checker {
	return &Checker{
		launcher:   launcher,
		acquirer:   acquirer,
		fetcher:    f,
		normalizer: normalizer,
		logger:     logging.OrNop(logger).With(logging.Field{Key: "component", Value: "checker"}),
	}
}

// Check runs one pipeline invocation. On failure the returned error is
// always a *model.Error (via model.Classify) so callers can map kinds.
func (c *Checker) Check(ctx context.Context, creds model.Credentials, appd string) (*model.CheckResult, error) {
	return c.CheckStream(ctx, creds, appd, nil)
}

// CheckStream is Check with acquirer state transitions published to sink.
func (c *Checker) CheckStream(ctx context.Context, creds model.Credentials, appd string, sink session.EventSink) (*model.CheckResult, error) {
	if err := creds.Validate(); err != nil {
		return nil, model.Classify(err)
	}
	if appd == "" {
		return nil, model.Errf(model.KindUnknown, "missing appd")
	}

	runID := uuid.New().String()
	logger := c.logger.With(logging.Field{Key: "run_id", Value: runID})
	logger.Info("starting slot check", logging.Field{Key: "appd", Value: appd})

	page, err := c.launcher.NewPage(ctx)
	if err != nil {
		logger.Error("browser launch failed", logging.Field{Key: "error", Value: err.Error()})
		return nil, model.Classify(err)
	}
	// The one guaranteed release point for the run's browsing context,
	// covering success, classified failure and panic alike.
	defer page.Release()

	if err := c.acquirer.Acquire(ctx, page, creds, sink); err != nil {
		cerr := model.Classify(err)
		logger.Warn("session acquisition failed",
			logging.Field{Key: "kind", Value: string(cerr.Kind)},
			logging.Field{Key: "message", Value: cerr.Message})
		return nil, cerr
	}

	raw, err := c.fetcher.Fetch(ctx, page, appd)
	if err != nil {
		cerr := model.Classify(err)
		logger.Warn("schedule fetch failed",
			logging.Field{Key: "kind", Value: string(cerr.Kind)},
			logging.Field{Key: "status", Value: cerr.HTTPStatus})
		return nil, cerr
	}

	records := c.normalizer.Normalize(raw)
	logger.Info("slot check complete", logging.Field{Key: "slots", Value: len(records)})

	return &model.CheckResult{
		Slots:      records,
		TotalSlots: len(records),
		CheckedAt:  time.Now().UTC(),
	}, nil
}
