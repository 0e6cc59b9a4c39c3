// Package fetcher issues the authenticated schedule request. The request has
// to run inside the browsing context: the portal binds the session to cookies
// plus origin, so a separate HTTP client would come back 401 even with the
// cookie jar copied over.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/otarkhan/slotwatch/internal/browser"
	"github.com/otarkhan/slotwatch/internal/logging"
	"github.com/otarkhan/slotwatch/internal/model"
)

type Fetcher struct {
	cfg    Config
	logger logging.Logger
}

func New(cfg Config, logger logging.Logger) *Fetcher {
	return &Fetcher{
		cfg:    cfg,
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "fetcher"}),
	}
}

// fetchResult is what the in-page script resolves to.
type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// bodyExcerptLen bounds how much of an upstream error body is carried on a
// FetchError.
const bodyExcerptLen = 1024

// Fetch requests the schedule entries for appd through page and returns the
// raw response body. Non-2xx statuses come back as a classified FetchError
// carrying the upstream status, never as a thrown failure.
func (f *Fetcher) Fetch(ctx context.Context, page browser.Page, appd string) (json.RawMessage, error) {
	target := fmt.Sprintf("%s?appd=%s&cacheString=%d",
		f.cfg.ScheduleURL, url.QueryEscape(appd), time.Now().UnixMilli())

	f.logger.Debug("fetching schedule entries", logging.Field{Key: "appd", Value: appd})

	js := fmt.Sprintf(`(async () => {
		const res = await fetch(%q, {
			method: 'POST',
			credentials: 'include',
			headers: { 'Accept': 'application/json' }
		});
		const body = await res.text();
		return { status: res.status, body: body };
	})()`, target)

	var result fetchResult
	if err := page.Eval(ctx, js, &result); err != nil {
		return nil, model.Classify(fmt.Errorf("schedule request failed: %w", err))
	}

	if result.Status < 200 || result.Status > 299 {
		f.logger.Warn("schedule request rejected",
			logging.Field{Key: "status", Value: result.Status})
		return nil, &model.Error{
			Kind:       model.KindFetchError,
			Message:    excerpt(result.Body, bodyExcerptLen),
			HTTPStatus: result.Status,
		}
	}

	return json.RawMessage(result.Body), nil
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
