// Package probe checks portal reachability without paying for a browser.
// It fetches the login page over plain HTTP (with the Cloudflare bypass
// transport) and runs the body through the challenge classifier. The probe
// is a diagnostic fast path only; the in-browser challenge check during a
// real run remains authoritative.
package probe

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"github.com/otarkhan/slotwatch/internal/challenge"
	"github.com/otarkhan/slotwatch/internal/logging"
)

// Result is one probe outcome.
type Result struct {
	StatusCode  int    `json:"statusCode"`
	IsChallenge bool   `json:"isChallenge"`
	Reason      string `json:"reason,omitempty"`
}

type Prober struct {
	client *resty.Client
	url    string
	logger logging.Logger
}

// New builds a prober for the given login URL. userAgent should match the
// browser profile so both paths look like the same client to the portal.
func New(loginURL, userAgent string, logger logging.Logger) (*Prober, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(30 * time.Second)

	return &Prober{
		client: client,
		url:    loginURL,
		logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "probe"}),
	}, nil
}

// Probe fetches the login page and classifies the response.
func (p *Prober) Probe(ctx context.Context) (*Result, error) {
	res, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", p.url, err)
	}

	cls := challenge.Classify(string(res.Body()), res.RawResponse.Request.URL.String())
	p.logger.Info("portal probed",
		logging.Field{Key: "status", Value: res.StatusCode()},
		logging.Field{Key: "challenge", Value: cls.IsChallenge})

	return &Result{
		StatusCode:  res.StatusCode(),
		IsChallenge: cls.IsChallenge,
		Reason:      cls.Reason,
	}, nil
}
