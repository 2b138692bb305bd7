package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/farescout/pkg/httpclient"
	"github.com/FranksOps/farescout/pkg/identity"
)

var (
	// ErrStatus is wrapped by *StatusError for non-2xx responses.
	ErrStatus = errors.New("unsuccessful status")
	// ErrChallenged is returned when a bot-protection page came back instead
	// of the requested content.
	ErrChallenged = errors.New("bot challenge served")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Config configures a Fetcher.
type Config struct {
	// Timeout is the per-request deadline (0 = 30s).
	Timeout      time.Duration
	MaxRedirects int
	Fingerprint  Profile
	// Identity is the header set presented on every request. The zero
	// value picks a browser identity matching Fingerprint.
	Identity identity.Identity
	// Detectors classify challenge pages (nil = DefaultDetectors).
	Detectors []Detector
	// InsecureSkipVerify disables TLS verification, for test servers only.
	InsecureSkipVerify bool
}

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	// Challenge names the bot-protection vendor when one was detected.
	Challenge string
}

// Fetcher performs GET requests for one browsing session. Cookies persist
// for the lifetime of the Fetcher, so each run should own its own.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

// NewFetcher builds a Fetcher with its own transport and cookie jar.
func NewFetcher(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = ProfileChrome
	}
	if cfg.Identity.UserAgent() == "" {
		cfg.Identity = identity.ForBrowser(cfg.Fingerprint.Browser())
	}
	if cfg.Detectors == nil {
		cfg.Detectors = DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rt, err := RoundTripper(cfg.Fingerprint, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		Transport:    rt,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{cfg: cfg, client: client, logger: logger}, nil
}

// Identity returns the headers this Fetcher presents.
func (f *Fetcher) Identity() identity.Identity {
	return f.cfg.Identity
}

// Get fetches targetURL. A network failure returns a nil Page. A non-2xx
// status or a detected challenge returns the Page together with an error, so
// callers can still account for the response.
func (f *Fetcher) Get(ctx context.Context, targetURL string) (*Page, error) {
	start := time.Now()

	resp, err := f.client.Get(ctx, targetURL, f.cfg.Identity.Header())
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", targetURL, err)
	}

	page := &Page{
		URL:        targetURL,
		FinalURL:   resp.FinalURL,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Duration:   time.Since(start),
	}
	page.Challenge = DetectChallenge(resp.StatusCode, resp.Header, resp.Body, f.cfg.Detectors)

	f.logger.Debug("fetched", "url", targetURL, "status", resp.StatusCode, "bytes", len(resp.Body), "duration", page.Duration)

	if page.Challenge != "" {
		return page, fmt.Errorf("get %s: %w (%s)", targetURL, ErrChallenged, page.Challenge)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, &StatusError{URL: targetURL, StatusCode: resp.StatusCode}
	}
	return page, nil
}
