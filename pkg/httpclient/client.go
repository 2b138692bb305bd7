package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultMaxBody caps how much of a response body is read.
const DefaultMaxBody = 16 << 20

// Config defines the setup for the HTTP Client.
type Config struct {
	// Timeout is the per-request deadline, covering the body read.
	Timeout      time.Duration
	MaxRedirects int
	// UseCookieJar keeps cookies for the lifetime of the client, which makes
	// one client behave as one browsing session.
	UseCookieJar bool
	// MaxBody limits the bytes read from a response (0 = DefaultMaxBody).
	MaxBody int64
	// Transport overrides the round tripper, e.g. for uTLS fingerprinting.
	Transport http.RoundTripper
}

// Client wraps http.Client with a per-request deadline, a redirect cap and an
// optional session cookie jar.
type Client struct {
	*http.Client
	timeout time.Duration
	maxBody int64
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}

	c := &http.Client{}

	if cfg.MaxRedirects >= 0 {
		maxRedirects := cfg.MaxRedirects
		if maxRedirects == 0 {
			maxRedirects = 10
		}
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, timeout: cfg.Timeout, maxBody: cfg.MaxBody}, nil
}

// Get issues a GET with the given headers and reads the whole body before the
// per-request deadline expires. Non-2xx statuses are not errors here.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		req.Header[k] = append([]string(nil), vals...)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}
