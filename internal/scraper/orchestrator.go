package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/farescout/internal/geo"
	"github.com/FranksOps/farescout/internal/listing"
	"github.com/FranksOps/farescout/internal/strategy"
	"github.com/FranksOps/farescout/internal/transport"
	"github.com/FranksOps/farescout/pkg/ratelimit"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// MinPoliteness is the shortest allowed spacing between two requests of a run.
const MinPoliteness = 500 * time.Millisecond

// Transport fetches one page. *transport.Fetcher satisfies it.
type Transport interface {
	Get(ctx context.Context, rawURL string) (*transport.Page, error)
}

// TransportFactory opens a fresh browsing session for a run.
type TransportFactory func() (Transport, error)

// DedupePolicy decides what happens to a listing seen on an earlier page.
type DedupePolicy int

const (
	// DedupeNone keeps every listing, repeats included.
	DedupeNone DedupePolicy = iota
	// DedupeByURL keeps the first listing per detail URL.
	DedupeByURL
)

// ParseDedupePolicy accepts "none" or "url".
func ParseDedupePolicy(s string) (DedupePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DedupeNone, nil
	case "url":
		return DedupeByURL, nil
	}
	return DedupeNone, fmt.Errorf("unknown dedupe policy %q (want none or url)", s)
}

func (p DedupePolicy) String() string {
	if p == DedupeByURL {
		return "url"
	}
	return "none"
}

// Config provides the per-run policies of the orchestrator.
type Config struct {
	// Politeness is the minimum time between two requests (floor MinPoliteness).
	Politeness time.Duration
	// Jitter stretches each politeness wait by up to this fraction (0.0 to 1.0).
	Jitter float64
	Dedupe DedupePolicy
	// RespectRobots checks robots.txt before each fetch.
	RespectRobots bool
	// RobotsAgent is the user-agent token matched against robots.txt groups.
	RobotsAgent string
	// Concurrency bounds parallel runs in RunAll (default 2).
	Concurrency int
	Observer    Observer
}

// Orchestrator drives scrape runs of one strategy. It holds no per-run
// state, so one Orchestrator may execute several runs concurrently.
type Orchestrator struct {
	cfg      Config
	strategy strategy.Strategy
	geocoder geo.Geocoder
	sessions TransportFactory
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(s strategy.Strategy, g geo.Geocoder, sessions TransportFactory, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Politeness < MinPoliteness {
		cfg.Politeness = MinPoliteness
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Observer == nil {
		cfg.Observer = Observers(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, strategy: s, geocoder: g, sessions: sessions, logger: logger}
}

// Site returns the domain label of the strategy's site.
func (o *Orchestrator) Site() string {
	return strategy.DomainLabel(o.strategy.BaseURL())
}

// Strategy returns the strategy the orchestrator drives.
func (o *Orchestrator) Strategy() strategy.Strategy {
	return o.strategy
}

// session is the state owned by a single run.
type session struct {
	transport Transport
	limiter   *ratelimit.Limiter
	robots    *RobotsTxtAuditor
}

// get waits out the politeness interval then fetches.
func (s *session) get(ctx context.Context, rawURL string) (*transport.Page, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.transport.Get(ctx, rawURL)
}

// Run scrapes the first result page for q plus up to maxPages further pages
// and returns the listings in page then DOM order, each carrying its distance
// in miles from the destination. Any error returned is a *FatalRunError.
func (o *Orchestrator) Run(ctx context.Context, q listing.SearchQuery, maxPages int) (*listing.ResultSet, error) {
	start := time.Now()
	runID := uuid.NewString()
	site := o.Site()
	logger := o.logger.With("run_id", runID, "site", site, "destination", q.Destination)

	rs, err := o.run(ctx, runID, q, maxPages, logger)
	if err != nil {
		logger.Error("run failed", "err", err)
		o.cfg.Observer.RunFailed(site, err)
		return nil, err
	}

	d := time.Since(start)
	logger.Info("run complete", "listings", rs.Len(), "duration", d)
	o.cfg.Observer.RunCompleted(rs, d)
	return rs, nil
}

func (o *Orchestrator) run(ctx context.Context, runID string, q listing.SearchQuery, maxPages int, logger *slog.Logger) (*listing.ResultSet, error) {
	ref, err := o.geocoder.Resolve(ctx, place(q))
	if err != nil {
		return nil, &FatalRunError{Stage: StageGeocode, Err: err}
	}
	logger.Debug("resolved destination", "location", ref)

	searchURL, err := o.strategy.SearchURL(q)
	if err != nil {
		return nil, &FatalRunError{Stage: StageSearchURL, Err: err}
	}

	tr, err := o.sessions()
	if err != nil {
		return nil, &FatalRunError{Stage: StageTransport, Err: err}
	}
	s := &session{
		transport: tr,
		limiter:   ratelimit.NewLimiter(o.cfg.Politeness, o.cfg.Jitter),
	}
	if o.cfg.RespectRobots {
		s.robots = NewRobotsTxtAuditor(s.get, o.cfg.RobotsAgent, logger)
	}

	doc, err := o.fetchPage(ctx, s, searchURL, 1)
	if err != nil {
		return nil, &FatalRunError{Stage: StageFetch, URL: searchURL, Err: err}
	}

	rs := listing.NewResultSet(runID, o.Site(), q)
	var seen map[string]struct{}
	if o.cfg.Dedupe == DedupeByURL {
		seen = make(map[string]struct{})
	}
	o.extract(doc, rs, 1, seen, logger)

	more := o.strategy.MorePages(doc)
	if maxPages < 0 {
		maxPages = 0
	}
	if len(more) > maxPages {
		more = more[:maxPages]
	}

	for i, link := range more {
		n := i + 2
		doc, err := o.fetchPage(ctx, s, link, n)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &FatalRunError{Stage: StageFetch, URL: link, Err: ctxErr}
			}
			pe := &PageError{Page: n, URL: link, Err: err}
			logger.Warn("skipping page", "page", n, "url", link, "err", err)
			o.cfg.Observer.PageFailed(rs.Site, n, pe)
			continue
		}
		o.extract(doc, rs, n, seen, logger)
	}

	rs.Each(func(_ int, l *listing.Listing) {
		l.Distance = geo.GreatCircleMiles(l.Location, ref)
	})
	return rs, nil
}

func (o *Orchestrator) fetchPage(ctx context.Context, s *session, rawURL string, n int) (*goquery.Document, error) {
	if s.robots != nil {
		allowed, err := s.robots.IsAllowed(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrRobotsDisallowed
		}
	}

	o.logger.Debug("fetching", "url", rawURL, "page", n)
	page, err := s.get(ctx, rawURL)
	if page != nil {
		o.cfg.Observer.PageFetched(o.Site(), n, page.StatusCode, len(page.Body), page.Duration)
	}
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (o *Orchestrator) extract(doc *goquery.Document, rs *listing.ResultSet, n int, seen map[string]struct{}, logger *slog.Logger) {
	found, errs := o.strategy.Extract(doc)
	for _, err := range errs {
		logger.Warn("dropped listing", "page", n, "err", err)
	}

	kept := 0
	for _, l := range found {
		if seen != nil {
			if _, dup := seen[l.URL]; dup {
				logger.Debug("duplicate listing", "page", n, "url", l.URL)
				continue
			}
			seen[l.URL] = struct{}{}
		}
		rs.Append(l)
		kept++
	}
	o.cfg.Observer.ListingsExtracted(rs.Site, n, kept, len(errs))
}

// place is the free-text location handed to the geocoder.
func place(q listing.SearchQuery) string {
	if q.Country == "" {
		return q.Destination
	}
	return q.Destination + ", " + q.Country
}

// Outcome is the result of one query in RunAll.
type Outcome struct {
	Query   listing.SearchQuery
	Results *listing.ResultSet
	Err     error
}

// RunAll executes one independent run per query, at most Concurrency at a
// time. Outcomes are returned in query order. A failed run does not cancel
// the others.
func (o *Orchestrator) RunAll(ctx context.Context, queries []listing.SearchQuery, maxPages int) []Outcome {
	out := make([]Outcome, len(queries))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			rs, err := o.Run(ctx, q, maxPages)
			out[i] = Outcome{Query: q, Results: rs, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Failed reports whether any outcome carries an error.
func Failed(outcomes []Outcome) bool {
	for _, oc := range outcomes {
		if oc.Err != nil {
			return true
		}
	}
	return false
}

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	var fe *FatalRunError
	return errors.As(err, &fe)
}
