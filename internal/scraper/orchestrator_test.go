package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/farescout/internal/geo"
	"github.com/FranksOps/farescout/internal/listing"
	"github.com/FranksOps/farescout/internal/strategy/hotel"
	"github.com/FranksOps/farescout/internal/transport"
	"github.com/google/go-cmp/cmp"
)

var chicago = listing.Location{Lat: 41.8781, Lon: -87.6298}

// site serves the search fixtures: page 1, a failing page 2 and page 3.
type site struct {
	t *testing.T

	mu       sync.Mutex
	requests []string
	times    []time.Time

	page1Status int
	robots      string
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.RequestURI())
	s.times = append(s.times, time.Now())
	s.mu.Unlock()

	if r.URL.Path == "/robots.txt" {
		if s.robots == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(s.robots))
		return
	}

	switch r.URL.Query().Get("offset") {
	case "":
		if s.page1Status != 0 {
			w.WriteHeader(s.page1Status)
			return
		}
		s.serveFile(w, "testdata/page1.html")
	case "25":
		w.WriteHeader(http.StatusInternalServerError)
	case "50":
		s.serveFile(w, "testdata/page3.html")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *site) serveFile(w http.ResponseWriter, path string) {
	body, err := os.ReadFile(path)
	if err != nil {
		s.t.Fatalf("read fixture: %v", err)
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write(body)
}

func (s *site) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// recorder is an Observer that remembers what it saw.
type recorder struct {
	mu        sync.Mutex
	fetched   []int
	failed    []int
	dropped   int
	completed int
	runErrors []error
}

func (r *recorder) PageFetched(_ string, page, _, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = append(r.fetched, page)
}

func (r *recorder) PageFailed(_ string, page int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, page)
}

func (r *recorder) ListingsExtracted(_ string, _, _, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped += dropped
}

func (r *recorder) RunCompleted(*listing.ResultSet, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *recorder) RunFailed(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runErrors = append(r.runErrors, err)
}

func newOrchestrator(t *testing.T, baseURL string, cfg Config) *Orchestrator {
	t.Helper()
	s, err := hotel.New(hotel.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("hotel.New: %v", err)
	}
	sessions := func() (Transport, error) {
		return transport.NewFetcher(transport.Config{
			Timeout:     5 * time.Second,
			Fingerprint: transport.ProfileGo,
		}, nil)
	}
	return New(s, geo.Static{"Chicago, US": chicago}, sessions, cfg, nil)
}

func query(t *testing.T, destination string) listing.SearchQuery {
	t.Helper()
	in := time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)
	q, err := listing.NewSearchQuery(destination, "US", in, in.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("NewSearchQuery: %v", err)
	}
	return q
}

func names(rs *listing.ResultSet) []string {
	var out []string
	for _, l := range rs.Listings() {
		out = append(out, l.Name)
	}
	return out
}

func TestRun_FailedPaginationPageIsSkipped(t *testing.T) {
	srv := &site{t: t}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	rec := &recorder{}
	o := newOrchestrator(t, ts.URL, Config{Observer: rec})

	rs, err := o.Run(context.Background(), query(t, "Chicago"), 1)
	if err != nil {
		t.Fatalf("expected no fatal error, got %v", err)
	}

	want := []string{"The Palmer House", "River Hotel", "Lakeside Suites"}
	if diff := cmp.Diff(want, names(rs)); diff != "" {
		t.Errorf("unexpected listings (-want +got):\n%s", diff)
	}
	for _, l := range rs.Listings() {
		if l.Distance < 0 {
			t.Errorf("%s has negative distance %v", l.Name, l.Distance)
		}
		if l.Distance > 2 {
			t.Errorf("%s is %v miles from downtown Chicago", l.Name, l.Distance)
		}
	}

	if diff := cmp.Diff([]int{2}, rec.failed); diff != "" {
		t.Errorf("expected page 2 reported as failed (-want +got):\n%s", diff)
	}
	if rec.completed != 1 || len(rec.runErrors) != 0 {
		t.Errorf("expected one completed run, got %d completed and %v", rec.completed, rec.runErrors)
	}
	if rs.RunID == "" || rs.Site != "127" {
		t.Errorf("unexpected run metadata %q %q", rs.RunID, rs.Site)
	}
}

func TestRun_PageThenDOMOrderAndDedupe(t *testing.T) {
	tests := []struct {
		name   string
		dedupe DedupePolicy
		want   []string
	}{
		{
			name:   "keep repeats",
			dedupe: DedupeNone,
			want:   []string{"The Palmer House", "River Hotel", "Lakeside Suites", "The Palmer House", "West Loop Inn"},
		},
		{
			name:   "first listing per url",
			dedupe: DedupeByURL,
			want:   []string{"The Palmer House", "River Hotel", "Lakeside Suites", "West Loop Inn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &site{t: t}
			ts := httptest.NewServer(srv)
			defer ts.Close()

			rec := &recorder{}
			o := newOrchestrator(t, ts.URL, Config{Dedupe: tt.dedupe, Observer: rec})

			rs, err := o.Run(context.Background(), query(t, "Chicago"), 5)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, names(rs)); diff != "" {
				t.Errorf("unexpected listings (-want +got):\n%s", diff)
			}
			if rec.dropped != 1 {
				t.Errorf("expected the priceless listing to be dropped, got %d drops", rec.dropped)
			}
		})
	}
}

func TestRun_MaxPagesBoundsPagination(t *testing.T) {
	for _, maxPages := range []int{0, -3} {
		srv := &site{t: t}
		ts := httptest.NewServer(srv)

		o := newOrchestrator(t, ts.URL, Config{})
		rs, err := o.Run(context.Background(), query(t, "Chicago"), maxPages)
		ts.Close()

		if err != nil {
			t.Fatalf("maxPages %d: unexpected error: %v", maxPages, err)
		}
		if rs.Len() != 3 {
			t.Errorf("maxPages %d: expected 3 listings from page 1, got %d", maxPages, rs.Len())
		}
		if n := srv.requestCount(); n != 1 {
			t.Errorf("maxPages %d: expected a single request, got %d", maxPages, n)
		}
	}
}

func TestRun_PolitenessSpacing(t *testing.T) {
	srv := &site{t: t}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	o := newOrchestrator(t, ts.URL, Config{Politeness: time.Millisecond})
	if _, err := o.Run(context.Background(), query(t, "Chicago"), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.times) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(srv.times))
	}
	// Intervals below the floor are raised to it.
	if gap := srv.times[1].Sub(srv.times[0]); gap < MinPoliteness-10*time.Millisecond {
		t.Errorf("requests only %v apart, want at least %v", gap, MinPoliteness)
	}
}

func TestRun_FirstPageFailureIsFatal(t *testing.T) {
	srv := &site{t: t, page1Status: http.StatusServiceUnavailable}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	rec := &recorder{}
	o := newOrchestrator(t, ts.URL, Config{Observer: rec})

	rs, err := o.Run(context.Background(), query(t, "Chicago"), 2)
	if rs != nil {
		t.Errorf("expected no result set on fatal error")
	}

	var fatal *FatalRunError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalRunError, got %v", err)
	}
	if fatal.Stage != StageFetch {
		t.Errorf("expected fetch stage, got %s", fatal.Stage)
	}
	if !errors.Is(err, transport.ErrStatus) {
		t.Errorf("expected the status error to be preserved, got %v", err)
	}
	if len(rec.runErrors) != 1 {
		t.Errorf("expected the failure to be observed once, got %d", len(rec.runErrors))
	}
}

func TestRun_GeocodeFailureIsFatalBeforeFetching(t *testing.T) {
	srv := &site{t: t}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	o := newOrchestrator(t, ts.URL, Config{})
	_, err := o.Run(context.Background(), query(t, "Atlantis"), 2)

	var fatal *FatalRunError
	if !errors.As(err, &fatal) || fatal.Stage != StageGeocode {
		t.Fatalf("expected geocode FatalRunError, got %v", err)
	}
	if !errors.Is(err, geo.ErrNotFound) {
		t.Errorf("expected ErrNotFound to be preserved, got %v", err)
	}
	if n := srv.requestCount(); n != 0 {
		t.Errorf("expected no requests before geocoding succeeds, got %d", n)
	}
}

func TestRun_RespectRobots(t *testing.T) {
	t.Run("disallowed first page", func(t *testing.T) {
		srv := &site{t: t, robots: "User-agent: *\nDisallow: /searchresults\n"}
		ts := httptest.NewServer(srv)
		defer ts.Close()

		o := newOrchestrator(t, ts.URL, Config{RespectRobots: true})
		_, err := o.Run(context.Background(), query(t, "Chicago"), 2)
		if !errors.Is(err, ErrRobotsDisallowed) {
			t.Fatalf("expected ErrRobotsDisallowed, got %v", err)
		}
		if n := srv.requestCount(); n != 1 {
			t.Errorf("expected only robots.txt to be requested, got %d requests", n)
		}
	})

	t.Run("configured agent selects its own group", func(t *testing.T) {
		rules := "User-agent: farescout\nDisallow: /searchresults\n\nUser-agent: *\nDisallow:\n"
		for _, tt := range []struct {
			agent   string
			blocked bool
		}{{"", false}, {"farescout", true}} {
			srv := &site{t: t, robots: rules}
			ts := httptest.NewServer(srv)

			o := newOrchestrator(t, ts.URL, Config{RespectRobots: true, RobotsAgent: tt.agent})
			_, err := o.Run(context.Background(), query(t, "Chicago"), 0)
			if got := errors.Is(err, ErrRobotsDisallowed); got != tt.blocked {
				t.Errorf("agent %q: expected blocked=%v, got err %v", tt.agent, tt.blocked, err)
			}
			ts.Close()
		}
	})

	t.Run("missing robots allows all", func(t *testing.T) {
		srv := &site{t: t}
		ts := httptest.NewServer(srv)
		defer ts.Close()

		o := newOrchestrator(t, ts.URL, Config{RespectRobots: true})
		rs, err := o.Run(context.Background(), query(t, "Chicago"), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rs.Len() != 3 {
			t.Errorf("expected 3 listings, got %d", rs.Len())
		}
	})
}

func TestRun_CancelledContext(t *testing.T) {
	srv := &site{t: t}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(t, ts.URL, Config{})
	_, err := o.Run(ctx, query(t, "Chicago"), 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !IsFatal(err) {
		t.Errorf("expected cancellation to be fatal")
	}
}

func TestRunAll_IndependentRunsInQueryOrder(t *testing.T) {
	srv := &site{t: t}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	o := newOrchestrator(t, ts.URL, Config{Concurrency: 2})
	queries := []listing.SearchQuery{query(t, "Atlantis"), query(t, "Chicago")}

	out := o.RunAll(context.Background(), queries, 0)
	if len(out) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(out))
	}
	if out[0].Query.Destination != "Atlantis" || out[0].Err == nil || out[0].Results != nil {
		t.Errorf("expected first outcome to be the failed Atlantis run, got %+v", out[0])
	}
	if out[1].Query.Destination != "Chicago" || out[1].Err != nil || out[1].Results.Len() != 3 {
		t.Errorf("expected second outcome to be a successful Chicago run, got %+v", out[1])
	}
	if !Failed(out) {
		t.Errorf("expected Failed to report the Atlantis run")
	}
	if out[1].Results.RunID == "" {
		t.Errorf("expected a run id")
	}
}

func TestParseDedupePolicy(t *testing.T) {
	for in, want := range map[string]DedupePolicy{"": DedupeNone, "none": DedupeNone, "URL": DedupeByURL} {
		got, err := ParseDedupePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseDedupePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDedupePolicy("name"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}
