package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/farescout/internal/transport"
)

func newTestAuditor(t *testing.T, agent string) *RobotsTxtAuditor {
	t.Helper()
	fetcher, err := transport.NewFetcher(transport.Config{
		Timeout:     5 * time.Second,
		Fingerprint: transport.ProfileGo,
	}, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return NewRobotsTxtAuditor(fetcher.Get, agent, slog.Default())
}

func TestRobotsTxtAuditor_IsAllowed(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /admin/
Allow: /admin/public/

User-agent: BadBot
Disallow: /
		`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	good := newTestAuditor(t, "GoodBot")

	tests := []struct {
		path string
		want bool
	}{
		{"/searchresults.en-us.html?ss=Chicago", true},
		{"/admin/secret", false},
		{"/admin/public/index.html", true},
	}
	for _, tt := range tests {
		allowed, err := good.IsAllowed(ctx, ts.URL+tt.path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allowed != tt.want {
			t.Errorf("IsAllowed(%s) = %v, want %v", tt.path, allowed, tt.want)
		}
	}
	if hits != 1 {
		t.Errorf("expected robots.txt to be fetched once per host, got %d", hits)
	}

	bad := newTestAuditor(t, "BadBot")
	if allowed, _ := bad.IsAllowed(ctx, ts.URL+"/searchresults.en-us.html"); allowed {
		t.Errorf("expected every page to be disallowed for BadBot")
	}
}

func TestRobotsTxtAuditor_MissingRobots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	allowed, err := newTestAuditor(t, "").IsAllowed(context.Background(), ts.URL+"/anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected missing robots.txt to default to allowed")
	}
}

func TestRobotsTxtAuditor_UnreachableHost(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	allowed, err := newTestAuditor(t, "").IsAllowed(context.Background(), url+"/anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected unreachable robots.txt to default to allowed")
	}
}
