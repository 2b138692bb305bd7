package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farescout_page_requests_total",
			Help: "Total number of result pages requested",
		},
		[]string{"site", "status"},
	)

	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farescout_page_fetch_duration_seconds",
			Help:    "Duration of result page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	PageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farescout_page_bytes_total",
			Help: "Total bytes downloaded across all result pages",
		},
		[]string{"site"},
	)

	PagesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farescout_pages_skipped_total",
			Help: "Pagination pages skipped after a failure",
		},
		[]string{"site"},
	)

	ListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farescout_listings_total",
			Help: "Listings extracted from result pages",
		},
		[]string{"site", "outcome"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farescout_runs_total",
			Help: "Scrape runs by result",
		},
		[]string{"site", "result"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farescout_run_duration_seconds",
			Help:    "Duration of successful scrape runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"site"},
	)
)

// Recorder feeds run events into the Prometheus collectors. It satisfies
// scraper.Observer.
type Recorder struct{}

func (Recorder) PageFetched(site string, _, status, bytes int, d time.Duration) {
	PageRequestsTotal.WithLabelValues(site, strconv.Itoa(status)).Inc()
	PageFetchDuration.WithLabelValues(site).Observe(d.Seconds())
	PageBytesTotal.WithLabelValues(site).Add(float64(bytes))
}

func (Recorder) PageFailed(site string, _ int, _ error) {
	PagesSkippedTotal.WithLabelValues(site).Inc()
}

func (Recorder) ListingsExtracted(site string, _, kept, dropped int) {
	ListingsTotal.WithLabelValues(site, "kept").Add(float64(kept))
	ListingsTotal.WithLabelValues(site, "dropped").Add(float64(dropped))
}

func (Recorder) RunCompleted(rs *listing.ResultSet, d time.Duration) {
	site := ""
	if rs != nil {
		site = rs.Site
	}
	RunsTotal.WithLabelValues(site, "ok").Inc()
	RunDuration.WithLabelValues(site).Observe(d.Seconds())
}

func (Recorder) RunFailed(site string, _ error) {
	RunsTotal.WithLabelValues(site, "failed").Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on port (0 picks a free one) and exposes /metrics and
// /healthz.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
