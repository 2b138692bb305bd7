package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/FranksOps/farescout/internal/config"
	"github.com/FranksOps/farescout/internal/emit"
	"github.com/FranksOps/farescout/internal/filter"
	"github.com/FranksOps/farescout/internal/geo"
	"github.com/FranksOps/farescout/internal/metrics"
	"github.com/FranksOps/farescout/internal/report"
	"github.com/FranksOps/farescout/internal/scraper"
	"github.com/FranksOps/farescout/internal/strategy"
	"github.com/FranksOps/farescout/internal/strategy/hotel"
	"github.com/FranksOps/farescout/internal/transport"
	"github.com/spf13/cobra"
)

const (
	geocodeCacheSize = 256
	geocodeCacheTTL  = 24 * time.Hour
)

var (
	crawlViper = config.New()
	configFile string
	envFile    string
)

func init() {
	crawlCmd.Flags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	crawlCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading FARESCOUT_* variables")
	if err := config.BindFlags(crawlCmd.Flags(), crawlViper); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl --destination <city> [flags]",
	Short: "Scrapes hotel listings for one or more destinations and writes the filtered results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotenv(envFile); err != nil {
			return err
		}
		if err := config.ReadFile(crawlViper, configFile); err != nil {
			return err
		}

		run := config.Load(crawlViper)
		logger := newLogger(cmd.ErrOrStderr(), run.Verbose)
		slog.SetDefault(logger)

		settings, err := run.Validate(time.Now())
		if err != nil {
			return err
		}
		return runCrawl(cmd.Context(), settings, logger, cmd.ErrOrStderr())
	},
}

// runCrawl executes every query, then filters and emits each successful
// result set. It fails if any run failed, after emitting the others.
func runCrawl(ctx context.Context, s *config.Settings, logger *slog.Logger, stderr io.Writer) error {
	r := s.Run

	if r.MetricsPort > 0 {
		srv, err := metrics.Start(r.MetricsPort, logger)
		if err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	strat, err := hotel.New(hotel.Config{BaseURL: r.BaseURL})
	if err != nil {
		return fmt.Errorf("hotel strategy: %w", err)
	}

	geocoder := geo.NewCached(geo.NewNominatim(geo.NominatimConfig{
		BaseURL:   r.GeocoderURL,
		UserAgent: "farescout/" + Version,
		Email:     r.Contact,
		Timeout:   r.Timeout,
	}, logger), geocodeCacheSize, geocodeCacheTTL)

	sessions := func() (scraper.Transport, error) {
		return transport.NewFetcher(transport.Config{
			Timeout:     r.Timeout,
			Fingerprint: s.Fingerprint,
		}, logger)
	}

	collector := report.NewCollector()
	orch := scraper.New(strat, geocoder, sessions, scraper.Config{
		Politeness:    r.Politeness,
		Jitter:        r.Jitter,
		Dedupe:        s.Dedupe,
		RespectRobots: r.RespectRobots,
		RobotsAgent:   r.RobotsAgent,
		Concurrency:   r.Concurrency,
		Observer:      scraper.Observers{collector, metrics.Recorder{}},
	}, logger)

	post, _ := orch.Strategy().(strategy.PostFilterer)
	outcomes := orch.RunAll(ctx, s.Queries, r.Pages)

	failed := 0
	for _, oc := range outcomes {
		if oc.Err != nil {
			failed++
			continue
		}

		kept := filter.Apply(oc.Results, s.Criteria, post)
		collector.Shown(kept.Site, kept.Len())

		emitter := &emit.Emitter{Dir: outDir(r.OutDir, oc.Query.Destination, len(outcomes)), Logger: logger}
		if _, err := emitter.Emit(kept, s.Format, kept.Site); err != nil {
			logger.Error("emit failed", "destination", oc.Query.Destination, "err", err)
			failed++
		}
	}

	if r.Summary != "" {
		if err := report.Write(stderr, r.Summary, collector.Summary()); err != nil {
			logger.Error("failed to write summary", "err", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d destinations failed", failed, len(outcomes))
	}
	return nil
}

// outDir separates destinations into sub-directories when there are several.
func outDir(base, destination string, runs int) string {
	if runs <= 1 {
		return base
	}
	return filepath.Join(base, config.DirName(destination))
}
