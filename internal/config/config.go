// Package config loads the settings of a crawl from defaults, an optional
// config file, FARESCOUT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/FranksOps/farescout/internal/emit"
	"github.com/FranksOps/farescout/internal/filter"
	"github.com/FranksOps/farescout/internal/geo"
	"github.com/FranksOps/farescout/internal/listing"
	"github.com/FranksOps/farescout/internal/scraper"
	"github.com/FranksOps/farescout/internal/strategy/hotel"
	"github.com/FranksOps/farescout/internal/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. FARESCOUT_MAX_PRICE.
const EnvPrefix = "FARESCOUT"

// DateLayout is the format of check-in and check-out dates.
const DateLayout = "2006-01-02"

// Keys shared by flags, environment variables and config files.
const (
	KeyDestination   = "destination"
	KeyCountry       = "country"
	KeyCheckIn       = "checkin"
	KeyCheckOut      = "checkout"
	KeyPages         = "pages"
	KeyFormat        = "format"
	KeyOutDir        = "out-dir"
	KeyMaxPrice      = "max-price"
	KeyMinScore      = "min-score"
	KeyMaxDistance   = "max-distance"
	KeySort          = "sort"
	KeyDesc          = "desc"
	KeyDedupe        = "dedupe"
	KeyRespectRobots = "respect-robots"
	KeyRobotsAgent   = "robots-agent"
	KeyFingerprint   = "fingerprint"
	KeyTimeout       = "timeout"
	KeyPoliteness    = "politeness"
	KeyJitter        = "jitter"
	KeyConcurrency   = "concurrency"
	KeyMetricsPort   = "metrics-port"
	KeySummary       = "summary"
	KeyVerbose       = "verbose"
	KeyBaseURL       = "base-url"
	KeyGeocoderURL   = "geocoder-url"
	KeyContact       = "contact"
)

// Run is the raw, unvalidated configuration of one invocation.
type Run struct {
	Destinations  []string
	Country       string
	CheckIn       string
	CheckOut      string
	Pages         int
	Format        string
	OutDir        string
	MaxPrice      float64
	MinScore      float64
	MaxDistance   float64
	Sort          string
	Descending    bool
	Dedupe        string
	RespectRobots bool
	RobotsAgent   string // robots.txt group to obey; empty means "*"
	Fingerprint   string
	Timeout       time.Duration
	Politeness    time.Duration
	Jitter        float64
	Concurrency   int
	MetricsPort   int
	Summary       string
	Verbose       bool
	BaseURL       string
	GeocoderURL   string
	// Contact is sent to the geocoding service as the requester's email.
	Contact string
}

// Settings is a validated Run with every value parsed into its domain type.
type Settings struct {
	Queries     []listing.SearchQuery
	Criteria    *filter.Criteria
	Format      emit.Format
	Dedupe      scraper.DedupePolicy
	Fingerprint transport.Profile
	Run         Run
}

// BindFlags registers the crawl flags on flags and binds them to v.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	def := defaults()

	flags.StringSlice(KeyDestination, nil, "destination city to search (repeatable)")
	flags.String(KeyCountry, def.Country, "country of the destination")
	flags.String(KeyCheckIn, "", "check-in date (YYYY-MM-DD, default tomorrow)")
	flags.String(KeyCheckOut, "", "check-out date (YYYY-MM-DD, default the day after check-in)")
	flags.Int(KeyPages, def.Pages, "maximum number of additional result pages to crawl")
	flags.String(KeyFormat, def.Format, "output format: html, csv or json")
	flags.String(KeyOutDir, def.OutDir, "directory for result files")
	flags.Float64(KeyMaxPrice, def.MaxPrice, "keep listings cheaper than this")
	flags.Float64(KeyMinScore, def.MinScore, "keep listings rated above this")
	flags.Float64(KeyMaxDistance, def.MaxDistance, "keep listings closer than this many miles")
	flags.String(KeySort, def.Sort, "column to sort by")
	flags.Bool(KeyDesc, def.Descending, "sort in descending order")
	flags.String(KeyDedupe, def.Dedupe, "duplicate listing policy: none or url")
	flags.Bool(KeyRespectRobots, def.RespectRobots, "honour the site's robots.txt")
	flags.String(KeyRobotsAgent, def.RobotsAgent, "user-agent token matched against robots.txt groups (default \"*\")")
	flags.String(KeyFingerprint, def.Fingerprint, "TLS fingerprint: chrome, firefox, safari, go or random")
	flags.Duration(KeyTimeout, def.Timeout, "per-request timeout")
	flags.Duration(KeyPoliteness, def.Politeness, "minimum delay between requests (at least 500ms)")
	flags.Float64(KeyJitter, def.Jitter, "random extra delay as a fraction of the politeness delay")
	flags.Int(KeyConcurrency, def.Concurrency, "destinations crawled in parallel")
	flags.Int(KeyMetricsPort, def.MetricsPort, "serve Prometheus metrics on this port (0 disables)")
	flags.String(KeySummary, def.Summary, "print a run summary to stderr: text, json or html")
	flags.BoolP(KeyVerbose, "v", def.Verbose, "enable debug logging")
	flags.String(KeyBaseURL, def.BaseURL, "site root to search")
	flags.String(KeyGeocoderURL, def.GeocoderURL, "Nominatim-compatible geocoding endpoint")
	flags.String(KeyContact, def.Contact, "contact email sent to the geocoding service")

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	def := defaults()
	v.SetDefault(KeyCountry, def.Country)
	v.SetDefault(KeyPages, def.Pages)
	v.SetDefault(KeyFormat, def.Format)
	v.SetDefault(KeyOutDir, def.OutDir)
	v.SetDefault(KeyMaxPrice, def.MaxPrice)
	v.SetDefault(KeyMinScore, def.MinScore)
	v.SetDefault(KeyMaxDistance, def.MaxDistance)
	v.SetDefault(KeySort, def.Sort)
	v.SetDefault(KeyDedupe, def.Dedupe)
	v.SetDefault(KeyFingerprint, def.Fingerprint)
	v.SetDefault(KeyTimeout, def.Timeout)
	v.SetDefault(KeyPoliteness, def.Politeness)
	v.SetDefault(KeyConcurrency, def.Concurrency)
	v.SetDefault(KeyBaseURL, def.BaseURL)
	v.SetDefault(KeyGeocoderURL, def.GeocoderURL)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotenv loads environment variables from path if it exists. Variables
// already set in the environment win.
func LoadDotenv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadFile merges a YAML, TOML or JSON config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load reads a Run out of v.
func Load(v *viper.Viper) Run {
	return Run{
		Destinations:  destinations(v.Get(KeyDestination)),
		Country:       v.GetString(KeyCountry),
		CheckIn:       v.GetString(KeyCheckIn),
		CheckOut:      v.GetString(KeyCheckOut),
		Pages:         v.GetInt(KeyPages),
		Format:        v.GetString(KeyFormat),
		OutDir:        v.GetString(KeyOutDir),
		MaxPrice:      v.GetFloat64(KeyMaxPrice),
		MinScore:      v.GetFloat64(KeyMinScore),
		MaxDistance:   v.GetFloat64(KeyMaxDistance),
		Sort:          v.GetString(KeySort),
		Descending:    v.GetBool(KeyDesc),
		Dedupe:        v.GetString(KeyDedupe),
		RespectRobots: v.GetBool(KeyRespectRobots),
		RobotsAgent:   v.GetString(KeyRobotsAgent),
		Fingerprint:   v.GetString(KeyFingerprint),
		Timeout:       v.GetDuration(KeyTimeout),
		Politeness:    v.GetDuration(KeyPoliteness),
		Jitter:        v.GetFloat64(KeyJitter),
		Concurrency:   v.GetInt(KeyConcurrency),
		MetricsPort:   v.GetInt(KeyMetricsPort),
		Summary:       v.GetString(KeySummary),
		Verbose:       v.GetBool(KeyVerbose),
		BaseURL:       v.GetString(KeyBaseURL),
		GeocoderURL:   v.GetString(KeyGeocoderURL),
		Contact:       v.GetString(KeyContact),
	}
}

// Validate parses every field of r. The first invalid value is reported;
// threshold errors are *filter.ConfigurationError.
func (r Run) Validate(now time.Time) (*Settings, error) {
	if len(r.Destinations) == 0 {
		return nil, errors.New("at least one destination is required")
	}

	in, out, err := r.dates(now)
	if err != nil {
		return nil, err
	}

	s := &Settings{Run: r}
	seen := make(map[string]string, len(r.Destinations))
	for _, d := range r.Destinations {
		q, err := listing.NewSearchQuery(d, r.Country, in, out)
		if err != nil {
			return nil, err
		}
		dir := DirName(q.Destination)
		if prev, ok := seen[dir]; ok {
			return nil, fmt.Errorf("destinations %q and %q would both write to %q", prev, q.Destination, dir)
		}
		seen[dir] = q.Destination
		s.Queries = append(s.Queries, q)
	}

	c := filter.DefaultCriteria()
	if err := c.SetMaxPrice(r.MaxPrice); err != nil {
		return nil, err
	}
	if err := c.SetMinScore(r.MinScore); err != nil {
		return nil, err
	}
	if err := c.SetMaxDistance(r.MaxDistance); err != nil {
		return nil, err
	}
	if err := c.SetSort(r.Sort, !r.Descending); err != nil {
		return nil, err
	}
	s.Criteria = c

	if s.Format, err = emit.ParseFormat(r.Format); err != nil {
		return nil, err
	}
	if s.Dedupe, err = scraper.ParseDedupePolicy(r.Dedupe); err != nil {
		return nil, err
	}
	if s.Fingerprint, err = transport.ParseProfile(r.Fingerprint); err != nil {
		return nil, err
	}

	switch r.Summary {
	case "", "text", "json", "html":
	default:
		return nil, fmt.Errorf("unknown summary format %q (want text, json or html)", r.Summary)
	}
	if r.Pages < 0 {
		return nil, fmt.Errorf("pages must not be negative, got %d", r.Pages)
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return nil, fmt.Errorf("jitter must be within [0, 1], got %g", r.Jitter)
	}
	return s, nil
}

func (r Run) dates(now time.Time) (time.Time, time.Time, error) {
	in := now.AddDate(0, 0, 1)
	if r.CheckIn != "" {
		t, err := time.Parse(DateLayout, r.CheckIn)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: check-in %q: want YYYY-MM-DD", listing.ErrInvalidQuery, r.CheckIn)
		}
		in = t
	}

	out := in.AddDate(0, 0, 1)
	if r.CheckOut != "" {
		t, err := time.Parse(DateLayout, r.CheckOut)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: check-out %q: want YYYY-MM-DD", listing.ErrInvalidQuery, r.CheckOut)
		}
		out = t
	}
	return in, out, nil
}

// Slug turns a destination into a directory name, e.g. "new-york".
func Slug(destination string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(destination)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// DirName is the output sub-directory of a destination: its slug, or
// "destination" when nothing of the name survives slugging.
func DirName(destination string) string {
	if slug := Slug(destination); slug != "" {
		return slug
	}
	return "destination"
}

// destinations accepts a list (flags, config files) or a comma-separated
// string (environment) and drops blanks.
func destinations(value any) []string {
	var raw []string
	switch t := value.(type) {
	case string:
		raw = []string{t}
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			raw = append(raw, fmt.Sprint(item))
		}
	}

	var out []string
	for _, item := range raw {
		for _, d := range strings.Split(item, ",") {
			if d = strings.TrimSpace(d); d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

func defaults() Run {
	return Run{
		Country:     "US",
		Pages:       3,
		Format:      string(emit.HTML),
		OutDir:      ".",
		MaxPrice:    1000,
		MinScore:    7.0,
		MaxDistance: 5.0,
		Sort:        "price",
		Dedupe:      scraper.DedupeNone.String(),
		Fingerprint: string(transport.ProfileChrome),
		Timeout:     30 * time.Second,
		Politeness:  scraper.MinPoliteness,
		Concurrency: 2,
		BaseURL:     hotel.DefaultBaseURL,
		GeocoderURL: geo.DefaultNominatimURL,
	}
}
