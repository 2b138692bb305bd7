package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound is returned when the geocoder has no match for a place.
var ErrNotFound = errors.New("place not found")

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, place string) (listing.Location, error)
}

// NominatimConfig configures the OpenStreetMap geocoder.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	// Email is sent as the From header, as the Nominatim usage policy asks.
	Email   string
	Timeout time.Duration
}

// Nominatim resolves places through a Nominatim search API.
type Nominatim struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewNominatim creates a Nominatim geocoder.
func NewNominatim(cfg NominatimConfig, logger *slog.Logger) *Nominatim {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNominatimURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "farescout/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Language", "en")
	if cfg.Email != "" {
		client.SetHeader("From", cfg.Email)
	}

	return &Nominatim{http: client, logger: logger}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the coordinates of the best match for place.
func (n *Nominatim) Resolve(ctx context.Context, place string) (listing.Location, error) {
	var places []nominatimPlace
	resp, err := n.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      place,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&places).
		Get("/search")
	if err != nil {
		return listing.Location{}, fmt.Errorf("geocode %q: %w", place, err)
	}
	if resp.IsError() {
		return listing.Location{}, fmt.Errorf("geocode %q: geocoder responded with status %d", place, resp.StatusCode())
	}
	if len(places) == 0 {
		return listing.Location{}, fmt.Errorf("geocode %q: %w", place, ErrNotFound)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return listing.Location{}, fmt.Errorf("geocode %q: bad latitude: %w", place, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return listing.Location{}, fmt.Errorf("geocode %q: bad longitude: %w", place, err)
	}

	n.logger.Debug("geocoded place", "place", place, "match", places[0].DisplayName, "lat", lat, "lon", lon)
	return listing.Location{Lat: lat, Lon: lon}, nil
}

// Cached memoizes a Geocoder so concurrent runs for the same destination
// resolve it once. Failures are not cached.
type Cached struct {
	next  Geocoder
	cache *expirable.LRU[string, listing.Location]
}

// NewCached wraps next with an LRU of the given size and entry lifetime.
func NewCached(next Geocoder, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = 128
	}
	return &Cached{
		next:  next,
		cache: expirable.NewLRU[string, listing.Location](size, nil, ttl),
	}
}

// Resolve implements Geocoder.
func (c *Cached) Resolve(ctx context.Context, place string) (listing.Location, error) {
	key := strings.ToLower(strings.TrimSpace(place))
	if loc, ok := c.cache.Get(key); ok {
		return loc, nil
	}
	loc, err := c.next.Resolve(ctx, place)
	if err != nil {
		return listing.Location{}, err
	}
	c.cache.Add(key, loc)
	return loc, nil
}

// Static is a Geocoder backed by a fixed table. Lookups are case-insensitive.
type Static map[string]listing.Location

// Resolve implements Geocoder.
func (s Static) Resolve(_ context.Context, place string) (listing.Location, error) {
	for name, loc := range s {
		if strings.EqualFold(name, strings.TrimSpace(place)) {
			return loc, nil
		}
	}
	return listing.Location{}, fmt.Errorf("geocode %q: %w", place, ErrNotFound)
}
