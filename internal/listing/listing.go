package listing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidQuery is returned when a SearchQuery cannot describe a real stay.
var ErrInvalidQuery = errors.New("invalid search query")

// Location is a (latitude, longitude) pair in degrees. The zero value is the
// "unknown location" sentinel used when a page carries no coordinates.
type Location struct {
	Lat float64
	Lon float64
}

// Known reports whether the location differs from the (0,0) sentinel.
func (l Location) Known() bool {
	return l.Lat != 0 || l.Lon != 0
}

func (l Location) String() string {
	return fmt.Sprintf("(%g, %g)", l.Lat, l.Lon)
}

// Listing is one scraped result. Distance is derived after extraction and is
// zero until the orchestrator attaches it.
type Listing struct {
	Name     string
	Score    float64
	Location Location
	Price    float64
	URL      string
	Distance float64
}

// SearchQuery is the immutable input of a run.
type SearchQuery struct {
	Destination string
	Country     string
	CheckIn     time.Time
	CheckOut    time.Time
}

// NewSearchQuery validates and normalizes a query. Dates are truncated to
// calendar days and check-out must fall strictly after check-in.
func NewSearchQuery(destination, country string, checkIn, checkOut time.Time) (SearchQuery, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return SearchQuery{}, fmt.Errorf("%w: destination is required", ErrInvalidQuery)
	}

	in := day(checkIn)
	out := day(checkOut)
	if !out.After(in) {
		return SearchQuery{}, fmt.Errorf("%w: check-out %s is not after check-in %s",
			ErrInvalidQuery, out.Format(time.DateOnly), in.Format(time.DateOnly))
	}

	return SearchQuery{
		Destination: destination,
		Country:     strings.TrimSpace(country),
		CheckIn:     in,
		CheckOut:    out,
	}, nil
}

// Nights returns the length of the stay.
func (q SearchQuery) Nights() int {
	return int(q.CheckOut.Sub(q.CheckIn).Hours() / 24)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
