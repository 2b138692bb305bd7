// Package strategy defines the site-specific half of a scrape run: how to
// address a site's search, how to discover its result pages and how to turn
// one result page into listings.
package strategy

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/PuerkitoBio/goquery"
)

// Strategy is implemented once per vertical and site.
type Strategy interface {
	// Name identifies the vertical, e.g. "hotel".
	Name() string
	// BaseURL is the site root that relative links resolve against.
	BaseURL() *url.URL
	// SearchURL builds the first result page URL for a query.
	SearchURL(q listing.SearchQuery) (string, error)
	// MorePages returns absolute links to further result pages found on
	// doc, in page order. An empty slice means a single-page result.
	MorePages(doc *goquery.Document) []string
	// Extract returns one listing per well-formed result element on doc,
	// in DOM order, and one *ListingError per element it discarded.
	Extract(doc *goquery.Document) ([]listing.Listing, []error)
}

// PostFilterer is optionally implemented by strategies that refine the
// generic filter/sort result with vertical-specific rules.
type PostFilterer interface {
	PostFilter(ls []listing.Listing) []listing.Listing
}

// ListingError describes one result element that was dropped because a
// required field was missing or unparsable.
type ListingError struct {
	Index int
	Field string
	Err   error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %d: field %s: %v", e.Index, e.Field, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// DomainLabel returns the first label of a site's host with any "www."
// stripped, e.g. "booking" for http://www.booking.com.
func DomainLabel(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	if host == "" {
		return "results"
	}
	return host
}

// Resolve turns href into an absolute URL against base.
func Resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
