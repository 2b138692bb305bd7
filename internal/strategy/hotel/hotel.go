// Package hotel implements the hotel vertical against booking.com search
// result pages.
package hotel

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/FranksOps/farescout/internal/strategy"
	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultBaseURL = "http://booking.com"
	DefaultOrder   = "review_score_and_price"
	// DefaultFilter selects available properties of the hotel type in the
	// three lowest price tiers.
	DefaultFilter = "rpt=1;pri=1;pri=2;pri=3;oos=1;concise_unit_type=0;"
)

var (
	errMissing    = errors.New("missing")
	errUnparsable = errors.New("unparsable")
)

// Config adjusts the fixed site parameters of the search.
type Config struct {
	BaseURL string
	Adults  int
	Order   string
	Filter  string
}

// Strategy scrapes hotel listings.
type Strategy struct {
	base   *url.URL
	adults int
	order  string
	filter string
}

var _ strategy.Strategy = (*Strategy)(nil)

// New creates a hotel strategy, applying defaults for zero config fields.
func New(cfg Config) (*Strategy, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Adults <= 0 {
		cfg.Adults = 2
	}
	if cfg.Order == "" {
		cfg.Order = DefaultOrder
	}
	if cfg.Filter == "" {
		cfg.Filter = DefaultFilter
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}

	return &Strategy{base: base, adults: cfg.Adults, order: cfg.Order, filter: cfg.Filter}, nil
}

func (s *Strategy) Name() string { return "hotel" }

func (s *Strategy) BaseURL() *url.URL {
	u := *s.base
	return &u
}

// SearchURL builds the search results URL. Parameter order is fixed so the
// URL is deterministic for a query.
func (s *Strategy) SearchURL(q listing.SearchQuery) (string, error) {
	if strings.TrimSpace(q.Destination) == "" {
		return "", fmt.Errorf("%w: destination is required", listing.ErrInvalidQuery)
	}

	params := [][2]string{
		{"ss", q.Destination},
		{"dest_type", "city"},
		{"checkin_year", strconv.Itoa(q.CheckIn.Year())},
		{"checkin_month", strconv.Itoa(int(q.CheckIn.Month()))},
		{"checkin_monthday", strconv.Itoa(q.CheckIn.Day())},
		{"checkout_year", strconv.Itoa(q.CheckOut.Year())},
		{"checkout_month", strconv.Itoa(int(q.CheckOut.Month()))},
		{"checkout_monthday", strconv.Itoa(q.CheckOut.Day())},
		{"group_adults", strconv.Itoa(s.adults)},
		{"order", s.order},
		{"update_av", "1"},
		{"percent_htype_hotel", "1"},
		{"no_dorms", "1"},
		{"shw_aparth", "0"},
		{"nflt", s.filter},
	}

	var b strings.Builder
	b.WriteString(s.base.String())
	b.WriteString("/searchresults.en-us.html?")
	for _, p := range params {
		b.WriteByte('&')
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String(), nil
}

// MorePages returns the pagination links in DOM order.
func (s *Strategy) MorePages(doc *goquery.Document) []string {
	links := []string{}
	doc.Find("a.bui-pagination__link[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs, err := strategy.Resolve(s.base, href)
		if err != nil || href == "" {
			return
		}
		links = append(links, abs)
	})
	return links
}

// Extract parses every property block on the page. Sold-out properties are
// skipped without error; a block missing a required field is dropped and
// reported.
func (s *Strategy) Extract(doc *goquery.Document) ([]listing.Listing, []error) {
	var (
		out  []listing.Listing
		errs []error
	)
	doc.Find("div.sr_property_block").Each(func(i int, block *goquery.Selection) {
		if block.HasClass("soldout_property") {
			return
		}
		l, err := s.parseBlock(i, block)
		if err != nil {
			errs = append(errs, err)
			return
		}
		out = append(out, l)
	})
	return out, errs
}

func (s *Strategy) parseBlock(i int, block *goquery.Selection) (listing.Listing, error) {
	name := strings.TrimSpace(block.Find("span.sr-hotel__name").First().Text())
	if name == "" {
		return listing.Listing{}, &strategy.ListingError{Index: i, Field: "name", Err: errMissing}
	}

	rawScore, ok := block.Attr("data-score")
	if !ok {
		return listing.Listing{}, &strategy.ListingError{Index: i, Field: "score", Err: errMissing}
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(rawScore), 64)
	if err != nil || !finite(score) {
		return listing.Listing{}, &strategy.ListingError{Index: i, Field: "score", Err: fmt.Errorf("%w: %q", errUnparsable, rawScore)}
	}

	price, err := parsePrice(block.Find("strong.price").First())
	if err != nil {
		return listing.Listing{}, &strategy.ListingError{Index: i, Field: "price", Err: err}
	}

	href, ok := block.Find("a.sr_item_photo_link").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return listing.Listing{}, &strategy.ListingError{Index: i, Field: "url", Err: errMissing}
	}
	href, _, _ = strings.Cut(href, "?")
	detail, err := strategy.Resolve(s.base, href)
	if err != nil {
		return listing.Listing{}, &strategy.ListingError{Index: i, Field: "url", Err: fmt.Errorf("%w: %v", errUnparsable, err)}
	}

	return listing.Listing{
		Name:     name,
		Score:    score,
		Location: coordinates(block),
		Price:    price,
		URL:      detail,
	}, nil
}

// coordinates reads the address link first and the map pin second. The site
// writes "longitude,latitude"; the pair is returned as (lat, lon). When
// neither is readable the result is the (0,0) unknown-location sentinel.
func coordinates(block *goquery.Selection) listing.Location {
	for _, sel := range []string{"a.bui-link", "a.map_address_pin"} {
		raw, ok := block.Find(sel).First().Attr("data-coords")
		if !ok {
			continue
		}
		lonStr, latStr, found := strings.Cut(raw, ",")
		if !found {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err1 != nil || err2 != nil || !finite(lat) || !finite(lon) {
			continue
		}
		return listing.Location{Lat: lat, Lon: lon}
	}
	return listing.Location{}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// parsePrice keeps only the digits of the displayed price, dropping currency
// symbols and thousands separators.
func parsePrice(sel *goquery.Selection) (float64, error) {
	if sel.Length() == 0 {
		return 0, errMissing
	}
	text := sel.Text()
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", errUnparsable, strings.TrimSpace(text))
	}
	return strconv.ParseFloat(digits, 64)
}
