package filter

import (
	"fmt"
	"slices"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/FranksOps/farescout/internal/strategy"
)

const (
	// MinPriceFloor is the lowest max-price accepted; anything at or below it
	// would filter out every real listing.
	MinPriceFloor = 25.0
	// ScoreScaleMin and ScoreScaleMax bound the site's review score scale
	// accepted as a minimum score.
	ScoreScaleMin = 1.0
	ScoreScaleMax = 9.0
)

// ConfigurationError is returned when a criterion is assigned an invalid
// value. The previous value is kept.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Criteria holds the thresholds and ordering applied to a result set. Fields
// are only reachable through validating setters.
type Criteria struct {
	maxPrice    float64
	minScore    float64
	maxDistance float64
	sortBy      listing.Column
	ascending   bool
}

// DefaultCriteria returns max price 1000, min score 7.0, max distance 5
// miles, sorted by ascending price.
func DefaultCriteria() *Criteria {
	price, _ := listing.ColumnByName("price")
	return &Criteria{
		maxPrice:    1000,
		minScore:    7.0,
		maxDistance: 5.0,
		sortBy:      price,
		ascending:   true,
	}
}

func (c *Criteria) MaxPrice() float64    { return c.maxPrice }
func (c *Criteria) MinScore() float64    { return c.minScore }
func (c *Criteria) MaxDistance() float64 { return c.maxDistance }

// Sort returns the sort column name and direction.
func (c *Criteria) Sort() (column string, ascending bool) {
	return c.sortBy.Name, c.ascending
}

// SetMaxPrice requires price to exceed MinPriceFloor.
func (c *Criteria) SetMaxPrice(price float64) error {
	if !(price > MinPriceFloor) {
		return &ConfigurationError{Field: "max price", Value: price, Reason: fmt.Sprintf("must be greater than %g", MinPriceFloor)}
	}
	c.maxPrice = price
	return nil
}

// SetMinScore requires score to lie within the rating scale.
func (c *Criteria) SetMinScore(score float64) error {
	if !(score >= ScoreScaleMin && score <= ScoreScaleMax) {
		return &ConfigurationError{Field: "min score", Value: score, Reason: fmt.Sprintf("must be within [%g, %g]", ScoreScaleMin, ScoreScaleMax)}
	}
	c.minScore = score
	return nil
}

// SetMaxDistance requires a positive distance in miles.
func (c *Criteria) SetMaxDistance(miles float64) error {
	if !(miles > 0) {
		return &ConfigurationError{Field: "max distance", Value: miles, Reason: "must be positive"}
	}
	c.maxDistance = miles
	return nil
}

// SetSort requires column to be part of the listing schema.
func (c *Criteria) SetSort(column string, ascending bool) error {
	col, err := listing.ColumnByName(column)
	if err != nil {
		return &ConfigurationError{Field: "sort column", Value: column, Reason: err.Error()}
	}
	c.sortBy = col
	c.ascending = ascending
	return nil
}

// Keep reports whether l passes the thresholds.
func (c *Criteria) Keep(l listing.Listing) bool {
	return l.Price < c.maxPrice && l.Score > c.minScore && l.Distance < c.maxDistance
}

// Apply returns a new result set holding the listings of rs that pass c,
// stably sorted by c's sort column, then refined by post when non-nil. rs is
// not modified.
func Apply(rs *listing.ResultSet, c *Criteria, post strategy.PostFilterer) *listing.ResultSet {
	kept := slices.DeleteFunc(rs.Listings(), func(l listing.Listing) bool {
		return !c.Keep(l)
	})

	compare := c.sortBy.Compare
	if !c.ascending {
		compare = func(a, b listing.Listing) int { return c.sortBy.Compare(b, a) }
	}
	slices.SortStableFunc(kept, compare)

	if post != nil {
		kept = post.PostFilter(kept)
	}
	return rs.WithListings(kept)
}
