package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/FranksOps/farescout/internal/listing"
	"github.com/google/go-cmp/cmp"
)

func TestCriteria_Defaults(t *testing.T) {
	c := DefaultCriteria()
	if c.MaxPrice() != 1000 || c.MinScore() != 7.0 || c.MaxDistance() != 5.0 {
		t.Errorf("unexpected defaults: %v %v %v", c.MaxPrice(), c.MinScore(), c.MaxDistance())
	}
	if col, asc := c.Sort(); col != "price" || !asc {
		t.Errorf("expected ascending price sort, got %s %v", col, asc)
	}
}

func TestCriteria_Setters(t *testing.T) {
	tests := []struct {
		name    string
		set     func(c *Criteria) error
		wantErr bool
	}{
		{"max price ok", func(c *Criteria) error { return c.SetMaxPrice(160) }, false},
		{"max price at floor", func(c *Criteria) error { return c.SetMaxPrice(25) }, true},
		{"max price NaN", func(c *Criteria) error { return c.SetMaxPrice(math.NaN()) }, true},
		{"min score low edge", func(c *Criteria) error { return c.SetMinScore(1.0) }, false},
		{"min score high edge", func(c *Criteria) error { return c.SetMinScore(9.0) }, false},
		{"min score too high", func(c *Criteria) error { return c.SetMinScore(10.0) }, true},
		{"min score too low", func(c *Criteria) error { return c.SetMinScore(0.5) }, true},
		{"max distance ok", func(c *Criteria) error { return c.SetMaxDistance(0.1) }, false},
		{"max distance zero", func(c *Criteria) error { return c.SetMaxDistance(0) }, true},
		{"max distance negative", func(c *Criteria) error { return c.SetMaxDistance(-3) }, true},
		{"sort known column", func(c *Criteria) error { return c.SetSort("score", false) }, false},
		{"sort location alias", func(c *Criteria) error { return c.SetSort("location", true) }, false},
		{"sort unknown column", func(c *Criteria) error { return c.SetSort("stars", true) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set(DefaultCriteria())
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCriteria_InvalidAssignmentKeepsPrevious(t *testing.T) {
	c := DefaultCriteria()
	if err := c.SetMinScore(8.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SetMinScore(10.0); err == nil {
		t.Fatalf("expected error for min score 10.0")
	}
	if c.MinScore() != 8.0 {
		t.Errorf("expected previous min score 8.0 to remain, got %v", c.MinScore())
	}

	_ = c.SetSort("distance", false)
	_ = c.SetSort("bogus", true)
	if col, asc := c.Sort(); col != "distance" || asc {
		t.Errorf("expected previous sort distance desc to remain, got %s %v", col, asc)
	}
}

func sample() *listing.ResultSet {
	rs := listing.NewResultSet("run", "booking", listing.SearchQuery{Destination: "Chicago"})
	rs.Append(
		listing.Listing{Name: "A", Score: 8.0, Price: 200, Distance: 1.0},
		listing.Listing{Name: "B", Score: 9.0, Price: 100, Distance: 2.0},
		listing.Listing{Name: "C", Score: 6.0, Price: 50, Distance: 0.5},   // score too low
		listing.Listing{Name: "D", Score: 8.5, Price: 1500, Distance: 0.5}, // too expensive
		listing.Listing{Name: "E", Score: 8.5, Price: 200, Distance: 9.0},  // too far
		listing.Listing{Name: "F", Score: 7.5, Price: 200, Distance: 3.0},
		listing.Listing{Name: "G", Score: 7.0, Price: 80, Distance: 1.0}, // score not strictly greater
	)
	return rs
}

func names(ls []listing.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name
	}
	return out
}

func TestApply_FilterAndStableSort(t *testing.T) {
	rs := sample()
	before := rs.Listings()

	got := Apply(rs, DefaultCriteria(), nil)

	// A and F tie on price and keep their input order.
	want := []string{"B", "A", "F"}
	if diff := cmp.Diff(want, names(got.Listings())); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(before, rs.Listings()); diff != "" {
		t.Errorf("input mutated (-before +after):\n%s", diff)
	}
	if got.RunID != rs.RunID || got.Site != rs.Site {
		t.Errorf("expected result set metadata to carry over")
	}
}

func TestApply_Descending(t *testing.T) {
	c := DefaultCriteria()
	if err := c.SetSort("price", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := Apply(sample(), c, nil)

	// Descending keeps A before F on the tie as well.
	want := []string{"A", "F", "B"}
	if diff := cmp.Diff(want, names(got.Listings())); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestApply_SubsetOfInputUnderPredicate(t *testing.T) {
	c := DefaultCriteria()
	_ = c.SetSort("distance", true)
	got := Apply(sample(), c, nil)

	input := map[string]bool{}
	for _, l := range sample().Listings() {
		input[l.Name] = true
	}
	prev := -1.0
	for _, l := range got.Listings() {
		if !input[l.Name] {
			t.Errorf("output contains %s which is not in the input", l.Name)
		}
		if !(l.Price < c.MaxPrice() && l.Score > c.MinScore() && l.Distance < c.MaxDistance()) {
			t.Errorf("listing %s violates the predicate", l.Name)
		}
		if l.Distance < prev {
			t.Errorf("output not sorted by distance")
		}
		prev = l.Distance
	}
}

func TestApply_Idempotent(t *testing.T) {
	c := DefaultCriteria()
	_ = c.SetSort("score", false)

	once := Apply(sample(), c, nil)
	twice := Apply(once, c, nil)

	if diff := cmp.Diff(once.Listings(), twice.Listings()); diff != "" {
		t.Errorf("filterAndSort is not idempotent (-once +twice):\n%s", diff)
	}
}

type cheapest struct{ n int }

func (p cheapest) PostFilter(ls []listing.Listing) []listing.Listing {
	if len(ls) > p.n {
		return ls[:p.n]
	}
	return ls
}

func TestApply_PostFilterHook(t *testing.T) {
	got := Apply(sample(), DefaultCriteria(), cheapest{n: 1})
	if diff := cmp.Diff([]string{"B"}, names(got.Listings())); diff != "" {
		t.Errorf("post filter not applied after sort (-want +got):\n%s", diff)
	}
}

func TestApply_Empty(t *testing.T) {
	rs := listing.NewResultSet("run", "booking", listing.SearchQuery{})
	got := Apply(rs, DefaultCriteria(), nil)
	if got.Len() != 0 {
		t.Errorf("expected empty result, got %d", got.Len())
	}
}
