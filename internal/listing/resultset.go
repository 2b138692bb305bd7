package listing

import (
	"cmp"
	"fmt"
)

// ResultSet is the ordered collection of listings produced by one run.
// Order is fetch order (page by page, DOM order within a page) until a sort
// is applied. The orchestrator owns it while the run is in progress.
type ResultSet struct {
	RunID string
	Site  string
	Query SearchQuery

	items []Listing
}

// NewResultSet creates an empty result set for a run.
func NewResultSet(runID, site string, q SearchQuery) *ResultSet {
	return &ResultSet{RunID: runID, Site: site, Query: q}
}

// Append adds listings to the end of the set.
func (rs *ResultSet) Append(ls ...Listing) {
	rs.items = append(rs.items, ls...)
}

// Len returns the number of listings.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.items)
}

// Listings returns a copy of the listings in order.
func (rs *ResultSet) Listings() []Listing {
	if rs == nil {
		return nil
	}
	out := make([]Listing, len(rs.items))
	copy(out, rs.items)
	return out
}

// Each calls fn with a pointer to every listing in order. It is how derived
// fields are attached in place.
func (rs *ResultSet) Each(fn func(i int, l *Listing)) {
	for i := range rs.items {
		fn(i, &rs.items[i])
	}
}

// Clone returns a deep copy sharing no listing storage with rs.
func (rs *ResultSet) Clone() *ResultSet {
	c := *rs
	c.items = rs.Listings()
	return &c
}

// WithListings returns a copy of rs metadata holding the given listings.
func (rs *ResultSet) WithListings(ls []Listing) *ResultSet {
	c := *rs
	c.items = make([]Listing, len(ls))
	copy(c.items, ls)
	return &c
}

// Column is one field of the tabular listing schema.
type Column struct {
	Name  string
	Value func(l Listing) any
	// Compare orders two listings by this column.
	Compare func(a, b Listing) int
}

// Columns is the schema shared by every ResultSet, in output order.
var Columns = []Column{
	{Name: "name", Value: func(l Listing) any { return l.Name }, Compare: func(a, b Listing) int { return cmp.Compare(a.Name, b.Name) }},
	{Name: "score", Value: func(l Listing) any { return l.Score }, Compare: func(a, b Listing) int { return cmp.Compare(a.Score, b.Score) }},
	{Name: "latitude", Value: func(l Listing) any { return l.Location.Lat }, Compare: func(a, b Listing) int { return cmp.Compare(a.Location.Lat, b.Location.Lat) }},
	{Name: "longitude", Value: func(l Listing) any { return l.Location.Lon }, Compare: func(a, b Listing) int { return cmp.Compare(a.Location.Lon, b.Location.Lon) }},
	{Name: "price", Value: func(l Listing) any { return l.Price }, Compare: func(a, b Listing) int { return cmp.Compare(a.Price, b.Price) }},
	{Name: "url", Value: func(l Listing) any { return l.URL }, Compare: func(a, b Listing) int { return cmp.Compare(a.URL, b.URL) }},
	{Name: "distance", Value: func(l Listing) any { return l.Distance }, Compare: func(a, b Listing) int { return cmp.Compare(a.Distance, b.Distance) }},
}

// locationColumn sorts by latitude then longitude. It is only addressable by
// name and is not emitted, since emission splits the pair.
var locationColumn = Column{
	Name:  "location",
	Value: func(l Listing) any { return l.Location.String() },
	Compare: func(a, b Listing) int {
		if c := cmp.Compare(a.Location.Lat, b.Location.Lat); c != 0 {
			return c
		}
		return cmp.Compare(a.Location.Lon, b.Location.Lon)
	},
}

// ColumnByName looks up a schema column.
func ColumnByName(name string) (Column, error) {
	for _, c := range Columns {
		if c.Name == name {
			return c, nil
		}
	}
	if name == locationColumn.Name {
		return locationColumn, nil
	}
	return Column{}, fmt.Errorf("column %q does not exist", name)
}

// ColumnNames returns the emitted column names in order.
func ColumnNames() []string {
	names := make([]string, len(Columns))
	for i, c := range Columns {
		names[i] = c.Name
	}
	return names
}
