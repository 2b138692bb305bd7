package scraper

import (
	"errors"
	"fmt"
)

// ErrRobotsDisallowed is returned for a page the site's robots.txt forbids.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// Stages at which a run can fail.
const (
	StageGeocode   = "geocode"
	StageSearchURL = "search-url"
	StageTransport = "transport"
	StageFetch     = "fetch"
	StageParse     = "parse"
)

// FatalRunError aborts a run. No result set is produced.
type FatalRunError struct {
	Stage string
	URL   string
	Err   error
}

func (e *FatalRunError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("run failed at %s (%s): %v", e.Stage, e.URL, e.Err)
	}
	return fmt.Sprintf("run failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalRunError) Unwrap() error { return e.Err }

// PageError records a pagination page that was skipped. The run continues.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
