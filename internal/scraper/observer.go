package scraper

import (
	"time"

	"github.com/FranksOps/farescout/internal/listing"
)

// Observer receives progress events from runs. Implementations must be safe
// for concurrent use since RunAll executes runs in parallel.
type Observer interface {
	PageFetched(site string, page, status, bytes int, d time.Duration)
	PageFailed(site string, page int, err error)
	ListingsExtracted(site string, page, kept, dropped int)
	RunCompleted(rs *listing.ResultSet, d time.Duration)
	RunFailed(site string, err error)
}

// Observers fans events out to several observers.
type Observers []Observer

func (obs Observers) PageFetched(site string, page, status, bytes int, d time.Duration) {
	for _, o := range obs {
		o.PageFetched(site, page, status, bytes, d)
	}
}

func (obs Observers) PageFailed(site string, page int, err error) {
	for _, o := range obs {
		o.PageFailed(site, page, err)
	}
}

func (obs Observers) ListingsExtracted(site string, page, kept, dropped int) {
	for _, o := range obs {
		o.ListingsExtracted(site, page, kept, dropped)
	}
}

func (obs Observers) RunCompleted(rs *listing.ResultSet, d time.Duration) {
	for _, o := range obs {
		o.RunCompleted(rs, d)
	}
}

func (obs Observers) RunFailed(site string, err error) {
	for _, o := range obs {
		o.RunFailed(site, err)
	}
}
