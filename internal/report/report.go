package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/farescout/internal/listing"
)

// Summary contains aggregated figures about one invocation's scrape runs.
type Summary struct {
	Runs            int
	FailedRuns      int
	PagesFetched    int
	PagesSkipped    int
	StatusCodes     map[int]int
	TotalBytes      int64
	ListingsKept    int
	ListingsDropped int
	// ListingsShown counts listings that survived filtering, per site.
	ListingsShown map[string]int
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Errors        []string
}

// Collector builds a Summary from run events. It is safe for concurrent use
// and satisfies scraper.Observer.
type Collector struct {
	mu  sync.Mutex
	s   Summary
	now func() time.Time
}

// NewCollector starts a summary at the current time.
func NewCollector() *Collector {
	c := &Collector{now: time.Now}
	c.s = Summary{
		StatusCodes:   make(map[int]int),
		ListingsShown: make(map[string]int),
		StartTime:     c.now(),
	}
	return c
}

func (c *Collector) PageFetched(_ string, _, status, bytes int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.PagesFetched++
	c.s.StatusCodes[status]++
	c.s.TotalBytes += int64(bytes)
}

func (c *Collector) PageFailed(_ string, _ int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.PagesSkipped++
	c.s.Errors = append(c.s.Errors, err.Error())
}

func (c *Collector) ListingsExtracted(_ string, _, kept, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.ListingsKept += kept
	c.s.ListingsDropped += dropped
}

func (c *Collector) RunCompleted(*listing.ResultSet, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Runs++
}

func (c *Collector) RunFailed(_ string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Runs++
	c.s.FailedRuns++
	c.s.Errors = append(c.s.Errors, err.Error())
}

// Shown records how many listings of a site survived filtering.
func (c *Collector) Shown(site string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.ListingsShown[site] += n
}

// Summary returns a snapshot ending now.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.s
	s.StatusCodes = make(map[int]int, len(c.s.StatusCodes))
	for k, v := range c.s.StatusCodes {
		s.StatusCodes[k] = v
	}
	s.ListingsShown = make(map[string]int, len(c.s.ListingsShown))
	for k, v := range c.s.ListingsShown {
		s.ListingsShown[k] = v
	}
	s.Errors = append([]string(nil), c.s.Errors...)
	s.EndTime = c.now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Farescout Run Summary
---------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Runs:          {{.Runs}} ({{.FailedRuns}} failed)
Pages:         {{.PagesFetched}} fetched, {{.PagesSkipped}} skipped
Total Bytes:   {{.TotalBytes}} bytes
Listings:      {{.ListingsKept}} extracted, {{.ListingsDropped}} dropped

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

After Filtering:
{{- range $site, $count := .ListingsShown}}
  {{$site}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .Errors}}

Errors:
{{- range .Errors}}
  {{.}}
{{- end}}
{{- end}}
`

	t, err := texttemplate.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text summary: %w", err)
	}
	return nil
}

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Farescout Run Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Farescout Run Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Runs</div>
    <div class="stat-val">{{.Runs}}</div>
  </div>
  <div class="stat-card">
    <div>Failed Runs</div>
    <div class="stat-val" style="color: {{if gt .FailedRuns 0}}red{{else}}green{{end}};">{{.FailedRuns}}</div>
  </div>
  <div class="stat-card">
    <div>Pages Fetched</div>
    <div class="stat-val">{{.PagesFetched}}</div>
  </div>
  <div class="stat-card">
    <div>Pages Skipped</div>
    <div class="stat-val">{{.PagesSkipped}}</div>
  </div>
  <div class="stat-card">
    <div>Listings</div>
    <div class="stat-val">{{.ListingsKept}}</div>
  </div>

  <h3>Status Codes</h3>
  <table>
    <tr><th>Code</th><th>Count</th></tr>
    {{- range $code, $count := .StatusCodes}}
    <tr><td>{{$code}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>After Filtering</h3>
  <table>
    <tr><th>Site</th><th>Listings</th></tr>
    {{- range $site, $count := .ListingsShown}}
    <tr><td>{{$site}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
  {{- if .Errors}}

  <h3>Errors</h3>
  <ul>
    {{- range .Errors}}
    <li>{{.}}</li>
    {{- end}}
  </ul>
  {{- end}}
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html summary: %w", err)
	}
	return nil
}

// Write renders the summary in the named format: text, json or html.
func Write(w io.Writer, format string, summary Summary) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	}
	return fmt.Errorf("unknown summary format %q (want text, json or html)", format)
}
