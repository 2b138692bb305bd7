package identity

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"strings"
)

// ChromeAgents is a set of current desktop Chrome User-Agents.
var ChromeAgents = []string{
	// Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	// Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	// Linux
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
}

// FirefoxAgents is a set of current desktop Firefox User-Agents.
var FirefoxAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.5"
)

// Identity is the set of request headers a process presents to remote sites.
// It is built once and never mutated; Header hands out copies.
type Identity struct {
	userAgent string
	header    http.Header
}

// New builds an identity with the given User-Agent and optional extra headers.
// Extra headers override the defaults.
func New(userAgent string, extra http.Header) Identity {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", defaultAccept)
	h.Set("Accept-Language", defaultAcceptLanguage)
	for k, vals := range extra {
		h.Del(k)
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	return Identity{userAgent: userAgent, header: h}
}

// ForBrowser picks a random User-Agent for the named browser family
// ("chrome" or "firefox"; anything else falls back to chrome).
func ForBrowser(browser string) Identity {
	pool := ChromeAgents
	if strings.EqualFold(browser, "firefox") {
		pool = FirefoxAgents
	}
	return New(pick(pool), nil)
}

// UserAgent returns the identity's User-Agent string.
func (id Identity) UserAgent() string {
	return id.userAgent
}

// Header returns a copy of the identity's headers.
func (id Identity) Header() http.Header {
	if id.header == nil {
		return http.Header{}
	}
	return id.header.Clone()
}

// Apply sets the identity's headers on req.
func (id Identity) Apply(req *http.Request) {
	for k, vals := range id.header {
		req.Header[k] = append([]string(nil), vals...)
	}
}

func pick(pool []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return pool[0]
	}
	return pool[n.Int64()]
}
