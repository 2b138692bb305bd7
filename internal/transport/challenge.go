package transport

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector reports whether a response is a bot-protection challenge rather
// than the page that was asked for, and which vendor served it.
type Detector func(status int, header http.Header, body []byte) (vendor string, ok bool)

// DefaultDetectors returns the detectors applied by the Fetcher.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// DetectChallenge runs the detectors in order and returns the first vendor
// that matches, or "" when the response looks genuine.
func DetectChallenge(status int, header http.Header, body []byte, detectors []Detector) string {
	for _, d := range detectors {
		if vendor, ok := d(status, header, body); ok {
			return vendor
		}
	}
	return ""
}

func serverHeader(h http.Header) string {
	return strings.ToLower(h.Get("Server"))
}

func detectCloudflare(status int, h http.Header, body []byte) (string, bool) {
	if strings.Contains(serverHeader(h), "cloudflare") && (status == http.StatusForbidden || status == http.StatusServiceUnavailable) {
		return "Cloudflare", true
	}
	// Managed challenges can be served with 200 and only show in the body.
	if bytes.Contains(body, []byte("cf-browser-verification")) ||
		bytes.Contains(body, []byte("cf-turnstile")) ||
		bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
		return "Cloudflare", true
	}
	return "", false
}

func detectAkamai(status int, h http.Header, body []byte) (string, bool) {
	if status != http.StatusForbidden {
		return "", false
	}
	if strings.Contains(serverHeader(h), "akamai") {
		return "Akamai", true
	}
	if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
		return "Akamai", true
	}
	return "", false
}

func detectDataDome(status int, h http.Header, body []byte) (string, bool) {
	if status != http.StatusForbidden {
		return "", false
	}
	if h.Get("X-DataDome") != "" || h.Get("X-DataDome-Response") != "" {
		return "DataDome", true
	}
	if bytes.Contains(body, []byte("geo.captcha-delivery.com")) {
		return "DataDome", true
	}
	return "", false
}

func detectPerimeterX(status int, h http.Header, body []byte) (string, bool) {
	if h.Get("X-Px-Captcha") != "" {
		return "PerimeterX", true
	}
	if status == http.StatusForbidden &&
		(bytes.Contains(body, []byte("client.perimeterx.net")) ||
			bytes.Contains(body, []byte("px-captcha")) ||
			bytes.Contains(body, []byte("_pxBlock"))) {
		return "PerimeterX", true
	}
	return "", false
}
