// Package proxy forwards requests the gateway does not serve itself to an
// upstream service.
package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/telemetry"
)

// ErrNotConfigured is returned when the upstream URL is empty.
var ErrNotConfigured = errors.New("upstream not configured")

// Proxy relays requests to one upstream, optionally stripping a path prefix.
// Responses are passed through unmodified.
type Proxy struct {
	name     string
	target   *url.URL
	prefix   string
	rp       *httputil.ReverseProxy
	reporter *telemetry.Reporter
}

// New builds a proxy to rawURL. stripPrefix ("/api") is removed from the
// incoming path before it is joined onto the target path.
func New(name, rawURL, stripPrefix string, reporter *telemetry.Reporter) (*Proxy, error) {
	if rawURL == "" {
		return nil, ErrNotConfigured
	}
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", name, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("%s url must be http(s), got %q", name, rawURL)
	}

	p := &Proxy{
		name:     name,
		target:   target,
		prefix:   strings.TrimSuffix(stripPrefix, "/"),
		reporter: reporter,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		FlushInterval:  -1, // stream server-sent events as they arrive
		ModifyResponse: p.record,
		ErrorHandler:   p.fail,
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.Out.URL.Path = p.strip(pr.Out.URL.Path)
	if pr.Out.URL.RawPath != "" {
		pr.Out.URL.RawPath = p.strip(pr.Out.URL.RawPath)
	}
	pr.SetURL(p.target)
	pr.SetXForwarded()
}

// strip removes the configured prefix, keeping a leading slash.
func (p *Proxy) strip(path string) string {
	if p.prefix == "" {
		return path
	}
	if path == p.prefix {
		return "/"
	}
	if strings.HasPrefix(path, p.prefix+"/") {
		return path[len(p.prefix):]
	}
	return path
}

func (p *Proxy) record(resp *http.Response) error {
	metrics.ProxyResponses.WithLabelValues(p.name, strconv.Itoa(resp.StatusCode)).Inc()
	return nil
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.ProxyResponses.WithLabelValues(p.name, "error").Inc()
	if p.reporter != nil {
		p.reporter.Capture(r, err, p.name+" proxy request failed")
	}
	writeError(w, http.StatusInternalServerError, "upstream request failed")
}

// Unavailable answers every request with 500, for upstreams that could not
// be initialized.
func Unavailable(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.ProxyResponses.WithLabelValues(name, "unavailable").Inc()
		writeError(w, http.StatusInternalServerError, name+" not configured")
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
