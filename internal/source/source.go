// Package source implements the per-source normalizers: each one fetches
// its external origin, resolves country codes, computes freshness notes and
// persists one intermediate snapshot document.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrFetch marks a network or HTTP failure reaching an external origin.
// Callers decide whether to retry; sources never retry internally.
var ErrFetch = errors.New("fetch failed")

// Source is one crawlable origin. Crawl fetches, normalizes and persists a
// single intermediate snapshot; on failure no snapshot is written, so the
// previously persisted document stays intact.
type Source interface {
	Name() string
	Crawl(ctx context.Context) error
}

// Registry holds the known sources in their fixed crawl order.
type Registry struct {
	order  []string
	byName map[string]Source
}

// NewRegistry builds a registry preserving the given order.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{byName: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.order = append(r.order, s.Name())
		r.byName[s.Name()] = s
	}
	return r
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Names returns the registered source names in crawl order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns the registered sources in crawl order.
func (r *Registry) All() []Source {
	sources := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		sources = append(sources, r.byName[name])
	}
	return sources
}

// fetch issues a GET with the shared user agent and returns the body.
// Non-2xx statuses are reported as ErrFetch.
func fetch(ctx context.Context, client *http.Client, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: unexpected status %d", ErrFetch, url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", ErrFetch, url, err)
	}
	return body, nil
}

// yearEnd is the reference date used for annual figures.
func yearEnd(year int) time.Time {
	return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
}
