// Package catalog is the boundary to the remote dataset catalog. It holds
// catalog/session state in an explicit client object constructed once at
// startup; there is no process-global catalog cache. The actual dataset
// decoding (Zarr, COG, GeoTIFF) is an external collaborator reached through
// the CubeOpener interface.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/peatlab/peatwatch/internal/grid"
	"github.com/peatlab/peatwatch/internal/metrics"
)

// Layout is the closed set of dataset shapes a collection can declare. It is
// selected once from the collection metadata at load time, never inferred by
// inspecting the opened dataset.
type Layout int

const (
	LayoutUnknown Layout = iota
	LayoutSpatialChunk
	LayoutTimeChunk
	LayoutCOG
)

// ParseLayout maps the declarative collection metadata value to a Layout.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "spatial-chunk", "xy":
		return LayoutSpatialChunk, nil
	case "time-chunk", "time":
		return LayoutTimeChunk, nil
	case "cog":
		return LayoutCOG, nil
	default:
		return LayoutUnknown, fmt.Errorf("catalog: unknown collection layout %q", s)
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutSpatialChunk:
		return "spatial-chunk"
	case LayoutTimeChunk:
		return "time-chunk"
	case LayoutCOG:
		return "cog"
	default:
		return "unknown"
	}
}

// Document is the root catalog listing: sites, their variable collections
// and the assets each collection exposes.
type Document struct {
	Sites map[string]Site `json:"sites"`
}

type Site struct {
	Collections map[string]Collection `json:"collections"`
}

type Collection struct {
	Layout string           `json:"layout"`
	Assets map[string]Asset `json:"assets"`
}

type Asset struct {
	Href string `json:"href"`
}

// CubeOpener decodes catalog assets into in-memory rasters. Format readers
// are out of scope for this module; tests and embedding applications supply
// implementations.
type CubeOpener interface {
	OpenCube(href string, layout Layout) (*grid.Cube, error)
	OpenBand(href string, layout Layout) (*grid.Grid, error)
}

// Client fetches and memoizes the catalog document. The memoized document is
// reused until Refresh is called.
type Client struct {
	baseURL string
	client  *http.Client

	mu  sync.Mutex
	doc *Document
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Root returns the catalog document, fetching it on first use.
func (c *Client) Root() (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc != nil {
		return c.doc, nil
	}
	doc, err := c.fetch()
	if err != nil {
		return nil, err
	}
	c.doc = doc
	return doc, nil
}

// Refresh discards the memoized document and fetches a fresh one.
func (c *Client) Refresh() (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, err := c.fetch()
	if err != nil {
		return nil, err
	}
	c.doc = doc
	return doc, nil
}

func (c *Client) fetch() (*Document, error) {
	var body []byte
	start := time.Now()

	operation := func() error {
		resp, err := c.client.Get(c.baseURL)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch catalog: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("fetch catalog: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch catalog: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read catalog body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		metrics.CatalogFetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.CatalogFetchesTotal.WithLabelValues("ok").Inc()
	metrics.CatalogFetchLatency.Observe(time.Since(start).Seconds())

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	return &doc, nil
}

// Collection resolves one variable collection for a site.
func (c *Client) Collection(site, variable string) (*Collection, Layout, error) {
	doc, err := c.Root()
	if err != nil {
		return nil, LayoutUnknown, err
	}
	s, ok := doc.Sites[site]
	if !ok {
		return nil, LayoutUnknown, fmt.Errorf("catalog: unknown site %q", site)
	}
	coll, ok := s.Collections[variable]
	if !ok {
		return nil, LayoutUnknown, fmt.Errorf("catalog: site %q has no collection %q", site, variable)
	}
	layout, err := ParseLayout(coll.Layout)
	if err != nil {
		return nil, LayoutUnknown, err
	}
	return &coll, layout, nil
}

// Asset resolves one asset href inside a collection.
func (c *Client) Asset(site, variable, asset string) (string, Layout, error) {
	coll, layout, err := c.Collection(site, variable)
	if err != nil {
		return "", LayoutUnknown, err
	}
	a, ok := coll.Assets[asset]
	if !ok {
		return "", LayoutUnknown, fmt.Errorf("catalog: collection %q has no asset %q", variable, asset)
	}
	return a.Href, layout, nil
}
