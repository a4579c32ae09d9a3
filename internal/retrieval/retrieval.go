// Package retrieval routes vector-store operations to the configured
// endpoint.
//
// Every backend speaks the same four operations over items keyed by URL and
// site. Endpoints are constructed lazily on first use, so configured-but-
// unused entries never need reachable stores or valid credentials.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/observability"
)

// DefaultLimit is the number of results a search returns when the caller
// does not say otherwise.
const DefaultLimit = 50

// Item is one corpus entry as searches return it.
type Item struct {
	URL        string
	SchemaJSON string
	Name       string
	Site       string
}

// Document is one corpus entry as loaders upload it.
type Document struct {
	ID         string
	URL        string
	Name       string
	Site       string
	SchemaJSON string
	Embedding  []float32
}

// Embedder produces query embeddings for endpoints that rank by vector
// similarity themselves. *embeddings.Router satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Endpoint is implemented by every vector-store backend.
type Endpoint interface {
	// Name returns the endpoint name from configuration.
	Name() string

	// Search returns up to limit items ranked by similarity to query.
	// An empty sites slice searches the whole corpus.
	Search(ctx context.Context, query string, sites []string, limit int) ([]Item, error)

	// SearchByURL retrieves the item stored under exactly url, or nil
	// when the corpus has none.
	SearchByURL(ctx context.Context, url string) (*Item, error)

	// Upload inserts or replaces documents and reports how many were
	// written.
	Upload(ctx context.Context, docs []Document) (int, error)

	// DeleteSite removes every document of the site and reports how many
	// were removed.
	DeleteSite(ctx context.Context, site string) (int, error)
}

// Factory constructs an Endpoint. Construction may dial the store, so
// factories run lazily on first use.
type Factory func() (Endpoint, error)

// Client routes operations to named endpoints and instruments them.
type Client struct {
	cfg          config.RetrievalConfig
	allowedSites []string
	logger       *slog.Logger
	metrics      *observability.Metrics

	mu        sync.Mutex
	factories map[string]Factory
	endpoints map[string]Endpoint
}

// NewClient builds a router over the given endpoint factories, keyed by
// endpoint name. allowedSites narrows site "all" searches the way the
// deployment allowlist demands.
func NewClient(cfg config.RetrievalConfig, allowedSites []string, factories map[string]Factory, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:          cfg,
		allowedSites: allowedSites,
		logger:       logger.With("component", "retrieval"),
		metrics:      metrics,
		factories:    factories,
		endpoints:    make(map[string]Endpoint),
	}
}

// Search embeds and runs the query against the named endpoint, or the
// preferred endpoint when name is empty. The site parameter follows request
// conventions: "all" searches the allowlist (or everything when no
// allowlist is configured), a comma-separated value searches those sites,
// and anything else is a single site with spaces folded to underscores.
func (c *Client) Search(ctx context.Context, endpointName, query, site string, limit int) ([]Item, error) {
	ep, err := c.endpoint(endpointName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	sites := c.sitesFilter(site)

	start := time.Now()
	items, err := ep.Search(ctx, query, sites, limit)
	c.observe(ep.Name(), "search", start, err)
	if err != nil {
		c.logger.Warn("search failed", "endpoint", ep.Name(), "site", site, "error", err)
		return nil, err
	}
	c.logger.Debug("search completed",
		"endpoint", ep.Name(),
		"site", site,
		"results", len(items),
		"duration", time.Since(start))
	return items, nil
}

// SearchByURL retrieves one item by exact URL.
func (c *Client) SearchByURL(ctx context.Context, endpointName, url string) (*Item, error) {
	ep, err := c.endpoint(endpointName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	item, err := ep.SearchByURL(ctx, url)
	c.observe(ep.Name(), "search_by_url", start, err)
	if err != nil {
		c.logger.Warn("url lookup failed", "endpoint", ep.Name(), "url", url, "error", err)
		return nil, err
	}
	if item == nil {
		c.logger.Debug("no item for url", "endpoint", ep.Name(), "url", url)
	}
	return item, nil
}

// Upload writes documents to the named endpoint.
func (c *Client) Upload(ctx context.Context, endpointName string, docs []Document) (int, error) {
	ep, err := c.endpoint(endpointName)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	n, err := ep.Upload(ctx, docs)
	c.observe(ep.Name(), "upload", start, err)
	if err != nil {
		c.logger.Warn("upload failed", "endpoint", ep.Name(), "documents", len(docs), "error", err)
		return n, err
	}
	c.logger.Info("uploaded documents", "endpoint", ep.Name(), "count", n)
	return n, nil
}

// DeleteSite removes every document of a site from the named endpoint.
func (c *Client) DeleteSite(ctx context.Context, endpointName, site string) (int, error) {
	ep, err := c.endpoint(endpointName)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	n, err := ep.DeleteSite(ctx, site)
	c.observe(ep.Name(), "delete_site", start, err)
	if err != nil {
		c.logger.Warn("site delete failed", "endpoint", ep.Name(), "site", site, "error", err)
		return n, err
	}
	c.logger.Info("deleted site documents", "endpoint", ep.Name(), "site", site, "count", n)
	return n, nil
}

// sitesFilter expands the request site parameter into the backend filter.
// nil means unrestricted.
func (c *Client) sitesFilter(site string) []string {
	if site == "" || site == "all" {
		if len(c.allowedSites) == 0 {
			return nil
		}
		return c.allowedSites
	}
	if strings.Contains(site, ",") {
		site = strings.NewReplacer("[", "", "]", "").Replace(site)
		parts := strings.Split(site, ",")
		sites := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				sites = append(sites, p)
			}
		}
		return sites
	}
	return []string{strings.ReplaceAll(site, " ", "_")}
}

func (c *Client) endpoint(name string) (Endpoint, error) {
	if name == "" {
		name = c.cfg.PreferredEndpoint
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ep, ok := c.endpoints[name]; ok {
		return ep, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("retrieval: unknown endpoint %q, must be one of %v", name, c.endpointNames())
	}
	ep, err := factory()
	if err != nil {
		return nil, fmt.Errorf("retrieval: endpoint %s: %w", name, err)
	}
	c.endpoints[name] = ep
	return ep, nil
}

func (c *Client) endpointNames() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) observe(endpoint, op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RetrievalCounter.WithLabelValues(endpoint, op, status).Inc()
	c.metrics.RetrievalDuration.WithLabelValues(endpoint, op).Observe(time.Since(start).Seconds())
}
