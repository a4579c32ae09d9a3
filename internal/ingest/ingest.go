// Package ingest loads schema.org items into the vector store.
//
// Inputs may be local files or URLs in several shapes: tab-separated
// url+JSON lines, bare JSON lines, CSV with headers, RSS/Atom feeds, or a
// list of URLs pointing at any of those. Items are trimmed of markup
// noise, embedded in batches, and uploaded through the retrieval client.
// Computed vectors are cached as url<TAB>json<TAB>vector rows so loading
// the same file again skips the embedding calls.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
	"github.com/askweb/askweb/internal/retrieval"
)

// DefaultBatchSize is the embed-and-upload batch size when the caller
// does not set one.
const DefaultBatchSize = 100

// Loader ingests documents into the vector store.
//
// A zero BatchSize means DefaultBatchSize; either way the batch is capped
// by the embedding provider's limit. An empty Endpoint means the preferred
// retrieval endpoint.
type Loader struct {
	cfg       *config.Config
	retriever *retrieval.Client
	embedder  *embeddings.Router
	logger    *slog.Logger
	client    *http.Client

	BatchSize      int
	Endpoint       string
	ForceRecompute bool
}

// NewLoader wires an ingest loader over the retrieval client and
// embedding router.
func NewLoader(cfg *config.Config, retriever *retrieval.Client, embedder *embeddings.Router, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cfg:       cfg,
		retriever: retriever,
		embedder:  embedder,
		logger:    logger.With("component", "ingest"),
		client:    &http.Client{},
	}
}

// Load ingests one input, local file or URL, and reports how many
// documents were written to the store.
func (l *Loader) Load(ctx context.Context, input, site string) (int, error) {
	if isRemote(input) {
		return l.loadRemote(ctx, input, site)
	}
	resolved := l.resolveInput(input)
	if _, err := os.Stat(resolved); err != nil {
		return 0, fmt.Errorf("input not found: %s", input)
	}
	return l.loadFile(ctx, resolved, input, site)
}

// LoadURLList reads a file of URLs (one per line, # comments allowed),
// fetches each, and ingests its content. Failing URLs are logged and
// skipped so one dead link does not abort the run.
func (l *Loader) LoadURLList(ctx context.Context, input, site string) (int, error) {
	listPath := input
	if isRemote(input) {
		local, cleanup, err := l.fetch(ctx, input)
		if err != nil {
			return 0, err
		}
		defer cleanup()
		listPath = local
	}
	lines, err := readLines(listPath)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !isRemote(line) {
			l.logger.Warn("skipping invalid url", "url", line)
			continue
		}
		n, err := l.loadRemote(ctx, line, site)
		total += n
		if err != nil {
			l.logger.Warn("url failed, continuing", "url", line, "error", err)
		}
	}
	l.logger.Info("url list processed", "urls", len(lines), "documents", total)
	return total, nil
}

// DeleteSite removes every stored document of the site and reports the
// count.
func (l *Loader) DeleteSite(ctx context.Context, site string) (int, error) {
	n, err := l.retriever.DeleteSite(ctx, l.Endpoint, site)
	if err != nil {
		return n, err
	}
	l.logger.Info("deleted site", "site", site, "documents", n)
	return n, nil
}

func (l *Loader) loadRemote(ctx context.Context, rawURL, site string) (int, error) {
	local, cleanup, err := l.fetch(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer cleanup()
	return l.loadFile(ctx, local, rawURL, site)
}

// resolveInput falls back to the configured data folder for inputs that
// do not exist as given.
func (l *Loader) resolveInput(input string) string {
	if _, err := os.Stat(input); err == nil {
		return input
	}
	candidate := filepath.Join(l.cfg.NLWeb.JSONDataFolder, input)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return input
}

// loadFile ingests one local file. source is the caller's original input
// (path or URL) and names the embedding cache file.
func (l *Loader) loadFile(ctx context.Context, filePath, source, site string) (int, error) {
	f, hasEmbeddings, err := detectFormat(filePath)
	if err != nil {
		return 0, err
	}

	if hasEmbeddings && !l.ForceRecompute {
		l.logger.Info("input already carries embeddings", "input", source)
		return l.loadPrecomputed(ctx, filePath, site)
	}
	cache := l.cachePath(source)
	if !l.ForceRecompute {
		if _, err := os.Stat(cache); err == nil {
			l.logger.Info("reusing cached embeddings", "path", cache)
			return l.loadPrecomputed(ctx, cache, site)
		}
	}

	var docs []retrieval.Document
	switch f {
	case formatCSV:
		docs, err = parseCSVFile(filePath, site)
	case formatRSS:
		docs, err = parseFeedFile(filePath, site, feedSource(source))
	case formatJSON:
		docs, err = parseJSONFile(filePath, site)
	default:
		return 0, fmt.Errorf("unsupported input format: %s", source)
	}
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		l.logger.Warn("no documents extracted", "input", source)
		return 0, nil
	}
	l.logger.Info("extracted documents", "input", source, "count", len(docs))
	return l.embedAndUpload(ctx, docs, cache)
}

// loadPrecomputed uploads url<TAB>json<TAB>vector rows without calling
// the embedding provider. Malformed rows are logged and skipped.
func (l *Loader) loadPrecomputed(ctx context.Context, filePath, site string) (int, error) {
	lines, err := readLines(filePath)
	if err != nil {
		return 0, err
	}

	batchSize := l.batchSize()
	var batch []retrieval.Document
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.retriever.Upload(ctx, l.Endpoint, batch)
		total += n
		batch = batch[:0]
		return err
	}

	for i, line := range lines {
		docs, err := parsePrecomputedLine(line, site)
		if err != nil {
			l.logger.Warn("skipping row", "row", i+1, "error", err)
			continue
		}
		batch = append(batch, docs...)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	l.logger.Info("loaded precomputed embeddings", "path", filePath, "documents", total)
	return total, nil
}

// embedAndUpload computes vectors batch by batch, writing each batch to
// the cache file and the store as it completes.
func (l *Loader) embedAndUpload(ctx context.Context, docs []retrieval.Document, cachePath string) (int, error) {
	batchSize := l.batchSize()

	var cache *embeddingCache
	if cachePath != "" {
		c, err := newEmbeddingCache(cachePath)
		if err != nil {
			l.logger.Warn("cannot write embedding cache", "path", cachePath, "error", err)
		} else {
			cache = c
			defer cache.Close()
		}
	}

	total := 0
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.SchemaJSON
		}
		vecs, err := l.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed batch: %w", err)
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
			if cache != nil {
				cache.Write(batch[i])
			}
		}

		n, err := l.retriever.Upload(ctx, l.Endpoint, batch)
		total += n
		if err != nil {
			return total, fmt.Errorf("upload batch: %w", err)
		}
		l.logger.Info("uploaded batch", "documents", n, "progress", fmt.Sprintf("%d/%d", end, len(docs)))
	}
	return total, nil
}

func (l *Loader) batchSize() int {
	n := l.BatchSize
	if n <= 0 {
		n = DefaultBatchSize
	}
	if limit := l.embedder.MaxBatchSize(); limit > 0 && n > limit {
		n = limit
	}
	return n
}

// cachePath names the embeddings cache file for an input: its base name
// under the configured json_with_embeddings folder.
func (l *Loader) cachePath(source string) string {
	base := filepath.Base(source)
	if u, err := url.Parse(source); err == nil && u.Host != "" {
		base = path.Base(u.Path)
		if base == "/" || base == "." {
			base = u.Host
		}
	}
	return filepath.Join(l.cfg.NLWeb.JSONWithEmbeddingsFolder, base)
}

// feedSource keeps the source URL for synthetic feed links; local inputs
// have no base to resolve against.
func feedSource(source string) string {
	if isRemote(source) {
		return source
	}
	return ""
}

// embeddingCache writes url<TAB>json<TAB>vector rows as batches finish.
type embeddingCache struct {
	file *os.File
	w    *bufio.Writer
}

func newEmbeddingCache(cachePath string) (*embeddingCache, error) {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(cachePath)
	if err != nil {
		return nil, err
	}
	return &embeddingCache{file: f, w: bufio.NewWriter(f)}, nil
}

func (c *embeddingCache) Write(doc retrieval.Document) error {
	row := strings.ReplaceAll(doc.SchemaJSON, "\n", " ")
	_, err := fmt.Fprintf(c.w, "%s\t%s\t%s\n", doc.URL, row, formatVector(doc.Embedding))
	return err
}

func (c *embeddingCache) Close() error {
	if err := c.w.Flush(); err != nil {
		c.file.Close()
		return err
	}
	return c.file.Close()
}
