package backends

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/retrieval"
)

// SQLite keeps the corpus in a single file and ranks by brute-force cosine
// similarity. It exists for local development corpora, where a scan over a
// few thousand rows beats running a vector store.
type SQLite struct {
	name     string
	db       *sql.DB
	embedder retrieval.Embedder
}

var _ retrieval.Endpoint = (*SQLite)(nil)

// NewSQLite opens (or creates) the database file. An empty database_path
// keeps the corpus in memory.
func NewSQLite(name string, cfg config.EndpointConfig, embedder retrieval.Embedder) (*SQLite, error) {
	path := cfg.DatabasePath
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	s := &SQLite{name: name, db: db, embedder: embedder}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			site TEXT NOT NULL,
			schema_json TEXT NOT NULL,
			embedding BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_site ON items(site)`,
		`CREATE INDEX IF NOT EXISTS idx_items_url ON items(url)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Name() string { return s.name }

func (s *SQLite) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: embed query: %w", err)
	}

	stmt := `SELECT url, schema_json, name, site, embedding FROM items WHERE embedding IS NOT NULL`
	args := make([]any, 0, len(sites))
	if len(sites) > 0 {
		stmt += " AND site IN (?" + strings.Repeat(",?", len(sites)-1) + ")"
		for _, site := range sites {
			args = append(args, site)
		}
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}
	defer rows.Close()

	type scored struct {
		item  retrieval.Item
		score float64
	}
	var results []scored
	for rows.Next() {
		var it retrieval.Item
		var blob []byte
		if err := rows.Scan(&it.URL, &it.SchemaJSON, &it.Name, &it.Site, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan item: %w", err)
		}
		results = append(results, scored{item: it, score: cosineSimilarity(vector, decodeBlob(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}
	items := make([]retrieval.Item, len(results))
	for i, r := range results {
		items[i] = r.item
	}
	return items, nil
}

func (s *SQLite) SearchByURL(ctx context.Context, itemURL string) (*retrieval.Item, error) {
	var it retrieval.Item
	err := s.db.QueryRowContext(ctx,
		`SELECT url, schema_json, name, site FROM items WHERE url = ? LIMIT 1`,
		itemURL).Scan(&it.URL, &it.SchemaJSON, &it.Name, &it.Site)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: search by url: %w", err)
	}
	return &it, nil
}

func (s *SQLite) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin upload: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO items (id, url, name, site, schema_json, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare upload: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, docKey(doc), doc.URL, doc.Name, doc.Site, doc.SchemaJSON, encodeBlob(doc.Embedding)); err != nil {
			return 0, fmt.Errorf("sqlite: upsert %s: %w", doc.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit upload: %w", err)
	}
	return len(docs), nil
}

func (s *SQLite) DeleteSite(ctx context.Context, site string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE site = ?`, site)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete site count: %w", err)
	}
	return int(n), nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// encodeBlob packs float32s little-endian, 4 bytes each.
func encodeBlob(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeBlob(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
