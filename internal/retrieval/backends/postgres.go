package backends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/retrieval"
)

const defaultVectorDimension = 1536

// Postgres stores items in a pgvector table and ranks with the cosine
// distance operator.
type Postgres struct {
	name     string
	db       *sql.DB
	embedder retrieval.Embedder
}

var _ retrieval.Endpoint = (*Postgres)(nil)

// NewPostgres opens the DSN, verifies the connection, and makes sure the
// items table exists with the embedder's dimension.
func NewPostgres(name string, cfg config.EndpointConfig, embedder retrieval.Embedder) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	p := &Postgres{name: name, db: db, embedder: embedder}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	dimension := p.embedder.Dimension()
	if dimension <= 0 {
		dimension = defaultVectorDimension
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			site TEXT NOT NULL,
			schema_json TEXT NOT NULL,
			embedding vector(%d)
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS items_site_idx ON items (site)`,
		`CREATE INDEX IF NOT EXISTS items_url_idx ON items (url)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Name() string { return p.name }

func (p *Postgres) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: embed query: %w", err)
	}

	stmt := `SELECT url, schema_json, name, site FROM items WHERE embedding IS NOT NULL`
	args := []any{encodeVector(vector)}
	argNum := 2
	if len(sites) > 0 {
		stmt += fmt.Sprintf(" AND site = ANY($%d)", argNum)
		args = append(args, pq.Array(sites))
		argNum++
	}
	stmt += " ORDER BY embedding <=> $1::vector"
	stmt += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search: %w", err)
	}
	defer rows.Close()

	var items []retrieval.Item
	for rows.Next() {
		var it retrieval.Item
		if err := rows.Scan(&it.URL, &it.SchemaJSON, &it.Name, &it.Site); err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (p *Postgres) SearchByURL(ctx context.Context, itemURL string) (*retrieval.Item, error) {
	var it retrieval.Item
	err := p.db.QueryRowContext(ctx,
		`SELECT url, schema_json, name, site FROM items WHERE url = $1 LIMIT 1`,
		itemURL).Scan(&it.URL, &it.SchemaJSON, &it.Name, &it.Site)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: search by url: %w", err)
	}
	return &it, nil
}

func (p *Postgres) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin upload: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (id, url, name, site, schema_json, embedding)
		VALUES ($1, $2, $3, $4, $5, $6::vector)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			name = EXCLUDED.name,
			site = EXCLUDED.site,
			schema_json = EXCLUDED.schema_json,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return 0, fmt.Errorf("postgres: prepare upload: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if _, err := stmt.ExecContext(ctx, docKey(doc), doc.URL, doc.Name, doc.Site, doc.SchemaJSON, encodeVector(doc.Embedding)); err != nil {
			return 0, fmt.Errorf("postgres: upsert %s: %w", doc.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: commit upload: %w", err)
	}
	return len(docs), nil
}

func (p *Postgres) DeleteSite(ctx context.Context, site string) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM items WHERE site = $1`, site)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: delete site count: %w", err)
	}
	return int(n), nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

// docKey derives the stable row id: a UUIDv5 of the document id, falling
// back to the URL, so re-uploads replace earlier rows.
func docKey(doc retrieval.Document) string {
	id := doc.ID
	if id == "" {
		id = doc.URL
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

// encodeVector renders a pgvector literal like [0.1,0.2]. Empty embeddings
// become NULL.
func encodeVector(embedding []float32) sql.NullString {
	if len(embedding) == 0 {
		return sql.NullString{}
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sql.NullString{String: sb.String(), Valid: true}
}
