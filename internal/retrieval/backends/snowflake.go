package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/retrieval"
)

const snowflakeMaxLimit = 1000

// Snowflake queries a Snowflake Cortex Search service over REST. Cortex
// embeds and ranks server-side, so this endpoint needs no embedder. The
// service is read-only from here: corpora are loaded with Snowflake's own
// tooling, so Upload and DeleteSite are not supported.
type Snowflake struct {
	name       string
	accountURL string
	token      string
	database   string
	schema     string
	service    string
	httpClient *http.Client
}

var _ retrieval.Endpoint = (*Snowflake)(nil)

// NewSnowflake builds the endpoint from its configuration entry.
// api_endpoint is the account URL, api_key a programmatic access token, and
// index_name the service as database.schema.service.
func NewSnowflake(name string, cfg config.EndpointConfig) (*Snowflake, error) {
	accountURL := strings.TrimSuffix(strings.Trim(cfg.APIEndpoint, `"`), "/")
	if accountURL == "" {
		return nil, errors.New("snowflake search: api_endpoint (account URL) is required")
	}
	token := strings.Trim(cfg.APIKey, `"`)
	if token == "" {
		return nil, errors.New("snowflake search: api_key is required")
	}
	parts := strings.Split(cfg.IndexName, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("snowflake search: index_name %q must be database.schema.service", cfg.IndexName)
	}

	return &Snowflake{
		name:       name,
		accountURL: accountURL,
		token:      token,
		database:   parts[0],
		schema:     parts[1],
		service:    parts[2],
		httpClient: &http.Client{},
	}, nil
}

func (s *Snowflake) Name() string { return s.name }

func (s *Snowflake) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	body := map[string]any{
		"query":   query,
		"columns": []string{"url", "site", "schema_json"},
		"limit":   clampLimit(limit),
	}
	if filter := snowflakeSiteFilter(sites); filter != nil {
		body["filter"] = filter
	}
	return s.query(ctx, body)
}

func (s *Snowflake) SearchByURL(ctx context.Context, itemURL string) (*retrieval.Item, error) {
	body := map[string]any{
		"query":   itemURL,
		"columns": []string{"url", "site", "schema_json"},
		"limit":   1,
		"filter":  map[string]any{"@eq": map[string]string{"url": itemURL}},
	}
	items, err := s.query(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Snowflake) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	return 0, errors.New("snowflake search: upload is not supported; load the corpus with Snowflake tooling")
}

func (s *Snowflake) DeleteSite(ctx context.Context, site string) (int, error) {
	return 0, errors.New("snowflake search: delete is not supported; manage the corpus with Snowflake tooling")
}

func (s *Snowflake) query(ctx context.Context, body map[string]any) ([]retrieval.Item, error) {
	queryURL := fmt.Sprintf("%s/api/v2/databases/%s/schemas/%s/cortex-search-services/%s:query",
		s.accountURL, url.PathEscape(s.database), url.PathEscape(s.schema), url.PathEscape(s.service))

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("snowflake search: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, queryURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("snowflake search: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snowflake search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("snowflake search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded struct {
		Results []struct {
			URL        string `json:"url"`
			Site       string `json:"site"`
			SchemaJSON string `json:"schema_json"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("snowflake search: decode response: %w", err)
	}

	items := make([]retrieval.Item, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		items = append(items, retrieval.Item{
			URL:        r.URL,
			Name:       nameFromSchema(r.SchemaJSON),
			Site:       r.Site,
			SchemaJSON: r.SchemaJSON,
		})
	}
	return items, nil
}

// snowflakeSiteFilter renders the Cortex filter clause for the sites, nil
// when unrestricted.
func snowflakeSiteFilter(sites []string) map[string]any {
	switch len(sites) {
	case 0:
		return nil
	case 1:
		return map[string]any{"@eq": map[string]string{"site": sites[0]}}
	default:
		clauses := make([]map[string]any, 0, len(sites))
		for _, s := range sites {
			clauses = append(clauses, map[string]any{"@eq": map[string]string{"site": s}})
		}
		return map[string]any{"@or": clauses}
	}
}

// nameFromSchema pulls a display name out of the stored schema.org JSON.
func nameFromSchema(schemaJSON string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &obj); err != nil {
		return ""
	}
	if name, ok := obj["name"].(string); ok {
		return name
	}
	return ""
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > snowflakeMaxLimit {
		return snowflakeMaxLimit
	}
	return limit
}
