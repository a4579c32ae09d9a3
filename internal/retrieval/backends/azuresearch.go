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

const (
	azureSearchAPIVersion = "2024-07-01"
	defaultAzureIndexName = "embeddings1536"
	azureDeleteScanBatch  = 1000
)

// AzureSearch talks to an Azure AI Search index over its REST API. Queries
// are embedded locally and ranked by the service's vector search; documents
// carry the same url/name/site/schema_json shape as every other endpoint.
type AzureSearch struct {
	name       string
	endpoint   string
	apiKey     string
	index      string
	embedder   retrieval.Embedder
	httpClient *http.Client

	indexEnsured bool
}

var _ retrieval.Endpoint = (*AzureSearch)(nil)

// NewAzureSearch builds the endpoint from its configuration entry.
// api_endpoint is the service URL, api_key the admin or query key, and
// index_name the index to search (a default is used when empty).
func NewAzureSearch(name string, cfg config.EndpointConfig, embedder retrieval.Embedder) (*AzureSearch, error) {
	endpoint := strings.TrimSuffix(strings.TrimSpace(cfg.APIEndpoint), "/")
	if endpoint == "" {
		return nil, errors.New("azure search: api_endpoint is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("azure search: api_key is required")
	}
	index := cfg.IndexName
	if index == "" {
		index = defaultAzureIndexName
	}

	return &AzureSearch{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		index:      index,
		embedder:   embedder,
		httpClient: &http.Client{},
	}, nil
}

func (a *AzureSearch) Name() string { return a.name }

func (a *AzureSearch) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("azure search: embed query: %w", err)
	}

	body := map[string]any{
		"search": nil,
		"vectorQueries": []map[string]any{{
			"kind":   "vector",
			"vector": embedding,
			"k":      limit,
			"fields": "embedding",
		}},
		"select": "url,name,site,schema_json",
		"top":    limit,
	}
	if filter := siteFilter(sites); filter != "" {
		body["filter"] = filter
	}

	var resp azureSearchResponse
	if err := a.post(ctx, a.docsURL("search"), body, &resp); err != nil {
		return nil, err
	}
	items := make([]retrieval.Item, 0, len(resp.Value))
	for _, doc := range resp.Value {
		items = append(items, doc.item())
	}
	return items, nil
}

func (a *AzureSearch) SearchByURL(ctx context.Context, itemURL string) (*retrieval.Item, error) {
	body := map[string]any{
		"search": "*",
		"filter": "url eq '" + odataEscape(itemURL) + "'",
		"select": "url,name,site,schema_json",
		"top":    1,
	}

	var resp azureSearchResponse
	if err := a.post(ctx, a.docsURL("search"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	item := resp.Value[0].item()
	return &item, nil
}

func (a *AzureSearch) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	if err := a.ensureIndex(ctx, len(docs[0].Embedding)); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(docs); start += uploadBatchSize {
		end := min(start+uploadBatchSize, len(docs))
		actions := make([]map[string]any, 0, end-start)
		for _, doc := range docs[start:end] {
			actions = append(actions, map[string]any{
				"@search.action": "mergeOrUpload",
				"id":             docKey(doc),
				"url":            doc.URL,
				"name":           doc.Name,
				"site":           doc.Site,
				"schema_json":    doc.SchemaJSON,
				"embedding":      doc.Embedding,
			})
		}
		var resp struct {
			Value []struct {
				Status bool `json:"status"`
			} `json:"value"`
		}
		if err := a.post(ctx, a.docsURL("index"), map[string]any{"value": actions}, &resp); err != nil {
			return written, err
		}
		for _, r := range resp.Value {
			if r.Status {
				written++
			}
		}
	}
	return written, nil
}

func (a *AzureSearch) DeleteSite(ctx context.Context, site string) (int, error) {
	deleted := 0
	filter := "site eq '" + odataEscape(site) + "'"
	for {
		body := map[string]any{
			"search": "*",
			"filter": filter,
			"select": "id",
			"top":    azureDeleteScanBatch,
		}
		var resp struct {
			Value []struct {
				ID string `json:"id"`
			} `json:"value"`
		}
		if err := a.post(ctx, a.docsURL("search"), body, &resp); err != nil {
			return deleted, err
		}
		if len(resp.Value) == 0 {
			return deleted, nil
		}

		actions := make([]map[string]any, 0, len(resp.Value))
		for _, doc := range resp.Value {
			actions = append(actions, map[string]any{
				"@search.action": "delete",
				"id":             doc.ID,
			})
		}
		if err := a.post(ctx, a.docsURL("index"), map[string]any{"value": actions}, nil); err != nil {
			return deleted, err
		}
		deleted += len(actions)
	}
}

// ensureIndex creates the index on first upload. Existing indexes are left
// untouched; the PUT is skipped for the rest of the process lifetime.
func (a *AzureSearch) ensureIndex(ctx context.Context, dimension int) error {
	if a.indexEnsured {
		return nil
	}
	if dimension == 0 {
		dimension = a.embedder.Dimension()
	}
	if dimension == 0 {
		dimension = defaultVectorDimension
	}

	schema := map[string]any{
		"name": a.index,
		"fields": []map[string]any{
			{"name": "id", "type": "Edm.String", "key": true, "filterable": true},
			{"name": "url", "type": "Edm.String", "filterable": true},
			{"name": "name", "type": "Edm.String", "searchable": true},
			{"name": "site", "type": "Edm.String", "filterable": true},
			{"name": "schema_json", "type": "Edm.String", "searchable": true},
			{
				"name":                "embedding",
				"type":                "Collection(Edm.Single)",
				"searchable":          true,
				"dimensions":          dimension,
				"vectorSearchProfile": "vector-profile",
			},
		},
		"vectorSearch": map[string]any{
			"algorithms": []map[string]any{{"name": "hnsw-config", "kind": "hnsw"}},
			"profiles":   []map[string]any{{"name": "vector-profile", "algorithm": "hnsw-config"}},
		},
	}

	createURL := fmt.Sprintf("%s/indexes/%s?api-version=%s", a.endpoint, url.PathEscape(a.index), azureSearchAPIVersion)
	payload, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("azure search: encode index schema: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, createURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("azure search: build request: %w", err)
	}
	a.setHeaders(req)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure search: create index: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 201 created, 204 updated. 409 means a concurrent creator won.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("azure search: create index: status %d", resp.StatusCode)
	}
	a.indexEnsured = true
	return nil
}

func (a *AzureSearch) docsURL(op string) string {
	return fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s", a.endpoint, url.PathEscape(a.index), op, azureSearchAPIVersion)
}

func (a *AzureSearch) post(ctx context.Context, rawURL string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("azure search: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("azure search: build request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("azure search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("azure search: decode response: %w", err)
	}
	return nil
}

func (a *AzureSearch) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", a.apiKey)
}

type azureSearchResponse struct {
	Value []azureSearchDoc `json:"value"`
}

type azureSearchDoc struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	Site       string `json:"site"`
	SchemaJSON string `json:"schema_json"`
}

func (d azureSearchDoc) item() retrieval.Item {
	return retrieval.Item{
		URL:        d.URL,
		Name:       d.Name,
		Site:       d.Site,
		SchemaJSON: d.SchemaJSON,
	}
}

// siteFilter renders an OData filter matching any of the sites. Empty
// input searches the whole index.
func siteFilter(sites []string) string {
	if len(sites) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(sites))
	for _, s := range sites {
		clauses = append(clauses, "site eq '"+odataEscape(s)+"'")
	}
	return strings.Join(clauses, " or ")
}

// odataEscape doubles single quotes so values embed safely in OData string
// literals.
func odataEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
