package backends

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/retrieval"
)

const defaultQdrantCollection = "nlweb_collection"

// Qdrant stores items as points whose payload carries url, name, site, and
// schema_json. Point ids are UUIDv5 of the document id so re-uploads
// replace instead of duplicating.
type Qdrant struct {
	name       string
	client     *qdrant.Client
	collection string
	embedder   retrieval.Embedder
}

var _ retrieval.Endpoint = (*Qdrant)(nil)

// NewQdrant dials the endpoint's gRPC address. api_endpoint is a URL; the
// port defaults to qdrant's gRPC port 6334 and TLS follows the scheme.
func NewQdrant(name string, cfg config.EndpointConfig, embedder retrieval.Embedder) (*Qdrant, error) {
	if cfg.APIEndpoint == "" {
		return nil, errors.New("qdrant: api_endpoint is required")
	}
	u, err := url.Parse(cfg.APIEndpoint)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse api_endpoint: %w", err)
	}
	port := 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("qdrant: parse api_endpoint port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: new client: %w", err)
	}

	collection := cfg.IndexName
	if collection == "" {
		collection = defaultQdrantCollection
	}
	return &Qdrant{name: name, client: client, collection: collection, embedder: embedder}, nil
}

func (q *Qdrant) Name() string { return q.name }

func (q *Qdrant) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: check collection: %w", err)
	}
	if !exists {
		return nil, nil
	}

	vector, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: embed query: %w", err)
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantSiteFilter(sites),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	items := make([]retrieval.Item, 0, len(points))
	for _, p := range points {
		items = append(items, qdrantItem(p.GetPayload()))
	}
	return items, nil
}

func (q *Qdrant) SearchByURL(ctx context.Context, itemURL string) (*retrieval.Item, error) {
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("url", itemURL)},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll by url: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	item := qdrantItem(points[0].GetPayload())
	return &item, nil
}

func (q *Qdrant) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	dimension := 0
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if dimension == 0 {
			dimension = len(doc.Embedding)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(docKey(doc)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"url":         doc.URL,
				"name":        doc.Name,
				"site":        doc.Site,
				"schema_json": doc.SchemaJSON,
			}),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	if err := q.ensureCollection(ctx, dimension); err != nil {
		return 0, err
	}

	uploaded := 0
	for start := 0; start < len(points); start += uploadBatchSize {
		end := start + uploadBatchSize
		if end > len(points) {
			end = len(points)
		}
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         points[start:end],
		}); err != nil {
			return uploaded, fmt.Errorf("qdrant: upsert: %w", err)
		}
		uploaded += end - start
	}
	return uploaded, nil
}

func (q *Qdrant) DeleteSite(ctx context.Context, site string) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: check collection: %w", err)
	}
	if !exists {
		return 0, nil
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("site", site)},
	}
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count site points: %w", err)
	}
	if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	}); err != nil {
		return 0, fmt.Errorf("qdrant: delete site points: %w", err)
	}
	return int(count), nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}
	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	return nil
}

func qdrantSiteFilter(sites []string) *qdrant.Filter {
	if len(sites) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords("site", sites...)},
	}
}

func qdrantItem(payload map[string]*qdrant.Value) retrieval.Item {
	return retrieval.Item{
		URL:        payload["url"].GetStringValue(),
		SchemaJSON: payload["schema_json"].GetStringValue(),
		Name:       payload["name"].GetStringValue(),
		Site:       payload["site"].GetStringValue(),
	}
}
