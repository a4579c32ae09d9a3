// Package backends implements the vector-store endpoints behind the
// retrieval router: qdrant, postgres (pgvector), sqlite, Azure AI Search,
// and Snowflake Cortex Search.
package backends

import (
	"fmt"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/retrieval"
)

// uploadBatchSize bounds how many documents go to a store per write.
const uploadBatchSize = 100

// Factories builds an endpoint factory per configured endpoint, keyed by
// endpoint name. Endpoints that rank by vector similarity themselves get
// the embedder for query embedding.
func Factories(cfg config.RetrievalConfig, embedder retrieval.Embedder) map[string]retrieval.Factory {
	factories := make(map[string]retrieval.Factory, len(cfg.Endpoints))
	for name, ep := range cfg.Endpoints {
		factories[name] = factory(name, ep, embedder)
	}
	return factories
}

func factory(name string, cfg config.EndpointConfig, embedder retrieval.Embedder) retrieval.Factory {
	switch cfg.DBType {
	case config.DBTypeQdrant:
		return func() (retrieval.Endpoint, error) { return NewQdrant(name, cfg, embedder) }
	case config.DBTypePostgres:
		return func() (retrieval.Endpoint, error) { return NewPostgres(name, cfg, embedder) }
	case config.DBTypeSQLite:
		return func() (retrieval.Endpoint, error) { return NewSQLite(name, cfg, embedder) }
	case config.DBTypeAzureAISearch:
		return func() (retrieval.Endpoint, error) { return NewAzureSearch(name, cfg, embedder) }
	case config.DBTypeSnowflakeCortex:
		return func() (retrieval.Endpoint, error) { return NewSnowflake(name, cfg) }
	default:
		return func() (retrieval.Endpoint, error) {
			return nil, fmt.Errorf("backends: no client for db_type %q (endpoint %s); supported: qdrant, postgres, sqlite, azure_ai_search, snowflake_cortex_search", cfg.DBType, name)
		}
	}
}
