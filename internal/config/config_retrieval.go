package config

// Vector-store endpoint types accepted in db_type.
const (
	DBTypeQdrant          = "qdrant"
	DBTypeAzureAISearch   = "azure_ai_search"
	DBTypeSnowflakeCortex = "snowflake_cortex_search"
	DBTypePostgres        = "postgres"
	DBTypeSQLite          = "sqlite"
	DBTypeMilvus          = "milvus"
)

var knownDBTypes = map[string]bool{
	DBTypeQdrant:          true,
	DBTypeAzureAISearch:   true,
	DBTypeSnowflakeCortex: true,
	DBTypePostgres:        true,
	DBTypeSQLite:          true,
	DBTypeMilvus:          true,
}

// RetrievalConfig configures the vector-store endpoints.
type RetrievalConfig struct {
	// PreferredEndpoint names the endpoint used when a request does not
	// override it (overrides are honored in development mode only).
	PreferredEndpoint string `yaml:"preferred_endpoint"`

	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig configures one vector-store endpoint. Which fields are
// required depends on db_type: qdrant and azure_ai_search use api_endpoint
// and api_key, postgres uses dsn, sqlite uses database_path,
// snowflake_cortex_search uses api_endpoint/api_key plus index_name of the
// form database.schema.service.
type EndpointConfig struct {
	DBType       string `yaml:"db_type"`
	APIEndpoint  string `yaml:"api_endpoint"`
	APIKey       string `yaml:"api_key"`
	IndexName    string `yaml:"index_name"`
	DatabasePath string `yaml:"database_path"`
	DSN          string `yaml:"dsn"`
}

// Endpoint returns the named endpoint entry.
func (r RetrievalConfig) Endpoint(name string) (EndpointConfig, bool) {
	e, ok := r.Endpoints[name]
	return e, ok
}

func (r RetrievalConfig) validate() error {
	for name, ep := range r.Endpoints {
		if !knownDBTypes[ep.DBType] {
			return &Error{Field: "retrieval.endpoints." + name + ".db_type", Reason: "unknown db_type " + ep.DBType}
		}
	}
	if r.PreferredEndpoint != "" {
		if _, ok := r.Endpoints[r.PreferredEndpoint]; !ok {
			return &Error{Field: "retrieval.preferred_endpoint", Reason: "no such endpoint configured: " + r.PreferredEndpoint}
		}
	}
	return nil
}
