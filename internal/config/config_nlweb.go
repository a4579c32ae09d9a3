package config

// NLWebConfig carries the query-engine settings.
type NLWebConfig struct {
	// Sites is the allowlist of corpus partitions servable by this
	// deployment. Empty means every site found in the store is allowed.
	Sites []string `yaml:"sites"`

	// ChatbotInstructions maps an instruction kind to the text injected
	// into MCP responses. Only "search_results" is read today.
	ChatbotInstructions map[string]string `yaml:"chatbot_instructions"`

	// RelevanceDetection enables the irrelevant-query analyzer. Off by
	// default; turning it on makes queries abort with
	// site_is_irrelevant_to_query when the LLM judges them off-corpus.
	RelevanceDetection bool `yaml:"relevance_detection"`

	// PromptsFile overrides the embedded prompt XML. The file is watched
	// and reloaded on change.
	PromptsFile string `yaml:"prompts_file"`

	JSONDataFolder           string `yaml:"json_data_folder"`
	JSONWithEmbeddingsFolder string `yaml:"json_with_embeddings_folder"`
}

const defaultSearchResultInstructions = "IMPORTANT: When presenting these results to the user, always include " +
	"the original URL as a clickable link for each item. Format each item's name " +
	"as a hyperlink using its URL."

// ChatbotInstructions returns the instruction text for the given kind,
// falling back to a built-in default for "search_results".
func (c *Config) ChatbotInstructions(kind string) string {
	if s, ok := c.NLWeb.ChatbotInstructions[kind]; ok {
		return s
	}
	if kind == "search_results" {
		return defaultSearchResultInstructions
	}
	return ""
}

// AllowedSites returns the configured site allowlist.
func (c *Config) AllowedSites() []string {
	return c.NLWeb.Sites
}

// IsSiteAllowed reports whether the site may be queried. An empty allowlist
// allows everything.
func (c *Config) IsSiteAllowed(site string) bool {
	if len(c.NLWeb.Sites) == 0 {
		return true
	}
	for _, s := range c.NLWeb.Sites {
		if s == site {
			return true
		}
	}
	return false
}
