package server

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// mcpTool describes one callable function in a list_tools response.
type mcpTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var mcpTools = []mcpTool{
	{
		Name:        "ask",
		Description: "Ask a question and get an answer from the knowledge base",
		Parameters:  json.RawMessage(askToolParams),
	},
	{
		Name:        "ask_nlw",
		Description: "Alternative name for the ask function",
		Parameters:  json.RawMessage(askToolParams),
	},
	{
		Name:        "list_prompts",
		Description: "List available prompts that can be used with askweb",
		Parameters:  json.RawMessage(emptyToolParams),
	},
	{
		Name:        "get_prompt",
		Description: "Get a specific prompt by ID",
		Parameters:  json.RawMessage(getPromptToolParams),
	},
	{
		Name:        "get_sites",
		Description: "Get a list of available sites",
		Parameters:  json.RawMessage(emptyToolParams),
	},
}

const askToolParams = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "The question to ask"
    },
    "site": {
      "type": "string",
      "description": "Optional: Specific site to search within"
    },
    "streaming": {
      "type": "boolean",
      "description": "Optional: Whether to stream the response"
    }
  },
  "required": ["query"]
}`

const getPromptToolParams = `{
  "type": "object",
  "properties": {
    "prompt_id": {
      "type": "string",
      "description": "ID of the prompt to retrieve"
    }
  },
  "required": ["prompt_id"]
}`

const emptyToolParams = `{
  "type": "object",
  "properties": {},
  "required": []
}`

// mcpPromptRecord is one canned prompt template served by get_prompt.
type mcpPromptRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PromptText  string `json:"prompt_text,omitempty"`
}

var mcpPrompts = []mcpPromptRecord{
	{
		ID:          "default",
		Name:        "Default Prompt",
		Description: "Standard prompt for general queries",
		PromptText:  "You are a helpful assistant. Answer the following question: {{query}}",
	},
	{
		ID:          "technical",
		Name:        "Technical Prompt",
		Description: "Prompt optimized for technical questions",
		PromptText:  "You are a technical expert. Provide detailed technical information for: {{query}}",
	},
	{
		ID:          "creative",
		Name:        "Creative Prompt",
		Description: "Prompt optimized for creative writing and brainstorming",
		PromptText:  "You are a creative writing assistant. Create engaging and imaginative content for: {{query}}",
	},
}

// mcpPromptList is the list_prompts view: identity only, no template text.
func mcpPromptList() []mcpPromptRecord {
	out := make([]mcpPromptRecord, len(mcpPrompts))
	for i, p := range mcpPrompts {
		p.PromptText = ""
		out[i] = p
	}
	return out
}

// Argument validation schemas. These are looser than the advertised tool
// parameters: clients send the query under several aliases and the
// streaming flag in both string and number forms, so the hard constraints
// here are the types of the arguments the dispatch actually reads. The
// query key is canonicalized before validation.
const askToolArgsSchema = `{
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": { "type": "string", "minLength": 1 },
    "site": { "type": "string" },
    "query_id": { "type": "string" },
    "context_url": { "type": "string" },
    "prev_query": {
      "anyOf": [
        { "type": "string" },
        { "type": "array", "items": { "type": "string" } }
      ]
    }
  },
  "additionalProperties": true
}`

const getPromptArgsSchema = `{
  "type": "object",
  "required": ["prompt_id"],
  "properties": {
    "prompt_id": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

type toolSchemaRegistry struct {
	once    sync.Once
	initErr error
	args    map[string]*jsonschema.Schema
}

var toolSchemas toolSchemaRegistry

func initToolSchemas() error {
	toolSchemas.once.Do(func() {
		schemas := map[string]string{
			"ask":        askToolArgsSchema,
			"ask_nlw":    askToolArgsSchema,
			"query":      askToolArgsSchema,
			"search":     askToolArgsSchema,
			"get_prompt": getPromptArgsSchema,
		}

		toolSchemas.args = make(map[string]*jsonschema.Schema, len(schemas))
		for name, schema := range schemas {
			compiled, err := jsonschema.CompileString("mcp_tool_"+name, schema)
			if err != nil {
				toolSchemas.initErr = err
				return
			}
			toolSchemas.args[name] = compiled
		}
	})
	return toolSchemas.initErr
}

// validateToolArguments checks the decoded arguments against the tool's
// schema. Tools without a schema pass.
func validateToolArguments(name string, args map[string]any) error {
	if err := initToolSchemas(); err != nil {
		return err
	}
	schema := toolSchemas.args[name]
	if schema == nil {
		return nil
	}
	return schema.Validate(map[string]any(args))
}
