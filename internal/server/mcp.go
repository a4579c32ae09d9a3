package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askweb/askweb/internal/engine"
	"github.com/askweb/askweb/internal/schemaorg"
	"github.com/askweb/askweb/pkg/api"
)

// The /mcp endpoint speaks a function-call protocol: the body names a
// function and carries its arguments, and the response is a
// function_response envelope (or, when streaming, a series of
// function_stream_event frames closed by one function_stream_end).

type mcpRequest struct {
	FunctionCall mcpFunctionCall `json:"function_call"`
}

type mcpFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		s.mcpError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.mcpError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		s.mcpError(w, http.StatusBadRequest, "Empty request body")
		return
	}

	var req mcpRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.mcpError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	call := req.FunctionCall
	switch call.Name {
	case "ask", "ask_nlw", "query", "search":
		s.mcpAsk(w, r, call)
	case "list_tools":
		s.mcpSuccess(w, map[string]any{"tools": mcpTools})
	case "list_prompts":
		s.mcpSuccess(w, map[string]any{"prompts": mcpPromptList()})
	case "get_prompt":
		s.mcpGetPrompt(w, call)
	case "get_sites":
		s.mcpGetSites(w)
	default:
		s.mcpError(w, http.StatusBadRequest, "Unknown function: "+call.Name)
	}
}

// mcpAsk runs the ask flow for the ask/ask_nlw/query/search functions.
func (s *Server) mcpAsk(w http.ResponseWriter, r *http.Request, call mcpFunctionCall) {
	args := decodeToolArguments(call.Arguments)

	query := queryArgument(args)
	if strings.TrimSpace(query) == "" {
		s.mcpError(w, http.StatusBadRequest, "Missing required parameter: query")
		return
	}
	args["query"] = query
	if err := validateToolArguments(call.Name, args); err != nil {
		s.mcpError(w, http.StatusBadRequest, fmt.Sprintf("Invalid arguments for %s: %s", call.Name, err))
		return
	}

	req := &engine.Request{
		Query:       query,
		Site:        stringArg(args, "site"),
		QueryID:     stringArg(args, "query_id"),
		ContextURL:  stringArg(args, "context_url"),
		PrevQueries: listArg(args, "prev_query"),
		Streaming:   mcpStreaming(r, args),
	}
	if err := s.engine.Normalize(req); err != nil {
		s.mcpError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !req.Streaming {
		result, err := s.engine.RunQuery(r.Context(), req, nil)
		if err != nil {
			s.mcpError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
			return
		}
		if _, ok := result["results"]; ok {
			result["chatbot_instructions"] = s.cfg.ChatbotInstructions("search_results")
		}
		s.mcpSuccess(w, result)
		return
	}

	stream, err := newMCPStream(w, s.cfg.ChatbotInstructions("search_results"))
	if err != nil {
		s.mcpError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	if _, err := s.engine.RunQuery(r.Context(), req, stream); err != nil {
		s.logger.Error("mcp streaming query failed", "query_id", req.QueryID, "error", err)
		stream.end("error", "Error processing streaming request: "+err.Error())
		return
	}
	stream.end("success", "")
}

func (s *Server) mcpGetPrompt(w http.ResponseWriter, call mcpFunctionCall) {
	args := decodeToolArguments(call.Arguments)

	id := stringArg(args, "prompt_id")
	if id == "" {
		s.mcpError(w, http.StatusBadRequest, "Missing required parameter: prompt_id")
		return
	}
	if err := validateToolArguments(call.Name, args); err != nil {
		s.mcpError(w, http.StatusBadRequest, fmt.Sprintf("Invalid arguments for %s: %s", call.Name, err))
		return
	}

	for _, p := range mcpPrompts {
		if p.ID == id {
			s.mcpSuccess(w, p)
			return
		}
	}
	s.mcpError(w, http.StatusNotFound, "Unknown prompt ID: "+id)
}

func (s *Server) mcpGetSites(w http.ResponseWriter) {
	type siteInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	sites := make([]siteInfo, 0, len(s.cfg.AllowedSites()))
	for _, site := range s.cfg.AllowedSites() {
		sites = append(sites, siteInfo{
			ID:          site,
			Name:        schemaorg.PrettySite(site),
			Description: "Site: " + site,
		})
	}
	s.mcpSuccess(w, map[string]any{"sites": sites})
}

func (s *Server) mcpSuccess(w http.ResponseWriter, response any) {
	s.jsonResponse(w, map[string]any{
		"type":     "function_response",
		"status":   "success",
		"response": response,
	})
}

func (s *Server) mcpError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "function_response",
		"status": "error",
		"error":  message,
	})
}

// decodeToolArguments parses the arguments field, which clients send
// either as an object or as a JSON-encoded string. A string that does not
// parse as an object is taken as the bare query text.
func decodeToolArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var args map[string]any
		if err := json.Unmarshal([]byte(asString), &args); err == nil && args != nil {
			return args
		}
		return map[string]any{"query": asString}
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil && args != nil {
		return args
	}
	return map[string]any{}
}

// queryArgument finds the query text under any of its accepted aliases.
func queryArgument(args map[string]any) string {
	for _, key := range []string{"query", "question", "q", "text", "input"} {
		if v, ok := args[key]; ok {
			q, _ := v.(string)
			return q
		}
	}
	return ""
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// listArg accepts a single string or an array of strings.
func listArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// mcpStreaming resolves the effective streaming flag: off unless the
// streaming query parameter or a streaming/stream argument turns it on.
func mcpStreaming(r *http.Request, args map[string]any) bool {
	streaming := false
	if vals, ok := r.URL.Query()["streaming"]; ok && len(vals) > 0 {
		streaming = !isFalsyParam(vals[0])
	}
	if v, ok := args["streaming"]; ok {
		streaming = isTruthyArg(v)
	} else if v, ok := args["stream"]; ok {
		streaming = isTruthyArg(v)
	}
	return streaming
}

// isTruthyArg matches the argument values clients are known to send for
// "on": true, "true", "True", "1", and 1.
func isTruthyArg(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "True" || t == "1"
	case float64:
		return t == 1
	}
	return false
}

// mcpStream adapts the event stream to the MCP envelope: every engine
// frame becomes a function_stream_event carrying the pretty-printed frame
// as partial_response text, and the stream closes with exactly one
// function_stream_end.
type mcpStream struct {
	sse          *sseStream
	instructions string
}

func newMCPStream(w http.ResponseWriter, instructions string) (*mcpStream, error) {
	sse, err := newSSEStream(w)
	if err != nil {
		return nil, err
	}
	return &mcpStream{sse: sse, instructions: instructions}, nil
}

// Send satisfies engine.Streamer. Result batches carry the chatbot
// instructions and a "Results: " prefix so conversational clients render
// them as links.
func (m *mcpStream) Send(msg api.Message) error {
	partial := msg
	prefix := ""
	if msg.Type() == api.TypeResultBatch {
		partial = make(api.Message, len(msg)+1)
		for k, v := range msg {
			partial[k] = v
		}
		partial["chatbot_instructions"] = m.instructions
		prefix = "Results: "
	}

	data, err := json.MarshalIndent(partial, "", "  ")
	if err != nil {
		return err
	}
	return m.sse.writeEvent(map[string]any{
		"type": "function_stream_event",
		"content": map[string]any{
			"partial_response": prefix + string(data) + "\n\n",
		},
	})
}

func (m *mcpStream) end(status, errMsg string) {
	event := map[string]any{
		"type":   "function_stream_end",
		"status": status,
	}
	if errMsg != "" {
		event["error"] = errMsg
	}
	_ = m.sse.writeEvent(event)
}
