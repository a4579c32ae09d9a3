// Package api defines the wire protocol spoken by the ask endpoints.
//
// Every frame sent to a client is a JSON object tagged with a message_type
// field and carrying the query_id it belongs to. Streaming responses deliver
// the frames as server-sent events; non-streaming responses aggregate them
// into a single object keyed by message type.
package api

// Version is the protocol version announced in the first frame of every
// response.
const Version = "0.1"

// Message type tags.
const (
	TypeAPIVersion            = "api_version"
	TypeDecontextualizedQuery = "decontextualized_query"
	TypeSiteIrrelevant        = "site_is_irrelevant_to_query"
	TypeAskUser               = "ask_user"
	TypeRemember              = "remember"
	TypeAskingSites           = "asking_sites"
	TypeResultBatch           = "result_batch"
	TypeSummary               = "summary"
	TypeNLWS                  = "nlws"
	TypeResult                = "result"
	TypeComplete              = "complete"
)

// Message is one protocol frame. Frames are open-ended objects rather than a
// closed union: servers may add fields and clients are expected to ignore
// what they do not understand.
type Message map[string]any

// New returns a frame tagged with the given message type.
func New(messageType string) Message {
	return Message{"message_type": messageType}
}

// Type returns the message_type tag, or "" if the frame is untagged.
func (m Message) Type() string {
	t, _ := m["message_type"].(string)
	return t
}

// QueryID returns the query_id field, or "" if absent.
func (m Message) QueryID() string {
	id, _ := m["query_id"].(string)
	return id
}

// Result is one ranked item inside a result_batch frame. SiteURL duplicates
// Site; clients built against earlier servers read either.
type Result struct {
	URL          string         `json:"url"`
	Name         string         `json:"name"`
	Site         string         `json:"site"`
	SiteURL      string         `json:"siteUrl"`
	Score        int            `json:"score"`
	Description  string         `json:"description"`
	SchemaObject map[string]any `json:"schema_object,omitempty"`
}

// Item is one supporting item inside an nlws frame.
type Item struct {
	URL          string         `json:"url"`
	Name         string         `json:"name"`
	Site         string         `json:"site"`
	Description  string         `json:"description,omitempty"`
	SchemaObject map[string]any `json:"schema_object,omitempty"`
}

// SiteCount is one entry of a /who result frame.
type SiteCount struct {
	Site  string `json:"site"`
	Count int    `json:"count"`
}
