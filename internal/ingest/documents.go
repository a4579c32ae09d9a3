package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/askweb/askweb/internal/retrieval"
)

// Crawled markup types that carry no indexable content. Items of these
// types are dropped whole during ingestion.
var skipMarkupTypes = map[string]bool{
	"ListItem":              true,
	"ItemList":              true,
	"Organization":          true,
	"BreadcrumbList":        true,
	"Breadcrumb":            true,
	"WebSite":               true,
	"SearchAction":          true,
	"SiteNavigationElement": true,
	"WebPageElement":        true,
	"WebPage":               true,
	"NewsMediaOrganization": true,
	"MerchantReturnPolicy":  true,
	"ReturnPolicy":          true,
	"CollectionPage":        true,
	"Brand":                 true,
	"Corporation":           true,
	"ReadAction":            true,
}

var nameFields = []string{"name", "headline", "title", "keywords"}

// splitLine extracts the URL and JSON payload from one input row. Rows are
// either url<TAB>json, a [url, json] pair, or a bare JSON object whose URL
// lives in its url/@id/identifier field.
func splitLine(line string) (string, string, bool) {
	if strings.Contains(line, "\t") {
		parts := strings.Split(line, "\t")
		if len(parts) >= 2 {
			return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
		}
	}

	if strings.HasPrefix(line, "[") {
		var pair []json.RawMessage
		if err := json.Unmarshal([]byte(line), &pair); err == nil && len(pair) == 2 {
			var u string
			if err := json.Unmarshal(pair[0], &u); err == nil && u != "" {
				return u, string(pair[1]), true
			}
		}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return "", "", false
	}
	for _, field := range []string{"url", "@id", "identifier"} {
		if s, ok := obj[field].(string); ok && s != "" {
			return s, line, true
		}
	}
	return "", "", false
}

// documentsFromJSON trims the markup and produces one document per item.
// Multi-item payloads number their URLs with #1, #2, ... fragments after
// the first.
func documentsFromJSON(rawURL, jsonData, site string) []retrieval.Document {
	var parsed any
	if err := json.Unmarshal([]byte(jsonData), &parsed); err != nil {
		return nil
	}

	trimmed := trimMarkup(parsed)
	if trimmed == nil {
		return nil
	}
	items, ok := trimmed.([]any)
	if !ok {
		items = []any{trimmed}
	}

	docs := make([]retrieval.Document, 0, len(items))
	for i, item := range items {
		itemURL := rawURL
		if i > 0 {
			itemURL = fmt.Sprintf("%s#%d", rawURL, i)
		}
		encoded, err := json.Marshal(item)
		if err != nil {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:         docID(itemURL),
			URL:        itemURL,
			Name:       itemName(item),
			Site:       site,
			SchemaJSON: string(encoded),
		})
	}
	return docs
}

// trimMarkup strips crawled schema.org markup down to what is worth
// indexing: skip-typed and untyped objects go, @graph wrappers flatten,
// and noisy properties collapse to their useful core. Returns nil, a
// single object, or a list.
func trimMarkup(v any) any {
	switch val := v.(type) {
	case []any:
		items := make([]any, 0, len(val))
		for _, item := range val {
			if t := trimMarkup(item); t != nil {
				items = append(items, t)
			}
		}
		if len(items) == 0 {
			return nil
		}
		return items
	case map[string]any:
		if graph, ok := val["@graph"].([]any); ok {
			return trimMarkup(graph)
		}
		return trimObject(val)
	default:
		return nil
	}
}

func trimObject(obj map[string]any) any {
	if skipMarkupType(obj) {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case "publisher", "mainEntityOfPage":
			// dropped outright
		case "image":
			out[k] = flattenImage(v)
		case "aggregateRating":
			if m, ok := v.(map[string]any); ok {
				if rating, ok := m["ratingValue"]; ok {
					out[k] = rating
					continue
				}
			}
			out[k] = v
		case "review":
			if list, ok := v.([]any); ok {
				if top := longestReviews(list, 3); len(top) > 0 {
					out[k] = top
					continue
				}
			}
			out[k] = v
		default:
			out[k] = personName(v)
		}
	}
	return out
}

func skipMarkupType(obj map[string]any) bool {
	raw, ok := obj["@type"]
	if !ok {
		return true
	}
	switch t := raw.(type) {
	case string:
		return skipMarkupTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && skipMarkupTypes[s] {
				return true
			}
		}
	}
	return false
}

// flattenImage reduces image markup to a single URL: the first of a URL
// list, or the url of an ImageObject. Anything else passes through.
func flattenImage(v any) any {
	switch img := v.(type) {
	case []any:
		if len(img) == 0 {
			return v
		}
		for _, item := range img {
			if _, ok := item.(string); !ok {
				return v
			}
		}
		return img[0]
	case map[string]any:
		if img["@type"] == "ImageObject" {
			if u, ok := img["url"]; ok {
				return u
			}
		}
		return v
	default:
		return v
	}
}

// personName replaces a Person object with its name.
func personName(v any) any {
	if m, ok := v.(map[string]any); ok && m["@type"] == "Person" {
		if name, ok := m["name"]; ok {
			return name
		}
	}
	return v
}

// longestReviews keeps the n reviews with the longest bodies.
func longestReviews(list []any, n int) []any {
	type scored struct {
		length int
		review any
	}
	bodies := make([]scored, 0, len(list))
	for _, r := range list {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		text, ok := m["reviewBody"].(string)
		if !ok {
			continue
		}
		bodies = append(bodies, scored{len(text), m})
	}
	sort.SliceStable(bodies, func(i, j int) bool { return bodies[i].length > bodies[j].length })
	if len(bodies) > n {
		bodies = bodies[:n]
	}
	out := make([]any, len(bodies))
	for i, b := range bodies {
		out[i] = b.review
	}
	return out
}

// itemName finds a display name in the item, trying the usual fields and
// falling back to a name derived from the URL path.
func itemName(item any) string {
	switch it := item.(type) {
	case []any:
		for _, sub := range it {
			if name := itemName(sub); name != "" {
				return name
			}
		}
		return ""
	case map[string]any:
		for _, field := range nameFields {
			if s, ok := it[field].(string); ok && s != "" {
				return s
			}
		}
		if s, ok := it["url"].(string); ok && s != "" {
			return nameFromURL(s)
		}
		if s, ok := it["@id"].(string); ok && s != "" {
			return nameFromURL(s)
		}
		return ""
	default:
		return ""
	}
}

// nameFromURL title-cases the longest path segment of the URL.
func nameFromURL(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	_, urlPath, ok := strings.Cut(trimmed, "/")
	if !ok {
		return ""
	}
	longest := ""
	for _, part := range strings.Split(urlPath, "/") {
		if len(part) > len(longest) {
			longest = part
		}
	}
	words := strings.Fields(strings.ReplaceAll(longest, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// docID derives a stable document id from the URL.
func docID(url string) string {
	h := fnv.New64a()
	io.WriteString(h, url)
	return strconv.FormatUint(h.Sum64(), 10)
}

// parsePrecomputedLine splits a url<TAB>json<TAB>vector row into documents.
// Multi-item rows share the row's embedding.
func parsePrecomputedLine(line, site string) ([]retrieval.Document, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("want 3 tab-separated columns, got %d", len(parts))
	}
	embedding, err := parseVector(parts[2])
	if err != nil {
		return nil, err
	}
	docs := documentsFromJSON(parts[0], parts[1], site)
	if len(docs) == 0 {
		return nil, errors.New("no usable items in row")
	}
	for i := range docs {
		docs[i].Embedding = embedding
	}
	return docs, nil
}

func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, errors.New("empty embedding")
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

func formatVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
