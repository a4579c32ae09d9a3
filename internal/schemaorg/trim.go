package schemaorg

import "encoding/json"

// Attributes dropped per item type before an object is shown to a model.
// Trimming is purely subtractive; unknown types pass through whole.
var trimSkip = map[string][]string{
	"Recipe":   {"mainEntityOfPage", "publisher", "image", "datePublished", "dateModified", "author"},
	"Movie":    {"mainEntityOfPage", "publisher", "image", "datePublished", "dateModified", "author", "trailer"},
	"TVSeries": {"mainEntityOfPage", "publisher", "image", "datePublished", "dateModified", "author", "trailer"},
}

// Harder variants used where token budget matters more than completeness,
// such as assembling synthesis input.
var trimSkipHard = map[string][]string{
	"Recipe":   {"mainEntityOfPage", "publisher", "image", "datePublished", "dateModified", "author", "review", "recipeYield", "recipeInstructions", "nutrition"},
	"Movie":    {"mainEntityOfPage", "publisher", "image", "datePublished", "dateModified", "author", "trailer", "actor", "director", "creator", "review"},
	"TVSeries": {"mainEntityOfPage", "publisher", "image", "datePublished", "dateModified", "author", "trailer", "actor", "director", "creator", "review"},
}

// Jsonify parses v when it is a JSON-encoded string; anything else (or an
// unparsable string) comes back unchanged.
func Jsonify(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return v
	}
	return parsed
}

// Trim drops the noisy attributes of a schema.org object based on its
// @type. Objects typed exactly "Thing" and unknown types pass through.
func Trim(v any) any {
	return trim(v, trimSkip)
}

// TrimHard is Trim with the aggressive skip-sets.
func TrimHard(v any) any {
	return trim(v, trimSkipHard)
}

func trim(v any, skipSets map[string][]string) any {
	v = Jsonify(v)
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}

	types := objectTypes(obj)
	if len(types) == 1 && types[0] == "Thing" {
		return obj
	}
	for _, t := range types {
		if skip, ok := skipSets[t]; ok {
			return dropAttrs(obj, skip)
		}
	}
	return obj
}

// objectTypes returns the object's @type values as a list, defaulting to
// ["Thing"].
func objectTypes(obj map[string]any) []string {
	raw, ok := obj["@type"]
	if !ok {
		return []string{"Thing"}
	}
	switch t := raw.(type) {
	case string:
		return []string{t}
	case []any:
		types := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				types = append(types, s)
			}
		}
		if len(types) == 0 {
			return []string{"Thing"}
		}
		return types
	default:
		return []string{"Thing"}
	}
}

func dropAttrs(obj map[string]any, skip []string) map[string]any {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if skipSet[k] {
			continue
		}
		out[k] = v
	}
	return out
}
