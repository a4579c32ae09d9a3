// Package schemaorg maps corpus sites to their schema.org item types and
// trims schema.org objects down to prompt-sized payloads.
package schemaorg

import "strings"

// BaseNamespace qualifies item-type names throughout the prompt store.
const BaseNamespace = "http://nlweb.ai/base"

// recipeSites are the corpus sites whose items are recipes.
var recipeSites = map[string]bool{
	"seriouseats":    true,
	"hebbarskitchen": true,
	"latam_recipes":  true,
	"woksoflife":     true,
	"cheftariq":      true,
	"spruce":         true,
	"nytimes":        true,
}

// SiteItemType returns the qualified item type ("{namespace}Local") for a
// site. Unknown sites get the generic "Items".
func SiteItemType(site string) string {
	local := "Items"
	switch {
	case site == "imdb":
		local = "Movie"
	case recipeSites[site]:
		local = "Recipe"
	case site == "npr podcasts":
		local = "Thing"
	case site == "neurips":
		local = "Paper"
	case site == "backcountry":
		local = "Outdoor Gear"
	case site == "tripadvisor":
		local = "Restaurant"
	case site == "zillow":
		local = "RealEstate"
	}
	return Qualify(local)
}

// Qualify wraps a local type name in the base namespace.
func Qualify(local string) string {
	return "{" + BaseNamespace + "}" + local
}

// TypeLocal strips the namespace qualifier from an item type. Unqualified
// names pass through unchanged.
func TypeLocal(itemType string) string {
	if i := strings.LastIndex(itemType, "}"); i >= 0 {
		return itemType[i+1:]
	}
	return itemType
}

// PrettySite renders a site identifier for display: underscores become
// spaces and each word is capitalized.
func PrettySite(site string) string {
	words := strings.Fields(strings.ReplaceAll(site, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
