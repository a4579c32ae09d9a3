package ingest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/askweb/askweb/internal/retrieval"
)

// feedEnvelope covers both RSS 2.0 (<rss><channel>) and Atom (<feed>)
// documents; XMLName tells them apart after unmarshal.
type feedEnvelope struct {
	XMLName xml.Name
	Channel *feedChannel `xml:"channel"`

	// Atom feeds carry these at the root.
	Title    string      `xml:"title"`
	Subtitle string      `xml:"subtitle"`
	Links    []feedLink  `xml:"link"`
	Entries  []atomEntry `xml:"entry"`
}

type feedChannel struct {
	Title       string     `xml:"title"`
	Description string     `xml:"description"`
	Links       []feedLink `xml:"link"`
	Language    string     `xml:"language"`
	Image       feedImage  `xml:"image"`
	ItunesImage itunesImg  `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
	Items       []feedItem `xml:"item"`
}

type feedItem struct {
	Title       string          `xml:"title"`
	Description string          `xml:"description"`
	PubDate     string          `xml:"pubDate"`
	Links       []feedLink      `xml:"link"`
	GUID        feedGUID        `xml:"guid"`
	Enclosures  []feedEnclosure `xml:"enclosure"`
	Duration    string          `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd duration"`
	Episode     string          `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd episode"`
	Season      string          `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd season"`
	ItunesImage itunesImg       `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
	Media       []mediaContent  `xml:"http://search.yahoo.com/mrss/ content"`
}

// feedLink holds both forms a feed uses: RSS <link>text</link> and Atom
// <link href="..."/>.
type feedLink struct {
	Rel   string `xml:"rel,attr"`
	Href  string `xml:"href,attr"`
	Value string `xml:",chardata"`
}

type feedGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type feedEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

type feedImage struct {
	URL string `xml:"url"`
}

type itunesImg struct {
	Href string `xml:"href,attr"`
}

type mediaContent struct {
	URL string `xml:"url,attr"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Links     []feedLink `xml:"link"`
}

// feedToSchema converts an RSS or Atom feed into schema.org
// PodcastEpisode objects, each referencing its PodcastSeries.
func feedToSchema(data []byte, feedURL string) ([]map[string]any, error) {
	var env feedEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	switch {
	case env.Channel != nil:
		return rssEpisodes(env.Channel, feedURL), nil
	case env.XMLName.Local == "feed":
		return atomEpisodes(&env, feedURL), nil
	default:
		return nil, fmt.Errorf("not an RSS or Atom feed: root element <%s>", env.XMLName.Local)
	}
}

func rssEpisodes(ch *feedChannel, feedURL string) []map[string]any {
	seriesURL := fixURL(plainLink(ch.Links))
	if seriesURL == "" {
		seriesURL = feedURL
	}
	series := map[string]any{
		"@type":       "PodcastSeries",
		"name":        ch.Title,
		"description": ch.Description,
		"url":         seriesURL,
	}
	if ch.ItunesImage.Href != "" {
		series["image"] = imageObject(ch.ItunesImage.Href)
	} else if ch.Image.URL != "" {
		series["image"] = imageObject(ch.Image.URL)
	}
	if ch.Language != "" {
		series["inLanguage"] = ch.Language
	}

	episodes := make([]map[string]any, 0, len(ch.Items))
	for _, item := range ch.Items {
		itemURL := bestItemURL(item, feedURL)
		if itemURL == "" && item.Title == "" {
			continue
		}

		ep := map[string]any{
			"@type":         "PodcastEpisode",
			"name":          item.Title,
			"description":   item.Description,
			"datePublished": item.PubDate,
		}
		if itemURL != "" {
			ep["url"] = itemURL
		}
		if guid := itemGUID(item); guid != "" && guid != itemURL {
			ep["identifier"] = guid
		}
		if audio := enclosureMedia(item.Enclosures); audio != nil {
			ep["associatedMedia"] = audio
		}
		if d := normalizeDuration(item.Duration); d != "" {
			ep["duration"] = d
		}
		if n, err := strconv.Atoi(strings.TrimSpace(item.Episode)); err == nil {
			ep["episodeNumber"] = n
		}
		if n, err := strconv.Atoi(strings.TrimSpace(item.Season)); err == nil {
			ep["partOfSeason"] = map[string]any{"@type": "PodcastSeason", "seasonNumber": n}
		}
		if item.ItunesImage.Href != "" {
			ep["image"] = imageObject(item.ItunesImage.Href)
		}
		ep["partOf"] = series
		episodes = append(episodes, ep)
	}
	return episodes
}

func atomEpisodes(env *feedEnvelope, feedURL string) []map[string]any {
	seriesURL := fixURL(alternateLink(env.Links))
	if seriesURL == "" {
		seriesURL = feedURL
	}
	series := map[string]any{
		"@type":       "PodcastSeries",
		"name":        env.Title,
		"description": env.Subtitle,
		"url":         seriesURL,
	}

	episodes := make([]map[string]any, 0, len(env.Entries))
	for _, entry := range env.Entries {
		entryURL := fixURL(alternateLink(entry.Links))
		if entryURL == "" && entry.Title == "" {
			continue
		}
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}

		ep := map[string]any{
			"@type":         "PodcastEpisode",
			"name":          entry.Title,
			"description":   entry.Summary,
			"datePublished": published,
		}
		if entryURL != "" {
			ep["url"] = entryURL
		}
		ep["partOf"] = series
		episodes = append(episodes, ep)
	}
	return episodes
}

// bestItemURL picks the item's canonical URL: link text or href, then a
// permalink guid, then enclosure and media URLs, and as a last resort a
// slug synthesized from the title under the feed's host.
func bestItemURL(item feedItem, feedURL string) string {
	var candidates []string
	for _, l := range item.Links {
		if v := strings.TrimSpace(l.Value); v != "" {
			candidates = append(candidates, fixURL(v))
		} else if l.Href != "" {
			candidates = append(candidates, fixURL(l.Href))
		}
	}
	if item.GUID.Value != "" && item.GUID.IsPermaLink != "false" {
		candidates = append(candidates, fixURL(item.GUID.Value))
	}
	for _, e := range item.Enclosures {
		if e.URL != "" {
			candidates = append(candidates, fixURL(e.URL))
		}
	}
	for _, m := range item.Media {
		if m.URL != "" {
			candidates = append(candidates, fixURL(m.URL))
		}
	}
	for _, c := range candidates {
		if c != "" && c != "https://" {
			return c
		}
	}
	return syntheticEpisodeURL(item.Title, feedURL)
}

func itemGUID(item feedItem) string {
	guid := strings.TrimSpace(item.GUID.Value)
	if guid == "" {
		return ""
	}
	if item.GUID.IsPermaLink == "true" {
		return fixURL(guid)
	}
	return guid
}

func enclosureMedia(enclosures []feedEnclosure) map[string]any {
	for _, e := range enclosures {
		if e.URL == "" {
			continue
		}
		audio := map[string]any{
			"@type":      "AudioObject",
			"contentUrl": fixURL(e.URL),
		}
		if e.Type != "" {
			audio["encodingFormat"] = e.Type
		}
		if n, err := strconv.Atoi(strings.TrimSpace(e.Length)); err == nil {
			audio["contentSize"] = n
		}
		return audio
	}
	return nil
}

func imageObject(rawURL string) map[string]any {
	return map[string]any{"@type": "ImageObject", "url": fixURL(rawURL)}
}

// plainLink returns the first link with text content, falling back to the
// first href, so RSS channels with interleaved atom:link elements resolve
// to the real channel link.
func plainLink(links []feedLink) string {
	for _, l := range links {
		if v := strings.TrimSpace(l.Value); v != "" {
			return v
		}
	}
	for _, l := range links {
		if l.Href != "" {
			return l.Href
		}
	}
	return ""
}

// alternateLink prefers rel=alternate, then any non-self href.
func alternateLink(links []feedLink) string {
	for _, l := range links {
		if l.Href != "" && (l.Rel == "" || l.Rel == "alternate") {
			return l.Href
		}
	}
	for _, l := range links {
		if l.Href != "" && l.Rel != "self" {
			return l.Href
		}
	}
	for _, l := range links {
		if l.Href != "" {
			return l.Href
		}
	}
	return ""
}

func syntheticEpisodeURL(title, feedURL string) string {
	if title == "" || feedURL == "" {
		return ""
	}
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return ""
	}
	slug := slugify(title)
	if slug == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s/episode/%s", u.Scheme, u.Host, slug)
}

func slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// normalizeDuration renders feed duration values as ISO 8601, accepting
// HH:MM:SS, MM:SS, bare seconds, or an already-formatted PT string.
func normalizeDuration(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "PT") {
		return s
	}
	parts := strings.Split(s, ":")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return s
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		secs := nums[0]
		h, m, sec := secs/3600, secs%3600/60, secs%60
		out := "PT"
		if h > 0 {
			out += strconv.Itoa(h) + "H"
		}
		if m > 0 {
			out += strconv.Itoa(m) + "M"
		}
		if sec > 0 || (h == 0 && m == 0) {
			out += strconv.Itoa(sec) + "S"
		}
		return out
	case 2:
		return fmt.Sprintf("PT%dM%dS", nums[0], nums[1])
	case 3:
		return fmt.Sprintf("PT%dH%dM%dS", nums[0], nums[1], nums[2])
	default:
		return s
	}
}

// fixURL fills in a missing scheme.
func fixURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if strings.HasPrefix(s, "//") {
		return "https:" + s
	}
	return "https://" + s
}

// parseFeedFile converts a feed file into documents. sourceURL, when the
// feed came from the network, anchors synthetic episode links.
func parseFeedFile(path, site, sourceURL string) ([]retrieval.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	episodes, err := feedToSchema(data, sourceURL)
	if err != nil {
		return nil, err
	}
	return episodeDocuments(episodes, site), nil
}

// episodeDocuments converts feed episodes into uploadable documents,
// synthesizing a URL for episodes that have none.
func episodeDocuments(episodes []map[string]any, site string) []retrieval.Document {
	docs := make([]retrieval.Document, 0, len(episodes))
	for _, ep := range episodes {
		epURL, _ := ep["url"].(string)
		name, _ := ep["name"].(string)
		if epURL == "" {
			if name == "" {
				continue
			}
			epURL = "synthetic:" + site + ":" + name
			ep["url"] = epURL
		}
		if name == "" {
			name = "Untitled Episode"
		}
		encoded, err := json.Marshal(ep)
		if err != nil {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:         docID(epURL),
			URL:        epURL,
			Name:       name,
			Site:       site,
			SchemaJSON: string(encoded),
		})
	}
	return docs
}
