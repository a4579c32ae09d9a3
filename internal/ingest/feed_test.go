package ingest

import (
	"strings"
	"testing"
)

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:atom="http://www.w3.org/2005/Atom">
  <channel>
    <title>Kitchen Stories</title>
    <description>Cooking talk</description>
    <atom:link href="https://pods.example/feed.xml" rel="self"/>
    <link>https://pods.example</link>
    <language>en-us</language>
    <itunes:image href="https://pods.example/cover.jpg"/>
    <item>
      <title>Sourdough Basics</title>
      <description>Starters and hydration.</description>
      <pubDate>Mon, 06 Jan 2025 08:00:00 GMT</pubDate>
      <link>https://pods.example/episodes/sourdough-basics</link>
      <guid isPermaLink="false">ep-001</guid>
      <enclosure url="https://cdn.example/ep1.mp3" type="audio/mpeg" length="52428800"/>
      <itunes:duration>45:30</itunes:duration>
      <itunes:episode>1</itunes:episode>
      <itunes:season>2</itunes:season>
    </item>
    <item>
      <title>Untitled Tape</title>
      <description>Lost recording.</description>
      <pubDate>Tue, 07 Jan 2025 08:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Lab Notes</title>
  <subtitle>Research digests</subtitle>
  <link rel="self" href="https://lab.example/atom.xml"/>
  <link rel="alternate" href="https://lab.example"/>
  <entry>
    <title>Enzyme Kinetics</title>
    <summary>Rates and curves.</summary>
    <published>2025-02-01T10:00:00Z</published>
    <link rel="alternate" href="https://lab.example/notes/enzyme-kinetics"/>
  </entry>
  <entry>
    <title>Updated Only</title>
    <summary>No publish stamp.</summary>
    <updated>2025-03-05T09:00:00Z</updated>
    <link href="https://lab.example/notes/updated-only"/>
  </entry>
</feed>`

func TestFeedToSchemaRSS(t *testing.T) {
	episodes, err := feedToSchema([]byte(rssSample), "https://pods.example/feed.xml")
	if err != nil {
		t.Fatalf("feedToSchema() error: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("got %d episodes, want 2", len(episodes))
	}

	ep := episodes[0]
	if ep["@type"] != "PodcastEpisode" {
		t.Errorf("@type = %v", ep["@type"])
	}
	if ep["name"] != "Sourdough Basics" {
		t.Errorf("name = %v", ep["name"])
	}
	if ep["url"] != "https://pods.example/episodes/sourdough-basics" {
		t.Errorf("url = %v", ep["url"])
	}
	if ep["identifier"] != "ep-001" {
		t.Errorf("identifier = %v, want the guid", ep["identifier"])
	}
	if ep["duration"] != "PT45M30S" {
		t.Errorf("duration = %v", ep["duration"])
	}
	if ep["episodeNumber"] != 1 {
		t.Errorf("episodeNumber = %v", ep["episodeNumber"])
	}
	season, ok := ep["partOfSeason"].(map[string]any)
	if !ok || season["seasonNumber"] != 2 {
		t.Errorf("partOfSeason = %v", ep["partOfSeason"])
	}

	media, ok := ep["associatedMedia"].(map[string]any)
	if !ok {
		t.Fatalf("associatedMedia = %v", ep["associatedMedia"])
	}
	if media["@type"] != "AudioObject" || media["contentUrl"] != "https://cdn.example/ep1.mp3" {
		t.Errorf("associatedMedia = %v", media)
	}
	if media["encodingFormat"] != "audio/mpeg" {
		t.Errorf("encodingFormat = %v", media["encodingFormat"])
	}
	if media["contentSize"] != 52428800 {
		t.Errorf("contentSize = %v", media["contentSize"])
	}

	series, ok := ep["partOf"].(map[string]any)
	if !ok {
		t.Fatalf("partOf = %v", ep["partOf"])
	}
	if series["@type"] != "PodcastSeries" || series["name"] != "Kitchen Stories" {
		t.Errorf("series = %v", series)
	}
	if series["url"] != "https://pods.example" {
		t.Errorf("series url = %v", series["url"])
	}
	if series["inLanguage"] != "en-us" {
		t.Errorf("series language = %v", series["inLanguage"])
	}
	img, ok := series["image"].(map[string]any)
	if !ok || img["url"] != "https://pods.example/cover.jpg" {
		t.Errorf("series image = %v", series["image"])
	}

	// The second item carries no link, guid, or enclosure.
	if episodes[1]["url"] != "https://pods.example/episode/untitled-tape" {
		t.Errorf("synthetic url = %v", episodes[1]["url"])
	}
}

func TestFeedToSchemaAtom(t *testing.T) {
	episodes, err := feedToSchema([]byte(atomSample), "https://lab.example/atom.xml")
	if err != nil {
		t.Fatalf("feedToSchema() error: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("got %d episodes, want 2", len(episodes))
	}

	ep := episodes[0]
	if ep["name"] != "Enzyme Kinetics" {
		t.Errorf("name = %v", ep["name"])
	}
	if ep["url"] != "https://lab.example/notes/enzyme-kinetics" {
		t.Errorf("url = %v", ep["url"])
	}
	if ep["datePublished"] != "2025-02-01T10:00:00Z" {
		t.Errorf("datePublished = %v", ep["datePublished"])
	}
	if ep["description"] != "Rates and curves." {
		t.Errorf("description = %v", ep["description"])
	}

	if episodes[1]["datePublished"] != "2025-03-05T09:00:00Z" {
		t.Errorf("updated fallback = %v", episodes[1]["datePublished"])
	}
	if episodes[1]["url"] != "https://lab.example/notes/updated-only" {
		t.Errorf("unqualified link = %v", episodes[1]["url"])
	}

	series, ok := ep["partOf"].(map[string]any)
	if !ok || series["name"] != "Lab Notes" {
		t.Fatalf("series = %v", ep["partOf"])
	}
	if series["url"] != "https://lab.example" {
		t.Errorf("series url = %v, want the alternate link", series["url"])
	}
}

func TestFeedToSchemaRejectsPlainXML(t *testing.T) {
	_, err := feedToSchema([]byte("<data><row/></data>"), "")
	if err == nil {
		t.Fatal("want error for non-feed xml")
	}
	if !strings.Contains(err.Error(), "not an RSS or Atom feed") {
		t.Errorf("error = %v", err)
	}
}

func TestNormalizeDuration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PT2M", "PT2M"},
		{"", ""},
		{"90", "PT1M30S"},
		{"3661", "PT1H1M1S"},
		{"0", "PT0S"},
		{"02:15", "PT2M15S"},
		{"1:02:03", "PT1H2M3S"},
		{"n/a", "n/a"},
	}
	for _, tt := range tests {
		if got := normalizeDuration(tt.in); got != tt.want {
			t.Errorf("normalizeDuration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sourdough Basics", "sourdough-basics"},
		{"  Hello,   World!  ", "hello-world"},
		{"Épisode #42: déjà vu", "pisode-42-d-j-vu"},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEpisodeDocuments(t *testing.T) {
	episodes := []map[string]any{
		{"@type": "PodcastEpisode", "name": "No Link"},
		{"@type": "PodcastEpisode"},
		{"@type": "PodcastEpisode", "name": "Named", "url": "https://pods.example/x"},
	}

	docs := episodeDocuments(episodes, "podcasts")
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2 (the bare episode is skipped)", len(docs))
	}
	if docs[0].URL != "synthetic:podcasts:No Link" {
		t.Errorf("synthetic url = %q", docs[0].URL)
	}
	if docs[0].Name != "No Link" {
		t.Errorf("name = %q", docs[0].Name)
	}
	if docs[1].URL != "https://pods.example/x" {
		t.Errorf("url = %q", docs[1].URL)
	}
	if docs[1].Site != "podcasts" {
		t.Errorf("site = %q", docs[1].Site)
	}
}
