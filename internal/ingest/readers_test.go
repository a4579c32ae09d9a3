package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name           string
		file           string
		content        string
		want           format
		wantEmbeddings bool
	}{
		{
			name:    "jsonl extension",
			file:    "recipes.jsonl",
			content: "https://a\t{\"k\":1}\n",
			want:    formatJSON,
		},
		{
			name:           "jsonl with embedding column",
			file:           "recipes.jsonl",
			content:        "https://a\t{\"k\":1}\t[0.1,0.2]\n",
			want:           formatJSON,
			wantEmbeddings: true,
		},
		{
			name:    "csv extension",
			file:    "menu.csv",
			content: "url,name\nhttps://a,Salad\n",
			want:    formatCSV,
		},
		{
			name:    "xml with rss markers",
			file:    "feed.xml",
			content: "<?xml version=\"1.0\"?>\n<rss version=\"2.0\"><channel></channel></rss>",
			want:    formatRSS,
		},
		{
			name:    "xml without feed markers",
			file:    "data.xml",
			content: "<data><row/></data>",
			want:    formatUnknown,
		},
		{
			name:    "no extension json object",
			file:    "payload",
			content: `{"@type":"Recipe","url":"https://a"}`,
			want:    formatJSON,
		},
		{
			name:    "no extension tab row",
			file:    "rows",
			content: "https://a\t{\"k\":1}\n",
			want:    formatJSON,
		},
		{
			name:    "no extension comma row",
			file:    "table",
			content: "url,name\nhttps://a,Salad\n",
			want:    formatCSV,
		},
		{
			name:    "no extension feed",
			file:    "podcast",
			content: "<rss version=\"2.0\"><channel><item/></channel></rss>",
			want:    formatRSS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, tt.file, tt.content)
			got, hasEmbeddings, err := detectFormat(path)
			if err != nil {
				t.Fatalf("detectFormat() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
			if hasEmbeddings != tt.wantEmbeddings {
				t.Errorf("hasEmbeddings = %v, want %v", hasEmbeddings, tt.wantEmbeddings)
			}
		})
	}
}

func TestLineHasEmbedding(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"bracketed vector", "https://a\t{\"k\":1}\t[0.1,0.2]", true},
		{"bare float vector", "https://a\t{\"k\":1}\t0.1,0.2,0.3", true},
		{"text third column", "https://a\t{\"k\":1}\tnot a vector", false},
		{"two columns", "https://a\t{\"k\":1}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lineHasEmbedding(tt.line); got != tt.want {
				t.Errorf("lineHasEmbedding(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseJSONFileSkipsBadRows(t *testing.T) {
	path := writeTempFile(t, "mixed.jsonl",
		"https://a.example/x\t{\"@type\":\"Recipe\",\"name\":\"X\"}\n"+
			"\n"+
			"garbage line\n"+
			"https://a.example/y\t{\"@type\":\"Recipe\",\"name\":\"Y\"}\n")

	docs, err := parseJSONFile(path, "food")
	if err != nil {
		t.Fatalf("parseJSONFile() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Name != "X" || docs[1].Name != "Y" {
		t.Errorf("names = %q, %q", docs[0].Name, docs[1].Name)
	}
}

func TestParseCSVFile(t *testing.T) {
	path := writeTempFile(t, "menu.csv",
		"URL,Title,description\n"+
			"https://cafe.example/brunch,Brunch Menu,Eggs and toast\n"+
			",Evening Special,Chef's pick\n")

	docs, err := parseCSVFile(path, "cafe")
	if err != nil {
		t.Fatalf("parseCSVFile() error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].URL != "https://cafe.example/brunch" {
		t.Errorf("first url = %q", docs[0].URL)
	}
	if docs[0].Name != "Brunch Menu" {
		t.Errorf("first name = %q", docs[0].Name)
	}
	if docs[1].URL != "csv:menu.csv:1" {
		t.Errorf("fallback url = %q", docs[1].URL)
	}
	if docs[1].Name != "Evening Special" {
		t.Errorf("second name = %q", docs[1].Name)
	}
	if docs[0].Site != "cafe" {
		t.Errorf("site = %q", docs[0].Site)
	}
}

func TestParseCSVFileNameFallback(t *testing.T) {
	path := writeTempFile(t, "rows.csv", "id,notes\n42,interesting\n")
	docs, err := parseCSVFile(path, "misc")
	if err != nil {
		t.Fatalf("parseCSVFile() error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].Name != "Row 1 from rows.csv" {
		t.Errorf("name = %q", docs[0].Name)
	}
	if docs[0].URL != "42" {
		t.Errorf("url = %q, want the id column", docs[0].URL)
	}
}

func TestReadLinesSkipsBlanks(t *testing.T) {
	path := writeTempFile(t, "lines.txt", "one\n\n  \ntwo\n")
	lines, err := readLines(path)
	if err != nil {
		t.Fatalf("readLines() error: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %v", lines)
	}
}
