package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/askweb/askweb/internal/retrieval"
)

type format int

const (
	formatUnknown format = iota
	formatJSON
	formatCSV
	formatRSS
)

// Schema rows with inline embedding vectors run long.
const maxLineBytes = 16 * 1024 * 1024

var rssMarkers = []string{"<rss", "<feed", "<channel>", "<item>", "<entry>", "xmlns:itunes"}

var (
	csvURLColumns  = []string{"url", "URL", "link", "Link", "id", "ID", "identifier"}
	csvNameColumns = []string{"name", "Name", "title", "Title", "heading", "Heading"}
)

// detectFormat sniffs the input shape from the file extension, falling
// back to the content, and reports whether rows already carry embedding
// vectors in a third tab-separated column.
func detectFormat(path string) (format, bool, error) {
	head, err := readHead(path, 4096)
	if err != nil {
		return formatUnknown, false, err
	}
	firstLine, _, _ := strings.Cut(string(head), "\n")
	firstLine = strings.TrimSpace(firstLine)
	hasEmbeddings := lineHasEmbedding(firstLine)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		return formatJSON, hasEmbeddings, nil
	case ".csv":
		return formatCSV, false, nil
	case ".xml", ".rss", ".atom":
		if hasRSSMarkers(string(head)) {
			return formatRSS, false, nil
		}
		return formatUnknown, false, nil
	}

	switch {
	case hasEmbeddings:
		return formatJSON, true, nil
	case strings.HasPrefix(firstLine, "{"), strings.HasPrefix(firstLine, "["):
		return formatJSON, false, nil
	case strings.HasPrefix(firstLine, "<"):
		if hasRSSMarkers(string(head)) {
			return formatRSS, false, nil
		}
		return formatUnknown, false, nil
	case strings.Contains(firstLine, "\t"):
		// url<TAB>json rows
		return formatJSON, false, nil
	case strings.Contains(firstLine, ","):
		return formatCSV, false, nil
	}
	return formatUnknown, false, nil
}

// lineHasEmbedding reports whether the third tab-separated column looks
// like a numeric vector.
func lineHasEmbedding(line string) bool {
	parts := strings.Split(line, "\t")
	if len(parts) < 3 {
		return false
	}
	vec := strings.TrimSpace(parts[2])
	if strings.HasPrefix(vec, "[") && strings.HasSuffix(vec, "]") {
		return true
	}
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ',', '-', '.', '+', 'e', 'E':
			return -1
		}
		return r
	}, vec)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasRSSMarkers(head string) bool {
	for _, marker := range rssMarkers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, n)
	read, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return head[:read], nil
}

// readLines returns the non-blank lines of the file.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// parseJSONFile converts url+JSON rows into documents, skipping rows that
// carry no extractable URL or payload.
func parseJSONFile(path, site string) ([]retrieval.Document, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	var docs []retrieval.Document
	for _, line := range lines {
		url, jsonData, ok := splitLine(line)
		if !ok {
			continue
		}
		docs = append(docs, documentsFromJSON(url, jsonData, site)...)
	}
	return docs, nil
}

// parseCSVFile converts a headered CSV into documents. Each row becomes
// one item whose schema JSON is the row object; the URL and name come from
// the usual columns, with generated fallbacks.
func parseCSVFile(path, site string) ([]retrieval.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	base := filepath.Base(path)
	var docs []retrieval.Document
	for index := 0; ; index++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return docs, fmt.Errorf("read csv row %d: %w", index, err)
		}

		row := make(map[string]any, len(header))
		for i, col := range header {
			val := ""
			if i < len(record) {
				val = record[i]
			}
			row[col] = val
		}

		url := firstColumn(row, csvURLColumns)
		if url == "" {
			url = fmt.Sprintf("csv:%s:%d", base, index)
		}
		name := firstColumn(row, csvNameColumns)
		if name == "" {
			name = fmt.Sprintf("Row %d from %s", index, base)
		}
		encoded, err := json.Marshal(row)
		if err != nil {
			continue
		}
		docs = append(docs, retrieval.Document{
			ID:         docID(url),
			URL:        url,
			Name:       name,
			Site:       site,
			SchemaJSON: string(encoded),
		})
	}
	return docs, nil
}

func firstColumn(row map[string]any, columns []string) string {
	for _, col := range columns {
		if v, ok := row[col].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
