package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// fetchTimeout bounds a single input download.
const fetchTimeout = 60 * time.Second

// isRemote reports whether the input path is an http(s) URL.
func isRemote(input string) bool {
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// fetch downloads a remote input to a temp file and returns its path. The
// caller removes the file via cleanup.
func (l *Loader) fetch(ctx context.Context, rawURL string) (string, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "askweb-ingest-*"+remoteExt(rawURL, resp.Header.Get("Content-Type")))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	l.logger.Debug("fetched remote input", "url", rawURL, "path", tmp.Name())
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// remoteExt picks a filename extension for a downloaded input so format
// detection can lean on it, from the Content-Type first and the URL path
// second.
func remoteExt(rawURL, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		return ".json"
	case strings.Contains(ct, "csv"):
		return ".csv"
	case strings.Contains(ct, "rss"), strings.Contains(ct, "atom"), strings.Contains(ct, "xml"):
		return ".xml"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		return ext
	}
	lower := strings.ToLower(u.Path)
	for _, kw := range []string{"/feed", "/rss", "/podcast"} {
		if strings.Contains(lower, kw) {
			return ".xml"
		}
	}
	return ""
}
