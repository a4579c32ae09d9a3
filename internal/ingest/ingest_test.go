package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/askweb/askweb/internal/config"
	"github.com/askweb/askweb/internal/embeddings"
	"github.com/askweb/askweb/internal/retrieval"
)

type fakeStore struct {
	uploads [][]retrieval.Document
	deleted []string
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) Search(ctx context.Context, query string, sites []string, limit int) ([]retrieval.Item, error) {
	return nil, nil
}

func (f *fakeStore) SearchByURL(ctx context.Context, url string) (*retrieval.Item, error) {
	return nil, nil
}

func (f *fakeStore) Upload(ctx context.Context, docs []retrieval.Document) (int, error) {
	batch := make([]retrieval.Document, len(docs))
	copy(batch, docs)
	f.uploads = append(f.uploads, batch)
	return len(docs), nil
}

func (f *fakeStore) DeleteSite(ctx context.Context, site string) (int, error) {
	f.deleted = append(f.deleted, site)
	return 7, nil
}

func (f *fakeStore) uploaded() []retrieval.Document {
	var all []retrieval.Document
	for _, batch := range f.uploads {
		all = append(all, batch...)
	}
	return all
}

type fakeVectorizer struct {
	batches  [][]string
	batchMax int
}

func (f *fakeVectorizer) Name() string   { return "fake" }
func (f *fakeVectorizer) Dimension() int { return 3 }

func (f *fakeVectorizer) MaxBatchSize() int {
	if f.batchMax > 0 {
		return f.batchMax
	}
	return 512
}

func (f *fakeVectorizer) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeVectorizer) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{0.1, 0.2, 0.3}
	}
	return vecs, nil
}

func newTestLoader(t *testing.T) (*Loader, *fakeStore, *fakeVectorizer) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Retrieval.PreferredEndpoint = "fake"
	cfg.Embedding.PreferredProvider = "fake"
	cfg.Embedding.TimeoutSeconds = 5
	cfg.NLWeb.JSONDataFolder = t.TempDir()
	cfg.NLWeb.JSONWithEmbeddingsFolder = t.TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &fakeStore{}
	vectorizer := &fakeVectorizer{}

	retriever := retrieval.NewClient(cfg.Retrieval, nil, map[string]retrieval.Factory{
		"fake": func() (retrieval.Endpoint, error) { return store, nil },
	}, logger, nil)
	embedder := embeddings.NewRouter(cfg.Embedding, map[string]embeddings.Factory{
		"fake": func() (embeddings.Provider, error) { return vectorizer, nil },
	}, logger, nil)

	return NewLoader(cfg, retriever, embedder, logger), store, vectorizer
}

const recipeRows = "https://food.example/pasta\t{\"@type\":\"Recipe\",\"name\":\"Weeknight Pasta\"}\n" +
	"https://food.example/salad\t{\"@type\":\"Recipe\",\"name\":\"Kale Salad\"}\n"

func TestLoadJSONLEmbedsAndUploads(t *testing.T) {
	loader, store, vectorizer := newTestLoader(t)
	path := writeTempFile(t, "recipes.jsonl", recipeRows)

	n, err := loader.Load(context.Background(), path, "food")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Load() = %d, want 2", n)
	}
	if len(vectorizer.batches) != 1 || len(vectorizer.batches[0]) != 2 {
		t.Errorf("embed batches = %v", vectorizer.batches)
	}

	docs := store.uploaded()
	if len(docs) != 2 {
		t.Fatalf("uploaded %d documents, want 2", len(docs))
	}
	if docs[0].URL != "https://food.example/pasta" || docs[0].Name != "Weeknight Pasta" {
		t.Errorf("first doc = %+v", docs[0])
	}
	if docs[0].Site != "food" {
		t.Errorf("site = %q", docs[0].Site)
	}
	if len(docs[0].Embedding) != 3 {
		t.Errorf("embedding = %v", docs[0].Embedding)
	}
}

func TestLoadWritesEmbeddingCache(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	path := writeTempFile(t, "recipes.jsonl", recipeRows)

	if _, err := loader.Load(context.Background(), path, "food"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cache := filepath.Join(loader.cfg.NLWeb.JSONWithEmbeddingsFolder, "recipes.jsonl")
	data, err := os.ReadFile(cache)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("cache has %d rows, want 2", len(lines))
	}
	cols := strings.Split(lines[0], "\t")
	if len(cols) != 3 {
		t.Fatalf("cache row has %d columns, want 3", len(cols))
	}
	if cols[0] != "https://food.example/pasta" {
		t.Errorf("cache url = %q", cols[0])
	}
	vec, err := parseVector(cols[2])
	if err != nil {
		t.Fatalf("cache vector: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("cache vector = %v", vec)
	}
}

func TestLoadReusesCachedEmbeddings(t *testing.T) {
	loader, store, vectorizer := newTestLoader(t)
	path := writeTempFile(t, "recipes.jsonl", recipeRows)
	ctx := context.Background()

	if _, err := loader.Load(ctx, path, "food"); err != nil {
		t.Fatalf("first Load() error: %v", err)
	}
	n, err := loader.Load(ctx, path, "food")
	if err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if n != 2 {
		t.Errorf("second Load() = %d, want 2", n)
	}
	if len(vectorizer.batches) != 1 {
		t.Errorf("embedder called %d times, want 1 (cache hit)", len(vectorizer.batches))
	}
	if len(store.uploads) != 2 {
		t.Fatalf("uploads = %d batches, want 2", len(store.uploads))
	}
	second := store.uploads[1]
	if len(second) != 2 || len(second[0].Embedding) != 3 {
		t.Errorf("cached upload batch = %+v", second)
	}
}

func TestLoadForceRecompute(t *testing.T) {
	loader, _, vectorizer := newTestLoader(t)
	path := writeTempFile(t, "recipes.jsonl", recipeRows)
	ctx := context.Background()

	if _, err := loader.Load(ctx, path, "food"); err != nil {
		t.Fatalf("first Load() error: %v", err)
	}
	loader.ForceRecompute = true
	if _, err := loader.Load(ctx, path, "food"); err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if len(vectorizer.batches) != 2 {
		t.Errorf("embedder called %d times, want 2 with recompute forced", len(vectorizer.batches))
	}
}

func TestLoadSplitsBatches(t *testing.T) {
	loader, store, vectorizer := newTestLoader(t)
	loader.BatchSize = 2

	var rows strings.Builder
	for _, name := range []string{"One", "Two", "Three", "Four", "Five"} {
		rows.WriteString("https://food.example/" + strings.ToLower(name))
		rows.WriteString("\t{\"@type\":\"Recipe\",\"name\":\"" + name + "\"}\n")
	}
	path := writeTempFile(t, "five.jsonl", rows.String())

	n, err := loader.Load(context.Background(), path, "food")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 5 {
		t.Errorf("Load() = %d, want 5", n)
	}
	var sizes []int
	for _, b := range vectorizer.batches {
		sizes = append(sizes, len(b))
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("embed batch sizes = %v, want [2 2 1]", sizes)
	}
	if len(store.uploads) != 3 {
		t.Errorf("upload batches = %d, want 3", len(store.uploads))
	}
}

func TestLoadBatchCappedByProvider(t *testing.T) {
	loader, _, vectorizer := newTestLoader(t)
	vectorizer.batchMax = 2
	loader.BatchSize = 100

	rows := recipeRows + "https://food.example/soup\t{\"@type\":\"Recipe\",\"name\":\"Miso Soup\"}\n"
	path := writeTempFile(t, "three.jsonl", rows)

	if _, err := loader.Load(context.Background(), path, "food"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(vectorizer.batches) != 2 {
		t.Errorf("embedder called %d times, want 2 under the provider cap", len(vectorizer.batches))
	}
}

func TestLoadPrecomputedInput(t *testing.T) {
	loader, store, vectorizer := newTestLoader(t)
	path := writeTempFile(t, "rows.txt",
		"https://a.example/x\t{\"@type\":\"Recipe\",\"name\":\"X\"}\t[0.5,0.25]\n"+
			"https://a.example/broken\tnot-json\n"+
			"https://a.example/y\t{\"@type\":\"Recipe\",\"name\":\"Y\"}\t[0.5,0.75]\n")

	n, err := loader.Load(context.Background(), path, "food")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Load() = %d, want 2 with the malformed row skipped", n)
	}
	if len(vectorizer.batches) != 0 {
		t.Errorf("embedder called %d times, want 0 for precomputed rows", len(vectorizer.batches))
	}
	docs := store.uploaded()
	if len(docs) != 2 || docs[0].Embedding[0] != 0.5 {
		t.Errorf("uploaded = %+v", docs)
	}
}

func TestLoadCSV(t *testing.T) {
	loader, store, _ := newTestLoader(t)
	path := writeTempFile(t, "menu.csv",
		"url,title,description\nhttps://cafe.example/brunch,Brunch Menu,Eggs and toast\n")

	n, err := loader.Load(context.Background(), path, "cafe")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Load() = %d, want 1", n)
	}
	docs := store.uploaded()
	if docs[0].Name != "Brunch Menu" || docs[0].URL != "https://cafe.example/brunch" {
		t.Errorf("doc = %+v", docs[0])
	}
}

func TestLoadFeed(t *testing.T) {
	loader, store, _ := newTestLoader(t)
	path := writeTempFile(t, "feed.xml", rssSample)

	n, err := loader.Load(context.Background(), path, "podcasts")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Load() = %d, want 2 episodes", n)
	}
	docs := store.uploaded()
	if docs[0].Name != "Sourdough Basics" {
		t.Errorf("first episode = %+v", docs[0])
	}
	if !strings.Contains(docs[0].SchemaJSON, "PodcastEpisode") {
		t.Errorf("schema json = %q", docs[0].SchemaJSON)
	}
}

func TestLoadResolvesDataFolder(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	path := filepath.Join(loader.cfg.NLWeb.JSONDataFolder, "recipes.jsonl")
	if err := os.WriteFile(path, []byte(recipeRows), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := loader.Load(context.Background(), "recipes.jsonl", "food")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Load() = %d, want 2", n)
	}
}

func TestLoadMissingInput(t *testing.T) {
	loader, _, _ := newTestLoader(t)
	_, err := loader.Load(context.Background(), "absent.jsonl", "food")
	if err == nil {
		t.Fatal("want error for missing input")
	}
	if !strings.Contains(err.Error(), "input not found") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadRemoteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, recipeRows)
	}))
	defer srv.Close()

	loader, store, _ := newTestLoader(t)
	n, err := loader.Load(context.Background(), srv.URL+"/data.jsonl", "food")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Load() = %d, want 2", n)
	}
	if len(store.uploaded()) != 2 {
		t.Errorf("uploaded = %d", len(store.uploaded()))
	}

	cache := filepath.Join(loader.cfg.NLWeb.JSONWithEmbeddingsFolder, "data.jsonl")
	if _, err := os.Stat(cache); err != nil {
		t.Errorf("remote input cache missing: %v", err)
	}
}

func TestLoadURLList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, rssSample)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/list.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "# podcast feeds\n"+srv.URL+"/feed.xml\nnot-a-url\n")
	})

	loader, store, _ := newTestLoader(t)
	n, err := loader.LoadURLList(context.Background(), srv.URL+"/list.txt", "podcasts")
	if err != nil {
		t.Fatalf("LoadURLList() error: %v", err)
	}
	if n != 2 {
		t.Errorf("LoadURLList() = %d, want 2", n)
	}
	docs := store.uploaded()
	if len(docs) != 2 || docs[0].Name != "Sourdough Basics" {
		t.Errorf("uploaded = %+v", docs)
	}
}

func TestDeleteSite(t *testing.T) {
	loader, store, _ := newTestLoader(t)
	n, err := loader.DeleteSite(context.Background(), "food")
	if err != nil {
		t.Fatalf("DeleteSite() error: %v", err)
	}
	if n != 7 {
		t.Errorf("DeleteSite() = %d, want 7", n)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "food" {
		t.Errorf("deleted sites = %v", store.deleted)
	}
}
