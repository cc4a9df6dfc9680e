package chromemdb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ocr-rag/internal/config"
	"ocr-rag/internal/models"
	"ocr-rag/internal/testutil"
)

func newManager(t *testing.T, mutate func(*config.RAGConfig)) *VectorDBManager {
	t.Helper()
	cfg := config.Default().RAG
	cfg.IndexDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewVectorDBManager(&cfg, testutil.NewVocabEmbedder())
	if err != nil {
		t.Fatalf("NewVectorDBManager() error = %v", err)
	}
	return m
}

func meta(source string, box models.BBox, img int) models.ChunkMetadata {
	return models.ChunkMetadata{Source: source, ImageFile: source, ImageNumber: &img, BBox: &box, PageWidth: 100, PageHeight: 200}
}

func TestBuildLoadSearchRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*config.RAGConfig)
	}{
		{"plain", nil},
		{"compressed", func(c *config.RAGConfig) { c.Compress = true }},
		{"encrypted", func(c *config.RAGConfig) { c.EncryptionKey = strings.Repeat("k", 32) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			m := newManager(t, tc.mutate)
			chunks := []string{"alpha beta", "gamma delta"}
			metas := []models.ChunkMetadata{meta("a.jpeg", models.BBox{1, 2, 3, 4}, 1), meta("b.jpeg", models.BBox{5, 6, 7, 8}, 2)}
			if err := m.Build(ctx, "s1", chunks, metas); err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			idx, err := m.Load(ctx, "s1")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if idx.Count() != 2 {
				t.Fatalf("Count() = %d, want 2", idx.Count())
			}
			docs, err := idx.Search(ctx, "alpha", 2)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(docs) != 2 {
				t.Fatalf("Search() returned %d docs", len(docs))
			}
			if docs[0].Content != "alpha beta" {
				t.Fatalf("top result = %q, want alpha beta", docs[0].Content)
			}
			if docs[0].Similarity < docs[1].Similarity {
				t.Fatalf("results not ordered by similarity: %v < %v", docs[0].Similarity, docs[1].Similarity)
			}
			got := docs[0].Metadata
			if got.Source != "a.jpeg" || got.BBox == nil || *got.BBox != (models.BBox{1, 2, 3, 4}) {
				t.Fatalf("metadata not restored: %+v", got)
			}
			if got.ImageNumber == nil || *got.ImageNumber != 1 || got.PageHeight != 200 {
				t.Fatalf("metadata not restored: %+v", got)
			}
		})
	}
}

func TestSearchClampsK(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)
	if err := m.Build(ctx, "s", []string{"one"}, []models.ChunkMetadata{{Source: "x"}}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	idx, err := m.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	docs, err := idx.Search(ctx, "one", 10)
	if err != nil || len(docs) != 1 {
		t.Fatalf("Search() = %v, %v", docs, err)
	}
	if docs[0].Metadata.BBox != nil || docs[0].Metadata.ImageNumber != nil {
		t.Fatalf("expected nil optional metadata: %+v", docs[0].Metadata)
	}
}

func TestSearchDeterministicTies(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)
	chunks := []string{"same words", "same words", "same words"}
	metas := []models.ChunkMetadata{{Source: "0"}, {Source: "1"}, {Source: "2"}}
	if err := m.Build(ctx, "s", chunks, metas); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	idx, err := m.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		docs, err := idx.Search(ctx, "same", 2)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if docs[0].Metadata.Source != "0" || docs[1].Metadata.Source != "1" {
			t.Fatalf("unstable tie order: %s, %s", docs[0].Metadata.Source, docs[1].Metadata.Source)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	m := newManager(t, nil)
	_, err := m.Load(context.Background(), "never-built")
	if !errors.Is(err, ErrIndexNotFound) {
		t.Fatalf("Load() error = %v, want ErrIndexNotFound", err)
	}
}

func TestRebuildReplaces(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)
	if err := m.Build(ctx, "s", []string{"a", "b", "c"}, make([]models.ChunkMetadata, 3)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if err := m.Build(ctx, "s", []string{"z"}, make([]models.ChunkMetadata, 1)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	idx, err := m.Load(ctx, "s")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("Count() = %d after rebuild, want 1", idx.Count())
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)
	if err := m.Delete("nothing"); err != nil {
		t.Fatalf("Delete() on missing session error = %v", err)
	}
	if err := m.Build(ctx, "s", []string{"a"}, make([]models.ChunkMetadata, 1)); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !m.Exists("s") {
		t.Fatalf("expected index to exist")
	}
	for i := 0; i < 2; i++ {
		if err := m.Delete("s"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if m.Exists("s") {
			t.Fatalf("index still present after delete")
		}
	}
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, nil)
	if err := m.Build(ctx, "s", nil, nil); err == nil {
		t.Fatalf("expected error for empty chunks")
	}
	if err := m.Build(ctx, "s", []string{"a"}, nil); err == nil {
		t.Fatalf("expected error for metadata mismatch")
	}

	failing := testutil.NewVocabEmbedder()
	failing.Err = errors.New("embedding service down")
	cfg := config.Default().RAG
	cfg.IndexDir = t.TempDir()
	fm, err := NewVectorDBManager(&cfg, failing)
	if err != nil {
		t.Fatalf("NewVectorDBManager() error = %v", err)
	}
	if err := fm.Build(ctx, "s", []string{"a"}, make([]models.ChunkMetadata, 1)); err == nil {
		t.Fatalf("expected embedding failure to surface")
	}
	if fm.Exists("s") {
		t.Fatalf("failed build must not leave an index")
	}
}

func TestNewVectorDBManagerRejectsShortKey(t *testing.T) {
	cfg := config.Default().RAG
	cfg.IndexDir = t.TempDir()
	cfg.EncryptionKey = "short"
	if _, err := NewVectorDBManager(&cfg, testutil.NewVocabEmbedder()); err == nil {
		t.Fatalf("expected key length error")
	}
}
