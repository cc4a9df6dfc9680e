package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"ocr-rag/internal/config"
	"ocr-rag/internal/embedding"
	"ocr-rag/internal/helper"
	"ocr-rag/internal/models"
)

// ErrIndexNotFound is returned by Load when a session was never indexed.
var ErrIndexNotFound = errors.New("no vector store found for session")

const (
	defaultCollection = "ocr_chunks"
	snapshotBase      = "index.gob"

	metaSource      = "source"
	metaImageFile   = "image_file"
	metaImageNumber = "image_number"
	metaBBox        = "bbox"
	metaPageWidth   = "page_width"
	metaPageHeight  = "page_height"
)

// VectorDBManager keeps one chromem-go snapshot file per session under
// baseDir/<session>/.
type VectorDBManager struct {
	baseDir        string
	collectionName string
	compress       bool
	encryptionKey  string
	embedder       embeddings.Embedder
}

// NewVectorDBManager validates the persistence settings.
func NewVectorDBManager(cfg *config.RAGConfig, embedder embeddings.Embedder) (*VectorDBManager, error) {
	if cfg.IndexDir == "" {
		return nil, fmt.Errorf("index dir is required")
	}
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	name := cfg.CollectionName
	if name == "" {
		name = defaultCollection
	}
	return &VectorDBManager{
		baseDir:        cfg.IndexDir,
		collectionName: name,
		compress:       cfg.Compress,
		encryptionKey:  cfg.EncryptionKey,
		embedder:       embedder,
	}, nil
}

func (m *VectorDBManager) sessionDir(sessionID string) string {
	return filepath.Join(m.baseDir, helper.SessionKey(sessionID))
}

func (m *VectorDBManager) filePath(sessionID string) string {
	name := snapshotBase
	if m.compress {
		name += ".gz"
	}
	if m.encryptionKey != "" {
		name += ".enc"
	}
	return filepath.Join(m.sessionDir(sessionID), name)
}

// Build embeds every chunk and replaces the session's index. The snapshot is
// written to a temp file and renamed so a concurrent Load never sees a
// partial file.
func (m *VectorDBManager) Build(ctx context.Context, sessionID string, chunks []string, metadatas []models.ChunkMetadata) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to index")
	}
	if len(chunks) != len(metadatas) {
		return fmt.Errorf("chunk/metadata count mismatch: %d != %d", len(chunks), len(metadatas))
	}

	vectors, err := m.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d != %d", len(vectors), len(chunks))
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(m.collectionName, map[string]string{"session_id": sessionID}, embedding.EmbeddingFunc(m.embedder))
	if err != nil {
		return fmt.Errorf("failed to create collection: %v", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i := range chunks {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("chunk-%05d", i),
			Content:   chunks[i],
			Metadata:  encodeMetadata(metadatas[i]),
			Embedding: vectors[i],
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}

	dir := m.sessionDir(sessionID)
	if err := helper.CreateFolder(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := db.ExportToFile(tmpPath, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	if err := os.Rename(tmpPath, m.filePath(sessionID)); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}

	log.Debug().Str("session_id", sessionID).Int("documents", len(docs)).Str("file", m.filePath(sessionID)).Msg("Vector index written")
	return nil
}

// Load imports the session snapshot. It returns ErrIndexNotFound when the
// session has no index.
func (m *VectorDBManager) Load(ctx context.Context, sessionID string) (*Index, error) {
	path := m.filePath(sessionID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, m.encryptionKey, m.collectionName); err != nil {
		return nil, fmt.Errorf("failed to import database: %v", err)
	}
	collection := db.GetCollection(m.collectionName, embedding.EmbeddingFunc(m.embedder))
	if collection == nil {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, sessionID)
	}
	return &Index{collection: collection}, nil
}

// Exists reports whether a snapshot is present for the session.
func (m *VectorDBManager) Exists(sessionID string) bool {
	_, err := os.Stat(m.filePath(sessionID))
	return err == nil
}

// Delete removes the session's index directory. Missing is not an error.
func (m *VectorDBManager) Delete(sessionID string) error {
	if err := os.RemoveAll(m.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to drop index: %v", err)
	}
	return nil
}

// Index is a loaded, read-only session index.
type Index struct {
	collection *chromem.Collection
}

// Count is the number of indexed chunks.
func (i *Index) Count() int {
	return i.collection.Count()
}

// Search returns up to k chunks ordered by similarity, highest first. Equal
// scores are ordered by document id so results are stable for a snapshot.
func (i *Index) Search(ctx context.Context, query string, k int) ([]models.Document, error) {
	n := i.collection.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	// rank everything so ties at the k boundary resolve the same way each time
	results, err := i.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Similarity != results[b].Similarity {
			return results[a].Similarity > results[b].Similarity
		}
		return results[a].ID < results[b].ID
	})
	if len(results) > k {
		results = results[:k]
	}

	docs := make([]models.Document, 0, len(results))
	for _, r := range results {
		meta, err := decodeMetadata(r.Metadata)
		if err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("Skipping chunk metadata")
		}
		docs = append(docs, models.Document{
			Content:    r.Content,
			Metadata:   meta,
			Similarity: r.Similarity,
		})
	}
	return docs, nil
}

func encodeMetadata(m models.ChunkMetadata) map[string]string {
	out := map[string]string{
		metaSource:     m.Source,
		metaImageFile:  m.ImageFile,
		metaPageWidth:  strconv.Itoa(m.PageWidth),
		metaPageHeight: strconv.Itoa(m.PageHeight),
	}
	if m.ImageNumber != nil {
		out[metaImageNumber] = strconv.Itoa(*m.ImageNumber)
	}
	if m.BBox != nil {
		out[metaBBox] = models.MarshalBBox(*m.BBox)
	}
	return out
}

func decodeMetadata(raw map[string]string) (models.ChunkMetadata, error) {
	m := models.ChunkMetadata{
		Source:    raw[metaSource],
		ImageFile: raw[metaImageFile],
	}
	m.PageWidth, _ = strconv.Atoi(raw[metaPageWidth])
	m.PageHeight, _ = strconv.Atoi(raw[metaPageHeight])
	if v, ok := raw[metaImageNumber]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			m.ImageNumber = &n
		}
	}
	box, err := models.UnmarshalBBox(raw[metaBBox])
	if err != nil {
		return m, err
	}
	m.BBox = box
	return m, nil
}
