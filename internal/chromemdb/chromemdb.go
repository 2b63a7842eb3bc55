package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"copbot/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

var (
	ErrIndexMissing = errors.New("vector index not found")
	ErrIndexEmpty   = errors.New("vector index is empty")
)

const (
	metaSource        = "source"
	metaPage          = "page"
	metaChunkID       = "chunk_id"
	metaParentID      = "parent_id"
	metaParentContent = "parent_content"
	metaSection       = models.MetaSection
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	dbPath         string
	inMemory       bool
	encryptionKey  string
	compress       bool
}

// NewVectorDBManager opens (or creates) the database. With inMemory the
// path is not touched; the collection lives only until Close or Export.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:             db,
		collectionName: collectionName,
		dbPath:         dbPath,
		inMemory:       inMemory,
		encryptionKey:  encryptionKey,
	}, nil
}

// OpenExisting opens a persisted index for querying. It never creates
// anything on disk.
func OpenExisting(ctx context.Context, dbPath, collectionName string) (*VectorDBManager, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, dbPath)
		}
		return nil, err
	}
	m, err := NewVectorDBManager(dbPath, collectionName, false, "")
	if err != nil {
		return nil, err
	}
	if err := m.Open(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// SetCompress toggles gzip compression of exported snapshots.
func (m *VectorDBManager) SetCompress(compress bool) {
	m.compress = compress
}

// Open attaches to an existing, non-empty collection.
func (m *VectorDBManager) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.db.GetCollection(m.collectionName, nil)
	if c == nil {
		return fmt.Errorf("%w: collection %q", ErrIndexMissing, m.collectionName)
	}
	if c.Count() == 0 {
		return fmt.Errorf("%w: collection %q", ErrIndexEmpty, m.collectionName)
	}
	m.collection = c
	log.Info().Str("collection", m.collectionName).Int("documents", c.Count()).Msg("Loaded vector index")
	return nil
}

// Replace swaps the collection contents for chunks. The documents are
// first staged in a scratch in-memory collection; the live collection is
// only dropped once staging completed without cancellation. Searches
// wait until the new collection is complete.
func (m *VectorDBManager) Replace(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Metadata:  chunkMetadata(c),
			Embedding: vectors[i],
		}
	}

	if err := stage(ctx, docs); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db.GetCollection(m.collectionName, nil) != nil {
		if err := m.db.DeleteCollection(m.collectionName); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	m.collection = c

	log.Info().Msgf("Adding %d documents to vector database", len(docs))
	if len(docs) == 0 {
		return nil
	}
	// The old collection is gone; finish the write even if ctx ends now.
	if err := c.AddDocuments(context.WithoutCancel(ctx), docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	if n := c.Count(); n != len(docs) {
		return fmt.Errorf("collection holds %d of %d documents", n, len(docs))
	}
	return nil
}

// stage adds docs to a throwaway collection so that invalid documents
// and cancellation surface before the live collection is touched.
// AddDocuments returns nil when ctx is cancelled, hence the checks.
func stage(ctx context.Context, docs []chromem.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	c, err := chromem.NewDB().GetOrCreateCollection("staging", nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create staging collection: %w", err)
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to stage documents: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := c.Count(); n != len(docs) {
		return fmt.Errorf("staged %d of %d documents", n, len(docs))
	}
	return nil
}

// Search returns the k nearest chunks to vector. A non-empty where
// restricts results to chunks whose metadata matches every pair.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]models.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.collection == nil {
		return nil, ErrIndexMissing
	}
	count := m.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	k = min(k, count)

	results, err := m.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.ScoredChunk, len(results))
	for i, r := range results {
		out[i] = models.ScoredChunk{Chunk: chunkFromResult(r), Score: r.Similarity}
	}
	return out, nil
}

func (m *VectorDBManager) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.collection == nil {
		return 0, nil
	}
	return m.collection.Count(), nil
}

// Export writes the collection to an encrypted snapshot file.
func (m *VectorDBManager) Export(path string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	log.Debug().Str("collection", m.collectionName).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import loads an encrypted snapshot written by Export and opens it.
func (m *VectorDBManager) Import(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrIndexMissing, path)
		}
		return err
	}
	if err := m.db.ImportFromFile(path, m.encryptionKey, m.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return m.Open(ctx)
}

func (m *VectorDBManager) Close() error {
	return nil
}

func chunkMetadata(c models.Chunk) map[string]string {
	meta := map[string]string{
		metaSource:  c.Source,
		metaPage:    strconv.Itoa(c.PageNumber),
		metaChunkID: strconv.Itoa(c.ChunkID),
	}
	if c.ParentID != "" {
		meta[metaParentID] = c.ParentID
		meta[metaParentContent] = c.ParentContent
	}
	if c.Section != "" {
		meta[metaSection] = c.Section
	}
	return meta
}

func chunkFromResult(r chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	chunkID, _ := strconv.Atoi(r.Metadata[metaChunkID])
	return models.Chunk{
		ID:            r.ID,
		Content:       r.Content,
		Source:        r.Metadata[metaSource],
		PageNumber:    page,
		ChunkID:       chunkID,
		ParentID:      r.Metadata[metaParentID],
		ParentContent: r.Metadata[metaParentContent],
		Section:       r.Metadata[metaSection],
	}
}
