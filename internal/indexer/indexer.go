package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"copbot/internal/chromemdb"
	"copbot/internal/config"
	"copbot/internal/db"
	"copbot/internal/helper"
	"copbot/internal/models"
	"copbot/internal/parser"
	"copbot/internal/rag"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDataFolderMissing = errors.New("data folder not found")
	ErrNoDocuments       = errors.New("no documents to index")
	ErrIndexLocked       = errors.New("another index build is running")
)

var (
	_ rag.Store = (*chromemdb.VectorDBManager)(nil)
	_ rag.Store = (*db.Store)(nil)
)

// embedWorkers bounds the number of concurrent embedding batches.
const embedWorkers = 4

type Stats struct {
	Files    int           `json:"files"`
	Skipped  int           `json:"skipped"`
	Pages    int           `json:"pages"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Build loads every supported document under the data folder, chunks and
// embeds it and replaces the contents of store.
func Build(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, store rag.Store) (Stats, error) {
	start := time.Now()
	var stats Stats

	lock, err := acquireLock(lockPath(cfg))
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Releasing index lock")
		}
	}()

	files, err := listDocuments(cfg.Data.Folder, cfg.Data.Extensions)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("%w in %s", ErrNoDocuments, cfg.Data.Folder)
	}

	var pages []models.Page
	for _, f := range files {
		p, err := parser.LoadDocument(f)
		if err != nil {
			log.Warn().Err(err).Str("file", f).Msg("Skipping document")
			stats.Skipped++
			continue
		}
		if len(p) == 0 {
			log.Warn().Str("file", f).Msg("Document has no text, skipping")
			stats.Skipped++
			continue
		}
		source := relativeSource(cfg.Data.Folder, f)
		for i := range p {
			p[i].Source = source
		}
		log.Info().Str("file", source).Int("pages", len(p)).Msg("Loaded document")
		stats.Files++
		pages = append(pages, p...)
	}
	stats.Pages = len(pages)
	if len(pages) == 0 {
		return stats, fmt.Errorf("%w: no text could be extracted from %s", ErrNoDocuments, cfg.Data.Folder)
	}

	chunks, err := parser.NewSplitter(cfg.RAG).Split(pages)
	if err != nil {
		return stats, fmt.Errorf("splitting documents: %w", err)
	}
	if len(chunks) == 0 {
		return stats, fmt.Errorf("%w: documents produced no chunks", ErrNoDocuments)
	}
	stats.Chunks = len(chunks)
	log.Info().Int("chunks", len(chunks)).Str("strategy", cfg.RAG.Strategy).Msg("Split documents")

	vectors, err := embedChunks(ctx, embedder, chunks, cfg.EmbedLLM.BatchSize)
	if err != nil {
		return stats, err
	}

	if err := store.Replace(ctx, chunks, vectors); err != nil {
		return stats, fmt.Errorf("writing index: %w", err)
	}
	stats.Duration = time.Since(start)
	log.Info().Interface("stats", stats).Msg("Index built")
	return stats, nil
}

// embedChunks embeds chunk contents in batches, keeping input order.
func embedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(chunks)
	}
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		g.Go(func() error {
			vecs, err := embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedding chunks %d-%d: got %d vectors", start, end, len(vecs))
			}
			copy(vectors[start:end], vecs)
			log.Debug().Int("from", start).Int("to", end).Msg("Embedded batch")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// relativeSource names a document by its slash separated path under the
// data folder.
func relativeSource(folder, path string) string {
	rel, err := filepath.Rel(folder, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func listDocuments(folder string, exts []string) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDataFolderMissing, folder)
	}

	var files []string
	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !wanted(path, exts) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

func wanted(path string, exts []string) bool {
	if !parser.Supported(path) {
		return false
	}
	if len(exts) == 0 {
		return true
	}
	return slices.Contains(exts, strings.ToLower(filepath.Ext(path)))
}

func lockPath(cfg *config.Config) string {
	return filepath.Clean(cfg.Index.Path) + ".lock"
}

func acquireLock(path string) (*flock.Flock, error) {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return nil, err
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrIndexLocked, path)
	}
	return lock, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
