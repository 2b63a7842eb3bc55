package indexer

import (
	"context"
	"fmt"
	"os"

	"copbot/internal/chromemdb"
	"copbot/internal/config"
	"copbot/internal/db"
	"copbot/internal/helper"
	"copbot/internal/rag"

	"github.com/rs/zerolog/log"
)

// OpenStore loads an existing, non-empty index for querying.
func OpenStore(ctx context.Context, cfg *config.Config) (rag.Store, error) {
	idx := cfg.Index
	switch idx.Backend {
	case config.BackendPgvector:
		store, err := openPgvector(cfg)
		if err != nil {
			return nil, err
		}
		n, err := store.Count(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("%w: %v", chromemdb.ErrIndexMissing, err)
		}
		if n == 0 {
			store.Close()
			return nil, chromemdb.ErrIndexEmpty
		}
		log.Info().Int("documents", n).Msg("Loaded pgvector index")
		return store, nil

	default:
		if idx.Snapshot != "" {
			m, err := chromemdb.NewVectorDBManager("", idx.Collection, true, idx.EncryptionKey)
			if err != nil {
				return nil, err
			}
			if err := m.Import(ctx, idx.Snapshot); err != nil {
				return nil, err
			}
			return m, nil
		}
		return chromemdb.OpenExisting(ctx, idx.Path, idx.Collection)
	}
}

// NewWritableStore returns a store that Build can fill, creating the
// on-disk location or table when needed.
func NewWritableStore(ctx context.Context, cfg *config.Config) (rag.Store, error) {
	idx := cfg.Index
	if idx.Backend == config.BackendPgvector {
		store, err := openPgvector(cfg)
		if err != nil {
			return nil, err
		}
		if err := db.InitDB(ctx, store.DB()); err != nil {
			store.Close()
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		return store, nil
	}

	if err := helper.CreateFolder(idx.Path); err != nil {
		return nil, err
	}
	m, err := chromemdb.NewVectorDBManager(idx.Path, idx.Collection, false, idx.EncryptionKey)
	if err != nil {
		return nil, err
	}
	m.SetCompress(idx.Compress)
	return m, nil
}

// ResetIndex discards the existing index: the pgvector table is dropped,
// the chromem folder removed. The next Build starts from nothing.
func ResetIndex(ctx context.Context, cfg *config.Config) error {
	lock, err := acquireLock(lockPath(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Msg("Releasing index lock")
		}
	}()

	if cfg.Index.Backend == config.BackendPgvector {
		store, err := openPgvector(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := db.DropDocuments(ctx, store.DB()); err != nil {
			return fmt.Errorf("dropping chunks table: %w", err)
		}
		log.Info().Msg("Dropped pgvector chunks table")
		return nil
	}

	if err := os.RemoveAll(cfg.Index.Path); err != nil {
		return fmt.Errorf("removing index: %w", err)
	}
	log.Info().Str("path", cfg.Index.Path).Msg("Removed chromem index")
	return nil
}

// Export writes an encrypted snapshot of store to path. Only the chromem
// backend supports snapshots.
func Export(store rag.Store, path string) error {
	m, ok := store.(*chromemdb.VectorDBManager)
	if !ok {
		return fmt.Errorf("export is only supported by the chromem backend")
	}
	return m.Export(path)
}

func openPgvector(cfg *config.Config) (*db.Store, error) {
	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db.NewStore(db.NewDB(sqldb, cfg.Database.Debug)), nil
}
