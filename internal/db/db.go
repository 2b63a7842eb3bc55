package db

import (
	"context"
	"database/sql"
	"fmt"

	"copbot/internal/config"
	"copbot/internal/models"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Document is one indexed chunk row. The embedding column uses the
// pgvector extension and is written in its '[x,y,z]' text form.
type Document struct {
	bun.BaseModel `bun:"table:chunks,alias:d"`
	ID            string    `bun:"id,pk"`
	Content       string    `bun:"content,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector"`
	Source        string    `bun:"source,notnull"`
	PageNumber    int       `bun:"page,notnull"`
	ChunkID       int       `bun:"chunk_no,notnull"`
	ParentID      string    `bun:"parent_id,nullzero"`
	ParentContent string    `bun:"parent_content,nullzero"`
	Section       string    `bun:"section,nullzero"`
	Distance      float64   `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool using the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// DropDocuments removes the chunks table. InitDB recreates it.
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := dropTableQuery(db).Exec(ctx)
	return err
}

func dropTableQuery(db *bun.DB) *bun.DropTableQuery {
	return db.NewDropTable().Model((*Document)(nil)).IfExists()
}

// Store is the pgvector implementation of the retrieval store.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Replace swaps the whole table content in one transaction.
func (s *Store) Replace(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if err := InitDB(ctx, s.db); err != nil {
		return err
	}

	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = toDocument(c, vectors[i])
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewTruncateTable().Model((*Document)(nil)).Exec(ctx); err != nil {
			return fmt.Errorf("truncate chunks: %w", err)
		}
		const batch = 500
		for start := 0; start < len(docs); start += batch {
			end := min(start+batch, len(docs))
			part := docs[start:end]
			if _, err := tx.NewInsert().Model(&part).Exec(ctx); err != nil {
				return fmt.Errorf("insert chunks: %w", err)
			}
		}
		log.Info().Int("documents", len(docs)).Msg("Stored chunks in pgvector")
		return nil
	})
}

// Search orders rows by cosine distance to vector. Score is 1 - distance.
func (s *Store) Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]models.ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	var docs []Document
	q := s.db.NewSelect().
		Model(&docs).
		Column("id", "content", "source", "page", "chunk_no", "parent_id", "parent_content", "section").
		ColumnExpr("embedding <=> ?::vector AS distance", vector).
		OrderExpr("distance").
		Limit(k)
	if section, ok := where[models.MetaSection]; ok {
		q = q.Where("section = ?", section)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	out := make([]models.ScoredChunk, len(docs))
	for i, d := range docs {
		out[i] = models.ScoredChunk{Chunk: d.toChunk(), Score: float32(1 - d.Distance)}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*Document)(nil)).Count(ctx)
}

// DB exposes the underlying connection for schema setup.
func (s *Store) DB() *bun.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toDocument(c models.Chunk, vector []float32) Document {
	return Document{
		ID:            c.ID,
		Content:       c.Content,
		Embedding:     vector,
		Source:        c.Source,
		PageNumber:    c.PageNumber,
		ChunkID:       c.ChunkID,
		ParentID:      c.ParentID,
		ParentContent: c.ParentContent,
		Section:       c.Section,
	}
}

func (d Document) toChunk() models.Chunk {
	return models.Chunk{
		ID:            d.ID,
		Content:       d.Content,
		Source:        d.Source,
		PageNumber:    d.PageNumber,
		ChunkID:       d.ChunkID,
		ParentID:      d.ParentID,
		ParentContent: d.ParentContent,
		Section:       d.Section,
	}
}
