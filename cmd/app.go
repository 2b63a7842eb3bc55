package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"copbot/internal/chat"
	"copbot/internal/chromemdb"
	"copbot/internal/config"
	"copbot/internal/embedding"
	"copbot/internal/indexer"
	"copbot/internal/llmservice"
	"copbot/internal/rag"
	"copbot/internal/rerank"
	"copbot/internal/translate"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// app holds the wired pipeline shared by serve, ask and chat.
type app struct {
	cfg      *config.Config
	mu       sync.Mutex
	store    rag.Store
	embedder embeddings.Embedder
	pipeline *rag.RAG
	chat     *chat.Service
}

// newApp loads the index and builds the answering pipeline. A missing
// index is built first when index.build_on_start is set.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	store, err := loadStore(ctx, cfg, embedder)
	if err != nil {
		log.Error().Err(err).Msg(chat.LoadFailed)
		return nil, fmt.Errorf("%s: %w", chat.LoadFailed, err)
	}

	gen, err := llmservice.New(&cfg.ChatLLM)
	if err != nil {
		store.Close()
		return nil, err
	}

	var reranker rerank.Reranker
	if cfg.RAG.Strategy == config.StrategyRerank {
		reranker = rerank.NewLLMReranker(gen)
	}

	translator, err := translate.New(&cfg.Translator, gen)
	if err != nil {
		store.Close()
		return nil, err
	}

	pipeline := rag.NewRAG(store, embedder, gen, reranker, cfg.RAG)
	return &app{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		pipeline: pipeline,
		chat:     chat.NewService(pipeline, translator),
	}, nil
}

func loadStore(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (rag.Store, error) {
	store, err := indexer.OpenStore(ctx, cfg)
	if err == nil {
		return store, nil
	}
	missing := errors.Is(err, chromemdb.ErrIndexMissing) || errors.Is(err, chromemdb.ErrIndexEmpty)
	if !missing || !cfg.Index.BuildOnStart {
		return nil, err
	}

	log.Info().Err(err).Msg("No index found, building it now")
	store, err = indexer.NewWritableStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := indexer.Build(ctx, cfg, embedder, store); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// rebuild indexes the data folder into a fresh store and swaps it into
// the pipeline. The live store keeps serving until the build succeeds.
func (a *app) rebuild(ctx context.Context) error {
	fresh, err := newRebuildStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	if _, err := indexer.Build(ctx, a.cfg, a.embedder, fresh); err != nil {
		fresh.Close()
		return err
	}

	a.mu.Lock()
	old := a.store
	a.store = fresh
	a.mu.Unlock()

	a.pipeline.SetStore(fresh)
	if err := old.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing previous index")
	}
	return nil
}

// newRebuildStore returns an empty target for rebuild. An index loaded
// from a snapshot is rebuilt in memory and the snapshot file is left alone.
func newRebuildStore(ctx context.Context, cfg *config.Config) (rag.Store, error) {
	idx := cfg.Index
	if idx.Backend != config.BackendPgvector && idx.Snapshot != "" {
		m, err := chromemdb.NewVectorDBManager("", idx.Collection, true, idx.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return indexer.NewWritableStore(ctx, cfg)
}

func (a *app) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Close()
}
