package rag

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"copbot/internal/config"
	"copbot/internal/llmservice"
	"copbot/internal/models"
	"copbot/internal/parser"
	"copbot/internal/rerank"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// Store is a nearest-neighbour index over chunk embeddings.
type Store interface {
	Replace(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type RAG struct {
	store    atomic.Pointer[storeHolder]
	embedder embeddings.Embedder
	gen      llmservice.Generator
	reranker rerank.Reranker
	cfg      config.RAGConfig
}

type storeHolder struct{ Store }

func NewRAG(store Store, embedder embeddings.Embedder, gen llmservice.Generator, reranker rerank.Reranker, cfg config.RAGConfig) *RAG {
	if reranker == nil {
		reranker = rerank.NoOp{}
	}
	r := &RAG{embedder: embedder, gen: gen, reranker: reranker, cfg: cfg}
	r.SetStore(store)
	return r
}

// SetStore swaps the index used by subsequent queries.
func (r *RAG) SetStore(store Store) {
	r.store.Store(&storeHolder{store})
}

func (r *RAG) currentStore() Store {
	return r.store.Load().Store
}

// Retrieve returns the chunks whose context goes into the prompt.
func (r *RAG) Retrieve(ctx context.Context, question string) ([]models.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	k := r.cfg.TopK
	if r.cfg.Strategy != config.StrategyFlat {
		k = max(r.cfg.FetchK, r.cfg.TopK)
	}

	candidates, err := r.search(ctx, question, vector, k)
	if err != nil {
		return nil, err
	}

	switch r.cfg.Strategy {
	case config.StrategyRerank:
		return r.reranker.Rerank(ctx, question, candidates, r.cfg.RerankTopN)
	case config.StrategyHierarchical:
		return uniqueParents(candidates, r.cfg.TopK), nil
	default:
		return candidates, nil
	}
}

// search runs the vector query and, when the question names a section,
// puts chunks tagged with that section first.
func (r *RAG) search(ctx context.Context, question string, vector []float32, k int) ([]models.ScoredChunk, error) {
	store := r.currentStore()
	results, err := store.Search(ctx, vector, k, nil)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	if r.cfg.SectionBoost == nil || !*r.cfg.SectionBoost {
		return results, nil
	}

	refs := parser.SectionRefs(question)
	if len(refs) == 0 {
		return results, nil
	}
	var boosted []models.ScoredChunk
	for _, ref := range refs {
		hits, err := store.Search(ctx, vector, k, models.SectionFilter(ref))
		if err != nil {
			return nil, fmt.Errorf("searching section %s: %w", ref, err)
		}
		boosted = append(boosted, hits...)
	}
	log.Debug().Strs("sections", refs).Int("hits", len(boosted)).Msg("Section boost")
	return dedupe(append(boosted, results...), k), nil
}

// Query answers question from the indexed documents only.
func (r *RAG) Query(ctx context.Context, question string) (*models.PromptResponse, error) {
	chunks, err := r.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	response := &models.PromptResponse{Query: question, Chunks: chunks}
	if len(chunks) == 0 {
		log.Info().Msg("No context retrieved, refusing")
		response.Content = models.RefusalAnswer
		return response, nil
	}

	contexts := make([]string, len(chunks))
	refs := make([]string, 0, len(chunks))
	seen := make(map[string]bool)
	for i, c := range chunks {
		contexts[i] = c.Context()
		if ref := c.Ref(); !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	response.Source = strings.Join(refs, ", ")

	system := fmt.Sprintf(models.AnswerSystemPrompt, strings.Join(contexts, models.ContextSeparator))
	answer, err := r.gen.Generate(ctx, system, fmt.Sprintf(models.AnswerUserPrompt, question))
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}
	response.Content = normalizeAnswer(answer)
	return response, nil
}

// normalizeAnswer maps any reply that carries the refusal sentence, or
// no text at all, to the exact refusal string.
func normalizeAnswer(answer string) string {
	if answer == "" || strings.Contains(answer, "answer is not available in the provided documents") {
		return models.RefusalAnswer
	}
	return answer
}

// uniqueParents keeps the first child of every parent, in rank order.
func uniqueParents(children []models.ScoredChunk, k int) []models.ScoredChunk {
	var out []models.ScoredChunk
	seen := make(map[string]bool)
	for _, c := range children {
		key := c.ParentID
		if key == "" {
			key = c.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}

func dedupe(chunks []models.ScoredChunk, k int) []models.ScoredChunk {
	var out []models.ScoredChunk
	seen := make(map[string]bool)
	for _, c := range chunks {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}
