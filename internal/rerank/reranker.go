// Package rerank reorders retrieved candidates by finer-grained relevance
// before they are handed to the answer prompt.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"copbot/internal/llmservice"
	"copbot/internal/models"

	"github.com/rs/zerolog/log"
)

// Reranker reduces a candidate set to the topN most relevant chunks.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []models.ScoredChunk, topN int) ([]models.ScoredChunk, error)
}

// NoOp keeps the retrieval order.
type NoOp struct{}

func (NoOp) Rerank(_ context.Context, _ string, candidates []models.ScoredChunk, topN int) ([]models.ScoredChunk, error) {
	return truncate(candidates, topN), nil
}

// LLMReranker scores every candidate with one call to the chat model.
type LLMReranker struct {
	gen llmservice.Generator
	// maxPassage caps the characters of each passage sent for scoring.
	maxPassage int
}

var (
	_ Reranker = NoOp{}
	_ Reranker = (*LLMReranker)(nil)

	jsonArrayRe = regexp.MustCompile(`(?s)\[.*?\]`)
)

func NewLLMReranker(gen llmservice.Generator) *LLMReranker {
	return &LLMReranker{gen: gen, maxPassage: 1200}
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []models.ScoredChunk, topN int) ([]models.ScoredChunk, error) {
	if len(candidates) <= 1 {
		return truncate(candidates, topN), nil
	}

	var passages strings.Builder
	for i, c := range candidates {
		text := []rune(c.Context())
		if len(text) > r.maxPassage {
			text = text[:r.maxPassage]
		}
		fmt.Fprintf(&passages, "[%d] %s\n\n", i+1, string(text))
	}

	reply, err := r.gen.Generate(ctx, "", fmt.Sprintf(models.RerankPromptTemplate, query, passages.String()))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	scores, err := parseScores(reply, len(candidates))
	if err != nil {
		log.Warn().Err(err).Str("reply", reply).Msg("Rerank reply unusable, keeping retrieval order")
		return truncate(candidates, topN), nil
	}

	ranked := make([]models.ScoredChunk, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		ranked[i].Score = scores[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	log.Debug().Int("candidates", len(candidates)).Int("top_n", topN).Msg("Reranked candidates")
	return truncate(ranked, topN), nil
}

// parseScores reads the first JSON array of numbers in reply.
func parseScores(reply string, n int) ([]float32, error) {
	match := jsonArrayRe.FindString(reply)
	if match == "" {
		return nil, fmt.Errorf("no score array in reply")
	}
	var scores []float32
	if err := json.Unmarshal([]byte(match), &scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if len(scores) != n {
		return nil, fmt.Errorf("got %d scores for %d passages", len(scores), n)
	}
	return scores, nil
}

func truncate(c []models.ScoredChunk, n int) []models.ScoredChunk {
	if n > 0 && n < len(c) {
		return c[:n]
	}
	return c
}
