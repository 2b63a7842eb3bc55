package rerank

import (
	"context"
	"errors"
	"testing"

	"copbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply  string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(_ context.Context, _, user string) (string, error) {
	s.prompt = user
	return s.reply, s.err
}

func candidates(ids ...string) []models.ScoredChunk {
	out := make([]models.ScoredChunk, len(ids))
	for i, id := range ids {
		out[i] = models.ScoredChunk{Chunk: models.Chunk{ID: id, Content: "text of " + id}, Score: 1 - float32(i)*0.1}
	}
	return out
}

func ids(c []models.ScoredChunk) []string {
	var out []string
	for _, x := range c {
		out = append(out, x.ID)
	}
	return out
}

func TestNoOp(t *testing.T) {
	got, err := NoOp{}.Rerank(context.Background(), "q", candidates("a", "b", "c"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestLLMReranker_Reorders(t *testing.T) {
	gen := &stubGenerator{reply: "Scores: [2, 9, 0, 9]"}
	got, err := NewLLMReranker(gen).Rerank(context.Background(), "What is an FIR?", candidates("a", "b", "c", "d"), 3)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "d", "a"}, ids(got))
	assert.InDelta(t, 9, got[0].Score, 1e-6)
	assert.Contains(t, gen.prompt, "What is an FIR?")
	assert.Contains(t, gen.prompt, "[4] text of d")
}

func TestLLMReranker_FallsBackOnBadReply(t *testing.T) {
	for _, reply := range []string{"I cannot rank these.", "[1, 2]", "[1, x, 3]"} {
		gen := &stubGenerator{reply: reply}
		got, err := NewLLMReranker(gen).Rerank(context.Background(), "q", candidates("a", "b", "c"), 2)
		require.NoError(t, err, reply)
		assert.Equal(t, []string{"a", "b"}, ids(got), reply)
	}
}

func TestLLMReranker_GeneratorError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("rate limited")}
	_, err := NewLLMReranker(gen).Rerank(context.Background(), "q", candidates("a", "b"), 1)
	assert.Error(t, err)
}

func TestLLMReranker_SingleCandidateSkipsModel(t *testing.T) {
	gen := &stubGenerator{err: errors.New("should not be called")}
	got, err := NewLLMReranker(gen).Rerank(context.Background(), "q", candidates("a"), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))
	assert.Empty(t, gen.prompt)
}

func TestLLMReranker_DoesNotMutateInput(t *testing.T) {
	in := candidates("a", "b")
	gen := &stubGenerator{reply: "[1, 5]"}
	_, err := NewLLMReranker(gen).Rerank(context.Background(), "q", in, 2)
	require.NoError(t, err)
	assert.Equal(t, "a", in[0].ID)
	assert.InDelta(t, 1.0, in[0].Score, 1e-6)
}
