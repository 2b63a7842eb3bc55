package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
)

const DefaultCacheSize = 1000

// CachedEmbedder keeps recent query embeddings in an LRU cache. Quick
// action questions repeat constantly, so most lookups are hits.
// Document embeddings are never cached.
type CachedEmbedder struct {
	inner embeddings.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

var _ embeddings.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner embeddings.Embedder, model string, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, model: model, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedDocuments(ctx, texts)
}

// Len reports the number of cached query embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
