package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"copbot/internal/chromemdb"
	"copbot/internal/config"
	"copbot/internal/models"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

// fakeEmbedder maps text to a small deterministic vector.
type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func vectorFor(text string) []float32 {
	return []float32{
		float32(strings.Count(text, "theft") + 1),
		float32(strings.Count(text, "FIR") + 1),
		float32(len(text)%5 + 1),
	}
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Folder = filepath.Join(dir, "data")
	cfg.Index.Path = filepath.Join(dir, "index", "chromemdb")
	cfg.Index.EncryptionKey = testKey
	cfg.RAG.Strategy = config.StrategyFlat
	cfg.RAG.ChunkSize = 120
	cfg.RAG.ChunkOverlap = 20
	cfg.EmbedLLM.BatchSize = 2
	require.NoError(t, os.MkdirAll(cfg.Data.Folder, 0o755))
	return cfg
}

func writeDoc(t *testing.T, cfg *config.Config, name, body string) {
	t.Helper()
	path := filepath.Join(cfg.Data.Folder, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

const sop = `Section 154. Information in cognizable cases.
Every information relating to the commission of a cognizable offence is recorded as an FIR at the police station.
379. Punishment for theft.
Whoever commits theft shall be punished with imprisonment which may extend to three years.`

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "ipc.txt", sop)
	writeDoc(t, cfg, "blank.txt", "  \n")
	writeDoc(t, cfg, "broken.pdf", "this file is plain text, not a PDF document")
	writeDoc(t, cfg, "notes.md", "ignored")

	store := mustMemoryStore(t)
	emb := &fakeEmbedder{}
	stats, err := Build(context.Background(), cfg, emb, store)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Pages)
	assert.Greater(t, stats.Chunks, 1)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, n)
	assert.EqualValues(t, (stats.Chunks+1)/2, emb.calls.Load())

	hits, err := store.Search(context.Background(), vectorFor("theft"), 10, models.SectionFilter("379"))
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Content, "theft")
}

func TestBuild_SameNameInSubfolders(t *testing.T) {
	cfg := testConfig(t)
	cfg.RAG.ChunkSize = 400
	writeDoc(t, cfg, "north/contacts.txt", "North station: dial 0461-2320100.")
	writeDoc(t, cfg, "south/contacts.txt", "South station: dial 0461-2320200.")

	store := mustMemoryStore(t)
	stats, err := Build(context.Background(), cfg, &fakeEmbedder{}, store)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Chunks)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := store.Search(context.Background(), vectorFor("x"), 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	ids := []string{hits[0].ID, hits[1].ID}
	assert.ElementsMatch(t, []string{"north/contacts.txt-p1-c1", "south/contacts.txt-p1-c1"}, ids)
	assert.ElementsMatch(t, []string{"north/contacts.txt", "south/contacts.txt"}, []string{hits[0].Source, hits[1].Source})
}

func TestBuild_HierarchicalStoresParents(t *testing.T) {
	cfg := testConfig(t)
	cfg.RAG.Strategy = config.StrategyHierarchical
	cfg.RAG.ParentSize, cfg.RAG.ParentOverlap = 200, 20
	cfg.RAG.ChildSize, cfg.RAG.ChildOverlap = 80, 10
	writeDoc(t, cfg, "ipc.txt", sop)

	store := mustMemoryStore(t)
	_, err := Build(context.Background(), cfg, &fakeEmbedder{}, store)
	require.NoError(t, err)

	hits, err := store.Search(context.Background(), vectorFor("x"), 3, nil)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEmpty(t, h.ParentID)
		assert.Contains(t, h.ParentContent, strings.Fields(h.Content)[0])
	}
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Data.Folder = filepath.Join(t.TempDir(), "missing")
	_, err := Build(ctx, cfg, &fakeEmbedder{}, mustMemoryStore(t))
	assert.ErrorIs(t, err, ErrDataFolderMissing)

	cfg = testConfig(t)
	writeDoc(t, cfg, "readme.md", "not indexed")
	_, err = Build(ctx, cfg, &fakeEmbedder{}, mustMemoryStore(t))
	assert.ErrorIs(t, err, ErrNoDocuments)

	cfg = testConfig(t)
	writeDoc(t, cfg, "blank.txt", "\n\n")
	_, err = Build(ctx, cfg, &fakeEmbedder{}, mustMemoryStore(t))
	assert.ErrorIs(t, err, ErrNoDocuments)

	cfg = testConfig(t)
	writeDoc(t, cfg, "ipc.txt", sop)
	_, err = Build(ctx, cfg, &fakeEmbedder{err: errors.New("ollama down")}, mustMemoryStore(t))
	assert.ErrorContains(t, err, "ollama down")
}

func TestBuild_Locked(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "ipc.txt", sop)

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Index.Path), 0o755))
	held := flock.New(lockPath(cfg))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Build(context.Background(), cfg, &fakeEmbedder{}, mustMemoryStore(t))
	assert.ErrorIs(t, err, ErrIndexLocked)

	require.NoError(t, held.Unlock())
	_, err = Build(context.Background(), cfg, &fakeEmbedder{}, mustMemoryStore(t))
	assert.NoError(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	_, err := OpenStore(ctx, cfg)
	assert.ErrorIs(t, err, chromemdb.ErrIndexMissing)

	writeDoc(t, cfg, "ipc.txt", sop)
	store, err := NewWritableStore(ctx, cfg)
	require.NoError(t, err)
	stats, err := Build(ctx, cfg, &fakeEmbedder{}, store)
	require.NoError(t, err)

	loaded, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	n, err := loaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, n)
}

func TestResetIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeDoc(t, cfg, "ipc.txt", sop)

	store, err := NewWritableStore(ctx, cfg)
	require.NoError(t, err)
	_, err = Build(ctx, cfg, &fakeEmbedder{}, store)
	require.NoError(t, err)
	_, err = OpenStore(ctx, cfg)
	require.NoError(t, err)

	held := flock.New(lockPath(cfg))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, ResetIndex(ctx, cfg), ErrIndexLocked)
	require.NoError(t, held.Unlock())

	require.NoError(t, ResetIndex(ctx, cfg))
	assert.NoDirExists(t, cfg.Index.Path)
	_, err = OpenStore(ctx, cfg)
	assert.ErrorIs(t, err, chromemdb.ErrIndexMissing)

	require.NoError(t, ResetIndex(ctx, cfg), "resetting a missing index is a no-op")
}

func TestExportAndOpenSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeDoc(t, cfg, "ipc.txt", sop)

	store := mustMemoryStore(t)
	stats, err := Build(ctx, cfg, &fakeEmbedder{}, store)
	require.NoError(t, err)

	cfg.Index.Snapshot = filepath.Join(t.TempDir(), "index.gob.enc")
	require.NoError(t, Export(store, cfg.Index.Snapshot))

	loaded, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	n, err := loaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Chunks, n)
}

func TestWatch_RebuildsAfterBurst(t *testing.T) {
	old := watchDebounce
	watchDebounce = 50 * time.Millisecond
	defer func() { watchDebounce = old }()

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rebuilds atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, []string{".txt"}, func(context.Context) error {
			rebuilds.Add(1)
			return nil
		})
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.md"), []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(strings.Repeat("x", i+1)), 0o644))
	}

	assert.Eventually(t, func() bool { return rebuilds.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.EqualValues(t, 1, rebuilds.Load())

	cancel()
	assert.NoError(t, <-done)
}

func mustMemoryStore(t *testing.T) *chromemdb.VectorDBManager {
	t.Helper()
	m, err := chromemdb.NewVectorDBManager("", "test", true, testKey)
	require.NoError(t, err)
	return m
}
