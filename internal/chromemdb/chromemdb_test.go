package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"copbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func testChunks() ([]models.Chunk, [][]float32) {
	chunks := []models.Chunk{
		{ID: "ipc-p1-c1", Content: "379. Punishment for theft.", Source: "ipc.pdf", PageNumber: 1, ChunkID: 1, Section: "379"},
		{ID: "ipc-p2-c1", Content: "302. Punishment for murder.", Source: "ipc.pdf", PageNumber: 2, ChunkID: 1, Section: "302"},
		{ID: "sop-p1-P1-c1", Content: "Dial 100.", Source: "sop.pdf", PageNumber: 1, ChunkID: 1, ParentID: "sop-p1-P1", ParentContent: "In an emergency dial 100 or 112."},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
	return chunks, vectors
}

func newMemoryStore(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager("", "test", true, testKey)
	require.NoError(t, err)
	chunks, vectors := testChunks()
	require.NoError(t, m.Replace(context.Background(), chunks, vectors))
	return m
}

func TestReplaceAndSearch(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := m.Search(ctx, []float32{0.9, 0.1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "ipc-p1-c1", res[0].ID)
	assert.Equal(t, "379", res[0].Section)
	assert.Equal(t, "ipc.pdf", res[0].Source)
	assert.Equal(t, 1, res[0].PageNumber)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestSearch_ClampsK(t *testing.T) {
	m := newMemoryStore(t)
	res, err := m.Search(context.Background(), []float32{0, 0, 1}, 50, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "sop-p1-P1-c1", res[0].ID)
	assert.Equal(t, "sop-p1-P1", res[0].ParentID)
	assert.Equal(t, "In an emergency dial 100 or 112.", res[0].Context())
}

func TestSearch_SectionFilter(t *testing.T) {
	m := newMemoryStore(t)
	res, err := m.Search(context.Background(), []float32{1, 0, 0}, 3, models.SectionFilter("302"))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ipc-p2-c1", res[0].ID)

	res, err = m.Search(context.Background(), []float32{1, 0, 0}, 3, models.SectionFilter("999"))
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSearch_RequiresVector(t *testing.T) {
	m := newMemoryStore(t)
	_, err := m.Search(context.Background(), nil, 3, nil)
	assert.Error(t, err)
}

func TestReplace_SwapsContents(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, m.Replace(ctx, []models.Chunk{{ID: "new", Content: "new", Source: "n.pdf"}}, [][]float32{{1, 1, 0}}))
	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplace_LengthMismatch(t *testing.T) {
	m, err := NewVectorDBManager("", "test", true, "")
	require.NoError(t, err)
	err = m.Replace(context.Background(), []models.Chunk{{ID: "a"}}, nil)
	assert.Error(t, err)
}

func TestOpenExisting_Missing(t *testing.T) {
	_, err := OpenExisting(context.Background(), filepath.Join(t.TempDir(), "missing"), "copbot")
	assert.ErrorIs(t, err, ErrIndexMissing)
}

func TestOpenExisting_NoCollection(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenExisting(context.Background(), dir, "copbot")
	assert.ErrorIs(t, err, ErrIndexMissing)
}

func TestOpenExisting_EmptyCollection(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	m, err := NewVectorDBManager(dir, "copbot", false, "")
	require.NoError(t, err)
	require.NoError(t, m.Replace(context.Background(), nil, nil))

	_, err = OpenExisting(context.Background(), dir, "copbot")
	assert.ErrorIs(t, err, ErrIndexEmpty)
}

func TestPersistentRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	ctx := context.Background()
	m, err := NewVectorDBManager(dir, "copbot", false, "")
	require.NoError(t, err)
	chunks, vectors := testChunks()
	require.NoError(t, m.Replace(ctx, chunks, vectors))

	reopened, err := OpenExisting(ctx, dir, "copbot")
	require.NoError(t, err)
	res, err := reopened.Search(ctx, []float32{0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ipc-p2-c1", res[0].ID)
	assert.Equal(t, "302", res[0].Section)
}

func TestReplace_CancelledKeepsIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	m, err := NewVectorDBManager(dir, "copbot", false, "")
	require.NoError(t, err)
	chunks, vectors := testChunks()
	require.NoError(t, m.Replace(context.Background(), chunks, vectors))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Replace(ctx, chunks[:1], vectors[:1])
	assert.ErrorIs(t, err, context.Canceled)

	n, err := m.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	reopened, err := OpenExisting(context.Background(), dir, "copbot")
	require.NoError(t, err)
	n, err = reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	m := newMemoryStore(t)
	file := filepath.Join(t.TempDir(), "snap", "copbot.gob.enc")
	require.NoError(t, m.Export(file))

	other, err := NewVectorDBManager("", "test", true, testKey)
	require.NoError(t, err)
	require.NoError(t, other.Import(ctx, file))

	n, err := other.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExport_RequiresKey(t *testing.T) {
	m, err := NewVectorDBManager("", "test", true, "")
	require.NoError(t, err)
	assert.Error(t, m.Export(filepath.Join(t.TempDir(), "x")))
}

func TestImport_MissingFile(t *testing.T) {
	m, err := NewVectorDBManager("", "test", true, testKey)
	require.NoError(t, err)
	err = m.Import(context.Background(), filepath.Join(t.TempDir(), "none.gob.enc"))
	assert.ErrorIs(t, err, ErrIndexMissing)
}
