package db

import (
	"testing"

	"copbot/internal/config"
	"copbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRoundTrip(t *testing.T) {
	c := models.Chunk{
		ID:            "ipc-p1-P1-c2",
		Content:       "Dial 100.",
		Source:        "ipc.pdf",
		PageNumber:    1,
		ChunkID:       2,
		ParentID:      "ipc-p1-P1",
		ParentContent: "In an emergency dial 100.",
		Section:       "379",
	}
	d := toDocument(c, []float32{0.1, 0.2})
	assert.Equal(t, []float32{0.1, 0.2}, d.Embedding)
	assert.Equal(t, c, d.toChunk())
}

func TestConnectDB_RequiresDSN(t *testing.T) {
	_, err := ConnectDB(&config.DatabaseConfig{Driver: "pgdriver"})
	assert.Error(t, err)
}

func TestConnectDB_OpensLazily(t *testing.T) {
	for _, driver := range []string{"pgdriver", "pq"} {
		sqldb, err := ConnectDB(&config.DatabaseConfig{
			DSN:    "postgres://postgres@localhost:5432/copbot?sslmode=disable",
			Driver: driver,
		})
		require.NoError(t, err, driver)
		db := NewDB(sqldb, true)
		assert.NotNil(t, NewStore(db))
		require.NoError(t, db.Close())
	}
}

func TestCreateTableQuery(t *testing.T) {
	sqldb, err := ConnectDB(&config.DatabaseConfig{DSN: "postgres://postgres@localhost:5432/copbot?sslmode=disable"})
	require.NoError(t, err)
	db := NewDB(sqldb, false)
	defer db.Close()

	b, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().AppendQuery(db.Formatter(), nil)
	require.NoError(t, err)
	query := string(b)
	assert.Contains(t, query, `"chunks"`)
	assert.Contains(t, query, `"embedding" vector`)
	assert.NotContains(t, query, "distance")
}

func TestDropTableQuery(t *testing.T) {
	sqldb, err := ConnectDB(&config.DatabaseConfig{DSN: "postgres://postgres@localhost:5432/copbot?sslmode=disable"})
	require.NoError(t, err)
	db := NewDB(sqldb, false)
	defer db.Close()

	b, err := dropTableQuery(db).AppendQuery(db.Formatter(), nil)
	require.NoError(t, err)
	assert.Contains(t, string(b), `DROP TABLE IF EXISTS "chunks"`)
}
