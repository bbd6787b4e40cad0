package rag

import (
	"context"
	"testing"

	"scribe/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) *VectorIndex {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	index, err := NewVectorIndex(client, 16, zap.NewNop().Sugar())
	require.NoError(t, err)
	return index
}

func seedIndex(t *testing.T, index *VectorIndex, namespace string) {
	t.Helper()

	chunks := []core.Chunk{
		{DocID: "doc-a", Index: 0, Text: "redis storage layer"},
		{DocID: "doc-a", Index: 1, Text: "http handlers"},
		{DocID: "doc-b", Index: 0, Text: "vector math helpers"},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	require.NoError(t, index.Upsert(context.Background(), namespace, chunks, vectors))
}

func TestUpsertAndExists(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	exists, err := index.Exists(ctx, "repo-1")
	require.NoError(t, err)
	assert.False(t, exists)

	seedIndex(t, index, "repo-1")

	exists, err = index.Exists(ctx, "repo-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpsertCountMismatch(t *testing.T) {
	index := newTestIndex(t)

	err := index.Upsert(context.Background(), "repo-1",
		[]core.Chunk{{DocID: "d", Index: 0, Text: "x"}}, nil)
	assert.Error(t, err)
}

func TestSearchRanksByCosine(t *testing.T) {
	index := newTestIndex(t)
	seedIndex(t, index, "repo-1")

	hits, err := index.Search(context.Background(), "repo-1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "doc-a", hits[0].DocID)
	assert.Equal(t, 0, hits[0].Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	assert.Equal(t, "doc-b", hits[1].DocID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchUnknownNamespace(t *testing.T) {
	index := newTestIndex(t)

	_, err := index.Search(context.Background(), "missing", []float32{1}, 5)
	assert.ErrorIs(t, err, core.ErrRepoNotFound)
}

func TestSearchUsesHotCache(t *testing.T) {
	index := newTestIndex(t)
	seedIndex(t, index, "repo-1")
	ctx := context.Background()

	_, err := index.Search(ctx, "repo-1", []float32{1, 0, 0}, 3)
	require.NoError(t, err)

	// Second search is served from the LRU; results must be identical.
	hits, err := index.Search(ctx, "repo-1", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, "doc-a", hits[0].DocID)
}

func TestDeleteNamespace(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	seedIndex(t, index, "repo-1")

	require.NoError(t, index.Delete(ctx, "repo-1"))

	exists, err := index.Exists(ctx, "repo-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = index.Search(ctx, "repo-1", []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, core.ErrRepoNotFound)
}
