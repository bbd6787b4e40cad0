package rag

import (
	"context"
	"strings"
	"testing"

	"scribe/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubEmbedder returns deterministic vectors derived from the input
// text so ranking in tests is predictable.
type stubEmbedder struct {
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	s.calls++
	vectors := make([][]float32, len(inputs))
	for i, input := range inputs {
		switch {
		case strings.Contains(input, "redis"):
			vectors[i] = []float32{1, 0, 0}
		case strings.Contains(input, "http"):
			vectors[i] = []float32{0, 1, 0}
		default:
			vectors[i] = []float32{0, 0, 1}
		}
	}
	return vectors, nil
}

func newTestIndexer(t *testing.T) (*Indexer, *stubEmbedder) {
	t.Helper()

	index := newTestIndex(t)
	embedder := &stubEmbedder{}
	indexer := NewIndexer(NewChunker(250, 0), embedder, index, zap.NewNop().Sugar())
	return indexer, embedder
}

func completedDoc(id, markdown string) *core.Doc {
	return &core.Doc{ID: id, Status: core.DocStatusCompleted, Markdown: markdown}
}

func TestIndexDocRejectsIncomplete(t *testing.T) {
	indexer, _ := newTestIndexer(t)

	doc := &core.Doc{ID: "doc-1", Status: core.DocStatusStarted}
	_, err := indexer.IndexDoc(context.Background(), "repo-1", doc)
	assert.Error(t, err)
}

func TestIndexDocAndQuery(t *testing.T) {
	indexer, _ := newTestIndexer(t)
	ctx := context.Background()

	n, err := indexer.IndexDoc(ctx, "repo-1", completedDoc("doc-1", "redis connection pooling"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = indexer.IndexDoc(ctx, "repo-1", completedDoc("doc-2", "http routing tables"))
	require.NoError(t, err)

	hits, err := indexer.Query(ctx, "repo-1", "redis internals", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "doc-1", hits[0].DocID)
}

func TestIndexRepoRejectsExistingNamespace(t *testing.T) {
	indexer, _ := newTestIndexer(t)
	ctx := context.Background()

	docs := []*core.Doc{completedDoc("doc-1", "redis things")}
	_, err := indexer.IndexRepo(ctx, "repo-1", docs, false)
	require.NoError(t, err)

	_, err = indexer.IndexRepo(ctx, "repo-1", docs, false)
	assert.ErrorIs(t, err, core.ErrNamespaceExists)
}

func TestIndexRepoReindexReplacesNamespace(t *testing.T) {
	indexer, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := indexer.IndexRepo(ctx, "repo-1", []*core.Doc{completedDoc("doc-1", "redis things")}, false)
	require.NoError(t, err)

	n, err := indexer.IndexRepo(ctx, "repo-1", []*core.Doc{completedDoc("doc-2", "http things")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := indexer.Query(ctx, "repo-1", "anything", 10)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "doc-1", hit.DocID, "old namespace contents should be gone")
	}
}

func TestIndexRepoSkipsIncompleteDocs(t *testing.T) {
	indexer, _ := newTestIndexer(t)

	docs := []*core.Doc{
		completedDoc("doc-1", "redis things"),
		{ID: "doc-2", Status: core.DocStatusFailed, Markdown: "ignored"},
	}
	n, err := indexer.IndexRepo(context.Background(), "repo-1", docs, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
