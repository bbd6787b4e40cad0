package rag

import (
	"context"
	"fmt"

	"scribe/core"
	"scribe/llm"

	"go.uber.org/zap"
)

// Indexer wires the chunker, the embedding client and the vector
// index into the two operations the service needs: indexing a
// generated document and answering a semantic query.
type Indexer struct {
	chunker  *Chunker
	embedder llm.Embedder
	index    *VectorIndex
	logger   *zap.SugaredLogger
}

// NewIndexer creates an Indexer.
func NewIndexer(chunker *Chunker, embedder llm.Embedder, index *VectorIndex, logger *zap.SugaredLogger) *Indexer {
	return &Indexer{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// IndexDoc chunks a document's markdown, embeds the chunks and writes
// them into the repository namespace. Returns the number of chunks
// indexed.
func (ix *Indexer) IndexDoc(ctx context.Context, namespace string, doc *core.Doc) (int, error) {
	if doc.Status != core.DocStatusCompleted {
		return 0, fmt.Errorf("doc %s is not completed (status %s)", doc.ID, doc.Status)
	}

	pieces := ix.chunker.Chunk(doc.Markdown, MarkdownSeparators())
	if len(pieces) == 0 {
		return 0, nil
	}

	chunks := make([]core.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		chunks[i] = core.Chunk{DocID: doc.ID, Index: i, Text: piece}
		texts[i] = piece
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed doc %s: %w", doc.ID, err)
	}

	if err := ix.index.Upsert(ctx, namespace, chunks, vectors); err != nil {
		return 0, err
	}

	ix.logger.Infow("Indexed document", "doc_id", doc.ID, "namespace", namespace, "chunks", len(chunks))
	return len(chunks), nil
}

// IndexRepo indexes every completed document of a repository into a
// fresh namespace. Re-embedding an existing namespace is rejected with
// core.ErrNamespaceExists unless reindex is set, in which case the old
// namespace is deleted first.
func (ix *Indexer) IndexRepo(ctx context.Context, namespace string, docs []*core.Doc, reindex bool) (int, error) {
	exists, err := ix.index.Exists(ctx, namespace)
	if err != nil {
		return 0, err
	}
	if exists {
		if !reindex {
			return 0, core.ErrNamespaceExists
		}
		if err := ix.index.Delete(ctx, namespace); err != nil {
			return 0, err
		}
	}

	var total int
	for _, doc := range docs {
		if doc.Status != core.DocStatusCompleted {
			continue
		}
		n, err := ix.IndexDoc(ctx, namespace, doc)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Query embeds the query text and returns the topK closest chunks in
// the namespace.
func (ix *Indexer) Query(ctx context.Context, namespace, query string, topK int) ([]core.SearchHit, error) {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query vector, got %d", len(vectors))
	}

	return ix.index.Search(ctx, namespace, vectors[0], topK)
}
