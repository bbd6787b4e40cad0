package core

import "time"

const (
	// MaxErrorMessageLength caps error text returned to API clients.
	MaxErrorMessageLength = 500

	// MaxSourceFileBytes caps the size of a source file accepted for
	// documentation generation.
	MaxSourceFileBytes = 512 * 1024

	// MaxCacheValueBytes caps a single cached value to keep Redis
	// memory usage bounded.
	MaxCacheValueBytes = 10 * 1024 * 1024

	// DBRequestTimeout bounds single-record storage operations issued
	// from request handlers.
	DBRequestTimeout = 5 * time.Second

	// EmbeddingBatchLimit is the largest input batch the embeddings
	// endpoint accepts per request.
	EmbeddingBatchLimit = 2048

	// VectorUpsertBatch is the number of vectors written to the index
	// per pipeline round trip.
	VectorUpsertBatch = 100
)
