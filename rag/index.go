package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"scribe/core"
	"scribe/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// indexEntry is the persisted form of one embedded chunk.
type indexEntry struct {
	DocID  string    `msgpack:"doc_id"`
	Index  int       `msgpack:"index"`
	Text   string    `msgpack:"text"`
	Vector []float32 `msgpack:"vector"`
}

// VectorIndex stores embedded chunks in Redis, one namespace per
// repository, with an in-process LRU in front of the vector reads.
type VectorIndex struct {
	client *redis.Client
	hot    *lru.Cache[string, *indexEntry]
	logger *zap.SugaredLogger
}

// NewVectorIndex creates a vector index backed by the given Redis
// client. hotCacheSize bounds the in-process entry cache.
func NewVectorIndex(client *redis.Client, hotCacheSize int, logger *zap.SugaredLogger) (*VectorIndex, error) {
	if hotCacheSize <= 0 {
		hotCacheSize = 4096
	}
	hot, err := lru.New[string, *indexEntry](hotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create hot cache: %w", err)
	}
	return &VectorIndex{
		client: client,
		hot:    hot,
		logger: logger,
	}, nil
}

func namespaceKey(namespace string) string {
	return "idx:ns:" + namespace
}

func entryKey(namespace, docID string, index int) string {
	return fmt.Sprintf("idx:vec:%s:%s:%d", namespace, docID, index)
}

// Exists reports whether the namespace already holds vectors.
func (vi *VectorIndex) Exists(ctx context.Context, namespace string) (bool, error) {
	n, err := vi.client.Exists(ctx, namespaceKey(namespace)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check namespace %s: %w", namespace, err)
	}
	return n > 0, nil
}

// Upsert writes embedded chunks into a namespace in batches. The
// caller is responsible for rejecting duplicate namespaces when
// re-embedding is not intended.
func (vi *VectorIndex) Upsert(ctx context.Context, namespace string, chunks []core.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}

	for start := 0; start < len(chunks); start += core.VectorUpsertBatch {
		end := start + core.VectorUpsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}

		pipe := vi.client.Pipeline()
		for i := start; i < end; i++ {
			entry := indexEntry{
				DocID:  chunks[i].DocID,
				Index:  chunks[i].Index,
				Text:   chunks[i].Text,
				Vector: vectors[i],
			}
			data, err := msgpack.Marshal(&entry)
			if err != nil {
				return fmt.Errorf("failed to encode vector entry: %w", err)
			}

			key := entryKey(namespace, entry.DocID, entry.Index)
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, namespaceKey(namespace), key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to upsert vectors into %s: %w", namespace, err)
		}
	}
	return nil
}

// Delete removes a namespace and all its vectors.
func (vi *VectorIndex) Delete(ctx context.Context, namespace string) error {
	keys, err := vi.client.SMembers(ctx, namespaceKey(namespace)).Result()
	if err != nil {
		return fmt.Errorf("failed to list namespace %s: %w", namespace, err)
	}

	for _, key := range keys {
		vi.hot.Remove(key)
	}

	pipe := vi.client.Pipeline()
	for start := 0; start < len(keys); start += core.VectorUpsertBatch {
		end := start + core.VectorUpsertBatch
		if end > len(keys) {
			end = len(keys)
		}
		pipe.Del(ctx, keys[start:end]...)
	}
	pipe.Del(ctx, namespaceKey(namespace))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Search returns the topK entries of a namespace ranked by cosine
// similarity to the query vector.
func (vi *VectorIndex) Search(ctx context.Context, namespace string, query []float32, topK int) ([]core.SearchHit, error) {
	if topK <= 0 {
		topK = 5
	}

	start := time.Now()
	defer func() {
		metrics.VectorSearchDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.VectorSearches.Inc()

	keys, err := vi.client.SMembers(ctx, namespaceKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list namespace %s: %w", namespace, err)
	}
	if len(keys) == 0 {
		return nil, core.ErrRepoNotFound
	}

	hits := make([]core.SearchHit, 0, len(keys))
	for _, key := range keys {
		entry, err := vi.loadEntry(ctx, key)
		if err != nil {
			vi.logger.Warnw("Skipping unreadable vector entry", "key", key, "error", err)
			continue
		}

		hits = append(hits, core.SearchHit{
			DocID: entry.DocID,
			Index: entry.Index,
			Text:  entry.Text,
			Score: cosineSimilarity(query, entry.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (vi *VectorIndex) loadEntry(ctx context.Context, key string) (*indexEntry, error) {
	if entry, ok := vi.hot.Get(key); ok {
		metrics.CacheHits.WithLabelValues("vector_hot").Inc()
		return entry, nil
	}
	metrics.CacheMisses.WithLabelValues("vector_hot").Inc()

	data, err := vi.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var entry indexEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, err
	}

	vi.hot.Add(key, &entry)
	return &entry, nil
}

// cosineSimilarity computes the cosine of the angle between two
// vectors; mismatched lengths score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
