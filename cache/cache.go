// Package cache is a Redis-backed response cache for the query engine.
// Exact lookups hash the normalized query; semantic lookups compare the
// query embedding against recently cached embeddings.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	responsePrefix  = "rag:response:"
	embeddingPrefix = "rag:embedding:"
	maxCandidates   = 100
)

// CachedResponse is what gets stored and returned on a hit. Extra fields
// set only on hits: Cached, CacheKey, SemanticMatch, Similarity.
type CachedResponse struct {
	Response      string         `json:"response"`
	Sources       []string       `json:"sources,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CachedAt      time.Time      `json:"cached_at"`
	Cached        bool           `json:"_cached,omitempty"`
	CacheKey      string         `json:"_cache_key,omitempty"`
	SemanticMatch bool           `json:"_semantic_match,omitempty"`
	Similarity    float64        `json:"_similarity,omitempty"`
}

type embeddingEntry struct {
	Embedding   []float64 `json:"embedding"`
	ResponseKey string    `json:"response_key"`
}

// Stats summarizes cache occupancy and tuning.
type Stats struct {
	Enabled             bool    `json:"enabled"`
	CachedResponses     int     `json:"cached_responses"`
	CachedEmbeddings    int     `json:"cached_embeddings"`
	ResponseTTLSeconds  int     `json:"response_ttl_seconds"`
	EmbeddingTTLSeconds int     `json:"embedding_ttl_seconds"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

type Cache struct {
	rdb                 *redis.Client
	enabled             bool
	responseTTL         time.Duration
	embeddingTTL        time.Duration
	similarityThreshold float64
	logger              *zap.Logger
}

// New connects to Redis and pings it once. A failed ping disables the
// cache rather than failing the caller; every operation then no-ops.
func New(addr string, db int, responseTTL, embeddingTTL time.Duration, threshold float64, logger *zap.Logger) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	c := &Cache{
		rdb:                 rdb,
		responseTTL:         responseTTL,
		embeddingTTL:        embeddingTTL,
		similarityThreshold: threshold,
		logger:              logger,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, response cache disabled", zap.Error(err))
		return c
	}
	c.enabled = true
	return c
}

func (c *Cache) Enabled() bool { return c.enabled }

// HashQuery returns the 16-hex-char exact-match hash of a query.
func HashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

func responseKey(queryHash, sourceID string) string {
	key := responsePrefix + queryHash
	if sourceID != "" {
		key += ":" + sourceID
	}
	return key
}

// GetResponse probes the exact-match cache. A miss or any Redis failure
// returns nil.
func (c *Cache) GetResponse(ctx context.Context, query, sourceID string) *CachedResponse {
	if !c.enabled {
		return nil
	}
	key := responseKey(HashQuery(query), sourceID)
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error("Cache get error", zap.Error(err))
		}
		return nil
	}
	var resp CachedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	c.logger.Info("Cache hit", zap.String("query", truncate(query, 50)))
	resp.Cached = true
	resp.CacheKey = key
	return &resp
}

// PutResponse stores a response under the exact-match key, and when a
// query embedding is supplied also records it for semantic lookups.
func (c *Cache) PutResponse(ctx context.Context, query, sourceID string, resp CachedResponse, queryEmbedding []float64) {
	if !c.enabled {
		return
	}
	queryHash := HashQuery(query)
	key := responseKey(queryHash, sourceID)
	resp.CachedAt = time.Now().UTC()

	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Cache marshal error", zap.Error(err))
		return
	}
	if err := c.rdb.SetEx(ctx, key, data, c.responseTTL).Err(); err != nil {
		c.logger.Error("Cache set error", zap.Error(err))
		return
	}

	if len(queryEmbedding) > 0 {
		entry, err := json.Marshal(embeddingEntry{Embedding: queryEmbedding, ResponseKey: key})
		if err == nil {
			if err := c.rdb.SetEx(ctx, embeddingPrefix+queryHash, entry, c.embeddingTTL).Err(); err != nil {
				c.logger.Error("Embedding cache set error", zap.Error(err))
			}
		}
	}
}

// GetSimilar scans cached query embeddings for the best cosine match. A
// hit requires similarity at or above the threshold and, when sourceID is
// set, a response key scoped to that document.
func (c *Cache) GetSimilar(ctx context.Context, queryEmbedding []float64, sourceID string) *CachedResponse {
	if !c.enabled || len(queryEmbedding) == 0 {
		return nil
	}

	var candidates []string
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, embeddingPrefix+"*", 100).Result()
		if err != nil {
			c.logger.Error("Cache scan error", zap.Error(err))
			return nil
		}
		for _, k := range keys {
			if len(candidates) >= maxCandidates {
				break
			}
			candidates = append(candidates, k)
		}
		cursor = next
		if cursor == 0 || len(candidates) >= maxCandidates {
			break
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	bestSimilarity := 0.0
	bestResponseKey := ""
	for _, key := range candidates {
		raw, err := c.rdb.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var entry embeddingEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		sim := CosineSimilarity(queryEmbedding, entry.Embedding)
		if sim > bestSimilarity {
			bestSimilarity = sim
			bestResponseKey = entry.ResponseKey
		}
	}

	if bestSimilarity < c.similarityThreshold || bestResponseKey == "" {
		return nil
	}
	if sourceID != "" && !strings.Contains(bestResponseKey, ":"+sourceID) {
		return nil
	}

	raw, err := c.rdb.Get(ctx, bestResponseKey).Result()
	if err != nil {
		return nil
	}
	var resp CachedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	c.logger.Info("Semantic cache hit", zap.Float64("similarity", bestSimilarity))
	resp.Cached = true
	resp.CacheKey = bestResponseKey
	resp.SemanticMatch = true
	resp.Similarity = bestSimilarity
	return &resp
}

// Invalidate deletes the document-scoped response entries for a source.
// Unscoped entries keep their TTL.
func (c *Cache) Invalidate(ctx context.Context, sourceID string) int {
	if !c.enabled || sourceID == "" {
		return 0
	}
	return c.deleteByPattern(ctx, responsePrefix+"*:"+sourceID)
}

// ClearAll removes every cache entry and returns the count.
func (c *Cache) ClearAll(ctx context.Context) int {
	if !c.enabled {
		return 0
	}
	deleted := c.deleteByPattern(ctx, responsePrefix+"*")
	deleted += c.deleteByPattern(ctx, embeddingPrefix+"*")
	return deleted
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) int {
	var deleted int
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Error("Cache scan error", zap.Error(err))
			return deleted
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Error("Cache delete error", zap.Error(err))
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted
}

// GetStats counts live entries and reports tuning values.
func (c *Cache) GetStats(ctx context.Context) Stats {
	stats := Stats{
		Enabled:             c.enabled,
		ResponseTTLSeconds:  int(c.responseTTL.Seconds()),
		EmbeddingTTLSeconds: int(c.embeddingTTL.Seconds()),
		SimilarityThreshold: c.similarityThreshold,
	}
	if !c.enabled {
		return stats
	}
	stats.CachedResponses = c.countByPattern(ctx, responsePrefix+"*")
	stats.CachedEmbeddings = c.countByPattern(ctx, embeddingPrefix+"*")
	return stats
}

func (c *Cache) countByPattern(ctx context.Context, pattern string) int {
	var count int
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return count
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either is zero-length or all zeros.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
