package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"documind/errors"
)

// EmbedFunc turns a text into its embedding vector.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Filter restricts matches to chunks whose metadata contains every listed
// key/value pair.
type Filter map[string]string

// Result is one retrieved chunk.
type Result struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// Store owns pgvector-backed chunk collections. Collections are created
// lazily and the handles are cached for the life of the process.
type Store struct {
	db       *sql.DB
	embed    EmbedFunc
	dims     int
	maxChars int
	logger   *zap.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// Collection is a handle to one chunk table.
type Collection struct {
	store *Store
	name  string
	table string
}

var tableNameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

func New(db *sql.DB, embed EmbedFunc, dims, maxChars int, logger *zap.Logger) *Store {
	if maxChars <= 0 {
		maxChars = 6000
	}
	return &Store{
		db:          db,
		embed:       embed,
		dims:        dims,
		maxChars:    maxChars,
		logger:      logger,
		collections: make(map[string]*Collection),
	}
}

// Collection returns the cached handle for name, creating the backing
// table on first use.
func (s *Store) Collection(ctx context.Context, name string) (*Collection, error) {
	s.mu.Lock()
	if c, ok := s.collections[name]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	c := &Collection{
		store: s,
		name:  name,
		table: "rag_chunks_" + tableNameSanitizer.ReplaceAllString(strings.ToLower(name), "_"),
	}
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.collections[name] = c
	s.mu.Unlock()
	return c, nil
}

// reset drops the cached handle so the next access re-ensures the table.
func (s *Store) reset(name string) {
	s.mu.Lock()
	delete(s.collections, name)
	s.mu.Unlock()
}

func (c *Collection) ensure(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id UUID PRIMARY KEY,
            content TEXT NOT NULL,
            metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
            embedding vector(%d),
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`, c.table, c.store.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_metadata ON %s USING GIN (metadata jsonb_path_ops)`, c.table, c.table),
	}
	for _, stmt := range stmts {
		if _, err := c.store.db.ExecContext(ctx, stmt); err != nil {
			return errors.WrapErrorf(errors.ErrStorageFailure, "ensure collection %s: %v", c.name, err)
		}
	}
	return nil
}

// truncateForEmbedding caps overlong chunk text before it reaches the
// embedding model. The marker keeps the cut visible in stored content.
func (c *Collection) truncateForEmbedding(text string) string {
	if len(text) <= c.store.maxChars {
		return text
	}
	return text[:c.store.maxChars] + "..."
}

// Add embeds and inserts one chunk per text. texts and metadatas must be
// the same length.
func (c *Collection) Add(ctx context.Context, texts []string, metadatas []map[string]string) error {
	if len(texts) != len(metadatas) {
		return errors.WrapErrorf(errors.ErrInvalidInput, "texts/metadata length mismatch: %d vs %d", len(texts), len(metadatas))
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, content, metadata, embedding) VALUES ($1, $2, $3::jsonb, $4)`, c.table)

	for i, text := range texts {
		text = c.truncateForEmbedding(text)
		vec, err := c.store.embed(ctx, text)
		if err != nil {
			return errors.WrapErrorf(err, "embed chunk %d", i)
		}
		meta, err := json.Marshal(metadatas[i])
		if err != nil {
			return errors.WrapError(err, "marshal chunk metadata")
		}
		_, err = c.store.db.ExecContext(ctx, query, uuid.New(), text, string(meta), pgvector.NewVector(vec))
		if err != nil {
			return errors.WrapErrorf(errors.ErrStorageFailure, "insert chunk: %v", err)
		}
	}
	c.store.logger.Debug("Indexed chunks",
		zap.String("collection", c.name),
		zap.Int("count", len(texts)))
	return nil
}

func compileFilter(filter Filter) (string, error) {
	if len(filter) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(filter)
	if err != nil {
		return "", errors.WrapError(err, "marshal filter")
	}
	return string(b), nil
}

// staleHandle reports whether an error looks like a dropped table or a
// cached plan that outlived a schema change. One reset-and-retry clears
// both cases.
func staleHandle(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "stale") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "cached plan")
}

// Query returns the k nearest chunks to text, optionally restricted by a
// metadata filter. Similarity is cosine (1 - distance).
func (c *Collection) Query(ctx context.Context, text string, k int, filter Filter) ([]Result, error) {
	vec, err := c.store.embed(ctx, c.truncateForEmbedding(text))
	if err != nil {
		return nil, errors.WrapError(err, "embed query")
	}

	results, err := c.queryByVector(ctx, vec, k, filter)
	if staleHandle(err) {
		c.store.logger.Warn("Vector query hit stale handle, resetting collection",
			zap.String("collection", c.name), zap.Error(err))
		c.store.reset(c.name)
		if rerr := c.ensure(ctx); rerr != nil {
			return nil, rerr
		}
		results, err = c.queryByVector(ctx, vec, k, filter)
	}
	return results, err
}

func (c *Collection) queryByVector(ctx context.Context, vec []float32, k int, filter Filter) ([]Result, error) {
	filterJSON, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
        FROM %s
        WHERE metadata @> $2::jsonb
        ORDER BY embedding <=> $1
        LIMIT $3
    `, c.table)

	rows, err := c.store.db.QueryContext(ctx, query, pgvector.NewVector(vec), filterJSON, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows, true)
}

// Get returns all chunks matching the filter, insertion order preserved.
func (c *Collection) Get(ctx context.Context, filter Filter) ([]Result, error) {
	filterJSON, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT id, content, metadata FROM %s
        WHERE metadata @> $1::jsonb
        ORDER BY created_at ASC
    `, c.table)

	rows, err := c.store.db.QueryContext(ctx, query, filterJSON)
	if staleHandle(err) {
		c.store.reset(c.name)
		if rerr := c.ensure(ctx); rerr != nil {
			return nil, rerr
		}
		rows, err = c.store.db.QueryContext(ctx, query, filterJSON)
	}
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	defer rows.Close()
	return scanResults(rows, false)
}

// Exists reports whether any chunk matches the filter.
func (c *Collection) Exists(ctx context.Context, filter Filter) (bool, error) {
	filterJSON, err := compileFilter(filter)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE metadata @> $1::jsonb)`, c.table)
	var exists bool
	if err := c.store.db.QueryRowContext(ctx, query, filterJSON).Scan(&exists); err != nil {
		return false, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	return exists, nil
}

// Delete removes all chunks matching the filter and returns how many went.
func (c *Collection) Delete(ctx context.Context, filter Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, errors.WrapError(errors.ErrInvalidInput, "refusing unfiltered delete")
	}
	filterJSON, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE metadata @> $1::jsonb`, c.table)
	res, err := c.store.db.ExecContext(ctx, query, filterJSON)
	if err != nil {
		return 0, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	n, _ := res.RowsAffected()
	c.store.logger.Info("Deleted chunks",
		zap.String("collection", c.name),
		zap.Int64("count", n))
	return n, nil
}

// DeleteCollection drops the backing table.
func (c *Collection) DeleteCollection(ctx context.Context) error {
	if _, err := c.store.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, c.table)); err != nil {
		return errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	c.store.reset(c.name)
	return nil
}

func scanResults(rows *sql.Rows, withSimilarity bool) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		var meta []byte
		var err error
		if withSimilarity {
			err = rows.Scan(&r.ID, &r.Content, &meta, &r.Similarity)
		} else {
			err = rows.Scan(&r.ID, &r.Content, &meta)
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, errors.WrapError(err, "decode chunk metadata")
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
