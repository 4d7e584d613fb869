package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"documind/errors"
)

// Clone copies every chunk matching the filter into new rows, merging
// the override pairs into each copy's metadata. Embeddings are reused,
// so cloning never touches the embedding model.
func (c *Collection) Clone(ctx context.Context, filter Filter, overrides map[string]string) (int64, error) {
	if len(filter) == 0 {
		return 0, errors.WrapError(errors.ErrInvalidInput, "refusing unfiltered clone")
	}
	filterJSON, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	overrideJSON, err := json.Marshal(overrides)
	if err != nil {
		return 0, errors.WrapError(err, "marshal metadata overrides")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (id, content, metadata, embedding)
        SELECT gen_random_uuid(), content, metadata || $2::jsonb, embedding
        FROM %s
        WHERE metadata @> $1::jsonb
    `, c.table, c.table)

	res, err := c.store.db.ExecContext(ctx, query, filterJSON, string(overrideJSON))
	if staleHandle(err) {
		c.store.reset(c.name)
		if rerr := c.ensure(ctx); rerr != nil {
			return 0, rerr
		}
		res, err = c.store.db.ExecContext(ctx, query, filterJSON, string(overrideJSON))
	}
	if err != nil {
		return 0, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	n, _ := res.RowsAffected()
	c.store.logger.Info("Cloned chunks",
		zap.String("collection", c.name),
		zap.Int64("count", n))
	return n, nil
}
