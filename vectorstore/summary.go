package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"documind/errors"
)

// DocumentSummary aggregates the chunks of one indexed document.
type DocumentSummary struct {
	SourceID string   `json:"source_id"`
	Source   string   `json:"source"`
	Chunks   int      `json:"chunks"`
	Sessions []string `json:"sessions"`
}

// IndexSummary is the collection-wide view used by the documents listing.
type IndexSummary struct {
	TotalChunks int               `json:"total_chunks"`
	Documents   []DocumentSummary `json:"documents"`
	Sessions    []string          `json:"sessions"`
}

// Summary reports per-document chunk counts and the set of sessions with
// indexed content. An optional sessionID narrows the view.
func (c *Collection) Summary(ctx context.Context, sessionID string) (*IndexSummary, error) {
	where := ""
	args := []any{}
	if sessionID != "" {
		where = `WHERE metadata ->> 'session_id' = $1`
		args = append(args, sessionID)
	}

	query := fmt.Sprintf(`
        SELECT metadata ->> 'source_id',
               COALESCE(metadata ->> 'source', 'unknown'),
               COUNT(*),
               STRING_AGG(DISTINCT metadata ->> 'session_id', ',')
        FROM %s
        %s
        GROUP BY 1, 2
        ORDER BY 1
    `, c.table, where)

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageFailure, err.Error())
	}
	defer rows.Close()

	summary := &IndexSummary{Documents: []DocumentSummary{}}
	seen := map[string]bool{}
	for rows.Next() {
		var doc DocumentSummary
		var sessions string
		if err := rows.Scan(&doc.SourceID, &doc.Source, &doc.Chunks, &sessions); err != nil {
			return nil, err
		}
		if sessions != "" {
			doc.Sessions = strings.Split(sessions, ",")
		}
		summary.TotalChunks += doc.Chunks
		summary.Documents = append(summary.Documents, doc)
		for _, s := range doc.Sessions {
			if !seen[s] {
				seen[s] = true
				summary.Sessions = append(summary.Sessions, s)
			}
		}
	}
	return summary, rows.Err()
}
