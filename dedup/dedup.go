// Package dedup short-circuits re-ingestion of content the platform has
// already processed, keyed by content hash.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"

	"documind/errors"
	"documind/vectorstore"
)

// HashURL derives the dedup hash for link inputs, where there is no file
// body to hash.
func HashURL(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Hit describes a dedup match.
type Hit struct {
	// SameSession means the exact content already lives in this session;
	// nothing needs to happen.
	SameSession bool
	// SourceID of the already-ingested document.
	SourceID string
	// Record is the stored document record (nil for same-session hits).
	Record json.RawMessage
}

// ChunkIndex is the slice of the vector store the deduper consults.
type ChunkIndex interface {
	Exists(ctx context.Context, filter vectorstore.Filter) (bool, error)
	Get(ctx context.Context, filter vectorstore.Filter) ([]vectorstore.Result, error)
	Clone(ctx context.Context, filter vectorstore.Filter, overrides map[string]string) (int64, error)
}

// RecordStore is the slice of the session store the deduper consults.
type RecordStore interface {
	FindDocumentByHash(ctx context.Context, fileHash string) (json.RawMessage, error)
	AppendFiles(ctx context.Context, sessionID, author string, records []json.RawMessage) error
}

// Deduper checks content hashes against the vector store and the object
// store before the expensive pipeline stages run.
type Deduper struct {
	store  RecordStore
	index  ChunkIndex
	logger *zap.Logger
}

func New(store RecordStore, index ChunkIndex, logger *zap.Logger) *Deduper {
	return &Deduper{store: store, index: index, logger: logger}
}

// Check looks the hash up, first within the session, then globally. On a
// cross-session hit it clones the original document's chunks into the new
// session and copies the stored record, so the caller can skip
// extraction, structuring and embedding entirely. A nil return with nil
// error means new content.
func (d *Deduper) Check(ctx context.Context, sessionID, author, fileHash string) (*Hit, error) {
	inSession, err := d.index.Exists(ctx, vectorstore.Filter{
		"file_hash":  fileHash,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, err
	}
	if inSession {
		d.logger.Info("Duplicate within session, fast-tracking",
			zap.String("session_id", sessionID),
			zap.String("file_hash", fileHash))
		return &Hit{SameSession: true}, nil
	}

	record, err := d.store.FindDocumentByHash(ctx, fileHash)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var fields struct {
		SourceID string `json:"source_id"`
	}
	if err := json.Unmarshal(record, &fields); err != nil {
		return nil, errors.WrapError(err, "decode stored document record")
	}

	// Clone the chunks of the oldest session that indexed this content.
	existing, err := d.index.Get(ctx, vectorstore.Filter{"file_hash": fileHash})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		// Record without chunks: treat as new content and reprocess.
		d.logger.Warn("Document record exists but has no chunks, reprocessing",
			zap.String("file_hash", fileHash))
		return nil, nil
	}
	firstSession := existing[0].Metadata["session_id"]

	cloned, err := d.index.Clone(ctx,
		vectorstore.Filter{"file_hash": fileHash, "session_id": firstSession},
		map[string]string{"session_id": sessionID})
	if err != nil {
		return nil, err
	}

	if err := d.store.AppendFiles(ctx, sessionID, author, []json.RawMessage{record}); err != nil {
		return nil, err
	}

	d.logger.Info("Cross-session duplicate, cloned existing chunks",
		zap.String("session_id", sessionID),
		zap.String("source_id", fields.SourceID),
		zap.Int64("chunks", cloned))
	return &Hit{SourceID: fields.SourceID, Record: record}, nil
}
