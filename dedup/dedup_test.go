package dedup

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"documind/errors"
	"documind/vectorstore"
)

type fakeIndex struct {
	exists bool
	chunks []vectorstore.Result

	cloneCalls  int
	cloneFilter vectorstore.Filter
	cloneOver   map[string]string
}

func (f *fakeIndex) Exists(context.Context, vectorstore.Filter) (bool, error) {
	return f.exists, nil
}

func (f *fakeIndex) Get(context.Context, vectorstore.Filter) ([]vectorstore.Result, error) {
	return f.chunks, nil
}

func (f *fakeIndex) Clone(_ context.Context, filter vectorstore.Filter, overrides map[string]string) (int64, error) {
	f.cloneCalls++
	f.cloneFilter = filter
	f.cloneOver = overrides
	return int64(len(f.chunks)), nil
}

type fakeStore struct {
	record json.RawMessage

	appended        []json.RawMessage
	appendedSession string
	appendedAuthor  string
}

func (f *fakeStore) FindDocumentByHash(_ context.Context, fileHash string) (json.RawMessage, error) {
	if f.record == nil {
		return nil, errors.WrapErrorf(errors.ErrNotFound, "document with hash %s", fileHash)
	}
	return f.record, nil
}

func (f *fakeStore) AppendFiles(_ context.Context, sessionID, author string, records []json.RawMessage) error {
	f.appendedSession = sessionID
	f.appendedAuthor = author
	f.appended = append(f.appended, records...)
	return nil
}

func TestCheckSameSessionFastTracks(t *testing.T) {
	index := &fakeIndex{exists: true}
	store := &fakeStore{}
	hit, err := New(store, index, zap.NewNop()).Check(context.Background(), "s1", "alice", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil || !hit.SameSession {
		t.Fatalf("same-session duplicate should fast-track, got %+v", hit)
	}
	if index.cloneCalls != 0 || len(store.appended) != 0 {
		t.Error("fast-track must not clone chunks or touch the session store")
	}
}

func TestCheckClonesOldestSession(t *testing.T) {
	record := json.RawMessage(`{"source_id":"report__ab12cd34","file_hash":"h1"}`)
	index := &fakeIndex{
		chunks: []vectorstore.Result{
			{Metadata: map[string]string{"session_id": "s1"}},
			{Metadata: map[string]string{"session_id": "s1"}},
			{Metadata: map[string]string{"session_id": "s2"}},
		},
	}
	store := &fakeStore{record: record}

	hit, err := New(store, index, zap.NewNop()).Check(context.Background(), "s9", "alice", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if hit == nil || hit.SameSession {
		t.Fatalf("cross-session duplicate should clone, got %+v", hit)
	}
	if hit.SourceID != "report__ab12cd34" {
		t.Errorf("hit source id = %q", hit.SourceID)
	}

	wantFilter := vectorstore.Filter{"file_hash": "h1", "session_id": "s1"}
	if !reflect.DeepEqual(index.cloneFilter, wantFilter) {
		t.Errorf("clone filter = %v, want oldest session %v", index.cloneFilter, wantFilter)
	}
	wantOver := map[string]string{"session_id": "s9"}
	if !reflect.DeepEqual(index.cloneOver, wantOver) {
		t.Errorf("clone overrides = %v, want %v", index.cloneOver, wantOver)
	}

	if len(store.appended) != 1 || string(store.appended[0]) != string(record) {
		t.Errorf("record copy not appended: %v", store.appended)
	}
	if store.appendedSession != "s9" || store.appendedAuthor != "alice" {
		t.Errorf("record appended to %q/%q", store.appendedSession, store.appendedAuthor)
	}
}

func TestCheckRecordWithoutChunksReprocesses(t *testing.T) {
	index := &fakeIndex{}
	store := &fakeStore{record: json.RawMessage(`{"source_id":"orphan__11112222"}`)}
	hit, err := New(store, index, zap.NewNop()).Check(context.Background(), "s1", "", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Errorf("record without chunks should reprocess, got %+v", hit)
	}
	if index.cloneCalls != 0 || len(store.appended) != 0 {
		t.Error("reprocess path must not clone or append")
	}
}

func TestCheckNewContent(t *testing.T) {
	hit, err := New(&fakeStore{}, &fakeIndex{}, zap.NewNop()).Check(context.Background(), "s1", "", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if hit != nil {
		t.Errorf("unseen hash should be nil hit, got %+v", hit)
	}
}

func TestHashURL(t *testing.T) {
	h := HashURL("https://example.com/article")
	if len(h) != 32 {
		t.Fatalf("hash length = %d, want 32 hex chars", len(h))
	}
	if HashURL("https://example.com/article") != h {
		t.Error("hash must be deterministic")
	}
	if HashURL("https://example.com/other") == h {
		t.Error("different URLs should not collide")
	}
}
