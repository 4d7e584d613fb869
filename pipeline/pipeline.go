// Package pipeline orchestrates document ingestion: dedup, extraction,
// image analysis, structuring, chunking and indexing, ending with the
// record persisted to the session store.
package pipeline

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"documind/chunker"
	"documind/dedup"
	"documind/extract"
	"documind/imaging"
	"documind/structure"
	"documind/workspace"
)

// DefaultCollection is the chunk collection all sessions share; chunks
// are partitioned by session_id metadata.
const DefaultCollection = "documents"

// Statuses reported per processed input.
const (
	StatusProcessed    = "processed"
	StatusFastTracked  = "fast_tracked"
	StatusDeduplicated = "deduplicated"
)

// FileInput is one uploaded file to ingest.
type FileInput struct {
	Path string
	Name string
	Type string
}

// Options apply to every input of one ingestion request.
type Options struct {
	SessionID       string
	Author          string
	UserDescription string
	UseVision       bool
}

// Result reports what happened to one input.
type Result struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	DocID    string `json:"doc_id,omitempty"`
	Chunks   int    `json:"chunks"`
	Summary  string `json:"summary,omitempty"`
}

// RecordStore persists document records onto sessions.
type RecordStore interface {
	AppendFiles(ctx context.Context, sessionID, author string, records []json.RawMessage) error
}

// ChunkIndex receives a document's chunks for embedding and storage.
type ChunkIndex interface {
	Add(ctx context.Context, texts []string, metadatas []map[string]string) error
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	registry *extract.Registry
	arbiter  *imaging.Arbiter
	agent    *structure.Agent
	chunker  *chunker.Chunker
	deduper  *dedup.Deduper
	records  RecordStore
	index    ChunkIndex
	logger   *zap.Logger
}

func New(
	registry *extract.Registry,
	arbiter *imaging.Arbiter,
	agent *structure.Agent,
	ch *chunker.Chunker,
	deduper *dedup.Deduper,
	records RecordStore,
	index ChunkIndex,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		registry: registry,
		arbiter:  arbiter,
		agent:    agent,
		chunker:  ch,
		deduper:  deduper,
		records:  records,
		index:    index,
		logger:   logger,
	}
}

// ProcessFile ingests one uploaded file.
func (p *Pipeline) ProcessFile(ctx context.Context, file FileInput, opts Options) (*Result, error) {
	fileHash, err := workspace.HashFile(file.Path)
	if err != nil {
		return nil, err
	}

	if res, handled, err := p.checkDedup(ctx, file.Name, fileHash, opts); handled || err != nil {
		return res, err
	}

	extractor, err := p.registry.ForFile(file.Name)
	if err != nil {
		return nil, err
	}
	ext, err := extractor.Extract(ctx, file.Path)
	if err != nil {
		return nil, err
	}
	return p.finishDocument(ctx, ext, fileHash, opts)
}

// ProcessLink ingests one web or YouTube link.
func (p *Pipeline) ProcessLink(ctx context.Context, link string, opts Options) (*Result, error) {
	fileHash := dedup.HashURL(link)

	if res, handled, err := p.checkDedup(ctx, link, fileHash, opts); handled || err != nil {
		return res, err
	}

	ext, err := p.registry.ForLink(link).Extract(ctx, link)
	if err != nil {
		return nil, err
	}
	return p.finishDocument(ctx, ext, fileHash, opts)
}

func (p *Pipeline) checkDedup(ctx context.Context, sourceID, fileHash string, opts Options) (*Result, bool, error) {
	hit, err := p.deduper.Check(ctx, opts.SessionID, opts.Author, fileHash)
	if err != nil {
		// Dedup is an optimization; a failed lookup never blocks ingestion.
		p.logger.Warn("Dedup check failed, processing as new content",
			zap.String("source_id", sourceID), zap.Error(err))
		return nil, false, nil
	}
	if hit == nil {
		return nil, false, nil
	}
	if hit.SameSession {
		return &Result{SourceID: sourceID, Status: StatusFastTracked}, true, nil
	}
	return &Result{SourceID: hit.SourceID, Status: StatusDeduplicated}, true, nil
}

// finishDocument runs the stages shared by files and links: image
// analysis, structuring, record persistence, chunking and indexing.
// Only extraction failures abort an input; every later stage degrades
// to a warning so the record survives with whatever data is available.
// The document's identity is its doc id, which is unique per ingest
// even when two uploads share a filename. The workspace is removed once
// everything is stored.
func (p *Pipeline) finishDocument(ctx context.Context, ext *extract.Extraction, fileHash string, opts Options) (*Result, error) {
	defer func() {
		if err := ext.Dir.Cleanup(); err != nil {
			p.logger.Warn("Workspace cleanup failed",
				zap.String("doc_id", ext.DocID), zap.Error(err))
		}
	}()

	var report *imaging.Report
	if opts.UseVision && len(ext.Images) > 0 && p.arbiter != nil {
		r, err := p.arbiter.Analyze(ctx, ext.Dir, ext.Images, opts.UseVision)
		if err != nil {
			p.logger.Warn("Image analysis failed, continuing without it",
				zap.String("doc_id", ext.DocID), zap.Error(err))
		} else {
			report = r
		}
	}

	rec, err := p.agent.Run(ctx, &structure.Input{
		Extraction:      ext,
		Report:          report,
		SourceID:        ext.DocID,
		Author:          opts.Author,
		UserDescription: opts.UserDescription,
		FileHash:        fileHash,
	})
	if err != nil {
		p.logger.Warn("Structuring failed, keeping a bare record",
			zap.String("doc_id", ext.DocID), zap.Error(err))
		rec = &structure.Record{
			SourceID:        ext.DocID,
			Source:          ext.Source,
			Language:        "unknown",
			Author:          opts.Author,
			UserDescription: opts.UserDescription,
			TablesCount:     len(ext.Tables),
			FileHash:        fileHash,
		}
	}

	if recordJSON, err := json.Marshal(rec); err != nil {
		p.logger.Warn("Could not marshal document record",
			zap.String("doc_id", ext.DocID), zap.Error(err))
	} else if err := p.records.AppendFiles(ctx, opts.SessionID, opts.Author, []json.RawMessage{recordJSON}); err != nil {
		p.logger.Warn("Could not persist document record",
			zap.String("doc_id", ext.DocID), zap.Error(err))
	}

	chunks := p.buildChunks(rec, ext, opts)
	indexed := 0
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		metas := make([]map[string]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
			metas[i] = c.Metadata
		}
		if err := p.index.Add(ctx, texts, metas); err != nil {
			p.logger.Warn("Indexing failed, record kept without chunks",
				zap.String("doc_id", ext.DocID), zap.Error(err))
		} else {
			indexed = len(chunks)
		}
	}

	p.logger.Info("Document ingested",
		zap.String("session_id", opts.SessionID),
		zap.String("doc_id", ext.DocID),
		zap.Int("chunks", indexed))
	return &Result{
		SourceID: ext.DocID,
		Status:   StatusProcessed,
		DocID:    ext.DocID,
		Chunks:   indexed,
		Summary:  rec.Summary,
	}, nil
}

// buildChunks picks the chunking strategy from the record shape:
// per-row for spreadsheets, heading-aware for markdown sources, token
// windows for everything else. The summary is always indexed so
// document-level questions have a target.
func (p *Pipeline) buildChunks(rec *structure.Record, ext *extract.Extraction, opts Options) []chunker.Chunk {
	base := map[string]string{
		"source":     rec.Source,
		"doc_id":     ext.DocID,
		"source_id":  rec.SourceID,
		"author":     opts.Author,
		"session_id": opts.SessionID,
		"file_hash":  rec.FileHash,
		"chunk_type": "token",
	}

	var chunks []chunker.Chunk
	switch {
	case rec.IsSpreadsheet():
		chunks = p.chunker.TableChunks(ext.Tables, base)
		if rec.Analysis != "" {
			meta := copyMeta(base)
			meta["chunk_type"] = "analysis"
			chunks = append(chunks, chunker.Chunk{
				Content:  p.chunker.Truncate(rec.Analysis),
				Metadata: meta,
			})
		}
	case ext.Markdown != "":
		chunks = p.chunker.StructureChunks(ext.Markdown, base)
	default:
		chunks = p.chunker.TokenChunks(rec.CleanContent, base)
	}

	if rec.Summary != "" {
		meta := copyMeta(base)
		meta["chunk_type"] = "summary"
		chunks = append(chunks, chunker.Chunk{
			Content:  p.chunker.Truncate(rec.Summary),
			Metadata: meta,
		})
	}
	return chunks
}

func copyMeta(base map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	return out
}
