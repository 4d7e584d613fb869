package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"documind/pipeline"
)

const dequeueWait = 5 * time.Second

// ItemResult is the per-input outcome reported to the callback.
type ItemResult struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	Chunks   int    `json:"chunks,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Worker drains the queue and runs the ingestion pipeline.
type Worker struct {
	queue         *Queue
	pipe          *pipeline.Pipeline
	concurrency   int
	softLimit     time.Duration
	hardLimit     time.Duration
	callbackToken string
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewWorker(
	q *Queue,
	pipe *pipeline.Pipeline,
	concurrency int,
	softLimit, hardLimit time.Duration,
	callbackToken string,
	logger *zap.Logger,
) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if hardLimit <= 0 {
		hardLimit = time.Hour + time.Minute
	}
	return &Worker{
		queue:         q,
		pipe:          pipe,
		concurrency:   concurrency,
		softLimit:     softLimit,
		hardLimit:     hardLimit,
		callbackToken: callbackToken,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

// Run consumes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Worker started", zap.Int("concurrency", w.concurrency))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping")
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Dequeue failed", zap.Error(err))
			time.Sleep(dequeueWait)
			continue
		}
		if task == nil {
			continue
		}
		w.handle(ctx, task)
		w.queue.Ack(ctx, task)
	}
}

// handle processes one task under the hard time limit, warning at the
// soft limit. Uploaded temp files are removed whatever happens.
func (w *Worker) handle(ctx context.Context, task *Task) {
	taskCtx, cancel := context.WithTimeout(ctx, w.hardLimit)
	defer cancel()

	if w.softLimit > 0 {
		softTimer := time.AfterFunc(w.softLimit, func() {
			w.logger.Warn("Task exceeded soft time limit",
				zap.String("task_id", task.ID),
				zap.Duration("soft_limit", w.softLimit))
		})
		defer softTimer.Stop()
	}

	defer w.removeUploads(task.Payload.FileRefs)

	w.logger.Info("Processing task",
		zap.String("task_id", task.ID),
		zap.String("session_id", task.Payload.SessionID),
		zap.Int("files", len(task.Payload.FileRefs)),
		zap.Int("links", len(task.Payload.Links)))

	results, err := w.processItems(taskCtx, task.Payload)
	if err != nil {
		w.logger.Error("Task failed",
			zap.String("task_id", task.ID), zap.Error(err))
		w.sendCallback(task.Payload.CallbackURL, map[string]any{
			"session_id": task.Payload.SessionID,
			"status":     "failed",
			"error":      err.Error(),
		})
		return
	}

	w.sendCallback(task.Payload.CallbackURL, map[string]any{
		"session_id": task.Payload.SessionID,
		"status":     "completed",
		"results":    results,
	})
}

// processItems fans out over the task's files and links with bounded
// concurrency. Individual failures are captured per item; only a
// context-level failure aborts the whole task.
func (w *Worker) processItems(ctx context.Context, payload Payload) ([]ItemResult, error) {
	opts := pipeline.Options{
		SessionID:       payload.SessionID,
		Author:          payload.Author,
		UserDescription: payload.UserDescription,
		UseVision:       payload.UseVision,
	}

	total := len(payload.FileRefs) + len(payload.Links)
	results := make([]ItemResult, total)
	sem := semaphore.NewWeighted(int64(w.concurrency))
	var wg sync.WaitGroup

	runOne := func(idx int, sourceID string, fn func(context.Context) (*pipeline.Result, error)) {
		defer wg.Done()
		defer sem.Release(1)
		res, err := fn(ctx)
		if err != nil {
			w.logger.Error("Item failed",
				zap.String("source_id", sourceID), zap.Error(err))
			results[idx] = ItemResult{SourceID: sourceID, Status: "failed", Error: err.Error()}
			return
		}
		results[idx] = ItemResult{
			SourceID: res.SourceID,
			Status:   res.Status,
			Chunks:   res.Chunks,
			Summary:  res.Summary,
		}
	}

	idx := 0
	for _, ref := range payload.FileRefs {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		ref := ref
		go runOne(idx, ref.Name, func(c context.Context) (*pipeline.Result, error) {
			return w.pipe.ProcessFile(c, pipeline.FileInput{Path: ref.Path, Name: ref.Name, Type: ref.Type}, opts)
		})
		idx++
	}
	for _, link := range payload.Links {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		link := link
		go runOne(idx, link, func(c context.Context) (*pipeline.Result, error) {
			return w.pipe.ProcessLink(c, link, opts)
		})
		idx++
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (w *Worker) removeUploads(refs []FileRef) {
	for _, ref := range refs {
		if err := os.Remove(ref.Path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("Could not remove uploaded file",
				zap.String("path", ref.Path), zap.Error(err))
		}
	}
}

// sendCallback notifies the requesting system when a callback URL was
// supplied. Callback failures are logged, never retried into the task.
func (w *Worker) sendCallback(url string, body map[string]any) {
	if url == "" {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		w.logger.Warn("Invalid callback URL", zap.String("url", url), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if w.callbackToken != "" {
		req.Header.Set("Authorization", "Bearer "+w.callbackToken)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("Callback delivery failed", zap.String("url", url), zap.Error(err))
		return
	}
	resp.Body.Close()
	w.logger.Info("Callback delivered",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode))
}
