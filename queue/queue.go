// Package queue is the Redis-backed job queue for ingestion requests
// and the worker that drains it.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"documind/errors"
)

// FileRef points at one uploaded file staged on disk.
type FileRef struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"content_type"`
}

// Payload is one ingestion request.
type Payload struct {
	FileRefs        []FileRef `json:"file_refs"`
	Links           []string  `json:"links"`
	Author          string    `json:"author"`
	UseVision       bool      `json:"use_vision"`
	SessionID       string    `json:"session_id"`
	UserDescription string    `json:"user_description"`
	CallbackURL     string    `json:"callback_url,omitempty"`
}

// Task wraps a payload with its queue identity.
type Task struct {
	ID         string    `json:"id"`
	Payload    Payload   `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// raw is the wire form, kept for the processing-list ack.
	raw string
}

// Queue is a FIFO list with a per-consumer processing list, so a crashed
// worker leaves its in-flight task visible instead of losing it.
type Queue struct {
	rdb    *redis.Client
	name   string
	logger *zap.Logger
}

func New(addr string, db int, name string, logger *zap.Logger) *Queue {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Queue{rdb: rdb, name: name, logger: logger}
}

func (q *Queue) processingList() string { return q.name + ":processing" }

// Enqueue pushes a task and returns its id.
func (q *Queue) Enqueue(ctx context.Context, payload Payload) (string, error) {
	task := Task{ID: uuid.New().String(), Payload: payload, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(task)
	if err != nil {
		return "", errors.WrapError(err, "marshal task")
	}
	if err := q.rdb.LPush(ctx, q.name, data).Err(); err != nil {
		return "", errors.WrapErrorf(errors.ErrServiceUnavailable, "enqueue task: %v", err)
	}
	q.logger.Info("Task queued",
		zap.String("task_id", task.ID),
		zap.String("session_id", payload.SessionID),
		zap.Int("files", len(payload.FileRefs)),
		zap.Int("links", len(payload.Links)))
	return task.ID, nil
}

// Dequeue blocks up to timeout for the next task, moving it onto the
// processing list. Returns nil on timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.name, q.processingList(), timeout).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errors.WrapErrorf(errors.ErrServiceUnavailable, "dequeue: %v", err)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// Poison entry: drop it from the processing list and move on.
		q.rdb.LRem(ctx, q.processingList(), 1, raw)
		return nil, errors.WrapError(errors.ErrParseFailure, "decode queued task")
	}
	task.raw = raw
	return &task, nil
}

// Ack removes a completed task from the processing list.
func (q *Queue) Ack(ctx context.Context, task *Task) {
	if task == nil || task.raw == "" {
		return
	}
	if err := q.rdb.LRem(ctx, q.processingList(), 1, task.raw).Err(); err != nil {
		q.logger.Warn("Could not ack task", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// Depth returns the number of pending tasks.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.name).Result()
}

// Close releases the Redis connection.
func (q *Queue) Close() error { return q.rdb.Close() }
