package imaging

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent OCR calls. The OCR server is CPU-bound, so
// flooding it with requests only adds queueing latency on its side.
type Pool struct {
	engine Engine
	sem    *semaphore.Weighted
}

func NewPool(engine Engine, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{engine: engine, sem: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Recognize(ctx context.Context, imagePath string) (*OCRResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.engine.Recognize(ctx, imagePath)
}
