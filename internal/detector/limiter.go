package detector

import (
	"context"
	"image"

	"golang.org/x/sync/semaphore"
)

// Limited bounds the number of concurrent Detect calls on a shared model.
// A limit of one serialises inference entirely.
type Limited struct {
	next Detector
	sem  *semaphore.Weighted
}

// NewLimited wraps next so that at most maxConcurrent inferences run at once.
// Values below one are treated as one.
func NewLimited(next Detector, maxConcurrent int) *Limited {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Detect waits for a free slot, then delegates.
func (l *Limited) Detect(ctx context.Context, img image.Image) ([]DetectedObject, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.Detect(ctx, img)
}

// IsLoaded is not rate limited.
func (l *Limited) IsLoaded(ctx context.Context) bool {
	return l.next.IsLoaded(ctx)
}
