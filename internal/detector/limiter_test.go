package detector

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingDetector struct {
	active  int32
	maxSeen int32
}

func (c *countingDetector) Detect(ctx context.Context, img image.Image) ([]DetectedObject, error) {
	n := atomic.AddInt32(&c.active, 1)
	defer atomic.AddInt32(&c.active, -1)
	for {
		seen := atomic.LoadInt32(&c.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&c.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return []DetectedObject{{Label: "bottle", Confidence: 0.9}}, nil
}

func (c *countingDetector) IsLoaded(context.Context) bool { return true }

func TestLimitedSerialisesInference(t *testing.T) {
	inner := &countingDetector{}
	limited := NewLimited(inner, 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limited.Detect(context.Background(), nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&inner.maxSeen); got != 1 {
		t.Fatalf("expected at most 1 concurrent inference, saw %d", got)
	}
}

func TestLimitedHonoursContextWhileWaiting(t *testing.T) {
	limited := NewLimited(&countingDetector{}, 0)
	if err := limited.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("failed to occupy slot: %v", err)
	}
	defer limited.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := limited.Detect(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestUnavailableReportsNotLoaded(t *testing.T) {
	var d Detector = Unavailable{}
	if d.IsLoaded(context.Background()) {
		t.Fatal("expected unavailable detector to report not loaded")
	}
	if _, err := d.Detect(context.Background(), nil); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}
