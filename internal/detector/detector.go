// Package detector defines the contract of the external object detector.
package detector

import (
	"context"
	"errors"
	"image"
)

// ErrNotLoaded is returned by detectors whose model is not available.
var ErrNotLoaded = errors.New("model not loaded")

// DetectedObject is one detection reported by the model.
type DetectedObject struct {
	Label      string
	Confidence float64
}

// Detector exposes the subset of functionality used by the classification flow.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]DetectedObject, error)
	IsLoaded(ctx context.Context) bool
}

// Unavailable is used when no detector backend is configured.
type Unavailable struct{}

// Detect always reports ErrNotLoaded.
func (Unavailable) Detect(context.Context, image.Image) ([]DetectedObject, error) {
	return nil, ErrNotLoaded
}

// IsLoaded always reports false.
func (Unavailable) IsLoaded(context.Context) bool { return false }
