// Package classifier decides the disposal category for an image from the
// detections of an external model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/example/waste-sort/internal/category"
	"github.com/example/waste-sort/internal/detector"
	"github.com/example/waste-sort/internal/logging"
)

// Service wires the detector, Aggregator and Registry behind Classify.
type Service struct {
	detector   detector.Detector
	aggregator *Aggregator
	registry   *category.Registry
	logger     *zap.Logger
}

// NewService constructs a classification service around an injected detector.
func NewService(det detector.Detector, agg *Aggregator, reg *category.Registry, logger *zap.Logger) *Service {
	return &Service{
		detector:   det,
		aggregator: agg,
		registry:   reg,
		logger:     logger.Named("classifier"),
	}
}

// Classify never returns an error: an unavailable or failing detector yields a
// Result with Success=false and the general waste category.
func (s *Service) Classify(ctx context.Context, img image.Image) *Result {
	if !s.isLoaded(ctx) {
		s.logger.Warn("detector not loaded")
		return s.unavailable()
	}

	start := time.Now()
	raw, err := s.detect(ctx, img)
	if err != nil {
		if errors.Is(err, detector.ErrNotLoaded) {
			s.logger.Warn("detector reported model not loaded", zap.Error(err))
			return s.unavailable()
		}
		wrapped := logging.NewOperationError("classifier.detect", "", err)
		s.logger.Error("detection failed", zap.Error(wrapped), zap.Duration("elapsed", time.Since(start)))
		return s.failed(err)
	}

	s.logger.Debug("detection finished",
		zap.Int("detections", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return s.aggregator.Aggregate(raw)
}

// Category returns the registry entry for id, falling back to general waste.
func (s *Service) Category(id category.ID) category.Category {
	return s.registry.Get(id)
}

// Categories returns every registry entry in display order.
func (s *Service) Categories() []category.Category {
	return s.registry.All()
}

// Guide returns the general sorting rules.
func (s *Service) Guide() category.Guide {
	return s.registry.Guide()
}

// DetectorReady reports whether the detector model is loaded.
func (s *Service) DetectorReady(ctx context.Context) bool {
	return s.isLoaded(ctx)
}

// Threshold returns the configured confidence threshold.
func (s *Service) Threshold() float64 {
	return s.aggregator.Threshold()
}

func (s *Service) isLoaded(ctx context.Context) (loaded bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("detector readiness check panicked", zap.Any("panic", r))
			loaded = false
		}
	}()
	return s.detector.IsLoaded(ctx)
}

func (s *Service) detect(ctx context.Context, img image.Image) (raw []detector.DetectedObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return s.detector.Detect(ctx, img)
}

func (s *Service) unavailable() *Result {
	return &Result{
		Success:         false,
		Outcome:         OutcomeDetectorUnavailable,
		Category:        s.registry.Get(category.GeneralWaste),
		DetectedObjects: []Detection{},
		Message:         MessageDetectorUnavailable,
		Error:           ErrorModelNotLoaded,
	}
}

func (s *Service) failed(err error) *Result {
	return &Result{
		Success:         false,
		Outcome:         OutcomeDetectionFailed,
		Category:        s.registry.Get(category.GeneralWaste),
		DetectedObjects: []Detection{},
		Message:         failedMessage(err.Error()),
		Error:           err.Error(),
	}
}
