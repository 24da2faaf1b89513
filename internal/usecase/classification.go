package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/waste-sort/internal/category"
	"github.com/example/waste-sort/internal/classifier"
	"github.com/example/waste-sort/internal/imageprocessor"
	"github.com/example/waste-sort/internal/logging"
	"github.com/example/waste-sort/internal/metrics"
	"github.com/example/waste-sort/internal/repository"
)

// ErrHistoryDisabled is returned by history queries when no database is configured.
var ErrHistoryDisabled = errors.New("classification history is disabled")

// Classifier is the decision service the use case delegates to.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) *classifier.Result
	Category(id category.ID) category.Category
	Categories() []category.Category
	Guide() category.Guide
	DetectorReady(ctx context.Context) bool
	Threshold() float64
}

// ClassificationRepository defines the persistence operations needed by the use case.
type ClassificationRepository interface {
	SaveLog(ctx context.Context, log *repository.ClassificationLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.ClassificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
	CountByCategory(ctx context.Context) ([]repository.CategoryCount, error)
}

// Classification is one answered request.
type Classification struct {
	RequestID           string             `json:"request_id"`
	ImageHash           string             `json:"image_hash,omitempty"`
	ContentDigest       string             `json:"content_digest,omitempty"`
	Cached              bool               `json:"cached"`
	Result              *classifier.Result `json:"result"`
	ProcessingLatencyMs float64            `json:"processing_latency_ms"`
	CreatedAt           time.Time          `json:"created_at"`
}

// ClassificationUseCase encapsulates the upload-to-answer flow around the classifier.
type ClassificationUseCase struct {
	classifier     Classifier
	repo           ClassificationRepository
	cache          Cache
	metrics        *metrics.Metrics
	logger         *zap.Logger
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// Option configures optional backends of the use case.
type Option func(*ClassificationUseCase)

// WithRepository enables classification history.
func WithRepository(repo ClassificationRepository) Option {
	return func(uc *ClassificationUseCase) { uc.repo = repo }
}

// WithCache enables result caching for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(uc *ClassificationUseCase) {
		uc.cache = cache
		if ttl > 0 {
			uc.cacheTTL = ttl
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *ClassificationUseCase) { uc.metrics = m }
}

// NewClassificationUseCase constructs a new use case instance.
func NewClassificationUseCase(svc Classifier, logger *zap.Logger, opts ...Option) *ClassificationUseCase {
	uc := &ClassificationUseCase{
		classifier:     svc,
		logger:         logger.Named("classification_usecase"),
		cacheTTL:       10 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ClassifyImage decodes data and classifies it. Only an undecodable image is
// an error; detector problems are reported inside the Result, and history or
// cache failures are logged without affecting the answer.
func (uc *ClassificationUseCase) ClassifyImage(ctx context.Context, data []byte) (*Classification, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.classify_image", requestID)
	start := uc.now()

	img, err := imageprocessor.Decode(data)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_image", requestID, err)
		opLogger.Info("rejected undecodable upload", zap.Error(wrapped), zap.Int("bytes", len(data)))
		return nil, wrapped
	}

	fingerprint, err := imageprocessor.Fingerprint(img)
	if err != nil {
		opLogger.Warn("failed to fingerprint image", zap.Error(err))
	}

	digest := imageprocessor.Digest(img)

	result, cached := uc.cachedResult(ctx, requestID, digest)
	if !cached {
		result = uc.classifier.Classify(ctx, img)
	}

	elapsed := uc.now().Sub(start)
	record := &Classification{
		RequestID:           requestID,
		ImageHash:           fingerprint,
		ContentDigest:       digest,
		Cached:              cached,
		Result:              result,
		ProcessingLatencyMs: float64(elapsed.Microseconds()) / 1000,
		CreatedAt:           start.UTC(),
	}

	uc.persist(ctx, opLogger, record)
	uc.store(ctx, opLogger, record)

	if cached {
		uc.metrics.CacheHit()
	}
	uc.metrics.ObserveClassification(string(result.Outcome), string(result.Category.ID), len(result.DetectedObjects), elapsed)

	opLogger.Info("image classified",
		zap.String("outcome", string(result.Outcome)),
		zap.String("category", string(result.Category.ID)),
		zap.String("primary_object", result.PrimaryObject),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("cached", cached),
		zap.Duration("elapsed", elapsed),
	)
	return record, nil
}

// GetResult retrieves a cached classification or loads it from history.
func (uc *ClassificationUseCase) GetResult(ctx context.Context, requestID string) (*Classification, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if uc.cache != nil {
		cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", requestCacheKey(requestID))
		if err == nil {
			var record Classification
			if err := json.Unmarshal([]byte(cached), &record); err != nil {
				opLogger.Warn("failed to decode cached result", zap.Error(err))
			} else {
				return &record, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, repository.ErrNotFound
	}
	log, err := uc.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return uc.fromLog(log, opLogger), nil
}

// ModelLoaded reports whether the detector is ready.
func (uc *ClassificationUseCase) ModelLoaded(ctx context.Context) bool {
	return uc.classifier.DetectorReady(ctx)
}

// Categories returns every disposal category in display order.
func (uc *ClassificationUseCase) Categories() []category.Category {
	return uc.classifier.Categories()
}

// Category returns one category; unknown ids fall back to general waste.
func (uc *ClassificationUseCase) Category(id category.ID) category.Category {
	return uc.classifier.Category(id)
}

// Guide returns the general sorting rules.
func (uc *ClassificationUseCase) Guide() category.Guide {
	return uc.classifier.Guide()
}

func (uc *ClassificationUseCase) cachedResult(ctx context.Context, requestID, digest string) (*classifier.Result, bool) {
	if uc.cache == nil || digest == "" {
		return nil, false
	}
	key := imageCacheKey(digest, uc.classifier.Threshold())
	raw, err := uc.withRedisGet(ctx, requestID, "cache.get.image", key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "cache.get.image", requestID).Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}
	var result classifier.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		logging.WithOperation(uc.logger, "cache.get.image", requestID).Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	return &result, true
}

func (uc *ClassificationUseCase) persist(ctx context.Context, opLogger *zap.Logger, record *Classification) {
	if uc.repo == nil {
		return
	}
	detections, err := json.Marshal(record.Result.DetectedObjects)
	if err != nil {
		opLogger.Error("failed to serialize detections", zap.Error(err))
		return
	}
	log := &repository.ClassificationLog{
		RequestID:           record.RequestID,
		ImageHash:           record.ImageHash,
		Success:             record.Result.Success,
		Outcome:             string(record.Result.Outcome),
		CategoryID:          string(record.Result.Category.ID),
		PrimaryObject:       record.Result.PrimaryObject,
		Confidence:          record.Result.Confidence,
		DetectedObjects:     string(detections),
		Message:             record.Result.Message,
		Error:               record.Result.Error,
		Threshold:           uc.classifier.Threshold(),
		ProcessingLatencyMs: record.ProcessingLatencyMs,
		CreatedAt:           record.CreatedAt,
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		opLogger.Error("failed to persist classification log", zap.Error(err))
	}
}

func (uc *ClassificationUseCase) store(ctx context.Context, opLogger *zap.Logger, record *Classification) {
	if uc.cache == nil {
		return
	}
	serialized, err := json.Marshal(record)
	if err != nil {
		opLogger.Error("failed to serialize classification", zap.Error(err))
		return
	}
	if err := uc.withRedisRetry(ctx, record.RequestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, requestCacheKey(record.RequestID), string(serialized), uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache classification", zap.Error(err))
	}

	if record.Cached || record.ContentDigest == "" || !record.Result.Success {
		return
	}
	result, err := json.Marshal(record.Result)
	if err != nil {
		opLogger.Error("failed to serialize result", zap.Error(err))
		return
	}
	key := imageCacheKey(record.ContentDigest, uc.classifier.Threshold())
	if err := uc.withRedisRetry(ctx, record.RequestID, "cache.set.image", func() error {
		return uc.cache.Set(ctx, key, string(result), uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache result by content digest", zap.Error(err))
	}
}

func (uc *ClassificationUseCase) fromLog(log *repository.ClassificationLog, opLogger *zap.Logger) *Classification {
	detections := []classifier.Detection{}
	if log.DetectedObjects != "" {
		if err := json.Unmarshal([]byte(log.DetectedObjects), &detections); err != nil {
			opLogger.Warn("failed to decode stored detections", zap.Error(err))
			detections = []classifier.Detection{}
		}
	}
	return &Classification{
		RequestID: log.RequestID,
		ImageHash: log.ImageHash,
		Result: &classifier.Result{
			Success:         log.Success,
			Outcome:         classifier.Outcome(log.Outcome),
			Category:        uc.classifier.Category(category.ID(log.CategoryID)),
			DetectedObjects: detections,
			Confidence:      log.Confidence,
			PrimaryObject:   log.PrimaryObject,
			Message:         log.Message,
			Error:           log.Error,
		},
		ProcessingLatencyMs: log.ProcessingLatencyMs,
		CreatedAt:           log.CreatedAt,
	}
}

func (uc *ClassificationUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !repository.IsTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *ClassificationUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func formatThreshold(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}
