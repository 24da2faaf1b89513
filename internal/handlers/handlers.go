package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/waste-sort/internal/category"
	"github.com/example/waste-sort/internal/classifier"
	"github.com/example/waste-sort/internal/imageprocessor"
	"github.com/example/waste-sort/internal/repository"
	"github.com/example/waste-sort/internal/usecase"
)

// MaxUploadSize limits the accepted image size to 10 MiB.
const MaxUploadSize = 10 << 20

// multipartOverhead is the slack allowed on top of the image for form framing.
const multipartOverhead = 1 << 20

// Version is reported by the root endpoint.
const Version = "1.0.0"

// ClassificationService is the use case surface the handlers depend on.
type ClassificationService interface {
	ClassifyImage(ctx context.Context, data []byte) (*usecase.Classification, error)
	GetResult(ctx context.Context, requestID string) (*usecase.Classification, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
	ModelLoaded(ctx context.Context) bool
	Categories() []category.Category
	Category(id category.ID) category.Category
	Guide() category.Guide
}

type classifyResponse struct {
	RequestID string `json:"request_id"`
	Cached    bool   `json:"cached"`
	*classifier.Result
}

// RegisterRoutes wires the HTTP handlers to the Gin router. adminAuth guards
// the /admin group.
func RegisterRoutes(router *gin.Engine, svc ClassificationService, adminAuth gin.HandlerFunc) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Taoyuan Waste Sorting API",
			"version": Version,
			"endpoints": gin.H{
				"/classify":       "POST - Upload image for waste classification",
				"/categories":     "GET - Get available waste categories",
				"/categories/:id": "GET - Get one waste category",
				"/result/:id":     "GET - Get a previous classification",
				"/health":         "GET - Health check",
			},
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": svc.ModelLoaded(c.Request.Context())})
	})

	router.GET("/categories", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"categories": svc.Categories(), "rules": svc.Guide()})
	})

	router.GET("/categories/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Category(category.ID(strings.ToLower(c.Param("id")))))
	})

	router.POST("/classify", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("file")
		if errors.Is(err, http.ErrMissingFile) {
			file, err = c.FormFile("image")
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
			return
		}

		if contentType := strings.ToLower(file.Header.Get("Content-Type")); !strings.HasPrefix(contentType, "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "file must be an image"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}
		if len(data) > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds maximum upload size"})
			return
		}

		record, err := svc.ClassifyImage(c.Request.Context(), data)
		if err != nil {
			_ = c.Error(err)
			if errors.Is(err, imageprocessor.ErrUnsupportedImage) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unable to decode image"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
			return
		}

		c.JSON(statusFor(record.Result), classifyResponse{
			RequestID: record.RequestID,
			Cached:    record.Cached,
			Result:    record.Result,
		})
	})

	router.GET("/result/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		record, err := svc.GetResult(c.Request.Context(), requestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.JSON(http.StatusOK, record)
	})

	admin := router.Group("/admin", adminAuth)
	admin.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			if errors.Is(err, usecase.ErrHistoryDisabled) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "classification history is disabled"})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func statusFor(result *classifier.Result) int {
	switch result.Outcome {
	case classifier.OutcomeDetectorUnavailable:
		return http.StatusServiceUnavailable
	case classifier.OutcomeDetectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}
