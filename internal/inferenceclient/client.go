// Package inferenceclient talks to a Python inference service over HTTP.
package inferenceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/waste-sort/internal/detector"
	"github.com/example/waste-sort/internal/imageprocessor"
	"github.com/example/waste-sort/internal/logging"
)

// Client implements detector.Detector against POST /predict and GET /health.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an inference client. baseURL is the service root,
// e.g. "http://detector:5000".
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("inference_client"),
	}
}

type predictResponse struct {
	Detections []struct {
		Label      string   `json:"label"`
		Confidence *float64 `json:"confidence"`
	} `json:"detections"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded *bool  `json:"model_loaded"`
}

// Detect uploads img as a JPEG multipart file.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]detector.DetectedObject, error) {
	frame, err := imageprocessor.EncodeJPEG(img)
	if err != nil {
		return nil, logging.NewOperationError("inferenceclient.encode_frame", "", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError("inferenceclient.predict", "", err)
		c.logger.Error("inference request failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, logging.NewOperationError("inferenceclient.predict", "", detector.ErrNotLoaded)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		c.logger.Error("inference service returned error", zap.Int("status", resp.StatusCode))
		return nil, logging.NewOperationError("inferenceclient.predict", "", err)
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, logging.NewOperationError("inferenceclient.decode_response", "", err)
	}

	out := make([]detector.DetectedObject, 0, len(decoded.Detections))
	for i, d := range decoded.Detections {
		if d.Label == "" || d.Confidence == nil {
			return nil, fmt.Errorf("detection %d is missing label or confidence", i)
		}
		out = append(out, detector.DetectedObject{Label: d.Label, Confidence: *d.Confidence})
	}
	return out, nil
}

// IsLoaded checks GET /health. A body with "model_loaded" is honoured;
// otherwise any 200 response counts as loaded.
func (c *Client) IsLoaded(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("inference health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil || health.ModelLoaded == nil {
		return true
	}
	return *health.ModelLoaded
}
