package classifier

import (
	"fmt"

	"github.com/example/waste-sort/internal/category"
)

// Outcome names which path produced a Result.
type Outcome string

const (
	OutcomeClassified          Outcome = "classified"
	OutcomeNoDetections        Outcome = "no_detections"
	OutcomeBelowThreshold      Outcome = "below_threshold"
	OutcomeDetectorUnavailable Outcome = "detector_unavailable"
	OutcomeDetectionFailed     Outcome = "detection_failed"
)

const (
	MessageNoDetections        = "未檢測到物品，建議歸類為一般垃圾 (No objects detected, suggest general waste)"
	MessageBelowThreshold      = "未檢測到高置信度物品 (No high-confidence objects detected)"
	MessageDetectorUnavailable = "無法載入模型，請稍後再試 (Model unavailable, please try again later)"

	ErrorModelNotLoaded = "Model not loaded"
)

func detectedMessage(label string) string {
	return fmt.Sprintf("檢測到 %s (Detected %s)", label, label)
}

func failedMessage(err string) string {
	return fmt.Sprintf("檢測失敗: %s (Detection failed)", err)
}

// Detection is a surviving detection with its resolved category.
type Detection struct {
	Object     string      `json:"object"`
	Confidence float64     `json:"confidence"`
	Category   category.ID `json:"category"`
}

// Result is the authoritative answer for one image.
// When DetectedObjects is non-empty, Category, Confidence and PrimaryObject
// describe DetectedObjects[0].
type Result struct {
	Success         bool              `json:"success"`
	Outcome         Outcome           `json:"outcome"`
	Category        category.Category `json:"category"`
	DetectedObjects []Detection       `json:"detected_objects"`
	Confidence      float64           `json:"confidence"`
	PrimaryObject   string            `json:"primary_object,omitempty"`
	Message         string            `json:"message"`
	Error           string            `json:"error,omitempty"`
}
