package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/example/waste-sort/internal/category"
	"github.com/example/waste-sort/internal/detector"
	"github.com/example/waste-sort/internal/resolver"
)

// DefaultConfidenceThreshold is used when no threshold is configured.
const DefaultConfidenceThreshold = 0.3

// Aggregator turns raw detections into a single Result. It holds only
// read-only state and may be used from many goroutines.
type Aggregator struct {
	resolver  *resolver.Resolver
	registry  *category.Registry
	threshold float64
}

// NewAggregator validates threshold, which must lie in [0, 1).
func NewAggregator(res *resolver.Resolver, reg *category.Registry, threshold float64) (*Aggregator, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("confidence threshold %v out of range [0, 1)", threshold)
	}
	return &Aggregator{resolver: res, registry: reg, threshold: threshold}, nil
}

// Threshold returns the strict lower bound a detection's confidence must exceed.
func (a *Aggregator) Threshold() float64 {
	return a.threshold
}

// Aggregate filters, resolves and ranks raw detections. Detections with equal
// confidence keep the order in which the detector reported them.
func (a *Aggregator) Aggregate(raw []detector.DetectedObject) *Result {
	if len(raw) == 0 {
		return a.fallback(OutcomeNoDetections, MessageNoDetections)
	}

	type ranked struct {
		Detection
		raw float64
	}
	kept := make([]ranked, 0, len(raw))
	for _, d := range raw {
		// Written as a negated comparison so NaN confidences are dropped too.
		if !(d.Confidence > a.threshold) {
			continue
		}
		kept = append(kept, ranked{
			Detection: Detection{
				Object:     d.Label,
				Confidence: roundConfidence(d.Confidence),
				Category:   a.resolver.Resolve(d.Label),
			},
			raw: d.Confidence,
		})
	}
	if len(kept) == 0 {
		return a.fallback(OutcomeBelowThreshold, MessageBelowThreshold)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].raw > kept[j].raw
	})

	detections := make([]Detection, len(kept))
	for i, k := range kept {
		detections[i] = k.Detection
	}

	primary := detections[0]
	return &Result{
		Success:         true,
		Outcome:         OutcomeClassified,
		Category:        a.registry.Get(primary.Category),
		DetectedObjects: detections,
		Confidence:      primary.Confidence,
		PrimaryObject:   primary.Object,
		Message:         detectedMessage(primary.Object),
	}
}

func (a *Aggregator) fallback(outcome Outcome, message string) *Result {
	return &Result{
		Success:         true,
		Outcome:         outcome,
		Category:        a.registry.Get(category.GeneralWaste),
		DetectedObjects: []Detection{},
		Confidence:      0,
		Message:         message,
	}
}

// roundConfidence keeps three decimals in reported scores. Filtering and
// ranking use the unrounded value.
func roundConfidence(c float64) float64 {
	return math.Round(c*1000) / 1000
}
