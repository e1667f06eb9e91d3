// Package prediction defines the contract with the diagnostic model runtime
// and an HTTP client for a model-serving sidecar.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ModelType selects the feature model used for structured input.
type ModelType string

const (
	ModelBreastCancer ModelType = "breast_cancer"
	ModelHeartDisease ModelType = "heart_disease"
	ModelDiabetes     ModelType = "diabetes"
)

// ParseModelType accepts the canonical names and the legacy PascalCase
// names such as "BreastCancerModel".
func ParseModelType(s string) (ModelType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.TrimSuffix(normalized, "model")
	normalized = strings.TrimSuffix(normalized, "_")
	switch strings.ReplaceAll(normalized, "_", "") {
	case "breastcancer":
		return ModelBreastCancer, nil
	case "heartdisease":
		return ModelHeartDisease, nil
	case "diabetes":
		return ModelDiabetes, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedModelType, s)
}

// Result is a single prediction.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Validate rejects results a well-behaved model cannot produce.
func (r Result) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidResult)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidResult, r.Confidence)
	}
	return nil
}

// Provider runs inference. Implementations must be safe for concurrent use.
type Provider interface {
	PredictFeatures(ctx context.Context, features map[string]float64, model ModelType) (Result, error)
	PredictImage(ctx context.Context, image []byte) (Result, error)
}

var (
	ErrUnsupportedModelType = errors.New("unsupported model type")
	ErrModelNotLoaded       = errors.New("model not loaded")
	ErrInvalidImage         = errors.New("invalid image")
	ErrInvalidFeatures      = errors.New("invalid feature vector")
	ErrInvalidResult        = errors.New("invalid prediction result")
	// ErrTransient marks failures worth one retry: timeouts, connection
	// errors and 5xx responses.
	ErrTransient = errors.New("transient prediction failure")
	// ErrUnavailable is returned once retries are exhausted.
	ErrUnavailable = errors.New("prediction provider unavailable")
)
