// Package models contains shared data models used across the dogwatch codebase.
package models

import (
	"context"
	"errors"
)

// Sentinel errors for classifier failures. Providers wrap these with %w.
var (
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrClassificationTimeout = errors.New("classification timeout")
	ErrInvalidResponse       = errors.New("classifier returned invalid response")
)

// Classifier is the image classification capability used by the worker.
// The worker only ever sees this interface; backends are chosen in classifier.NewClassifier.
type Classifier interface {
	// Classify inspects the raw image bytes and reports whether a dog is present.
	Classify(ctx context.Context, image []byte) (Classification, error)
	// Name returns the provider identifier (e.g., "http").
	Name() string
}

// Classification is the outcome of a successful classification call.
type Classification struct {
	HasDog     bool
	Detections []Detection
}

// Detection is a single labelled object reported by the inference backend.
type Detection struct {
	Label      string  `json:"label" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}
