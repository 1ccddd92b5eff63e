package mock

import (
	"context"

	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

// MockClassifier satisfies models.Classifier for testing.
type MockClassifier struct {
	Name_        string
	ClassifyFunc func(ctx context.Context, image []byte) (models.Classification, error)
}

func (m *MockClassifier) Name() string { return m.Name_ }

func (m *MockClassifier) Classify(ctx context.Context, image []byte) (models.Classification, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, image)
	}
	return models.Classification{}, nil
}

// NewMockClassifier returns a MockClassifier that always reports hasDog.
func NewMockClassifier(hasDog bool) *MockClassifier {
	return &MockClassifier{
		Name_: "mock",
		ClassifyFunc: func(_ context.Context, _ []byte) (models.Classification, error) {
			c := models.Classification{HasDog: hasDog}
			if hasDog {
				c.Detections = []models.Detection{{Label: "dog", Confidence: 0.9}}
			}
			return c, nil
		},
	}
}

// NewFailingClassifier returns a MockClassifier that always returns the given error.
func NewFailingClassifier(err error) *MockClassifier {
	return &MockClassifier{
		Name_: "mock-failing",
		ClassifyFunc: func(_ context.Context, _ []byte) (models.Classification, error) {
			return models.Classification{}, err
		},
	}
}

// NewTimeoutClassifier returns a MockClassifier that blocks until context is cancelled.
func NewTimeoutClassifier() *MockClassifier {
	return &MockClassifier{
		Name_: "mock-timeout",
		ClassifyFunc: func(ctx context.Context, _ []byte) (models.Classification, error) {
			<-ctx.Done()
			return models.Classification{}, models.ErrClassificationTimeout
		},
	}
}

// NewPanickingClassifier returns a MockClassifier whose Classify panics.
func NewPanickingClassifier(v any) *MockClassifier {
	return &MockClassifier{
		Name_: "mock-panicking",
		ClassifyFunc: func(_ context.Context, _ []byte) (models.Classification, error) {
			panic(v)
		},
	}
}

// Compile-time check that MockClassifier implements Classifier.
var _ models.Classifier = (*MockClassifier)(nil)
