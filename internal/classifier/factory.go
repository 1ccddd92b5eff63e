// Package classifier selects the image classification backend.
package classifier

import (
	"fmt"

	"github.com/kiranshivaraju/dogwatch/internal/classifier/httpclassifier"
	"github.com/kiranshivaraju/dogwatch/internal/config"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

// NewClassifier constructs the appropriate classifier based on config.
// Called once at worker startup.
func NewClassifier(cfg config.ClassifierConfig) (models.Classifier, error) {
	switch cfg.Provider {
	case "http":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return httpclassifier.NewClassifier(cfg), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q: must be http", cfg.Provider)
	}
}
