// Package httpclassifier talks to an object-detection inference server over HTTP.
package httpclassifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/dogwatch/internal/config"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

const maxResponseBytes = 1 << 20

var validate = validator.New()

// Classifier implements models.Classifier against a /detect endpoint that
// returns labelled detections for a posted image.
type Classifier struct {
	baseURL       string
	targetLabel   string
	minConfidence float64
	client        *http.Client
}

// NewClassifier creates a new HTTP classifier.
func NewClassifier(cfg config.ClassifierConfig) *Classifier {
	label := cfg.TargetLabel
	if label == "" {
		label = "dog"
	}
	return &Classifier{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		targetLabel:   label,
		minConfidence: cfg.MinConfidence,
		client:        &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Classifier) Name() string { return "http" }

func (c *Classifier) Classify(ctx context.Context, image []byte) (models.Classification, error) {
	if len(image) == 0 {
		return models.Classification{}, errors.New("classify: empty image")
	}

	u := fmt.Sprintf("%s/detect", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return models.Classification{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mimetype.Detect(image).String())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.Classification{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return models.Classification{}, fmt.Errorf("%w: status %d", models.ErrClassifierUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Classification{}, fmt.Errorf("%w: status %d", models.ErrInvalidResponse, resp.StatusCode)
	}

	var detectResp detectResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&detectResp); err != nil {
		return models.Classification{}, fmt.Errorf("%w: decoding detect response: %v", models.ErrInvalidResponse, err)
	}
	if err := validate.Struct(detectResp); err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}

	detections := detectResp.Detections
	return models.Classification{
		HasDog:     ContainsLabel(detections, c.targetLabel, c.minConfidence),
		Detections: detections,
	}, nil
}

// Ready reports whether the inference server answers its health probe.
func (c *Classifier) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: classifier not ready (status %d)", models.ErrClassifierUnavailable, resp.StatusCode)
	}

	return nil
}

// ContainsLabel reports whether any detection matches label (case-insensitive)
// with at least minConfidence.
func ContainsLabel(detections []models.Detection, label string, minConfidence float64) bool {
	for _, d := range detections {
		if strings.EqualFold(d.Label, label) && d.Confidence >= minConfidence {
			return true
		}
	}
	return false
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", models.ErrClassificationTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrClassificationTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, err)
}

type detectResponse struct {
	Detections []models.Detection `json:"detections" validate:"required,dive"`
}

var _ models.Classifier = (*Classifier)(nil)
