package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agromind/internal/constants"
	"agromind/internal/errors"
	"agromind/internal/metrics"
	"agromind/internal/models"
	"agromind/internal/tracing"
	"agromind/internal/validation"
	"agromind/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	serviceName         = "plant.id"
	healthAssessmentURI = "/health_assessment"
	healthyMessage      = "Plant appears healthy!"
	unknownDisease      = "Unknown Disease"
	noDescription       = "No description available."
	noTreatment         = "No treatment information available."
)

type assessmentRequest struct {
	Images              []string `json:"images"`
	Health              string   `json:"health"`
	SimilarImages       bool     `json:"similar_images"`
	ClassificationLevel string   `json:"classification_level"`
}

type assessmentResponse struct {
	Result *struct {
		Disease *struct {
			Suggestions []suggestion `json:"suggestions"`
		} `json:"disease"`
	} `json:"result"`
}

type suggestion struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Details     *struct {
		Description string   `json:"description"`
		Treatment   []string `json:"treatment"`
	} `json:"details"`
}

// Client relays crop images to the Plant.id health assessment API
type Client struct {
	baseURL  string
	apiKey   string
	maxBytes int64
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewClient(cfg models.DetectionConfig, httpClient *http.Client, logger *logrus.Logger) *Client {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = constants.DefaultPlantIDBaseURL
	}
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = constants.DefaultDetectionTimeoutSec
	}
	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = constants.DefaultMaxDetectionImageSizeMB
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   cfg.APIKey,
		maxBytes: int64(maxMB) * constants.BytesPerMegabyte,
		http:     httpClient,
		breaker: circuitbreaker.New(serviceName, circuitbreaker.Options{
			MaxFailures: constants.DefaultDetectionBreakerFailures,
			Timeout:     constants.DefaultDetectionBreakerResetSec * time.Second,
			Logger:      logger,
		}),
		logger: logger,
	}
}

// MaxBytes is the largest image accepted for detection
func (c *Client) MaxBytes() int64 {
	return c.maxBytes
}

// Detect sends one image for health assessment. The first disease suggestion
// becomes the result; no suggestions means the plant is healthy.
func (c *Client) Detect(ctx context.Context, image io.Reader) (*models.DetectionResult, error) {
	if c.apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "detection api key not configured").
			WithUserMessage("Missing Plant.id API key")
	}
	if image == nil {
		return nil, errors.NewValidationError("image", "", "No image uploaded")
	}

	data, err := io.ReadAll(io.LimitReader(image, c.maxBytes+1))
	if err != nil {
		return nil, errors.NewUploadError("read image", err)
	}
	if len(data) == 0 {
		return nil, errors.NewValidationError("image", "", "No image uploaded")
	}
	if err := validation.ValidateImageSize(int64(len(data)), int(c.maxBytes/constants.BytesPerMegabyte)); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartClientSpan(ctx, "detection.health_assessment", attribute.Int("size_bytes", len(data)))
	defer span.End()

	start := time.Now()
	var resp assessmentResponse
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, data, &resp)
	})
	metrics.RecordTimer(metrics.DetectionDuration, time.Since(start), nil, "Detection request duration")

	if err != nil {
		metrics.IncrementCounter(metrics.DetectionRequests, map[string]string{"status": "error"}, "Detection requests")
		tracing.RecordError(ctx, err)
		if circuitbreaker.IsCircuitBreakerError(err) {
			return nil, errors.NewUpstreamError(serviceName, 0, err)
		}
		return nil, err
	}
	metrics.IncrementCounter(metrics.DetectionRequests, map[string]string{"status": "ok"}, "Detection requests")

	result := reshape(&resp)
	c.logger.WithFields(logrus.Fields{
		"healthy":     result.Healthy,
		"disease":     result.Disease,
		"probability": result.Probability,
	}).Info("Detection completed")

	return result, nil
}

func (c *Client) post(ctx context.Context, image []byte, out *assessmentResponse) error {
	body, err := json.Marshal(assessmentRequest{
		Images:              []string{base64.StdEncoding.EncodeToString(image)},
		Health:              "auto",
		SimilarImages:       true,
		ClassificationLevel: "species",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to encode detection request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+healthAssessmentURI, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create detection request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewUpstreamError(serviceName, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NewUpstreamError(serviceName, resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewUpstreamError(serviceName, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func reshape(resp *assessmentResponse) *models.DetectionResult {
	if resp.Result == nil || resp.Result.Disease == nil || len(resp.Result.Disease.Suggestions) == 0 {
		return &models.DetectionResult{Success: true, Healthy: true, Message: healthyMessage}
	}

	top := resp.Result.Disease.Suggestions[0]
	result := &models.DetectionResult{
		Success:     true,
		Healthy:     false,
		Disease:     top.Name,
		Probability: fmt.Sprintf("%.2f", top.Probability*100),
		Description: noDescription,
		Treatment:   noTreatment,
	}
	if result.Disease == "" {
		result.Disease = unknownDisease
	}
	if top.Details != nil {
		if top.Details.Description != "" {
			result.Description = top.Details.Description
		}
		if len(top.Details.Treatment) > 0 {
			result.Treatment = strings.Join(top.Details.Treatment, ", ")
		}
	}
	return result
}
