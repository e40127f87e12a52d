// Package analysis submits ultrasound images to the classifier service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/pcoscare/companion/internal/model/analysis"
	"github.com/pcoscare/companion/internal/upstream"
)

const (
	DefaultConfidenceThreshold = 0.96
	maxImageSize               = 20 << 20
)

var ErrUnsupportedImage = errors.New("file must be a non-empty image")

// Service uploads images to the /predict endpoint.
type Service struct {
	endpoint   string
	threshold  float64
	httpClient *http.Client
}

// NewService creates an analysis client. A threshold outside (0, 1] falls back to the default.
func NewService(endpoint string, threshold float64, client *http.Client) *Service {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	if client == nil {
		client = upstream.NewClient(0)
	}
	return &Service{endpoint: endpoint, threshold: threshold, httpClient: client}
}

type predictResponse struct {
	Label          string  `json:"label"`
	Probability    float64 `json:"probability"`
	GradcamHeatmap string  `json:"gradcam_heatmap"`
	Error          string  `json:"error"`
}

// Analyze uploads the image read from r and returns the thresholded verdict.
func (s *Service) Analyze(ctx context.Context, filename, contentType string, r io.Reader) (*analysis.Prediction, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 || len(data) > maxImageSize {
		return nil, ErrUnsupportedImage
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrUnsupportedImage
	}
	if filename == "" {
		filename = "upload"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	if err := upstream.CheckResponse("predict", resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	if payload.Error != "" {
		return nil, &upstream.Error{Service: "predict", Status: resp.StatusCode, Body: payload.Error}
	}

	prediction := s.apply(payload)
	log.Printf("[analysis] %s -> %s (raw=%s p=%.4f)", filename, prediction.Label, prediction.RawLabel, prediction.Probability)
	return prediction, nil
}

// apply flips the binary label when the classifier is not confident enough.
func (s *Service) apply(p predictResponse) *analysis.Prediction {
	raw := strings.ToLower(strings.TrimSpace(p.Label))
	out := &analysis.Prediction{
		Label:          raw,
		RawLabel:       raw,
		Probability:    p.Probability,
		Confident:      p.Probability >= s.threshold,
		GradcamHeatmap: p.GradcamHeatmap,
	}
	if !out.Confident {
		out.Label = analysis.Opposite(raw)
	}
	return out
}
