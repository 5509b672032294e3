package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

const stageImage = "image"

// ImageBackendConfig holds the image synthesis backend settings
type ImageBackendConfig struct {
	APIURL string
	APIKey string
	Width  int
	Height int
	Steps  int
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Steps  int    `json:"steps"`
}

type imageResponse struct {
	Images []string `json:"images"`
}

// HTTPImageBackend calls a diffusion-model HTTP service that returns
// base64-encoded PNGs.
type HTTPImageBackend struct {
	config ImageBackendConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPImageBackend creates an image backend adapter
func NewHTTPImageBackend(config ImageBackendConfig, logger *slog.Logger) *HTTPImageBackend {
	return &HTTPImageBackend{
		config: config,
		client: &http.Client{Timeout: 120 * time.Second},
		logger: logger,
	}
}

// Synthesize generates one image for the prompt
func (b *HTTPImageBackend) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(imageRequest{
		Prompt: prompt,
		Width:  b.config.Width,
		Height: b.config.Height,
		Steps:  b.config.Steps,
	})
	if err != nil {
		return nil, domain.NewAdapterError(stageImage, false, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewAdapterError(stageImage, false, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if b.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// Network-level failures are worth retrying
		return nil, domain.NewAdapterError(stageImage, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(body))
		return nil, domain.NewAdapterError(stageImage, retryableStatus(resp.StatusCode), err)
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewAdapterError(stageImage, false, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Images) == 0 {
		return nil, domain.NewAdapterError(stageImage, false, fmt.Errorf("backend returned no images"))
	}

	img, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, domain.NewAdapterError(stageImage, false, fmt.Errorf("failed to decode image payload: %w", err))
	}

	b.logger.Debug("Image synthesized",
		slog.Int("size", len(img)),
	)

	return img, nil
}

// retryableStatus reports whether an HTTP status from a synthesis backend
// indicates a transient condition.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
