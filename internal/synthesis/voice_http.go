package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

const stageVoice = "voice"

// VoiceBackendConfig holds the TTS backend settings
type VoiceBackendConfig struct {
	APIURL   string
	APIKey   string
	Language string
	Speed    float64
}

type voiceRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// HTTPVoiceBackend calls a TTS HTTP service that returns raw audio bytes.
type HTTPVoiceBackend struct {
	config VoiceBackendConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPVoiceBackend creates a voice backend adapter
func NewHTTPVoiceBackend(config VoiceBackendConfig, logger *slog.Logger) *HTTPVoiceBackend {
	return &HTTPVoiceBackend{
		config: config,
		client: &http.Client{Timeout: 120 * time.Second},
		logger: logger,
	}
}

// Synthesize generates one narration clip for the text in the given voice
func (b *HTTPVoiceBackend) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	payload, err := json.Marshal(voiceRequest{
		Text:     text,
		Voice:    voice,
		Language: b.config.Language,
		Speed:    b.config.Speed,
	})
	if err != nil {
		return nil, domain.NewAdapterError(stageVoice, false, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.APIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewAdapterError(stageVoice, false, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	if b.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, domain.NewAdapterError(stageVoice, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(body))
		return nil, domain.NewAdapterError(stageVoice, retryableStatus(resp.StatusCode), err)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAdapterError(stageVoice, true, fmt.Errorf("failed to read audio payload: %w", err))
	}
	if len(audio) == 0 {
		return nil, domain.NewAdapterError(stageVoice, false, fmt.Errorf("backend returned empty audio"))
	}

	b.logger.Debug("Narration synthesized",
		slog.String("voice", voice),
		slog.Int("size", len(audio)),
	)

	return audio, nil
}
