package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/metrics"
)

var _ adapter.Synthesizer = (*PiperSynthesizer)(nil)

const providerPiper = "piper"

// PiperSynthesizer calls a self-hosted Piper TTS service.
// POST /tts/stream answers with a WAV body; GET /health reports readiness.
type PiperSynthesizer struct {
	base   string
	voice  string
	client *http.Client
}

func NewPiperSynthesizer(baseURL, voice string, timeout time.Duration) *PiperSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if voice == "" {
		voice = "amy"
	}
	return &PiperSynthesizer{
		base:   strings.TrimRight(baseURL, "/"),
		voice:  voice,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *PiperSynthesizer) Synthesize(ctx context.Context, text, voice string) (model.Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Speech{}, fmt.Errorf("piper: %w: empty text", domain.ErrInvalidArgument)
	}
	if voice == "" {
		voice = p.voice
	}
	b, err := json.Marshal(map[string]string{"text": text, "voice": voice})
	if err != nil {
		return model.Speech{}, err
	}

	start := time.Now()
	audio, err := p.post(ctx, b)
	metrics.ObserveAICall(providerPiper, "speech", 0, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return model.Speech{}, err
	}
	return model.Speech{Audio: audio, Format: detectFormat(audio, "wav")}, nil
}

func (p *PiperSynthesizer) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/tts/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piper http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return nil, fmt.Errorf("piper read: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("piper: %w", domain.ErrEmptyResponse)
	}
	return data, nil
}

// Health reports whether the service is up and its voice model is loaded.
func (p *PiperSynthesizer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("piper health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("piper health http %d", resp.StatusCode)
	}
	var payload struct {
		Status      string `json:"status"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("piper health: %w: %v", domain.ErrMalformedResponse, err)
	}
	if payload.Status != "healthy" || !payload.ModelLoaded {
		return fmt.Errorf("piper unhealthy: status=%q model_loaded=%t", payload.Status, payload.ModelLoaded)
	}
	return nil
}
