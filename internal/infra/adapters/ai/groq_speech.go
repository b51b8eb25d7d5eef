package ai

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/dispatch"
	"speech-flow-bot/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Synthesizer = (*GroqSpeechAdapter)(nil)

// maxSpeechBytes caps the audio body read from upstream.
const maxSpeechBytes = 20 << 20

// GroqSpeechAdapter implements adapter.Synthesizer on the OpenAI-compatible
// /audio/speech endpoint (Groq hosts PlayAI voices there). It reuses the
// per-key clients and the dispatcher of a GroqAdapter, so speech and text
// requests rotate over the same key pool.
type GroqSpeechAdapter struct {
	groq    *GroqAdapter
	model   string
	voice   string
	timeout time.Duration
}

func NewGroqSpeechAdapter(groq *GroqAdapter, model, voice string, timeout time.Duration) *GroqSpeechAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GroqSpeechAdapter{groq: groq, model: model, voice: voice, timeout: timeout}
}

func (s *GroqSpeechAdapter) Synthesize(ctx context.Context, text, voice string) (model.Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Speech{}, fmt.Errorf("speech: %w: empty text", domain.ErrInvalidArgument)
	}
	if voice == "" {
		voice = s.voice
	}
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	}

	start := time.Now()
	audio, err := dispatch.Call(ctx, s.groq.Dispatcher(), func(ctx context.Context, cred string) ([]byte, error) {
		c, err := s.groq.client(cred)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := c.CreateSpeech(ctx, req)
		if err != nil {
			return nil, err
		}
		defer resp.Close()
		data, err := io.ReadAll(io.LimitReader(resp, maxSpeechBytes+1))
		if err != nil {
			return nil, err
		}
		switch {
		case len(data) == 0:
			return nil, fmt.Errorf("speech: %w", domain.ErrEmptyResponse)
		case len(data) > maxSpeechBytes:
			return nil, fmt.Errorf("speech: audio exceeds %d bytes", maxSpeechBytes)
		}
		return data, nil
	})
	metrics.ObserveAICall(providerGroq, "speech", 0, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return model.Speech{}, err
	}
	return model.Speech{Audio: audio, Format: detectFormat(audio, "wav")}, nil
}
