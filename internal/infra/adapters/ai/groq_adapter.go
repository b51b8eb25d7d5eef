// File: internal/infra/adapters/ai/groq_adapter.go
package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/dispatch"
	"speech-flow-bot/internal/infra/metrics"
)

// Compile-time check
var _ adapter.SpeechService = (*GroqAdapter)(nil)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	providerGroq       = "groq"
)

type GroqOptions struct {
	BaseURL         string
	Timeout         time.Duration
	TranscribeModel string
	CorrectionModel string
	DialogueModel   string
}

// GroqAdapter talks to the OpenAI-compatible Groq API. Every request goes
// through the dispatcher, which picks the key; the adapter keeps one client
// per key.
type GroqAdapter struct {
	opts    GroqOptions
	disp    *dispatch.Dispatcher
	clients map[string]*openai.Client
	log     *zerolog.Logger
}

func NewGroqAdapter(keys []string, opts GroqOptions, retry dispatch.Options, log *zerolog.Logger) *GroqAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGroqBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if retry.Name == "" {
		retry.Name = providerGroq
	}
	if retry.Logger == nil {
		retry.Logger = log
	}
	disp := dispatch.New(keys, retry)

	httpClient := &http.Client{Timeout: opts.Timeout}
	clients := make(map[string]*openai.Client, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cfg := openai.DefaultConfig(k)
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
		cfg.HTTPClient = httpClient
		clients[k] = openai.NewClientWithConfig(cfg)
	}

	l := log.With().Str("provider", providerGroq).Logger()
	l.Info().Int("keys", disp.Size()).Msg("groq adapter ready")
	return &GroqAdapter{opts: opts, disp: disp, clients: clients, log: &l}
}

// Dispatcher exposes the key pool so the speech synthesizer can share it.
func (g *GroqAdapter) Dispatcher() *dispatch.Dispatcher { return g.disp }

func (g *GroqAdapter) client(credential string) (*openai.Client, error) {
	c, ok := g.clients[credential]
	if !ok {
		return nil, errors.New("groq: no client for credential")
	}
	return c, nil
}

func (g *GroqAdapter) Transcribe(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error) {
	if len(audio) == 0 {
		return model.Transcription{}, fmt.Errorf("transcribe: %w: empty audio", domain.ErrInvalidArgument)
	}
	if filename == "" {
		filename = "voice.ogg"
	}

	start := time.Now()
	res, err := dispatch.Call(ctx, g.disp, func(ctx context.Context, cred string) (model.Transcription, error) {
		c, err := g.client(cred)
		if err != nil {
			return model.Transcription{}, err
		}
		resp, err := c.CreateTranscription(ctx, openai.AudioRequest{
			Model:    g.opts.TranscribeModel,
			FilePath: filename,
			Reader:   bytes.NewReader(audio),
			Language: language,
			Format:   openai.AudioResponseFormatJSON,
		})
		if err != nil {
			return model.Transcription{}, err
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return model.Transcription{}, fmt.Errorf("transcribe: %w", domain.ErrEmptyResponse)
		}
		lang := resp.Language
		if lang == "" {
			lang = language
		}
		return model.Transcription{Text: text, Language: lang}, nil
	})
	metrics.ObserveAICall(providerGroq, "transcribe", 0, time.Since(start).Milliseconds(), err == nil)
	return res, err
}

func (g *GroqAdapter) Correct(ctx context.Context, text string, level model.Level) (model.Correction, error) {
	start := time.Now()
	res, err := dispatch.Call(ctx, g.disp, func(ctx context.Context, cred string) (model.Correction, error) {
		c, err := g.client(cred)
		if err != nil {
			return model.Correction{}, err
		}
		resp, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.opts.CorrectionModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: correctionSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: correctionUserPrompt(text, level)},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return model.Correction{}, err
		}
		content, err := firstChoice(resp)
		if err != nil {
			return model.Correction{}, err
		}
		// A malformed body counts as a failed attempt and moves on to the next key.
		corr, err := parseCorrection(content, text)
		if err != nil {
			return model.Correction{}, err
		}
		corr.TokensUsed = resp.Usage.TotalTokens
		return corr, nil
	})
	metrics.ObserveAICall(providerGroq, "correct", res.TokensUsed, time.Since(start).Milliseconds(), err == nil)
	return res, err
}

func (g *GroqAdapter) Reply(ctx context.Context, text string, level model.Level) (model.Reply, error) {
	start := time.Now()
	res, err := dispatch.Call(ctx, g.disp, func(ctx context.Context, cred string) (model.Reply, error) {
		c, err := g.client(cred)
		if err != nil {
			return model.Reply{}, err
		}
		resp, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.opts.DialogueModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: dialogueSystem(level)},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			Temperature: 0.8,
		})
		if err != nil {
			return model.Reply{}, err
		}
		content, err := firstChoice(resp)
		if err != nil {
			return model.Reply{}, err
		}
		return model.Reply{Text: content, TokensUsed: resp.Usage.TotalTokens}, nil
	})
	metrics.ObserveAICall(providerGroq, "reply", res.TokensUsed, time.Since(start).Milliseconds(), err == nil)
	return res, err
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	for _, c := range resp.Choices {
		if s := strings.TrimSpace(c.Message.Content); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("chat completion: %w", domain.ErrEmptyResponse)
}
