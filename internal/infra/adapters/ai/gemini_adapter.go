// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/dispatch"
	"speech-flow-bot/internal/infra/metrics"
)

var _ adapter.SpeechService = (*GeminiAdapter)(nil)

const (
	providerGemini     = "gemini"
	transcribeInstruct = "Transcribe this voice message exactly as spoken. Output only the transcript."
)

// GeminiAdapter is the alternative provider. It keeps one genai client per
// key and rotates over them with its own dispatcher.
type GeminiAdapter struct {
	model   string
	disp    *dispatch.Dispatcher
	clients map[string]*genai.Client
	log     *zerolog.Logger
}

// NewGeminiAdapter creates the clients up front; a key the SDK rejects fails construction.
func NewGeminiAdapter(ctx context.Context, keys []string, baseURL, defaultModel string, timeout time.Duration, retry dispatch.Options, log *zerolog.Logger) (*GeminiAdapter, error) {
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	if retry.Name == "" {
		retry.Name = providerGemini
	}
	if retry.Logger == nil {
		retry.Logger = log
	}
	disp := dispatch.New(keys, retry)

	httpClient := &http.Client{Timeout: timeout}
	clients := make(map[string]*genai.Client, len(keys))
	for i, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     k,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
			HTTPOptions: genai.HTTPOptions{
				BaseURL: baseURL,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client %d: %w", i, err)
		}
		clients[k] = c
	}

	l := log.With().Str("provider", providerGemini).Logger()
	l.Info().Int("keys", disp.Size()).Str("model", defaultModel).Msg("gemini adapter ready")
	return &GeminiAdapter{model: defaultModel, disp: disp, clients: clients, log: &l}, nil
}

func (g *GeminiAdapter) Dispatcher() *dispatch.Dispatcher { return g.disp }

func (g *GeminiAdapter) Transcribe(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error) {
	if len(audio) == 0 {
		return model.Transcription{}, fmt.Errorf("transcribe: %w: empty audio", domain.ErrInvalidArgument)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribeInstruct),
			genai.NewPartFromBytes(audio, audioMIME(filename)),
		}, genai.RoleUser),
	}

	start := time.Now()
	text, _, err := g.generate(ctx, contents, &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)})
	metrics.ObserveAICall(providerGemini, "transcribe", 0, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return model.Transcription{}, err
	}
	return model.Transcription{Text: text, Language: language}, nil
}

func (g *GeminiAdapter) Correct(ctx context.Context, text string, level model.Level) (model.Correction, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(correctionSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	}
	contents := []*genai.Content{genai.NewContentFromText(correctionUserPrompt(text, level), genai.RoleUser)}

	start := time.Now()
	res, err := dispatch.Call(ctx, g.disp, func(ctx context.Context, cred string) (model.Correction, error) {
		raw, tokens, err := g.generateWith(ctx, cred, contents, cfg)
		if err != nil {
			return model.Correction{}, err
		}
		corr, err := parseCorrection(raw, text)
		if err != nil {
			return model.Correction{}, err
		}
		corr.TokensUsed = tokens
		return corr, nil
	})
	metrics.ObserveAICall(providerGemini, "correct", res.TokensUsed, time.Since(start).Milliseconds(), err == nil)
	return res, err
}

func (g *GeminiAdapter) Reply(ctx context.Context, text string, level model.Level) (model.Reply, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(dialogueSystem(level), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.8),
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	start := time.Now()
	out, tokens, err := g.generate(ctx, contents, cfg)
	metrics.ObserveAICall(providerGemini, "reply", tokens, time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		return model.Reply{}, err
	}
	return model.Reply{Text: out, TokensUsed: tokens}, nil
}

// --- internal ---

type generated struct {
	text   string
	tokens int
}

func (g *GeminiAdapter) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, int, error) {
	res, err := dispatch.Call(ctx, g.disp, func(ctx context.Context, cred string) (generated, error) {
		text, tokens, err := g.generateWith(ctx, cred, contents, cfg)
		return generated{text: text, tokens: tokens}, err
	})
	return res.text, res.tokens, err
}

func (g *GeminiAdapter) generateWith(ctx context.Context, cred string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, int, error) {
	c, ok := g.clients[cred]
	if !ok {
		return "", 0, errors.New("gemini: no client for credential")
	}
	resp, err := c.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", 0, err
	}

	// Extract text
	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && p.Text != "" {
				sb.WriteString(p.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", 0, fmt.Errorf("gemini: %w", domain.ErrEmptyResponse)
	}
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return text, tokens, nil
}

func audioMIME(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(filename, ".wav"):
		return "audio/wav"
	default:
		return "audio/ogg"
	}
}
