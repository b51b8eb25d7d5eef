package ai

import (
	"context"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
)

var _ adapter.Synthesizer = (*NoopSynthesizer)(nil)

// NoopSynthesizer is wired when tts.provider is "none"; replies stay text only.
type NoopSynthesizer struct{}

func NewNoopSynthesizer() *NoopSynthesizer { return &NoopSynthesizer{} }

func (NoopSynthesizer) Synthesize(context.Context, string, string) (model.Speech, error) {
	return model.Speech{}, domain.ErrTTSDisabled
}
