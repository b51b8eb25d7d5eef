// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
)

var _ adapter.SpeechService = (*MultiSpeechAdapter)(nil)

// MultiSpeechAdapter tries the configured provider first and fails over to the
// remaining ones in name order. A canceled context stops the chain.
type MultiSpeechAdapter struct {
	order      []string
	byProvider map[string]adapter.SpeechService
	log        *zerolog.Logger
}

func NewMultiSpeechAdapter(defaultProvider string, byProvider map[string]adapter.SpeechService, log *zerolog.Logger) *MultiSpeechAdapter {
	def := strings.ToLower(defaultProvider)
	providers := lo.PickBy(byProvider, func(_ string, s adapter.SpeechService) bool { return s != nil })

	rest := lo.Without(lo.Keys(providers), def)
	sort.Strings(rest)
	order := rest
	if _, ok := providers[def]; ok {
		order = append([]string{def}, rest...)
	}
	return &MultiSpeechAdapter{order: order, byProvider: providers, log: log}
}

// Providers lists the chain in the order it is tried.
func (m *MultiSpeechAdapter) Providers() []string { return append([]string(nil), m.order...) }

func (m *MultiSpeechAdapter) Transcribe(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error) {
	return failover(ctx, m, "transcribe", func(s adapter.SpeechService) (model.Transcription, error) {
		return s.Transcribe(ctx, audio, filename, language)
	})
}

func (m *MultiSpeechAdapter) Correct(ctx context.Context, text string, level model.Level) (model.Correction, error) {
	return failover(ctx, m, "correct", func(s adapter.SpeechService) (model.Correction, error) {
		return s.Correct(ctx, text, level)
	})
}

func (m *MultiSpeechAdapter) Reply(ctx context.Context, text string, level model.Level) (model.Reply, error) {
	return failover(ctx, m, "reply", func(s adapter.SpeechService) (model.Reply, error) {
		return s.Reply(ctx, text, level)
	})
}

func failover[T any](ctx context.Context, m *MultiSpeechAdapter, op string, call func(adapter.SpeechService) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	if len(m.order) == 0 {
		return zero, errors.New("no ai provider configured")
	}
	for i, name := range m.order {
		out, err := call(m.byProvider[name])
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			break
		}
		if i < len(m.order)-1 {
			m.log.Warn().Str("provider", name).Str("operation", op).Str("next", m.order[i+1]).Msg("provider failed, failing over")
		}
	}
	return zero, errors.Join(errs...)
}
