package ai

import (
	"context"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.SpeechService = (*limitedSpeech)(nil)

// limitedSpeech caps in-flight upstream calls across all users.
type limitedSpeech struct {
	inner adapter.SpeechService
	sem   chan struct{}
}

func NewLimitedSpeech(inner adapter.SpeechService, maxConcurrent int) adapter.SpeechService {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedSpeech{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedSpeech) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedSpeech) release() { <-l.sem }

func (l *limitedSpeech) Transcribe(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error) {
	if err := l.acquire(ctx); err != nil {
		return model.Transcription{}, err
	}
	defer l.release()
	return l.inner.Transcribe(ctx, audio, filename, language)
}

func (l *limitedSpeech) Correct(ctx context.Context, text string, level model.Level) (model.Correction, error) {
	if err := l.acquire(ctx); err != nil {
		return model.Correction{}, err
	}
	defer l.release()
	return l.inner.Correct(ctx, text, level)
}

func (l *limitedSpeech) Reply(ctx context.Context, text string, level model.Level) (model.Reply, error) {
	if err := l.acquire(ctx); err != nil {
		return model.Reply{}, err
	}
	defer l.release()
	return l.inner.Reply(ctx, text, level)
}
