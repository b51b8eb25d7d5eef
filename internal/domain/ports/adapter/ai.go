package adapter

import (
	"context"

	"speech-flow-bot/internal/domain/model"
)

// SpeechService is the port for the language side of the tutor:
// speech recognition, grammar correction and free dialogue.
// Implementations return typed errors; fallbacks belong to the caller.
type SpeechService interface {
	Transcribe(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error)
	Correct(ctx context.Context, text string, level model.Level) (model.Correction, error)
	Reply(ctx context.Context, text string, level model.Level) (model.Reply, error)
}

// Synthesizer turns reply text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (model.Speech, error)
}

// AudioConverter re-encodes synthesized audio into a Telegram voice note (ogg/opus).
type AudioConverter interface {
	ToVoice(ctx context.Context, wav []byte) ([]byte, error)
}
