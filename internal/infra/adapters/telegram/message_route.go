package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/infra/metrics"
	red "speech-flow-bot/internal/infra/redis"
)

// Voice reply modes.
const (
	VoiceReplyNever  = "never"
	VoiceReplyMirror = "mirror"
	VoiceReplyAlways = "always"
)

var errVoiceTooLarge = errors.New("voice note too large")

func (r *RealTelegramBotAdapter) handleText(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramCommand("text")
	return r.withTurn(ctx, message, func(ctx context.Context) error {
		return r.converse(ctx, message, message.Text, false)
	})
}

func (r *RealTelegramBotAdapter) handleVoice(ctx context.Context, message *tgbotapi.Message) error {
	metrics.IncTelegramCommand("voice")
	metrics.IncVoiceMessage("in")
	chatID := message.Chat.ID

	return r.withTurn(ctx, message, func(ctx context.Context) error {
		// quota first, so an exhausted user costs no download or transcription
		if err := r.facade.CheckQuota(ctx, senderOf(message.From)); err != nil {
			return r.sendFailure(ctx, chatID, err)
		}

		r.chatAction(chatID, tgbotapi.ChatTyping)
		audio, err := r.download(ctx, message.Voice.FileID, message.Voice.FileSize)
		if err != nil {
			logging.With(ctx, r.log).Error().Err(err).Str("file_id", message.Voice.FileID).Msg("voice download failed")
			return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: r.facade.T("voice_failed")})
		}
		text, ok := r.facade.Transcribe(ctx, audio)
		if !ok {
			return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: r.facade.T("voice_failed")})
		}
		if err := r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: r.facade.T("voice_you_said", text)}); err != nil {
			return err
		}
		return r.converse(ctx, message, text, true)
	})
}

// withTurn lets one message per user be processed at a time. Without a locker,
// or when the lock backend fails, messages are processed unguarded.
func (r *RealTelegramBotAdapter) withTurn(ctx context.Context, message *tgbotapi.Message, fn func(ctx context.Context) error) error {
	if r.locker == nil {
		return fn(ctx)
	}
	key := red.UserTurnKey(message.From.ID)
	token, ok, err := r.locker.TryLock(ctx, key, r.updateTimeout)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("turn lock unavailable")
		return fn(ctx)
	}
	if !ok {
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.facade.T("busy")})
	}
	defer func() {
		// the turn context may already be done
		if err := r.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Msg("turn unlock failed")
		}
	}()
	return fn(ctx)
}

// converse sends the tutor's text answer and, depending on the voice mode, a voice note.
// The text always goes out; a failed synthesis leaves it at that.
func (r *RealTelegramBotAdapter) converse(ctx context.Context, message *tgbotapi.Message, text string, fromVoice bool) error {
	chatID := message.Chat.ID
	r.chatAction(chatID, tgbotapi.ChatTyping)

	turn, err := r.facade.Converse(ctx, senderOf(message.From), text)
	if err != nil {
		return r.sendFailure(ctx, chatID, err)
	}
	if err := r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: turn.Text}); err != nil {
		return err
	}
	if !r.wantsVoice(fromVoice) {
		return nil
	}

	r.chatAction(chatID, tgbotapi.ChatRecordVoice)
	audio := r.facade.Speak(ctx, turn.Reply)
	if len(audio) == 0 {
		return nil
	}
	if err := r.SendVoice(ctx, chatID, audio); err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("voice reply not delivered")
		return nil
	}
	metrics.IncVoiceMessage("out")
	return nil
}

func (r *RealTelegramBotAdapter) wantsVoice(fromVoice bool) bool {
	switch r.cfg.VoiceReply {
	case VoiceReplyAlways:
		return true
	case VoiceReplyMirror:
		return fromVoice
	default:
		return false
	}
}

func (r *RealTelegramBotAdapter) sendFailure(ctx context.Context, chatID int64, err error) error {
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		logging.With(ctx, r.log).Error().Err(err).Msg("message processing failed")
	}
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: r.facade.ErrorText(err)})
}

// download fetches a voice file. The direct URL embeds the bot token and is never logged.
func (r *RealTelegramBotAdapter) download(ctx context.Context, fileID string, size int) ([]byte, error) {
	if size > maxVoiceBytes {
		return nil, errVoiceTooLarge
	}
	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, errors.New("resolve voice file")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New("build voice request")
	}
	resp, err := r.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New("voice download request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voice download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVoiceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read voice: %w", err)
	}
	if len(data) > maxVoiceBytes {
		return nil, errVoiceTooLarge
	}
	return data, nil
}
