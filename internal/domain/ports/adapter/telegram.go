// File: internal/domain/ports/adapter/telegram.go
package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

type SendMessageParams struct {
	ChatID    int64
	Text      string
	ParseMode string
	Buttons   [][]InlineButton
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
	SendButtons(ctx context.Context, telegramID int64, text string, rows [][]InlineButton) error
	SendVoice(ctx context.Context, telegramID int64, audio []byte) error
	SendDocument(ctx context.Context, telegramID int64, name string, data []byte) error
}
