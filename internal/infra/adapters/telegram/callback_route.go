package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"speech-flow-bot/internal/application"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/logging"
)

// callbackCtx carries what a button handler needs to answer in place.
type callbackCtx struct {
	sender    application.Sender
	chatID    int64
	messageID int
	data      string
}

type cbHandler func(ctx context.Context, cb callbackCtx) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

var errUnknownCallback = errors.New("unknown callback data")

// Exact-match callbacks
func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		application.CbMenuHow: func(ctx context.Context, cb callbackCtx) error {
			return r.editScreen(ctx, cb.chatID, cb.messageID, r.facade.HowTo())
		},
		application.CbMenuLevel: func(ctx context.Context, cb callbackCtx) error {
			return r.editScreen(ctx, cb.chatID, cb.messageID, r.facade.LevelPrompt())
		},
		application.CbMenuBack:          r.screenCB(r.facade.Menu),
		application.CbMenuStats:         r.screenCB(r.facade.StatsScreen),
		application.CbMenuVocab:         r.screenCB(r.facade.VocabularyScreen),
		application.CbVocabClear:        r.screenCB(r.facade.ConfirmClearVocabulary),
		application.CbVocabClearConfirm: r.screenCB(r.facade.ClearVocabulary),
		application.CbVocabExport:       r.exportCBRoute,
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: application.CbLevelPrefix, Fn: r.levelPrefixCBRoute},
	}
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	cb := callbackCtx{sender: senderOf(query.From), chatID: query.From.ID, data: strings.TrimSpace(query.Data)}
	if query.Message != nil {
		cb.messageID = query.Message.MessageID
		if query.Message.Chat != nil {
			cb.chatID = query.Message.Chat.ID
		}
	}

	if !r.allow(ctx, query.From.ID, "cb") {
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: cb.chatID, Text: r.facade.T("rate_limited")})
	}

	if fn, ok := r.cbRoutes()[cb.data]; ok {
		return fn(ctx, cb)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(cb.data, pr.Prefix) {
			return pr.Fn(ctx, cb)
		}
	}
	return errUnknownCallback
}

func (r *RealTelegramBotAdapter) screenCB(render screenFunc) cbHandler {
	return func(ctx context.Context, cb callbackCtx) error {
		scr, err := render(ctx, cb.sender)
		if err != nil {
			logging.With(ctx, r.log).Error().Err(err).Str("callback", cb.data).Msg("callback failed")
			if scr.Text == "" {
				return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: cb.chatID, Text: r.facade.ErrorText(err)})
			}
		}
		return r.editScreen(ctx, cb.chatID, cb.messageID, scr)
	}
}

func (r *RealTelegramBotAdapter) levelPrefixCBRoute(ctx context.Context, cb callbackCtx) error {
	level := strings.TrimPrefix(cb.data, application.CbLevelPrefix)
	scr, err := r.facade.SetLevel(ctx, cb.sender, level)
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("set level failed")
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: cb.chatID, Text: r.facade.ErrorText(err)})
	}
	return r.editScreen(ctx, cb.chatID, cb.messageID, scr)
}

func (r *RealTelegramBotAdapter) exportCBRoute(ctx context.Context, cb callbackCtx) error {
	doc, notice, err := r.facade.ExportVocabulary(ctx, cb.sender)
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("vocabulary export failed")
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: cb.chatID, Text: r.facade.ErrorText(err)})
	}
	if doc == nil {
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: cb.chatID, Text: notice})
	}
	return r.sendDocument(ctx, cb.chatID, doc)
}
