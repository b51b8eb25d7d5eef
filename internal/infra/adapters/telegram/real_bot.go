package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"speech-flow-bot/internal/application"
	"speech-flow-bot/internal/config"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/infra/metrics"
	red "speech-flow-bot/internal/infra/redis"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

const (
	defaultUpdateTimeout = 2 * time.Minute
	maxVoiceBytes        = 20 << 20
)

// botAPI is the part of tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Facade is what the adapter needs from application.BotFacade.
type Facade interface {
	T(key string, args ...interface{}) string
	ErrorText(err error) string
	IsAdmin(tgID int64) bool

	Start(ctx context.Context, s application.Sender) (application.Screen, error)
	Menu(ctx context.Context, s application.Sender) (application.Screen, error)
	HowTo() application.Screen
	Help() string
	LevelPrompt() application.Screen
	SetLevel(ctx context.Context, s application.Sender, raw string) (application.Screen, error)
	StatsScreen(ctx context.Context, s application.Sender) (application.Screen, error)
	VocabularyScreen(ctx context.Context, s application.Sender) (application.Screen, error)
	ConfirmClearVocabulary(ctx context.Context, s application.Sender) (application.Screen, error)
	ClearVocabulary(ctx context.Context, s application.Sender) (application.Screen, error)
	ExportVocabulary(ctx context.Context, s application.Sender) (*application.Document, string, error)
	AdminStats(ctx context.Context, s application.Sender) (string, error)

	CheckQuota(ctx context.Context, s application.Sender) error
	Converse(ctx context.Context, s application.Sender, text string) (model.Turn, error)
	Transcribe(ctx context.Context, audio []byte) (string, bool)
	Speak(ctx context.Context, text string) []byte
}

var _ Facade = (*application.BotFacade)(nil)

// RateLimiter is satisfied by the redis and in-memory limiters.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RealTelegramBotAdapter long-polls updates and delegates to the facade.
type RealTelegramBotAdapter struct {
	bot     botAPI
	cfg     *config.BotConfig
	facade  Facade
	limiter RateLimiter
	locker  red.Locker
	http    *http.Client
	log     *zerolog.Logger

	commands      *commandMatcher
	updateWorkers int
	updateTimeout time.Duration

	mu            sync.Mutex
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, facade Facade, limiter RateLimiter, locker red.Locker, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		// the library error may echo the request URL, which carries the token
		return nil, errors.New("telegram: bot authorization failed")
	}
	return newAdapter(bot, cfg, facade, limiter, locker, logger)
}

func newAdapter(bot botAPI, cfg *config.BotConfig, facade Facade, limiter RateLimiter, locker red.Locker, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	timeout := cfg.UpdateTimeout
	if timeout <= 0 {
		timeout = defaultUpdateTimeout
	}
	r := &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		facade:        facade,
		limiter:       limiter,
		locker:        locker,
		http:          &http.Client{Timeout: time.Minute},
		log:           logger,
		updateWorkers: workers,
		updateTimeout: timeout,
	}
	r.commands = newCommandMatcher(r.publicCommands())
	return r, nil
}

func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelPolling = cancel
	r.mu.Unlock()

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				r.dispatch(ctx, id, up)
			}
		}(i)
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			r.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				close(updateChan)
				wg.Wait()
				return nil
			}
			updateChan <- up
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, worker int, up tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, r.updateTimeout)
	defer cancel()
	ctx = logging.WithUpdateID(ctx, up.UpdateID)
	switch {
	case up.Message != nil && up.Message.From != nil:
		ctx = logging.WithTgID(ctx, up.Message.From.ID)
	case up.CallbackQuery != nil && up.CallbackQuery.From != nil:
		ctx = logging.WithTgID(ctx, up.CallbackQuery.From.ID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.With(ctx, r.log).Error().Interface("panic", rec).Int("worker", worker).Msg("update handler panicked")
		}
	}()
	if err := r.handleUpdate(ctx, up); err != nil {
		logging.With(ctx, r.log).Error().Err(err).Int("worker", worker).Msg("update handling failed")
	}
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}

	key := "message"
	if msg.IsCommand() {
		key = "/" + msg.Command()
	}
	if !r.allow(ctx, msg.From.ID, key) {
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: msg.Chat.ID, Text: r.facade.T("rate_limited")})
	}

	switch {
	case msg.IsCommand():
		return r.handleCommand(ctx, msg)
	case msg.Voice != nil:
		return r.handleVoice(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		return r.handleText(ctx, msg)
	}
	return nil
}

// allow fails open: a broken limiter backend must not silence the bot.
func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, key string) bool {
	rl := r.cfg.RateLimit
	if r.limiter == nil || rl.Messages <= 0 || rl.Window <= 0 {
		return true
	}
	ok, err := r.limiter.Allow(ctx, red.RateLimitKey(tgID, key), rl.Messages, rl.Window)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimitTriggered()
	}
	return ok
}

func senderOf(u *tgbotapi.User) application.Sender {
	return application.Sender{TelegramID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

// SendMessage sends Markdown and retries as plain text when Telegram rejects the entities.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, params adapter.SendMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(params.ChatID, params.Text)
	msg.ParseMode = params.ParseMode
	if msg.ParseMode == "" {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(params.Buttons) > 0 {
		msg.ReplyMarkup = inlineKeyboard(params.Buttons)
	}
	_, err := r.bot.Send(msg)
	if isParseError(err) {
		msg.ParseMode = ""
		_, err = r.bot.Send(msg)
	}
	return err
}

func (r *RealTelegramBotAdapter) SendButtons(ctx context.Context, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: telegramID, Text: text, Buttons: rows})
}

func (r *RealTelegramBotAdapter) SendVoice(ctx context.Context, telegramID int64, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Send(tgbotapi.NewVoice(telegramID, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: audio}))
	return err
}

func (r *RealTelegramBotAdapter) SendDocument(ctx context.Context, telegramID int64, name string, data []byte) error {
	return r.sendDocument(ctx, telegramID, &application.Document{Name: name, Data: data})
}

func (r *RealTelegramBotAdapter) sendDocument(ctx context.Context, chatID int64, doc *application.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: doc.Name, Bytes: doc.Data})
	cfg.Caption = doc.Caption
	_, err := r.bot.Send(cfg)
	return err
}

func (r *RealTelegramBotAdapter) sendScreen(ctx context.Context, chatID int64, s application.Screen) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: s.Text, Buttons: s.Buttons})
}

// editScreen replaces the message that carried the pressed button; a failed edit
// (message too old, content unchanged) sends a fresh message instead.
func (r *RealTelegramBotAdapter) editScreen(ctx context.Context, chatID int64, messageID int, s application.Screen) error {
	if messageID == 0 {
		return r.sendScreen(ctx, chatID, s)
	}
	var edit tgbotapi.EditMessageTextConfig
	if len(s.Buttons) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, s.Text, inlineKeyboard(s.Buttons))
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, s.Text)
	}
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := r.bot.Send(edit); err != nil {
		logging.With(ctx, r.log).Debug().Err(err).Msg("edit failed, sending new message")
		return r.sendScreen(ctx, chatID, s)
	}
	return nil
}

func (r *RealTelegramBotAdapter) chatAction(chatID int64, action string) {
	_, _ = r.bot.Request(tgbotapi.NewChatAction(chatID, action))
}

// SetMenuCommands publishes the command list for one chat; admins also see /botstats.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmds := []tgbotapi.BotCommand{
		{Command: "start", Description: "Register and choose your level"},
		{Command: "menu", Description: "Main menu"},
		{Command: "stats", Description: "Your progress"},
		{Command: "vocab", Description: "Your vocabulary"},
		{Command: "level", Description: "Change your level"},
		{Command: "help", Description: "Help"},
	}
	if isAdmin {
		cmds = append(cmds, tgbotapi.BotCommand{Command: "botstats", Description: "Bot statistics"})
	}
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(chatID), cmds...))
	return err
}

// inlineKeyboard maps port buttons to tgbotapi markup.
// A button without URL or data falls back to its label as callback data.
func inlineKeyboard(rows [][]adapter.InlineButton) tgbotapi.InlineKeyboardMarkup {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, out)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...)
}

func isParseError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "parse entities")
	}
	return false
}
