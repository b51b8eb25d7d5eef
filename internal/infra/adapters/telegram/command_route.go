package telegram

import (
	"context"
	"sort"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"speech-flow-bot/internal/application"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"menu":  r.screenCommand(r.facade.Menu),
		"stats": r.screenCommand(r.facade.StatsScreen),
		"vocab": r.screenCommand(r.facade.VocabularyScreen),
		"level": r.handleLevelCommand,
		"help":  r.handleHelpCommand,

		"botstats": r.adminOnly(r.handleBotStatsCommand),
	}
}

// publicCommands feeds typo suggestions; admin commands are never suggested.
func (r *RealTelegramBotAdapter) publicCommands() []string {
	out := make([]string, 0, 6)
	for name := range r.commandRoutes() {
		if name != "botstats" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *RealTelegramBotAdapter) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	name := message.Command()
	if fn, ok := r.commandRoutes()[name]; ok {
		metrics.IncTelegramCommand("/" + name)
		return fn(ctx, message)
	}
	metrics.IncTelegramCommand("unknown")

	text := r.facade.T("unknown_command")
	if _, suggestion := r.commands.Match(name); suggestion != "" {
		text = r.facade.T("did_you_mean", suggestion)
	}
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: text})
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.facade.IsAdmin(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.facade.T("admin_only")})
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

type screenFunc func(ctx context.Context, s application.Sender) (application.Screen, error)

// screenCommand sends a rendered screen; a failed render still shows its fallback text.
func (r *RealTelegramBotAdapter) screenCommand(render screenFunc) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		scr, err := render(ctx, senderOf(message.From))
		if err != nil {
			logging.With(ctx, r.log).Error().Err(err).Str("command", message.Command()).Msg("command failed")
			if scr.Text == "" {
				scr = application.Screen{Text: r.facade.ErrorText(err)}
			}
		}
		return r.sendScreen(ctx, message.Chat.ID, scr)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	scr, err := r.facade.Start(ctx, senderOf(message.From))
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("start failed")
		return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.facade.ErrorText(err)})
	}

	if err := r.SetMenuCommands(ctx, message.Chat.ID, r.facade.IsAdmin(message.From.ID)); err != nil {
		// Log the error but don't block the user
		logging.With(ctx, r.log).Warn().Err(err).Msg("failed to set menu commands")
	}
	return r.sendScreen(ctx, message.Chat.ID, scr)
}

// handleLevelCommand accepts "/level advanced" directly, otherwise shows the keyboard.
func (r *RealTelegramBotAdapter) handleLevelCommand(ctx context.Context, message *tgbotapi.Message) error {
	arg := message.CommandArguments()
	if arg == "" {
		return r.sendScreen(ctx, message.Chat.ID, r.facade.LevelPrompt())
	}
	scr, err := r.facade.SetLevel(ctx, senderOf(message.From), arg)
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("set level failed")
		scr = application.Screen{Text: r.facade.ErrorText(err)}
	}
	return r.sendScreen(ctx, message.Chat.ID, scr)
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: r.facade.Help()})
}

func (r *RealTelegramBotAdapter) handleBotStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.AdminStats(ctx, senderOf(message.From))
	if err != nil {
		logging.With(ctx, r.log).Error().Err(err).Msg("admin stats failed")
		text = r.facade.ErrorText(err)
	}
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: message.Chat.ID, Text: text})
}
