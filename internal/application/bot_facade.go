package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/infra/i18n"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/usecase"

	"github.com/rs/zerolog"
)

const contextPreviewLen = 50

// FacadeOptions tunes rendering. KeyCount reports the size of the AI credential
// pool for the admin summary and may be nil.
type FacadeOptions struct {
	VocabularyPageSize int
	KeyCount           func() int
}

// Sender identifies the Telegram user behind an update.
type Sender struct {
	TelegramID int64
	Username   string
	FirstName  string
}

func (s Sender) displayName() string {
	switch {
	case s.FirstName != "":
		return s.FirstName
	case s.Username != "":
		return s.Username
	default:
		return "friend"
	}
}

// BotFacade composes usecases into rendered bot screens.
// Rendering stays here so the Telegram adapter only forwards text and keyboards.
type BotFacade struct {
	Users usecase.UserUseCase
	Vocab usecase.VocabularyUseCase
	Stats usecase.StatsUseCase
	Tutor usecase.TutorUseCase

	tr   *i18n.Translator
	opts FacadeOptions
	log  *zerolog.Logger
}

func NewBotFacade(
	users usecase.UserUseCase,
	vocab usecase.VocabularyUseCase,
	stats usecase.StatsUseCase,
	tutor usecase.TutorUseCase,
	tr *i18n.Translator,
	opts FacadeOptions,
	logger *zerolog.Logger,
) *BotFacade {
	if opts.VocabularyPageSize <= 0 {
		opts.VocabularyPageSize = 20
	}
	if opts.KeyCount == nil {
		opts.KeyCount = func() int { return 0 }
	}
	return &BotFacade{
		Users: users,
		Vocab: vocab,
		Stats: stats,
		Tutor: tutor,
		tr:    tr,
		opts:  opts,
		log:   logger,
	}
}

// T renders a localized string.
func (b *BotFacade) T(key string, args ...interface{}) string { return b.tr.T(key, args...) }

// ErrorText maps an error to the message shown to the user. Raw error text never leaves here.
func (b *BotFacade) ErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return b.tr.T("quota_exceeded")
	case errors.Is(err, domain.ErrRateLimited):
		return b.tr.T("rate_limited")
	default:
		return b.tr.T("error_generic")
	}
}

// Start registers or fetches the user and asks for the level.
func (b *BotFacade) Start(ctx context.Context, s Sender) (Screen, error) {
	if _, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username); err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	return Screen{Text: b.tr.T("welcome", s.displayName()), Buttons: levelKeyboard()}, nil
}

func (b *BotFacade) Menu(ctx context.Context, s Sender) (Screen, error) {
	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	return Screen{
		Text:    b.tr.T("menu_title", strings.ToUpper(u.Level.String()), u.StreakDays),
		Buttons: menuKeyboard(b.tr),
	}, nil
}

func (b *BotFacade) HowTo() Screen {
	return Screen{Text: b.tr.T("how_to"), Buttons: backKeyboard(b.tr)}
}

func (b *BotFacade) Help() string { return b.tr.T("help") }

func (b *BotFacade) LevelPrompt() Screen {
	return Screen{Text: b.tr.T("level_prompt"), Buttons: levelKeyboard()}
}

// SetLevel parses the raw level name; an unknown name re-renders the level keyboard.
func (b *BotFacade) SetLevel(ctx context.Context, s Sender, raw string) (Screen, error) {
	level, err := model.ParseLevel(raw)
	if err != nil {
		return Screen{Text: b.tr.T("level_invalid"), Buttons: levelKeyboard()}, nil
	}
	if _, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username); err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	if err := b.Users.SetLevel(ctx, s.TelegramID, level); err != nil {
		return Screen{}, fmt.Errorf("set level: %w", err)
	}
	logging.With(ctx, b.log).Info().Str("level", level.String()).Msg("level changed")
	return Screen{Text: b.tr.T("level_set", strings.ToUpper(level.String())), Buttons: menuKeyboard(b.tr)}, nil
}

func (b *BotFacade) StatsScreen(ctx context.Context, s Sender) (Screen, error) {
	if _, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username); err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	st, err := b.Stats.ForUser(ctx, s.TelegramID)
	if err != nil {
		return Screen{Text: b.tr.T("error_stats"), Buttons: backKeyboard(b.tr)}, fmt.Errorf("stats: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(b.tr.T("stats_header",
		strings.ToUpper(st.User.Level.String()),
		st.User.StreakDays,
		st.User.MessagesUsed,
		st.VocabularyCount,
		st.User.TotalTokensUsed,
	))
	if len(st.ErrorStats) == 0 {
		sb.WriteString(b.tr.T("stats_no_errors"))
	}
	for _, c := range sortedCategories(st.ErrorStats) {
		sb.WriteString(b.tr.T("stats_error_line", c, st.ErrorStats[c]))
	}
	return Screen{Text: strings.TrimRight(sb.String(), "\n"), Buttons: backKeyboard(b.tr)}, nil
}

// sortedCategories orders by count, most frequent first, then by name.
func sortedCategories(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if m[out[i]] != m[out[j]] {
			return m[out[i]] > m[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func (b *BotFacade) VocabularyScreen(ctx context.Context, s Sender) (Screen, error) {
	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	entries, err := b.Vocab.List(ctx, u.ID, b.opts.VocabularyPageSize)
	if err != nil {
		return Screen{Text: b.tr.T("error_vocab"), Buttons: backKeyboard(b.tr)}, fmt.Errorf("list vocabulary: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(b.tr.T("vocab_title"))
	if len(entries) == 0 {
		sb.WriteString(b.tr.T("vocab_empty"))
		return Screen{Text: sb.String(), Buttons: backKeyboard(b.tr)}, nil
	}
	for i, e := range entries {
		sb.WriteString(b.tr.T("vocab_line", i+1, e.WordOrPhrase, e.Translation))
		if e.ContextSentence != "" {
			sb.WriteString(b.tr.T("vocab_context", preview(e.ContextSentence, contextPreviewLen)))
		}
		sb.WriteString("\n")
	}
	return Screen{Text: strings.TrimRight(sb.String(), "\n"), Buttons: vocabKeyboard(b.tr)}, nil
}

func preview(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// ConfirmClearVocabulary asks before deleting; an empty vocabulary has nothing to confirm.
func (b *BotFacade) ConfirmClearVocabulary(ctx context.Context, s Sender) (Screen, error) {
	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	n, err := b.Vocab.Count(ctx, u.ID)
	if err != nil {
		return Screen{}, fmt.Errorf("count vocabulary: %w", err)
	}
	if n == 0 {
		return Screen{Text: b.tr.T("vocab_empty"), Buttons: backKeyboard(b.tr)}, nil
	}
	return Screen{Text: b.tr.T("vocab_clear_confirm", n), Buttons: clearConfirmKeyboard(b.tr)}, nil
}

func (b *BotFacade) ClearVocabulary(ctx context.Context, s Sender) (Screen, error) {
	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return Screen{}, fmt.Errorf("register/fetch user: %w", err)
	}
	n, err := b.Vocab.Clear(ctx, u.ID)
	if err != nil {
		return Screen{}, fmt.Errorf("clear vocabulary: %w", err)
	}
	return Screen{Text: b.tr.T("vocab_cleared", n), Buttons: backKeyboard(b.tr)}, nil
}

// ExportVocabulary renders the whole vocabulary as a text document.
// A nil document means there is nothing to export and notice should be sent instead.
func (b *BotFacade) ExportVocabulary(ctx context.Context, s Sender) (doc *Document, notice string, err error) {
	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return nil, "", fmt.Errorf("register/fetch user: %w", err)
	}
	entries, err := b.Vocab.List(ctx, u.ID, 0)
	if err != nil {
		return nil, "", fmt.Errorf("list vocabulary: %w", err)
	}
	if len(entries) == 0 {
		return nil, b.tr.T("vocab_export_empty"), nil
	}

	header := b.tr.T("vocab_export_header", len(entries))
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s", i+1, e.WordOrPhrase)
		if e.Translation != "" {
			fmt.Fprintf(&sb, " - %s", e.Translation)
		}
		sb.WriteString("\n")
		if e.ContextSentence != "" {
			fmt.Fprintf(&sb, "   \"%s\"\n", e.ContextSentence)
		}
	}
	return &Document{Name: "vocabulary.txt", Caption: header, Data: []byte(sb.String())}, "", nil
}

func (b *BotFacade) IsAdmin(tgID int64) bool { return b.Users.IsAdmin(tgID) }

// AdminStats is answered only for configured admins.
func (b *BotFacade) AdminStats(ctx context.Context, s Sender) (string, error) {
	if !b.Users.IsAdmin(s.TelegramID) {
		return b.tr.T("admin_only"), nil
	}
	n, err := b.Users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count users: %w", err)
	}
	return b.tr.T("admin_stats", n, b.opts.KeyCount()), nil
}

// Converse answers one learner message. It returns domain.ErrQuotaExceeded
// when the free messages are used up.
func (b *BotFacade) Converse(ctx context.Context, s Sender, text string) (model.Turn, error) {
	defer logging.TraceDuration(b.log, "BotFacade.Converse")()

	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return model.Turn{}, fmt.Errorf("register/fetch user: %w", err)
	}
	if err := b.Users.CheckQuota(ctx, u); err != nil {
		return model.Turn{}, err
	}
	return b.Tutor.ProcessMessage(ctx, u, text), nil
}

// CheckQuota is run before downloading a voice note so an exhausted user costs no transcription.
func (b *BotFacade) CheckQuota(ctx context.Context, s Sender) error {
	u, err := b.Users.RegisterOrFetch(ctx, s.TelegramID, s.Username)
	if err != nil {
		return fmt.Errorf("register/fetch user: %w", err)
	}
	return b.Users.CheckQuota(ctx, u)
}

func (b *BotFacade) Transcribe(ctx context.Context, audio []byte) (string, bool) {
	return b.Tutor.Transcribe(ctx, audio)
}

func (b *BotFacade) Speak(ctx context.Context, text string) []byte {
	return b.Tutor.Speak(ctx, text)
}
