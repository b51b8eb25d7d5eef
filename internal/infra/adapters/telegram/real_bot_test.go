//go:build !integration

package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"speech-flow-bot/internal/application"
	"speech-flow-bot/internal/config"
	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/i18n"
	"speech-flow-bot/internal/infra/memory"
	red "speech-flow-bot/internal/infra/redis"
)

// =============================
// Fakes
// =============================

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable

	rejectMarkdown bool
	fileURL        string
	updates        chan tgbotapi.Update
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && b.rejectMarkdown && m.ParseMode != "" {
		return tgbotapi.Message{}, &tgbotapi.Error{Code: 400, Message: "Bad Request: can't parse entities: unclosed *"}
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if b.fileURL == "" {
		return "", errors.New("no file")
	}
	return b.fileURL + "/" + fileID, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return b.updates }

func (b *fakeBot) StopReceivingUpdates() {}

// texts returns the text of every sent or edited message, in order.
func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (b *fakeBot) count(match func(tgbotapi.Chattable) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range append(append([]tgbotapi.Chattable(nil), b.sent...), b.requests...) {
		if match(c) {
			n++
		}
	}
	return n
}

func isVoice(c tgbotapi.Chattable) bool    { _, ok := c.(tgbotapi.VoiceConfig); return ok }
func isDocument(c tgbotapi.Chattable) bool { _, ok := c.(tgbotapi.DocumentConfig); return ok }
func isEdit(c tgbotapi.Chattable) bool     { _, ok := c.(tgbotapi.EditMessageTextConfig); return ok }
func isCallback(c tgbotapi.Chattable) bool { _, ok := c.(tgbotapi.CallbackConfig); return ok }
func isMenuCommands(c tgbotapi.Chattable) bool {
	_, ok := c.(tgbotapi.SetMyCommandsConfig)
	return ok
}

// stubFacade renders through the real translator and records what it was asked.
type stubFacade struct {
	tr *i18n.Translator

	mu         sync.Mutex
	conversed  []string
	levels     []string
	admin      bool
	quotaErr   error
	transcript string
	speech     []byte
	doc        *application.Document
	block      chan struct{}
	deadline   time.Time
}

var _ Facade = (*stubFacade)(nil)

func (f *stubFacade) T(key string, args ...interface{}) string { return f.tr.T(key, args...) }

func (f *stubFacade) ErrorText(err error) string {
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return f.tr.T("quota_exceeded")
	}
	return f.tr.T("error_generic")
}

func (f *stubFacade) IsAdmin(int64) bool { return f.admin }

func (f *stubFacade) Start(context.Context, application.Sender) (application.Screen, error) {
	return application.Screen{Text: "welcome", Buttons: [][]adapter.InlineButton{{{Text: "Beginner", Data: "level:beginner"}}}}, nil
}

func (f *stubFacade) Menu(context.Context, application.Sender) (application.Screen, error) {
	return application.Screen{Text: "menu"}, nil
}

func (f *stubFacade) HowTo() application.Screen { return application.Screen{Text: "how"} }

func (f *stubFacade) Help() string { return "help" }

func (f *stubFacade) LevelPrompt() application.Screen { return application.Screen{Text: "pick a level"} }

func (f *stubFacade) SetLevel(_ context.Context, _ application.Sender, raw string) (application.Screen, error) {
	f.mu.Lock()
	f.levels = append(f.levels, raw)
	f.mu.Unlock()
	return application.Screen{Text: "level " + raw}, nil
}

func (f *stubFacade) StatsScreen(context.Context, application.Sender) (application.Screen, error) {
	return application.Screen{}, errors.New("db down")
}

func (f *stubFacade) VocabularyScreen(context.Context, application.Sender) (application.Screen, error) {
	return application.Screen{Text: "vocab"}, nil
}

func (f *stubFacade) ConfirmClearVocabulary(context.Context, application.Sender) (application.Screen, error) {
	return application.Screen{Text: "sure?"}, nil
}

func (f *stubFacade) ClearVocabulary(context.Context, application.Sender) (application.Screen, error) {
	return application.Screen{Text: "cleared"}, nil
}

func (f *stubFacade) ExportVocabulary(context.Context, application.Sender) (*application.Document, string, error) {
	return f.doc, "Nothing to export yet.", nil
}

func (f *stubFacade) AdminStats(context.Context, application.Sender) (string, error) {
	return "stats for admins", nil
}

func (f *stubFacade) CheckQuota(context.Context, application.Sender) error { return f.quotaErr }

func (f *stubFacade) Converse(ctx context.Context, _ application.Sender, text string) (model.Turn, error) {
	if d, ok := ctx.Deadline(); ok {
		f.mu.Lock()
		f.deadline = d
		f.mu.Unlock()
	}
	if f.block != nil {
		<-f.block
	}
	if f.quotaErr != nil {
		return model.Turn{}, f.quotaErr
	}
	f.mu.Lock()
	f.conversed = append(f.conversed, text)
	f.mu.Unlock()
	return model.Turn{Reply: "Nice!", Text: "✏️ fixed\n\nNice!"}, nil
}

func (f *stubFacade) Transcribe(context.Context, []byte) (string, bool) {
	return f.transcript, f.transcript != ""
}

func (f *stubFacade) Speak(context.Context, string) []byte { return f.speech }

// =============================
// Fixture
// =============================

type botFixture struct {
	bot     *fakeBot
	facade  *stubFacade
	adapter *RealTelegramBotAdapter
}

func newBotFixture(t *testing.T, cfg config.BotConfig, limiter RateLimiter, locker red.Locker) *botFixture {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	log := zerolog.New(io.Discard)
	f := &botFixture{bot: &fakeBot{}, facade: &stubFacade{tr: tr, speech: []byte("OggS")}}
	f.adapter, err = newAdapter(f.bot, &cfg, f.facade, limiter, locker, &log)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return f
}

func userMsg(text string) *tgbotapi.Message {
	m := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42, FirstName: "Alice", UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: 42},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		n := strings.IndexByte(text, ' ')
		if n < 0 {
			n = len(text)
		}
		m.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	}
	return m
}

func voiceMsg() *tgbotapi.Message {
	m := userMsg("")
	m.Voice = &tgbotapi.Voice{FileID: "voice-1", Duration: 3, FileSize: 4}
	return m
}

func (f *botFixture) handle(t *testing.T, msg *tgbotapi.Message) {
	t.Helper()
	if err := f.adapter.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}); err != nil {
		t.Fatalf("handleUpdate: %v", err)
	}
}

// =============================
// Tests
// =============================

func TestCommands(t *testing.T) {
	t.Run("start shows the welcome screen and publishes the menu", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		f.handle(t, userMsg("/start"))

		if got := f.bot.texts(); len(got) != 1 || got[0] != "welcome" {
			t.Fatalf("unexpected messages %v", got)
		}
		if f.bot.count(isMenuCommands) != 1 {
			t.Errorf("expected the command menu to be set")
		}
		m := f.bot.sent[0].(tgbotapi.MessageConfig)
		kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok || len(kb.InlineKeyboard) != 1 || *kb.InlineKeyboard[0][0].CallbackData != "level:beginner" {
			t.Errorf("unexpected keyboard %+v", m.ReplyMarkup)
		}
	})

	t.Run("typos get a suggestion", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		f.handle(t, userMsg("/stat"))
		f.handle(t, userMsg("/qwertyuiop"))

		got := f.bot.texts()
		if len(got) != 2 || got[0] != "Unknown command. Did you mean /stats?" {
			t.Errorf("unexpected suggestion %v", got)
		}
		if got[1] != "Unknown command. Send /help to see what I can do." {
			t.Errorf("unexpected unknown reply %q", got[1])
		}
	})

	t.Run("failed screen falls back to the generic error", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		f.handle(t, userMsg("/stats"))

		if got := f.bot.texts(); len(got) != 1 || got[0] != "Sorry, something went wrong. Please try again." {
			t.Errorf("unexpected %v", got)
		}
	})

	t.Run("level with an argument skips the keyboard", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		f.handle(t, userMsg("/level"))
		f.handle(t, userMsg("/level advanced"))

		if got := f.bot.texts(); len(got) != 2 || got[0] != "pick a level" || got[1] != "level advanced" {
			t.Errorf("unexpected %v", got)
		}
	})

	t.Run("admin commands are guarded", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		f.handle(t, userMsg("/botstats"))
		f.facade.admin = true
		f.handle(t, userMsg("/botstats"))

		got := f.bot.texts()
		if len(got) != 2 || got[0] != "This command is for admins only." || got[1] != "stats for admins" {
			t.Errorf("unexpected %v", got)
		}
	})
}

func TestTextMessages(t *testing.T) {
	cases := []struct {
		mode      string
		wantVoice int
	}{
		{VoiceReplyNever, 0},
		{VoiceReplyMirror, 0},
		{VoiceReplyAlways, 1},
	}
	for _, tc := range cases {
		t.Run(tc.mode, func(t *testing.T) {
			f := newBotFixture(t, config.BotConfig{VoiceReply: tc.mode}, nil, memory.NewLocker())

			f.handle(t, userMsg("I goed home"))

			if got := f.bot.texts(); len(got) != 1 || got[0] != "✏️ fixed\n\nNice!" {
				t.Errorf("unexpected %v", got)
			}
			if n := f.bot.count(isVoice); n != tc.wantVoice {
				t.Errorf("expected %d voice notes, got %d", tc.wantVoice, n)
			}
		})
	}

	t.Run("quota exceeded", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		f.facade.quotaErr = domain.ErrQuotaExceeded

		f.handle(t, userMsg("hello"))

		if got := f.bot.texts(); len(got) != 1 || !strings.Contains(got[0], "message limit") {
			t.Errorf("unexpected %v", got)
		}
	})

	t.Run("markdown rejected by telegram is resent as plain text", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		f.bot.rejectMarkdown = true

		f.handle(t, userMsg("hello"))

		got := f.bot.texts()
		if len(got) != 1 || f.bot.sent[0].(tgbotapi.MessageConfig).ParseMode != "" {
			t.Errorf("expected one plain resend, got %v", got)
		}
	})
}

func TestVoiceMessages(t *testing.T) {
	var downloads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/voice-1") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("OggS"))
	}))
	defer srv.Close()

	t.Run("mirror mode answers a voice note with text and voice", func(t *testing.T) {
		// --- Arrange ---
		f := newBotFixture(t, config.BotConfig{VoiceReply: VoiceReplyMirror}, nil, nil)
		f.bot.fileURL = srv.URL
		f.facade.transcript = "I goed home"

		// --- Act ---
		f.handle(t, voiceMsg())

		// --- Assert ---
		got := f.bot.texts()
		if len(got) != 2 || got[0] != "🎤 *You said:* I goed home" || got[1] != "✏️ fixed\n\nNice!" {
			t.Errorf("unexpected %v", got)
		}
		if f.bot.count(isVoice) != 1 {
			t.Errorf("expected a voice reply")
		}
		if len(f.facade.conversed) != 1 || f.facade.conversed[0] != "I goed home" {
			t.Errorf("transcript not processed: %v", f.facade.conversed)
		}
	})

	t.Run("no speech means text only", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{VoiceReply: VoiceReplyMirror}, nil, nil)
		f.bot.fileURL = srv.URL
		f.facade.transcript = "hello"
		f.facade.speech = nil

		f.handle(t, voiceMsg())

		if len(f.bot.texts()) != 2 || f.bot.count(isVoice) != 0 {
			t.Errorf("expected text only, got %v", f.bot.texts())
		}
	})

	t.Run("failed transcription", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		f.bot.fileURL = srv.URL

		f.handle(t, voiceMsg())

		if got := f.bot.texts(); len(got) != 1 || got[0] != "Could not transcribe your voice message. Please try again." {
			t.Errorf("unexpected %v", got)
		}
	})

	t.Run("quota is checked before downloading", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		f.bot.fileURL = srv.URL
		f.facade.quotaErr = domain.ErrQuotaExceeded
		before := downloads.Load()

		f.handle(t, voiceMsg())

		if downloads.Load() != before {
			t.Errorf("an over-quota voice note must not be downloaded")
		}
		if got := f.bot.texts(); len(got) != 1 || !strings.Contains(got[0], "message limit") {
			t.Errorf("unexpected %v", got)
		}
	})

	t.Run("oversized voice is refused without a request", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		f.bot.fileURL = srv.URL
		before := downloads.Load()
		msg := voiceMsg()
		msg.Voice.FileSize = maxVoiceBytes + 1

		f.handle(t, msg)

		if downloads.Load() != before || len(f.bot.texts()) != 1 {
			t.Errorf("unexpected download or reply: %v", f.bot.texts())
		}
	})
}

func TestGuards(t *testing.T) {
	t.Run("rate limit", func(t *testing.T) {
		cfg := config.BotConfig{RateLimit: config.RateLimitConfig{Messages: 1, Window: time.Minute}}
		f := newBotFixture(t, cfg, memory.NewRateLimiter(), nil)

		f.handle(t, userMsg("one"))
		f.handle(t, userMsg("two"))

		got := f.bot.texts()
		if len(got) != 2 || !strings.Contains(got[1], "Slow down") {
			t.Errorf("unexpected %v", got)
		}
		if len(f.facade.conversed) != 1 {
			t.Errorf("limited message must not be processed")
		}
	})

	t.Run("one turn at a time per user", func(t *testing.T) {
		locker := memory.NewLocker()
		f := newBotFixture(t, config.BotConfig{}, nil, locker)
		if _, ok, _ := locker.TryLock(context.Background(), red.UserTurnKey(42), time.Minute); !ok {
			t.Fatalf("could not pre-lock")
		}

		f.handle(t, userMsg("hello"))

		if got := f.bot.texts(); len(got) != 1 || !strings.Contains(got[0], "still working") {
			t.Errorf("unexpected %v", got)
		}
	})

	t.Run("lock is released after the turn", func(t *testing.T) {
		locker := memory.NewLocker()
		f := newBotFixture(t, config.BotConfig{}, nil, locker)

		f.handle(t, userMsg("one"))
		f.handle(t, userMsg("two"))

		if len(f.facade.conversed) != 2 {
			t.Errorf("expected both turns processed, got %v", f.facade.conversed)
		}
	})
}

// ttlLocker records the ttl of every lock it hands out.
type ttlLocker struct {
	mu   sync.Mutex
	ttls []time.Duration
}

func (l *ttlLocker) TryLock(_ context.Context, _ string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ttls = append(l.ttls, ttl)
	return "t", true, nil
}

func (l *ttlLocker) Unlock(context.Context, string, string) error { return nil }

func TestUpdateTimeout(t *testing.T) {
	t.Run("configured timeout bounds the update and the turn lock", func(t *testing.T) {
		// --- Arrange ---
		locker := &ttlLocker{}
		f := newBotFixture(t, config.BotConfig{UpdateTimeout: 45 * time.Minute}, nil, locker)
		start := time.Now()

		// --- Act ---
		f.adapter.dispatch(context.Background(), 0, tgbotapi.Update{Message: userMsg("hello")})

		// --- Assert ---
		if len(locker.ttls) != 1 || locker.ttls[0] != 45*time.Minute {
			t.Errorf("expected a 45m turn lock, got %v", locker.ttls)
		}
		f.facade.mu.Lock()
		left := f.facade.deadline.Sub(start)
		f.facade.mu.Unlock()
		if left < 44*time.Minute || left > 46*time.Minute {
			t.Errorf("expected the update deadline about 45m out, got %v", left)
		}
	})

	t.Run("zero falls back to the default", func(t *testing.T) {
		locker := &ttlLocker{}
		f := newBotFixture(t, config.BotConfig{}, nil, locker)

		f.handle(t, userMsg("hello"))

		if len(locker.ttls) != 1 || locker.ttls[0] != defaultUpdateTimeout {
			t.Errorf("expected the default ttl, got %v", locker.ttls)
		}
	})
}

func TestCallbacks(t *testing.T) {
	query := func(data string) tgbotapi.Update {
		return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: 42},
			Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 42}},
			Data:    data,
		}}
	}
	ctx := context.Background()

	t.Run("level button edits the message in place", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		if err := f.adapter.handleUpdate(ctx, query("level:advanced")); err != nil {
			t.Fatalf("callback: %v", err)
		}
		if len(f.facade.levels) != 1 || f.facade.levels[0] != "advanced" {
			t.Errorf("unexpected levels %v", f.facade.levels)
		}
		if f.bot.count(isEdit) != 1 || f.bot.count(isCallback) != 1 {
			t.Errorf("expected one edit and an answered callback")
		}
	})

	t.Run("export sends a document or a notice", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)

		_ = f.adapter.handleUpdate(ctx, query(application.CbVocabExport))
		f.facade.doc = &application.Document{Name: "vocabulary.txt", Data: []byte("1. went")}
		_ = f.adapter.handleUpdate(ctx, query(application.CbVocabExport))

		if got := f.bot.texts(); len(got) != 1 || got[0] != "Nothing to export yet." {
			t.Errorf("unexpected %v", got)
		}
		if f.bot.count(isDocument) != 1 {
			t.Errorf("expected one document")
		}
	})

	t.Run("menu routes", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		for _, data := range []string{application.CbMenuHow, application.CbMenuBack, application.CbMenuVocab, application.CbVocabClear, application.CbVocabClearConfirm} {
			if err := f.adapter.handleUpdate(ctx, query(data)); err != nil {
				t.Fatalf("%s: %v", data, err)
			}
		}
		if got := strings.Join(f.bot.texts(), ","); got != "how,menu,vocab,sure?,cleared" {
			t.Errorf("unexpected %s", got)
		}
	})

	t.Run("unknown data", func(t *testing.T) {
		f := newBotFixture(t, config.BotConfig{}, nil, nil)
		if err := f.adapter.handleUpdate(ctx, query("nope")); !errors.Is(err, errUnknownCallback) {
			t.Errorf("expected errUnknownCallback, got %v", err)
		}
		if f.bot.count(isCallback) != 1 {
			t.Errorf("the spinner must be stopped even for unknown data")
		}
	})
}

func TestStartPolling_DrainsUpdates(t *testing.T) {
	f := newBotFixture(t, config.BotConfig{Workers: 2}, nil, nil)
	f.bot.updates = make(chan tgbotapi.Update, 3)
	for i := 0; i < 3; i++ {
		f.bot.updates <- tgbotapi.Update{UpdateID: i, Message: userMsg("/help")}
	}
	close(f.bot.updates)

	if err := f.adapter.StartPolling(context.Background()); err != nil {
		t.Fatalf("StartPolling: %v", err)
	}
	if n := len(f.bot.texts()); n != 3 {
		t.Errorf("expected 3 replies, got %d", n)
	}
}

func TestCommandMatcher(t *testing.T) {
	m := newCommandMatcher([]string{"help", "level", "menu", "start", "stats", "vocab"})

	cases := []struct {
		in         string
		exact      bool
		suggestion string
	}{
		{"stats", true, "stats"},
		{"STATS", true, "stats"},
		{"stat", false, "stats"},
		{"vocabulary", false, ""},
		{"lvl", false, "level"},
		{"st", false, "start"},
		{"", false, ""},
	}
	for _, tc := range cases {
		exact, got := m.Match(tc.in)
		if exact != tc.exact || got != tc.suggestion {
			t.Errorf("Match(%q) = %v %q, want %v %q", tc.in, exact, got, tc.exact, tc.suggestion)
		}
	}
}
