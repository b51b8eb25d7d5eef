//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/domain/ports/repository"
	"speech-flow-bot/internal/infra/i18n"
	"speech-flow-bot/internal/infra/worker"
)

// =============================
// Adapters
// =============================

// ---- Mock SpeechService ----

type MockSpeech struct {
	mu    sync.Mutex
	Calls []string

	TranscribeFunc func(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error)
	CorrectFunc    func(ctx context.Context, text string, level model.Level) (model.Correction, error)
	ReplyFunc      func(ctx context.Context, text string, level model.Level) (model.Reply, error)
}

var _ adapter.SpeechService = (*MockSpeech)(nil)

func (m *MockSpeech) record(op string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, op)
	m.mu.Unlock()
}

func (m *MockSpeech) Transcribe(ctx context.Context, audio []byte, filename, language string) (model.Transcription, error) {
	m.record("transcribe")
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, filename, language)
	}
	return model.Transcription{Text: "hello", Language: language}, nil
}

func (m *MockSpeech) Correct(ctx context.Context, text string, level model.Level) (model.Correction, error) {
	m.record("correct")
	if m.CorrectFunc != nil {
		return m.CorrectFunc(ctx, text, level)
	}
	return model.Correction{CorrectedText: text, ErrorCategory: model.ErrorCategoryNone}, nil
}

func (m *MockSpeech) Reply(ctx context.Context, text string, level model.Level) (model.Reply, error) {
	m.record("reply")
	if m.ReplyFunc != nil {
		return m.ReplyFunc(ctx, text, level)
	}
	return model.Reply{Text: "Tell me more!", TokensUsed: 5}, nil
}

// ---- Mock Synthesizer / AudioConverter ----

type MockSynth struct {
	SynthesizeFunc func(ctx context.Context, text, voice string) (model.Speech, error)
	LastText       string
}

func (m *MockSynth) Synthesize(ctx context.Context, text, voice string) (model.Speech, error) {
	m.LastText = text
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voice)
	}
	return model.Speech{Audio: []byte("RIFFwav"), Format: "wav"}, nil
}

type MockConverter struct {
	ToVoiceFunc func(ctx context.Context, wav []byte) ([]byte, error)
	Calls       int
}

func (m *MockConverter) ToVoice(ctx context.Context, wav []byte) ([]byte, error) {
	m.Calls++
	if m.ToVoiceFunc != nil {
		return m.ToVoiceFunc(ctx, wav)
	}
	return []byte("OggS"), nil
}

// ---- Task submitters ----

// inlineTasks runs every task synchronously and records its outcome.
type inlineTasks struct {
	mu     sync.Mutex
	names  []string
	errs   map[string]error
	reject bool
}

func newInlineTasks() *inlineTasks { return &inlineTasks{errs: map[string]error{}} }

func (s *inlineTasks) Submit(name string, task worker.Task) error {
	if s.reject {
		return worker.ErrQueueFull
	}
	err := task(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	if err != nil {
		s.errs[name] = err
	}
	return nil
}

func (s *inlineTasks) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.names...)
	sort.Strings(out)
	return out
}

// =============================
// Repositories
// =============================

// ---- In-memory UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byTG map[int64]*model.User

	SaveFunc             func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByTelegramIDFunc func(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error)
	RecordActivityFunc   func(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byTG: map[int64]*model.User{}}
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	r.byTG[cp.TelegramID] = &cp
	return nil
}

func (r *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	if r.FindByTelegramIDFunc != nil {
		return r.FindByTelegramIDFunc(ctx, tx, tgID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byTG[tgID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) UpdateLevel(ctx context.Context, tx repository.Tx, tgID int64, level model.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byTG[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Level = level
	return nil
}

func (r *MockUserRepo) RecordActivity(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error {
	if r.RecordActivityFunc != nil {
		return r.RecordActivityFunc(ctx, tx, tgID, now, tokens)
	}
	return r.ApplyActivity(tgID, now, tokens)
}

// ApplyActivity updates the stored row in place under the lock, the way the
// SQL UPDATE touches only the activity columns.
func (r *MockUserRepo) ApplyActivity(tgID int64, now time.Time, tokens int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byTG[tgID]
	if !ok {
		return domain.ErrNotFound
	}
	u.RecordActivity(now, tokens)
	return nil
}

func (r *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTG), nil
}

func (r *MockUserRepo) Get(tgID int64) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byTG[tgID]; ok {
		cp := *u
		return &cp
	}
	return nil
}

// ---- In-memory VocabularyRepository ----

type MockVocabRepo struct {
	mu      sync.Mutex
	entries []*model.VocabularyEntry

	AddErr error
}

var _ repository.VocabularyRepository = (*MockVocabRepo)(nil)

func (r *MockVocabRepo) Add(ctx context.Context, tx repository.Tx, e *model.VocabularyEntry) error {
	if r.AddErr != nil {
		return r.AddErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.entries {
		if x.UserID == e.UserID && strings.EqualFold(x.WordOrPhrase, e.WordOrPhrase) {
			x.ContextSentence = e.ContextSentence
			if e.Translation != "" {
				x.Translation = e.Translation
			}
			return nil
		}
	}
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MockVocabRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.VocabularyEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.VocabularyEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].UserID == userID {
			cp := *r.entries[i]
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MockVocabRepo) CountByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	list, _ := r.ListByUser(ctx, tx, userID, 0)
	return len(list), nil
}

func (r *MockVocabRepo) DeleteByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// ---- In-memory ErrorLogRepository ----

type MockErrorLogRepo struct {
	mu      sync.Mutex
	entries []*model.ErrorLogEntry

	CountErr error
}

var _ repository.ErrorLogRepository = (*MockErrorLogRepo)(nil)

func (r *MockErrorLogRepo) Add(ctx context.Context, tx repository.Tx, e *model.ErrorLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MockErrorLogRepo) CountByCategory(ctx context.Context, tx repository.Tx, userID string) (map[string]int, error) {
	if r.CountErr != nil {
		return nil, r.CountErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, e := range r.entries {
		if e.UserID == userID {
			out[e.Category]++
		}
	}
	return out, nil
}

// ---- Mock TxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Utilities
// =============================

var errBoom = errors.New("boom")

func fixedNow() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	translator, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return translator
}
