//go:build !integration

package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: Hello\nwelcome_user: Hello %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "Hello" {
			t.Errorf("wanted 'Hello', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ana"); got != "Hello Ana" {
			t.Errorf("wanted 'Hello Ana', got '%s'", got)
		}
	})
}

func TestNewTranslator(t *testing.T) {
	t.Run("should load from any fs.FS", func(t *testing.T) {
		fsys := fstest.MapFS{"locales/xx.yaml": {Data: []byte("k: v")}}
		tr, err := NewTranslator(fsys, "xx")
		if err != nil || tr.T("k") != "v" || tr.Lang() != "xx" {
			t.Fatalf("unexpected translator %v, %v", tr, err)
		}
		if _, err := NewTranslator(fsys, "missing"); err == nil {
			t.Error("expected error for missing locale")
		}
	})

	t.Run("embedded english locale carries every UI key", func(t *testing.T) {
		tr, err := NewTranslator(LocalesFS, "en")
		if err != nil {
			t.Fatalf("load embedded locale: %v", err)
		}
		for _, key := range []string{
			"welcome", "menu_title", "how_to", "stats_header", "vocab_title", "voice_you_said",
			"error_generic", "help", "did_you_mean", "fallback_correction", "fallback_reply",
		} {
			if got := tr.T(key); got == key || strings.TrimSpace(got) == "" {
				t.Errorf("missing translation for %q", key)
			}
		}
		if got := tr.T("stats_header", "B1", 1, 2, 3, 4); !strings.HasSuffix(got, "\n") {
			t.Errorf("stats header should end with a newline, got %q", got)
		}
	})
}
