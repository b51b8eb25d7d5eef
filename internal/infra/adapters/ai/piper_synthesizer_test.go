//go:build !integration

package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"speech-flow-bot/internal/domain"
	ai "speech-flow-bot/internal/infra/adapters/ai"
)

func TestPiper_Synthesize(t *testing.T) {
	// --- Arrange ---
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 64)...)
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts/stream" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(wav)
	}))
	defer srv.Close()
	p := ai.NewPiperSynthesizer(srv.URL+"/", "", time.Second)

	// --- Act ---
	speech, err := p.Synthesize(context.Background(), " Hello world ", "")

	// --- Assert ---
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["text"] != "Hello world" || got["voice"] != "amy" {
		t.Errorf("unexpected request body %v", got)
	}
	if speech.Format != "wav" || len(speech.Audio) != len(wav) {
		t.Errorf("unexpected speech format=%q len=%d", speech.Format, len(speech.Audio))
	}
}

func TestPiper_Errors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	p := ai.NewPiperSynthesizer(srv.URL, "amy", time.Second)

	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Errorf("expected error on 500")
	}

	status.Store(http.StatusOK)
	if _, err := p.Synthesize(context.Background(), "hi", ""); !errors.Is(err, domain.ErrEmptyResponse) {
		t.Errorf("expected empty response error, got %v", err)
	}

	if _, err := p.Synthesize(context.Background(), "", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestPiper_Health(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"healthy", http.StatusOK, `{"status":"healthy","model_loaded":true}`, false},
		{"model not loaded", http.StatusOK, `{"status":"healthy","model_loaded":false}`, true},
		{"down", http.StatusServiceUnavailable, ``, true},
		{"garbage", http.StatusOK, `<html>`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			err := ai.NewPiperSynthesizer(srv.URL, "amy", time.Second).Health(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNoopSynthesizer(t *testing.T) {
	if _, err := ai.NewNoopSynthesizer().Synthesize(context.Background(), "hi", ""); !errors.Is(err, domain.ErrTTSDisabled) {
		t.Errorf("expected ErrTTSDisabled, got %v", err)
	}
}
