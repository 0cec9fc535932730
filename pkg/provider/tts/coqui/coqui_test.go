package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

func testWAV(t *testing.T, rate int, samples ...int) []byte {
	t.Helper()
	wav, err := audio.EncodeWAV(&audio.PCM{Samples: samples, SampleRate: rate, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("with options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002",
			WithLanguage("de"),
			WithTimeout(5*time.Second),
			WithAPIMode(APIModeXTTS),
			WithOutputSampleRate(12000),
		)
		if p.language != "de" || p.httpClient.Timeout != 5*time.Second || p.apiMode != APIModeXTTS || p.outputRate != 12000 {
			t.Errorf("options not applied: %+v", p)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		if _, err := New("http://x", WithAPIMode("bogus")); err == nil {
			t.Fatal("expected error for unknown api mode")
		}
	})
}

func TestSynthesize_Standard(t *testing.T) {
	wav := testWAV(t, 22050, 1, 2, 3)
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"text":        q.Get("text"),
			"speaker_id":  q.Get("speaker_id"),
			"language_id": q.Get("language_id"),
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithSpeakers(map[tts.Voice]string{tts.Nova: "p225"}))
	got, err := p.Synthesize(context.Background(), "Hello there.", tts.Nova)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(wav) {
		t.Error("expected the server payload to be returned unchanged")
	}
	want := map[string]string{"text": "Hello there.", "speaker_id": "p225", "language_id": "en"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestSynthesize_StandardUnmappedVoice(t *testing.T) {
	wav := testWAV(t, 16000, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("speaker_id") {
			t.Errorf("unexpected speaker_id %q", r.URL.Query().Get("speaker_id"))
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(context.Background(), "hi", tts.Echo); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	wav := testWAV(t, 24000, 0, 100, 200, 300)
	var body ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			http.NotFound(w, r)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"), WithOutputSampleRate(12000))
	got, err := p.Synthesize(context.Background(), "Guten Tag.", tts.Shimmer)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if body.Text != "Guten Tag." || body.SpeakerWav != "shimmer" || body.Language != "de" {
		t.Errorf("request body = %+v", body)
	}
	pcm, err := audio.DecodeWAV(got)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if pcm.SampleRate != 12000 || pcm.Frames() != 2 {
		t.Errorf("output = %s with %d frames, want 12000Hz with 2 frames", pcm, pcm.Frames())
	}
}

func TestSynthesize_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("text") {
		case "garbage":
			_, _ = w.Write([]byte("not a wav"))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	p := mustNew(t, srv.URL)

	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice("robot")); !errors.Is(err, tts.ErrUnknownVoice) {
		t.Errorf("unknown voice err = %v, want ErrUnknownVoice", err)
	}
	if _, err := p.Synthesize(context.Background(), "  ", tts.Alloy); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := p.Synthesize(context.Background(), "fail", tts.Alloy); err == nil {
		t.Error("expected error for HTTP 500")
	}
	if _, err := p.Synthesize(context.Background(), "garbage", tts.Alloy); !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("garbage payload err = %v, want ErrInvalidWAV", err)
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(ctx, "hi", tts.Alloy); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestListVoices_XTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"speaker_bob":{},"speaker_alice":{}}`))
	}))
	defer srv.Close()

	voices, err := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS)).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "speaker_alice" || voices[1].ID != "speaker_bob" {
		t.Fatalf("voices = %+v, want sorted alice, bob", voices)
	}
	if voices[0].Provider != "coqui" || voices[0].Metadata["type"] != "studio" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
}

func TestListVoices_Standard(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
		kind    string
	}{
		{
			name:    "multi speaker",
			body:    `{"model_name":"vctk/vits","speakers":["p226","p225"]}`,
			wantIDs: []string{"p225", "p226"},
			kind:    "speaker",
		},
		{
			name:    "single speaker",
			body:    `{"model_name":"ljspeech/vits"}`,
			wantIDs: []string{"ljspeech/vits"},
			kind:    "single-speaker",
		},
		{
			name:    "unnamed model",
			body:    `{}`,
			wantIDs: []string{"default"},
			kind:    "single-speaker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != detailsEndpoint {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if voices[i].ID != id {
					t.Errorf("voices[%d].ID = %q, want %q", i, voices[i].ID, id)
				}
				if voices[i].Metadata["type"] != tt.kind {
					t.Errorf("voices[%d] type = %q, want %q", i, voices[i].Metadata["type"], tt.kind)
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := mustNew(t, srv.URL).ListVoices(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}
