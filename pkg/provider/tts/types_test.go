package tts_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

func TestParseVoice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    tts.Voice
		wantErr bool
	}{
		{in: "nova", want: tts.Nova},
		{in: "  Shimmer ", want: tts.Shimmer},
		{in: "ALLOY", want: tts.Alloy},
		{in: "robot", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := tts.ParseVoice(tt.in)
		if tt.wantErr {
			if !errors.Is(err, tts.ErrUnknownVoice) {
				t.Errorf("ParseVoice(%q) err = %v, want ErrUnknownVoice", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseVoice(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	vs := tts.Voices()
	if len(vs) != 6 || vs[0] != tts.Alloy {
		t.Fatalf("Voices() = %v", vs)
	}
	vs[0] = "mutated"
	if tts.Voices()[0] != tts.Alloy {
		t.Error("Voices() must return a copy")
	}
	if !tts.DefaultVoice.Valid() {
		t.Error("DefaultVoice must be in the catalogue")
	}
}

func TestSuggestVoice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   tts.Voice
		wantOK bool
	}{
		{in: "shimer", want: tts.Shimmer, wantOK: true},
		{in: "nvoa", want: tts.Nova, wantOK: true},
		{in: "Allow", want: tts.Alloy, wantOK: true},
		{in: "zzz"},
		{in: "  "},
	}
	for _, tt := range tests {
		got, ok := tts.SuggestVoice(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("SuggestVoice(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
