// Package coqui speaks through a self-hosted Coqui TTS server, either the
// standard server (GET /api/tts) or the XTTS v2 API server
// (POST /tts_to_audio/). Catalogue voices are mapped onto server speakers
// with [WithSpeakers].
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithSpeakers(map[tts.Voice]string{tts.Nova: "p225"}))
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Defaults to APIModeStandard.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate resamples synthesised audio to rate. Zero (the
// default) keeps the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// WithSpeakers maps catalogue voices onto server speaker identifiers.
func WithSpeakers(speakers map[tts.Voice]string) Option {
	return func(p *Provider) {
		p.speakers = maps.Clone(speakers)
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server. It is safe
// for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
	speakers   map[tts.Voice]string
}

// New creates a Provider that targets the TTS server at serverURL (e.g.,
// "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text with the server speaker mapped to voice and returns
// a WAV payload.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if !voice.Valid() {
		return nil, fmt.Errorf("coqui: %w: %q", tts.ErrUnknownVoice, voice)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	var req *http.Request
	var err error
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, text, voice)
	} else {
		req, err = p.standardRequest(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return p.normalise(wav)
}

func (p *Provider) xttsRequest(ctx context.Context, text string, voice tts.Voice) (*http.Request, error) {
	speaker, ok := p.speakers[voice]
	if !ok {
		speaker = string(voice)
	}
	data, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: speaker, Language: p.language})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, text string, voice tts.Voice) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if speaker, ok := p.speakers[voice]; ok && speaker != "" {
		params.Set("speaker_id", speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// normalise validates the server's WAV and, when an output rate is
// configured, re-encodes it at that rate.
func (p *Provider) normalise(wav []byte) ([]byte, error) {
	pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate <= 0 || pcm.SampleRate == p.outputRate {
		return wav, nil
	}
	out, err := audio.EncodeWAV(pcm.Resample(p.outputRate))
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return out, nil
}

// ListVoices reports the speakers the server offers: GET /studio_speakers in
// XTTS mode, GET /details otherwise. A single-speaker model is listed under
// its model name.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	profile := func(id string, meta ...string) tts.VoiceProfile {
		md := make(map[string]string, len(meta)/2)
		for i := 0; i+1 < len(meta); i += 2 {
			md[meta[i]] = meta[i+1]
		}
		return tts.VoiceProfile{ID: id, Name: id, Provider: "coqui", Metadata: md}
	}

	var out []tts.VoiceProfile
	if p.apiMode == APIModeXTTS {
		var raw map[string]json.RawMessage
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
			return nil, err
		}
		for _, name := range slices.Sorted(maps.Keys(raw)) {
			out = append(out, profile(name, "type", "studio"))
		}
		return out, nil
	}

	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) == 0 {
		name := cmp.Or(details.ModelName, "default")
		return []tts.VoiceProfile{profile(name, "type", "single-speaker", "model_name", name)}, nil
	}
	for _, spk := range slices.Sorted(slices.Values(details.Speakers)) {
		out = append(out, profile(spk, "type", "speaker", "model_name", details.ModelName))
	}
	return out, nil
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}
