// Package deepgram provides an STT provider backed by the Deepgram live
// transcription API over WebSocket.
//
// Each Transcribe call opens one live session, streams the utterance as
// linear16 PCM in real-time-sized chunks, asks the server to flush with a
// CloseStream message, and joins every final result into one transcript.
package deepgram

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkMs is the audio duration sent per WebSocket frame.
	chunkMs = 100
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g., "nova-3", "nova-2"). Defaults to "nova-3".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code. Defaults to "en".
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the live transcription WebSocket URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider using Deepgram's live API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Deepgram Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	pcm, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("deepgram: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	wsURL, err := p.buildURL(lang, pcm.SampleRate, pcm.Channels, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	// Results are read concurrently so the server never blocks on a full
	// send buffer while audio is still being written.
	type readResult struct {
		tr  *stt.Transcript
		err error
	}
	results := make(chan readResult, 1)
	go func() {
		tr, err := collect(ctx, conn)
		results <- readResult{tr, err}
	}()

	if err := stream(ctx, conn, pcm); err != nil {
		return nil, fmt.Errorf("deepgram: send audio: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return nil, fmt.Errorf("deepgram: close stream: %w", err)
	}

	var res readResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return nil, fmt.Errorf("deepgram: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("deepgram: read results: %w", res.err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")

	res.tr.Language = lang
	res.tr.Duration = pcm.Duration()
	return res.tr, nil
}

// stream writes the utterance as little-endian linear16 frames.
func stream(ctx context.Context, conn *websocket.Conn, pcm *audio.PCM) error {
	per := max(1, pcm.SampleRate*pcm.Channels*chunkMs/1000)
	buf := make([]byte, 0, per*2)
	for off := 0; off < len(pcm.Samples); off += per {
		buf = buf[:0]
		for _, s := range pcm.Samples[off:min(off+per, len(pcm.Samples))] {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(s)))
		}
		if err := conn.Write(ctx, websocket.MessageBinary, buf); err != nil {
			return err
		}
	}
	return nil
}

// collect reads server messages until the server closes the session and
// joins the final results in order.
func collect(ctx context.Context, conn *websocket.Conn) (*stt.Transcript, error) {
	tr := &stt.Transcript{}
	var (
		parts []string
		conf  float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusNoStatusRcvd {
				break
			}
			return nil, err
		}
		seg, confidence, final, ok := parseDeepgramResponse(msg)
		if !ok || !final || seg.Text == "" {
			continue
		}
		parts = append(parts, seg.Text)
		tr.Segments = append(tr.Segments, seg)
		conf += confidence
	}
	tr.Text = strings.Join(parts, " ")
	if len(parts) > 0 {
		tr.Confidence = conf / float64(len(parts))
	}
	return tr, nil
}

// buildURL constructs the WebSocket URL with query parameters.
func (p *Provider) buildURL(lang string, sampleRate, channels int, keywords string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", strconv.Itoa(max(1, channels)))
	for _, kw := range strings.Fields(keywords) {
		q.Add("keywords", kw)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of the Deepgram live-transcription JSON
// message that we care about.
type deepgramResponse struct {
	Type    string  `json:"type"`
	IsFinal bool    `json:"is_final"`
	Start   float64 `json:"start"`
	Dur     float64 `json:"duration"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse converts a "Results" message into a segment.
func parseDeepgramResponse(data []byte) (seg stt.Segment, confidence float64, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Segment{}, 0, false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Segment{}, 0, false, false
	}
	alt := resp.Channel.Alternatives[0]
	start := time.Duration(resp.Start * float64(time.Second))
	return stt.Segment{
		Text:  strings.TrimSpace(alt.Transcript),
		Start: start,
		End:   start + time.Duration(resp.Dur*float64(time.Second)),
	}, alt.Confidence, resp.IsFinal, true
}
