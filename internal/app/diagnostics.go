package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/voiceturn/internal/health"
	"github.com/MrWong99/voiceturn/internal/resilience"
	"github.com/MrWong99/voiceturn/internal/voice"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// Snapshot is the JSON document served on /state.
type Snapshot struct {
	Phase           string                              `json:"phase"`
	Error           string                              `json:"error,omitempty"`
	Voice           string                              `json:"voice"`
	Power           float64                             `json:"power"`
	WaveformOpacity float64                             `json:"waveform_opacity"`
	Providers       map[string][]resilience.EntryStatus `json:"providers"`
}

// Snapshot returns the controller's observable signals and the breaker state
// of every provider chain.
func (a *App) Snapshot() Snapshot {
	st := a.controller.State()
	s := Snapshot{
		Phase:           st.Phase.String(),
		Voice:           string(a.controller.Voice()),
		Power:           a.controller.AudioPower().Value,
		WaveformOpacity: a.controller.WaveformOpacity(),
		Providers: map[string][]resilience.EntryStatus{
			"stt": a.stt.Status(),
			"llm": a.llm.Status(),
			"tts": a.tts.Status(),
		},
	}
	if st.Err != nil {
		s.Error = st.Err.Error()
	}
	return s
}

func (a *App) serveState(w http.ResponseWriter, _ *http.Request) {
	health.WriteJSON(w, http.StatusOK, a.Snapshot())
}

// VoiceReport is the JSON document served on /voices.
type VoiceReport struct {
	Current      string             `json:"current"`
	Catalogue    []tts.Voice        `json:"catalogue"`
	Backend      []tts.VoiceProfile `json:"backend"`
	BackendError string             `json:"backend_error,omitempty"`
}

// serveVoices reports the catalogue next to the voices of the synthesis
// backend. A failing backend still yields the catalogue.
func (a *App) serveVoices(w http.ResponseWriter, r *http.Request) {
	rep := VoiceReport{
		Current:   string(a.controller.Voice()),
		Catalogue: tts.Voices(),
		Backend:   []tts.VoiceProfile{},
	}
	profiles, err := a.BackendVoices(r.Context())
	if err != nil {
		rep.BackendError = err.Error()
	} else if profiles != nil {
		rep.Backend = profiles
	}
	health.WriteJSON(w, http.StatusOK, rep)
}

// checkers reports the controller as required and each provider chain as
// optional: a chain with an open breaker still has fallbacks or recovers on
// its own.
func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{Name: "controller", Check: func(context.Context) error {
			if st := a.controller.State(); st.Phase == voice.Error {
				return fmt.Errorf("controller in %s", st)
			}
			return nil
		}},
		{Name: "stt", Check: breakerCheck(a.stt.Status), Optional: true},
		{Name: "llm", Check: breakerCheck(a.llm.Status), Optional: true},
		{Name: "tts", Check: breakerCheck(a.tts.Status), Optional: true},
	}
}

func breakerCheck(status func() []resilience.EntryStatus) func(context.Context) error {
	return func(context.Context) error {
		var open []string
		for _, e := range status() {
			if e.State == resilience.StateOpen.String() {
				open = append(open, e.Name)
			}
		}
		if len(open) > 0 {
			return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
		}
		return nil
	}
}
