package voice

import (
	"log/slog"

	"github.com/MrWong99/voiceturn/pkg/audio"
)

// playback is one live output stream with its power timer.
type playback struct {
	turnID  string
	res     audio.Playback
	divisor float64

	power Ticker
	ticks int
}

func (p *playback) stop() {
	if p.power != nil {
		p.power.Stop()
	}
	if err := p.res.Stop(); err != nil {
		slog.Warn("voice: stop playback", "turn_id", p.turnID, "err", err)
	}
}
