package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MrWong99/voiceturn/internal/voice"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// Commander is the part of [voice.Controller] the console drives.
type Commander interface {
	StartCapture() error
	FinishCapture() error
	Cancel() error
	SelectVoice(v tts.Voice) error
	State() voice.State
	Voice() tts.Voice
	Subscribe(fn func(voice.Transition)) (unsubscribe func())
}

const consoleHelp = `commands:
  <enter>    start recording, or finish the current recording
  c          cancel the current turn
  v [name]   list voices, or select one
  s          show the current state
  h, ?       show this help
  q          quit
`

// VoiceSource lists the voices offered by the synthesis backend.
type VoiceSource func(ctx context.Context) ([]tts.VoiceProfile, error)

// Console is a line-oriented terminal driver for a [Commander].
type Console struct {
	ctrl   Commander
	in     io.Reader
	voices VoiceSource

	mu  sync.Mutex
	out io.Writer
}

// ConsoleOption is a functional option for [NewConsole].
type ConsoleOption func(*Console)

// WithVoiceSource makes "v" list the backend's voices after the catalogue.
func WithVoiceSource(src VoiceSource) ConsoleOption {
	return func(c *Console) { c.voices = src }
}

// NewConsole reads commands from in and writes prompts and state changes to
// out.
func NewConsole(ctrl Commander, in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{ctrl: ctrl, in: in, out: out}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run processes commands until "q", end of input, or ctx is cancelled. It
// returns nil in all three cases; only write failures are reported.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := c.ctrl.Subscribe(func(t voice.Transition) {
		_ = c.printf("[%s]\n", t.To)
	})
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := c.printf("%s[%s] voice %s\n", consoleHelp, c.ctrl.State(), c.ctrl.Voice()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.exec(ctx, strings.TrimSpace(line))
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// exec runs one command line. Controller errors are printed, not returned.
func (c *Console) exec(ctx context.Context, line string) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var cmdErr error
	switch strings.ToLower(cmd) {
	case "":
		if c.ctrl.State().Phase == voice.RecordingSpeech {
			cmdErr = c.ctrl.FinishCapture()
		} else {
			cmdErr = c.ctrl.StartCapture()
		}
	case "c":
		cmdErr = c.ctrl.Cancel()
	case "v":
		if arg == "" {
			return false, c.listVoices(ctx)
		}
		v, perr := tts.ParseVoice(arg)
		if perr != nil {
			if s, ok := tts.SuggestVoice(arg); ok {
				return false, c.printf("error: %v, did you mean %s?\n", perr, s)
			}
			cmdErr = perr
			break
		}
		if cmdErr = c.ctrl.SelectVoice(v); cmdErr == nil {
			err = c.printf("voice %s\n", v)
		}
	case "s":
		err = c.printf("[%s] voice %s\n", c.ctrl.State(), c.ctrl.Voice())
	case "q":
		return true, nil
	case "h", "?":
		err = c.printf("%s", consoleHelp)
	default:
		err = c.printf("unknown command %q\n%s", cmd, consoleHelp)
	}
	if cmdErr != nil {
		return false, c.printf("error: %v\n", cmdErr)
	}
	return false, err
}

func (c *Console) listVoices(ctx context.Context) error {
	current := c.ctrl.Voice()
	var b strings.Builder
	for _, v := range tts.Voices() {
		mark := " "
		if v == current {
			mark = "*"
		}
		fmt.Fprintf(&b, " %s %s\n", mark, v)
	}
	if c.voices != nil {
		profiles, err := c.voices(ctx)
		if err != nil {
			fmt.Fprintf(&b, "backend voices unavailable: %v\n", err)
		} else {
			b.WriteString("backend voices:\n")
			for _, p := range profiles {
				fmt.Fprintf(&b, "   %s (%s)\n", p.Name, p.ID)
			}
		}
	}
	return c.printf("%s", b.String())
}

func (c *Console) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}
