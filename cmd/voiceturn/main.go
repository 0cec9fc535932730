// Command voiceturn is a push-to-talk voice assistant for the terminal: it
// records an utterance, detects the end of speech, asks the configured
// assistant providers for an answer and speaks it back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/voiceturn/internal/app"
	"github.com/MrWong99/voiceturn/internal/config"
	"github.com/MrWong99/voiceturn/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voiceturn.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	console := flag.Bool("console", true, "read commands from stdin; exits when stdin is closed")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiceturn: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiceturn: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("voiceturn starting",
		"config", *configPath,
		"diagnostics_addr", cfg.Server.DiagnosticsAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voiceturn"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(os.Stdout, cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
			if err := application.ApplyConfig(old, updated); err != nil {
				slog.Error("config reload failed", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Terminal driver ───────────────────────────────────────────────────────
	if *console {
		go func() {
			if err := app.NewConsole(application.Controller(), os.Stdin, os.Stdout,
				app.WithVoiceSource(application.BackendVoices)).Run(ctx); err != nil {
				slog.Error("console error", "err", err)
			}
			stop()
		}()
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        voiceturn startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "STT", cfg.Providers.STT, len(cfg.Providers.Fallbacks.STT))
	printProvider(w, "LLM", cfg.Providers.LLM, len(cfg.Providers.Fallbacks.LLM))
	printProvider(w, "TTS", cfg.Providers.TTS, len(cfg.Providers.Fallbacks.TTS))
	printProvider(w, "Audio", cfg.Providers.Audio, 0)
	printRow(w, "Voice", cfg.Assistant.Voice)
	printRow(w, "Sample rate", fmt.Sprintf("%d Hz", cfg.Turn.SampleRate))
	printRow(w, "Silence check", cfg.Turn.SilenceInterval.String())
	if cfg.Server.DiagnosticsAddr != "" {
		printRow(w, "Diagnostics", cfg.Server.DiagnosticsAddr)
	} else {
		printRow(w, "Diagnostics", "(disabled)")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind string, entry config.ProviderEntry, fallbacks int) {
	value := entry.Name
	switch {
	case value == "":
		value = "(not configured)"
	case entry.Model != "":
		value = entry.Name + " / " + entry.Model
	}
	if fallbacks > 0 {
		value = fmt.Sprintf("%s +%d", value, fallbacks)
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, key, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-13s  : %-19s ║\n", key, value)
}
