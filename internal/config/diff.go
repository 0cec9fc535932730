package config

import "slices"

// ConfigDiff describes what changed between two configs. Log level,
// assistant settings and turn parameters are applied live; everything listed
// in RestartRequired only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	NewVoice     string

	// AssistantChanged is set when any assistant field other than the voice
	// changed.
	AssistantChanged bool

	TurnChanged bool

	// RestartRequired names the sections whose changes are ignored until
	// restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoiceChanged && !d.AssistantChanged &&
		!d.TurnChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Assistant.Voice != new.Assistant.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Assistant.Voice
	}
	oa, na := old.Assistant, new.Assistant
	oa.Voice, na.Voice = "", ""
	d.AssistantChanged = oa != na

	d.TurnChanged = old.Turn != new.Turn

	if old.Server.DiagnosticsAddr != new.Server.DiagnosticsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.diagnostics_addr")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) &&
		entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.TTS, b.TTS) &&
		entryEqual(a.Audio, b.Audio) &&
		slices.EqualFunc(a.Fallbacks.STT, b.Fallbacks.STT, entryEqual) &&
		slices.EqualFunc(a.Fallbacks.LLM, b.Fallbacks.LLM, entryEqual) &&
		slices.EqualFunc(a.Fallbacks.TTS, b.Fallbacks.TTS, entryEqual)
}

// entryEqual compares the scalar fields and the top-level option values.
// Nested option maps compare as unequal unless identical by formatting.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || optionString(av) != optionString(bv) {
			return false
		}
	}
	return true
}
