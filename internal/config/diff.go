package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PracticeChanged is set when any per-session default changed. The new
	// defaults apply to sessions created after the reload.
	PracticeChanged bool
	NewPractice     PracticeConfig

	// RestartRequired lists top-level sections whose changes only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PracticeChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Practice, new.Practice
	if op.Language != np.Language || op.Voice != np.Voice ||
		op.RecordSeconds != np.RecordSeconds || op.SampleRate != np.SampleRate ||
		op.SessionTTL != np.SessionTTL {
		d.PracticeChanged = true
		d.NewPractice = np
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameEntry(old.Providers.STT, new.Providers.STT) || !sameEntry(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Converter != new.Converter {
		d.RestartRequired = append(d.RestartRequired, "converter")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if op.WorkspaceDir != np.WorkspaceDir || op.TTSCacheSize != np.TTSCacheSize {
		d.RestartRequired = append(d.RestartRequired, "practice")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameEntry compares the scalar fields of two entries and their fallbacks.
// Options maps are compared deeply.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	if len(a.Options) > 0 && !reflect.DeepEqual(a.Options, b.Options) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}
