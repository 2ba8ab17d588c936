// Package config provides the configuration schema, loader, and provider registry
// for the SpeakEz pronunciation practice server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HistoryDriver selects the attempt history backend.
type HistoryDriver string

const (
	HistoryMemory   HistoryDriver = "memory"
	HistoryJSONL    HistoryDriver = "jsonl"
	HistorySQLite   HistoryDriver = "sqlite"
	HistoryPostgres HistoryDriver = "postgres"
)

// IsValid reports whether d is a recognised history driver.
func (d HistoryDriver) IsValid() bool {
	switch d {
	case HistoryMemory, HistoryJSONL, HistorySQLite, HistoryPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is loaded from a YAML or TOML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Providers ProvidersConfig `yaml:"providers" toml:"providers"`
	Converter ConverterConfig `yaml:"converter" toml:"converter"`
	Capture   CaptureConfig   `yaml:"capture" toml:"capture"`
	Practice  PracticeConfig  `yaml:"practice" toml:"practice"`
	History   HistoryConfig   `yaml:"history" toml:"history"`
	MCP       MCPConfig       `yaml:"mcp" toml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls" toml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// ProvidersConfig selects the speech backends. Each entry names a provider
// registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt" toml:"stt"`
	TTS ProviderEntry `yaml:"tts" toml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "gtts").
	Name string `yaml:"name" toml:"name"`

	// APIKey authenticates against hosted APIs. ${VAR} references are expanded
	// from the environment at load time.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Model selects a model or, for local engines, a model file path.
	Model string `yaml:"model" toml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options" toml:"options"`

	// Fallbacks are tried in order when this provider fails. Fallbacks of a
	// fallback are ignored.
	Fallbacks []ProviderEntry `yaml:"fallbacks" toml:"fallbacks"`
}

// ConverterConfig selects how audio is converted between encodings.
type ConverterConfig struct {
	// Name is "native" (WAV and PCM only) or "ffmpeg". Default: ffmpeg when
	// the binary is on PATH, otherwise native.
	Name string `yaml:"name" toml:"name"`

	// Binary overrides the ffmpeg executable.
	Binary string `yaml:"binary" toml:"binary"`
}

// CaptureConfig configures server-side recording. An empty Name disables it
// and recordings must be uploaded.
type CaptureConfig struct {
	Name        string `yaml:"name" toml:"name"`
	Binary      string `yaml:"binary" toml:"binary"`
	Device      string `yaml:"device" toml:"device"`
	InputFormat string `yaml:"input_format" toml:"input_format"`
}

// PracticeConfig holds per-session defaults.
type PracticeConfig struct {
	// Language is the default BCP-47 tag for transcription and synthesis.
	Language string `yaml:"language" toml:"language"`

	// Voice is the default TTS voice. Empty uses the provider default.
	Voice string `yaml:"voice" toml:"voice"`

	// RecordSeconds is the server-side capture length. Default: 5.
	RecordSeconds int `yaml:"record_seconds" toml:"record_seconds"`

	// SampleRate is the server-side capture sample rate. Default: 44100.
	SampleRate int `yaml:"sample_rate" toml:"sample_rate"`

	// WorkspaceDir holds per-session audio. Empty uses a temporary directory
	// removed on shutdown.
	WorkspaceDir string `yaml:"workspace_dir" toml:"workspace_dir"`

	// SessionTTL is how long an idle session is kept. Default: 1h.
	SessionTTL Duration `yaml:"session_ttl" toml:"session_ttl"`

	// TTSCacheSize bounds the synthesis cache. Zero uses the default, a
	// negative value disables caching.
	TTSCacheSize int `yaml:"tts_cache_size" toml:"tts_cache_size"`
}

// HistoryConfig selects where check attempts are recorded.
type HistoryConfig struct {
	// Driver is memory, jsonl, sqlite or postgres. Default: memory.
	Driver HistoryDriver `yaml:"driver" toml:"driver"`

	// DSN is a file path for jsonl and sqlite or a connection string for postgres.
	DSN string `yaml:"dsn" toml:"dsn"`
}

// MCPConfig controls the Model Context Protocol tool endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Path is the HTTP mount point. Default: /mcp.
	Path string `yaml:"path" toml:"path"`
}

// Duration is a time.Duration that decodes from strings such as "90s" or "1h".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for YAML and TOML.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8501"
	DefaultLanguage      = "en"
	DefaultRecordSeconds = 5
	DefaultSampleRate    = 44100
	DefaultSessionTTL    = time.Hour
	DefaultMCPPath       = "/mcp"
)

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Practice.Language == "" {
		cfg.Practice.Language = DefaultLanguage
	}
	if cfg.Practice.RecordSeconds == 0 {
		cfg.Practice.RecordSeconds = DefaultRecordSeconds
	}
	if cfg.Practice.SampleRate == 0 {
		cfg.Practice.SampleRate = DefaultSampleRate
	}
	if cfg.Practice.SessionTTL == 0 {
		cfg.Practice.SessionTTL = Duration(DefaultSessionTTL)
	}
	if cfg.History.Driver == "" {
		cfg.History.Driver = HistoryMemory
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}
