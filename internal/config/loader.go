package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Format identifies a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the syntax from a file extension. Anything other than
// .toml is treated as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "whisper-native", "openai", "deepgram", "vosk"},
	"tts":       {"gtts", "coqui", "elevenlabs", "openai", "piper"},
	"converter": {"native", "ffmpeg"},
	"capture":   {"ffmpeg"},
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it reads ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the configuration file at path and returns a validated [Config].
// The syntax is chosen by [FormatFor].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data, FormatYAML)
}

// Parse decodes data in the given format, expands environment references,
// applies defaults and validates the result. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} references in secrets and connection strings.
func expandEnv(cfg *Config) {
	expandEntry(&cfg.Providers.STT)
	expandEntry(&cfg.Providers.TTS)
	cfg.History.DSN = os.ExpandEnv(cfg.History.DSN)
	cfg.Practice.WorkspaceDir = os.ExpandEnv(cfg.Practice.WorkspaceDir)
}

func expandEntry(e *ProviderEntry) {
	e.APIKey = os.ExpandEnv(e.APIKey)
	e.BaseURL = os.ExpandEnv(e.BaseURL)
	e.Model = os.ExpandEnv(e.Model)
	for i := range e.Fallbacks {
		expandEntry(&e.Fallbacks[i])
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("providers.tts", "tts", cfg.Providers.TTS)...)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; recordings cannot be transcribed")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; checks will not produce a pronunciation")
	}

	if cfg.Converter.Name != "" && !slices.Contains(ValidProviderNames["converter"], cfg.Converter.Name) {
		errs = append(errs, fmt.Errorf("converter.name %q is invalid; valid values: native, ffmpeg", cfg.Converter.Name))
	}
	if cfg.Capture.Name != "" && !slices.Contains(ValidProviderNames["capture"], cfg.Capture.Name) {
		errs = append(errs, fmt.Errorf("capture.name %q is invalid; valid values: ffmpeg", cfg.Capture.Name))
	}

	p := cfg.Practice
	if p.Language != "" {
		if _, err := language.Parse(p.Language); err != nil {
			errs = append(errs, fmt.Errorf("practice.language %q is not a valid language tag: %w", p.Language, err))
		}
	}
	if p.RecordSeconds < 0 || p.RecordSeconds > 120 {
		errs = append(errs, fmt.Errorf("practice.record_seconds %d is out of range [1, 120]", p.RecordSeconds))
	}
	if p.SampleRate < 0 || (p.SampleRate > 0 && (p.SampleRate < 8000 || p.SampleRate > 192000)) {
		errs = append(errs, fmt.Errorf("practice.sample_rate %d is out of range [8000, 192000]", p.SampleRate))
	}
	if p.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("practice.session_ttl %s must not be negative", p.SessionTTL.Std()))
	}

	if d := cfg.History.Driver; d != "" && !d.IsValid() {
		errs = append(errs, fmt.Errorf("history.driver %q is invalid; valid values: memory, jsonl, sqlite, postgres", d))
	}
	switch cfg.History.Driver {
	case HistoryJSONL, HistorySQLite, HistoryPostgres:
		if cfg.History.DSN == "" {
			errs = append(errs, fmt.Errorf("history.dsn is required when driver is %s", cfg.History.Driver))
		}
	}

	if cfg.MCP.Path != "" && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

func validateEntry(prefix, kind string, e ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, e.Name)
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("%s.name is required when fallbacks are configured", prefix))
	}
	seen := map[string]int{e.Name: -1}
	for i, fb := range e.Fallbacks {
		fp := fmt.Sprintf("%s.fallbacks[%d]", prefix, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", fp))
			continue
		}
		if _, dup := seen[fb.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate", fp, fb.Name))
		}
		seen[fb.Name] = i
		if len(fb.Fallbacks) > 0 {
			slog.Warn("nested fallbacks are ignored", "entry", fp)
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
