package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/speakez/internal/config"
	"github.com/MrWong99/speakez/pkg/provider/stt"
	sttmock "github.com/MrWong99/speakez/pkg/provider/stt/mock"
	"github.com/MrWong99/speakez/pkg/provider/tts"
	ttsmock "github.com/MrWong99/speakez/pkg/provider/tts/mock"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug

providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    model: base
    options:
      language: en
    fallbacks:
      - name: openai
        api_key: sk-test
  tts:
    name: gtts
    options:
      tld: co.uk

converter:
  name: ffmpeg
  binary: /usr/bin/ffmpeg

capture:
  name: ffmpeg
  device: hw:1
  input_format: alsa

practice:
  language: de
  record_seconds: 8
  session_ttl: 30m
  tts_cache_size: 32

history:
  driver: sqlite
  dsn: /var/lib/speakez/history.db

mcp:
  enabled: true
`

const sampleTOML = `
[server]
listen_addr = ":9090"
log_level = "warn"

[providers.stt]
name = "vosk"
model = "/models/vosk-en"

[providers.tts]
name = "piper"
model = "/models/en_US-lessac.onnx"
options = { speaker = 2 }

[practice]
language = "en-GB"
session_ttl = "2h"

[history]
driver = "jsonl"
dsn = "history.jsonl"
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	stt := cfg.Providers.STT
	if stt.Name != "whisper" || stt.Model != "base" || config.OptString(stt.Options, "language") != "en" {
		t.Errorf("providers.stt = %+v", stt)
	}
	if len(stt.Fallbacks) != 1 || stt.Fallbacks[0].Name != "openai" || stt.Fallbacks[0].APIKey != "sk-test" {
		t.Errorf("providers.stt.fallbacks = %+v", stt.Fallbacks)
	}
	if cfg.Capture.Device != "hw:1" || cfg.Converter.Binary != "/usr/bin/ffmpeg" {
		t.Errorf("capture/converter = %+v / %+v", cfg.Capture, cfg.Converter)
	}
	if cfg.Practice.Language != "de" || cfg.Practice.RecordSeconds != 8 {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	if got := cfg.Practice.SessionTTL.Std(); got != 30*time.Minute {
		t.Errorf("session_ttl = %v, want 30m", got)
	}
	if cfg.History.Driver != config.HistorySQLite {
		t.Errorf("history.driver = %q", cfg.History.Driver)
	}
	if !cfg.MCP.Enabled || cfg.MCP.Path != config.DefaultMCPPath {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
}

func TestLoadFromReader_EmptyGetsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Practice.Language != "en" || cfg.Practice.RecordSeconds != 5 || cfg.Practice.SampleRate != 44100 {
		t.Errorf("practice defaults = %+v", cfg.Practice)
	}
	if cfg.Practice.SessionTTL.Std() != time.Hour {
		t.Errorf("session_ttl = %v, want 1h", cfg.Practice.SessionTTL.Std())
	}
	if cfg.History.Driver != config.HistoryMemory {
		t.Errorf("history.driver = %q, want memory", cfg.History.Driver)
	}
}

func TestLoad_TOML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "speakez.toml")
	if err := os.WriteFile(path, []byte(sampleTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.STT.Name != "vosk" || cfg.Providers.TTS.Name != "piper" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if n, ok := config.OptFloat(cfg.Providers.TTS.Options, "speaker"); !ok || n != 2 {
		t.Errorf("speaker option = %v, %v", n, ok)
	}
	if cfg.Practice.SessionTTL.Std() != 2*time.Hour || cfg.Practice.Language != "en-GB" {
		t.Errorf("practice = %+v", cfg.Practice)
	}
	if cfg.History.Driver != config.HistoryJSONL {
		t.Errorf("history.driver = %q", cfg.History.Driver)
	}
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: ':1'\n")); err == nil {
		t.Error("yaml: expected error for unknown key")
	}
	if _, err := config.Parse([]byte("[server]\nlisten_adr = ':1'\n"), config.FormatTOML); err == nil {
		t.Error("toml: expected error for unknown key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()
	tests := map[string]config.Format{
		"config.yaml":  config.FormatYAML,
		"config.yml":   config.FormatYAML,
		"speakez.TOML": config.FormatTOML,
		"noext":        config.FormatYAML,
	}
	for path, want := range tests {
		if got := config.FormatFor(path); got != want {
			t.Errorf("FormatFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return want, nil
	})
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterTTS("another", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "mock", Model: "base"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != want || gotEntry.Model != "base" {
		t.Errorf("factory not used as expected: %v %+v", p, gotEntry)
	}
	if names := reg.Names("tts"); len(names) != 2 || names[0] != "another" || names[1] != "mock" {
		t.Errorf("Names(tts) = %v", names)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("model file missing")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) { return nil, boom })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want factory error", err)
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"s": "x", "i": 3, "i64": int64(4), "f": 1.5, "b": true}
	if config.OptString(opts, "s") != "x" || config.OptString(opts, "i") != "" || config.OptString(nil, "s") != "" {
		t.Error("OptString mismatch")
	}
	for key, want := range map[string]float64{"i": 3, "i64": 4, "f": 1.5} {
		if got, ok := config.OptFloat(opts, key); !ok || got != want {
			t.Errorf("OptFloat(%q) = %v, %v", key, got, ok)
		}
	}
	if _, ok := config.OptFloat(opts, "s"); ok {
		t.Error("OptFloat accepted a string")
	}
	if !config.OptBool(opts, "b") || config.OptBool(opts, "s") {
		t.Error("OptBool mismatch")
	}
}
