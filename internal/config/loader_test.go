package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/speakez/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "log level",
			yaml: "server:\n  log_level: bananas\n",
			want: []string{"server.log_level"},
		},
		{
			name: "tls half configured",
			yaml: "server:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"server.tls"},
		},
		{
			name: "language tag",
			yaml: "practice:\n  language: not_a-language-tag!\n",
			want: []string{"practice.language"},
		},
		{
			name: "record seconds and sample rate",
			yaml: "practice:\n  record_seconds: 500\n  sample_rate: 100\n",
			want: []string{"practice.record_seconds", "practice.sample_rate"},
		},
		{
			name: "history driver",
			yaml: "history:\n  driver: mongo\n",
			want: []string{"history.driver"},
		},
		{
			name: "history dsn",
			yaml: "history:\n  driver: postgres\n",
			want: []string{"history.dsn is required"},
		},
		{
			name: "converter and capture",
			yaml: "converter:\n  name: sox\ncapture:\n  name: arecord\n",
			want: []string{"converter.name", "capture.name"},
		},
		{
			name: "fallback without primary",
			yaml: "providers:\n  stt:\n    fallbacks:\n      - name: openai\n",
			want: []string{"providers.stt.name is required"},
		},
		{
			name: "duplicate fallback",
			yaml: "providers:\n  tts:\n    name: gtts\n    fallbacks:\n      - name: piper\n      - name: gtts\n",
			want: []string{"duplicate"},
		},
		{
			name: "mcp path",
			yaml: "mcp:\n  path: mcp\n",
			want: []string{"mcp.path"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: loud\nhistory:\n  driver: mongo\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "history.driver") {
		t.Errorf("expected both problems reported, got: %v", err)
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: my-custom-stt\n")); err != nil {
		t.Fatalf("unknown provider name should only warn, got: %v", err)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("SPEAKEZ_TEST_KEY", "sk-from-env")
	t.Setenv("SPEAKEZ_TEST_DSN", "postgres://u@db/speakez")

	yaml := `
providers:
  stt:
    name: openai
    api_key: ${SPEAKEZ_TEST_KEY}
  tts:
    name: gtts
    fallbacks:
      - name: elevenlabs
        api_key: $SPEAKEZ_TEST_KEY
history:
  driver: postgres
  dsn: ${SPEAKEZ_TEST_DSN}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.APIKey != "sk-from-env" {
		t.Errorf("stt api_key = %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.TTS.Fallbacks[0].APIKey != "sk-from-env" {
		t.Errorf("fallback api_key = %q", cfg.Providers.TTS.Fallbacks[0].APIKey)
	}
	if cfg.History.DSN != "postgres://u@db/speakez" {
		t.Errorf("history.dsn = %q", cfg.History.DSN)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("SPEAKEZ_DOTENV_A=from-file\nSPEAKEZ_DOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPEAKEZ_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("SPEAKEZ_DOTENV_A") })

	if err := config.LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SPEAKEZ_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("SPEAKEZ_DOTENV_B"); got != "from-env" {
		t.Errorf("B = %q, existing variables must not be overridden", got)
	}
}
