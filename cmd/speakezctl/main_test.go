package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/practice"
	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/scoring"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1}

// toneWAV returns half a second of a square wave loud enough to pass the
// whisper silence gate.
func toneWAV() []byte {
	pcm := make([]byte, testFormat.BytesPerSecond()/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(8000)
		if (i/80)%2 == 0 {
			v = -8000
		}
		pcm[i] = byte(v)
		pcm[i+1] = byte(uint16(v) >> 8)
	}
	return audio.EncodeWAV(pcm, testFormat)
}

type cliTestEnv struct {
	configPath  string
	historyPath string
	dir         string
}

// setupCLITestEnv writes a config whose STT and TTS providers point at a
// local fake whisper.cpp and Coqui server.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /inference", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":" hello world "}`)
	})
	mux.HandleFunc("GET /api/tts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(toneWAV())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &cliTestEnv{
		configPath:  filepath.Join(dir, "config.yaml"),
		historyPath: filepath.Join(dir, "history.jsonl"),
		dir:         dir,
	}
	cfg := fmt.Sprintf(`providers:
  stt:
    name: whisper
    base_url: %[1]s
    options:
      rms_threshold: 0
  tts:
    name: coqui
    base_url: %[1]s
converter:
  name: native
history:
  driver: jsonl
  dsn: %[2]s
`, srv.URL, env.historyPath)
	if err := os.WriteFile(env.configPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--env-file", ""}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestScoreCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"score", "The cat sat", "the cat"}, filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	requireContains(t, out, "The cat [sat]")
	requireContains(t, out, "66.67% (2 of 3 words)")
	requireContains(t, out, "Missed")
}

func TestScoreCommand_JSON(t *testing.T) {
	out, _, err := runCLI(t, []string{"score", "--json", "good morning", "Good Morning"}, "")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	var got scoreOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Percentage != 100 || got.Formatted != "100.00%" || got.Matched != 2 || got.Total != 2 {
		t.Errorf("unexpected output: %+v", got)
	}
	if len(got.Hints) != 0 || got.Message != "" {
		t.Errorf("expected no hints or message, got %+v", got)
	}
}

func TestScoreCommand_NoMatch(t *testing.T) {
	out, _, err := runCLI(t, []string{"score", "--no-hints", "hello", ""}, "")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	requireContains(t, out, practice.NoMatchMessage)
	if strings.Contains(out, "Missed") {
		t.Errorf("hints rendered despite --no-hints:\n%s", out)
	}
}

func TestScoreCommand_Args(t *testing.T) {
	if _, _, err := runCLI(t, []string{"score", "only one"}, ""); err == nil {
		t.Fatal("expected error for a single argument")
	}
}

func TestMissingConfig(t *testing.T) {
	_, _, err := runCLI(t, []string{"history"}, filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	requireContains(t, err.Error(), "not found")
}

func TestTranscribeCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.dir, "take.wav")
	if err := os.WriteFile(path, toneWAV(), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	out, _, err := runCLI(t, []string{"transcribe", path}, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if strings.TrimSpace(out) != "hello world" {
		t.Errorf("out = %q, want %q", out, "hello world")
	}

	out, _, err = runCLI(t, []string{"transcribe", "--json", "-l", "de", path}, env.configPath)
	if err != nil {
		t.Fatalf("transcribe --json: %v", err)
	}
	var got transcribeOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Text != "hello world" || got.Language != "de" || got.Seconds != 0.5 {
		t.Errorf("unexpected output: %+v", got)
	}
}

func TestTranscribeCommand_Errors(t *testing.T) {
	env := setupCLITestEnv(t)

	txt := filepath.Join(env.dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hi"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := runCLI(t, []string{"transcribe", txt}, env.configPath); err == nil {
		t.Error("expected error for unsupported extension")
	}

	// The native converter cannot decode MP3.
	mp3 := filepath.Join(env.dir, "take.mp3")
	if err := os.WriteFile(mp3, []byte("ID3\x03"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := runCLI(t, []string{"transcribe", mp3}, env.configPath)
	if err == nil {
		t.Fatal("expected conversion error")
	}
	requireContains(t, err.Error(), "convert mp3 to wav")

	if _, _, err := runCLI(t, []string{"transcribe", filepath.Join(env.dir, "absent.wav")}, env.configPath); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSayCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	dest := filepath.Join(env.dir, "out.wav")

	out, _, err := runCLI(t, []string{"say", "-o", dest, "good", "morning"}, env.configPath)
	if err != nil {
		t.Fatalf("say: %v", err)
	}
	requireContains(t, out, "Wrote "+dest)
	requireContains(t, out, "500ms")

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !audio.IsWAV(data) {
		t.Error("output is not a WAV file")
	}
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	store, err := history.NewFileStore(env.historyPath)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	for _, rec := range []struct{ session, ref, cand string }{
		{"s-one", "the quick brown fox", "the quick fox"},
		{"s-two", "good morning", "good morning"},
	} {
		a := history.NewAttempt(rec.session, "en", rec.ref, rec.cand, scoring.Score(rec.ref, rec.cand))
		if err := store.Record(ctx, a); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "s-one")
	requireContains(t, out, "75.00%")
	requireContains(t, out, "100.00%")

	out, _, err = runCLI(t, []string{"history", "--session", "s-two", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var got []history.Attempt
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "s-two" {
		t.Errorf("got %+v, want one s-two attempt", got)
	}

	if _, _, err := runCLI(t, []string{"history", "--limit", "-1"}, env.configPath); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No attempts recorded.")
}

func TestDepsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	requireContains(t, out, "ffmpeg:")
	requireContains(t, out, "[WARN] not used; converter is native")
	requireContains(t, out, "history:")
	requireContains(t, out, "stt provider:")
	requireContains(t, out, "[OK]")
}

func TestDepsCommand_RequiredFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "capture:\n  name: ffmpeg\n  binary: " + filepath.Join(dir, "no-such-ffmpeg") + "\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	out, _, err := runCLI(t, []string{"deps"}, path)
	if err == nil {
		t.Fatalf("expected error, output:\n%s", out)
	}
	requireContains(t, out, "[ERROR]")
	requireContains(t, out, "[WARN] not configured")
}

func TestConfigValidateCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "is valid")
	requireContains(t, out, "whisper")
	requireContains(t, out, "jsonl")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignRight})
	requireContains(t, out, "╭")
	requireContains(t, out, "A")
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestRenderAnnotations(t *testing.T) {
	anns := []scoring.Annotation{{Word: "Hi", IsMatch: true}, {Word: "there", IsMatch: false}}
	if got := renderAnnotations(anns, false); got != "Hi [there]" {
		t.Errorf("plain = %q", got)
	}
	got := renderAnnotations(anns, true)
	if got != ansiGreen+"Hi"+ansiReset+" "+ansiRed+"there"+ansiReset {
		t.Errorf("colour = %q", got)
	}
}
