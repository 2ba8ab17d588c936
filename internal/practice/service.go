// Package practice drives the pronunciation practice loop: record or upload
// speech, transcribe it into a reference text, let the learner edit a copy,
// and check the edit against the reference.
//
// A [Service] owns the live [Session] values through a [Manager]. Every
// operation locks only the session it touches, so a slow transcription on
// one session never blocks another.
package practice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/observe"
	"github.com/MrWong99/speakez/internal/workspace"
	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
	"github.com/MrWong99/speakez/pkg/provider/tts"
	"github.com/MrWong99/speakez/pkg/scoring"
)

// Texts stored as the reference when transcription yields nothing usable.
const (
	NoTranscription    = "No transcription available."
	TranscriptionError = "Error in transcription"
)

// NoMatchMessage is shown instead of a percentage when a check matches no
// reference word.
const NoMatchMessage = "No matching words found! The text and audio seem completely different."

const (
	recordingFile     = "recording.wav"
	pronunciationFile = "pronunciation.wav"

	// MaxUploadBytes caps uploaded recordings.
	MaxUploadBytes = 32 << 20

	// MaxRecordDuration caps server-side captures.
	MaxRecordDuration = 2 * time.Minute
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("practice: session not found")

	// ErrNoRecording is returned when an operation needs audio that the
	// session does not have yet.
	ErrNoRecording = errors.New("practice: session has no recording")

	// ErrNotTranscribed is returned by Edit and Check before the recording
	// has been transcribed.
	ErrNotTranscribed = errors.New("practice: recording has not been transcribed")

	// ErrNoPronunciation is returned when no synthesised pronunciation exists.
	ErrNoPronunciation = errors.New("practice: no pronunciation available")

	// ErrCaptureUnavailable is returned by Record when no recorder is
	// configured.
	ErrCaptureUnavailable = errors.New("practice: server-side capture is not configured")

	// ErrInvalidAudio is returned for uploads that cannot be decoded.
	ErrInvalidAudio = errors.New("practice: invalid audio")
)

// Defaults are the per-session settings applied when the caller does not
// choose. They can be swapped at runtime with [Service.SetDefaults].
type Defaults struct {
	// Language is the BCP-47 tag used for transcription and synthesis.
	Language string

	// Voice is passed to the TTS provider. Empty uses the provider default.
	Voice string

	// RecordDuration is the server-side capture length.
	RecordDuration time.Duration

	// Format is the server-side capture format.
	Format audio.Format

	// SessionTTL is how long an idle session survives before Sweep drops it.
	SessionTTL time.Duration
}

// DefaultDefaults returns English, 5 s captures at 44.1 kHz mono and a one
// hour idle timeout.
func DefaultDefaults() Defaults {
	return Defaults{
		Language:       "en",
		RecordDuration: 5 * time.Second,
		Format:         audio.Format{SampleRate: 44100, Channels: 1},
		SessionTTL:     time.Hour,
	}
}

// Config holds the dependencies of a [Service]. STT, TTS, Converter and
// Workspace are required.
type Config struct {
	STT       stt.Provider
	TTS       tts.Provider
	Converter audio.Converter
	Workspace *workspace.Workspace

	// Recorder enables server-side capture. Optional.
	Recorder audio.Recorder

	// History receives one attempt per check. Optional.
	History history.Store

	// Hints produces nearest-word suggestions. Optional.
	Hints *hint.Suggester

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// STTName and TTSName label provider metrics.
	STTName string
	TTSName string

	Defaults Defaults

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service implements the practice loop. All methods are safe for concurrent
// use.
type Service struct {
	stt       stt.Provider
	tts       tts.Provider
	converter audio.Converter
	recorder  audio.Recorder
	ws        *workspace.Workspace
	history   history.Store
	hints     *hint.Suggester
	metrics   *observe.Metrics
	sttName   string
	ttsName   string
	now       func() time.Time

	sessions *Manager

	defaultsMu sync.RWMutex
	defaults   Defaults
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	var errs []error
	if cfg.STT == nil {
		errs = append(errs, errors.New("practice: STT provider is required"))
	}
	if cfg.TTS == nil {
		errs = append(errs, errors.New("practice: TTS provider is required"))
	}
	if cfg.Converter == nil {
		errs = append(errs, errors.New("practice: converter is required"))
	}
	if cfg.Workspace == nil {
		errs = append(errs, errors.New("practice: workspace is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	s := &Service{
		stt:       cfg.STT,
		tts:       cfg.TTS,
		converter: cfg.Converter,
		recorder:  cfg.Recorder,
		ws:        cfg.Workspace,
		history:   cfg.History,
		hints:     cfg.Hints,
		metrics:   cfg.Metrics,
		sttName:   cfg.STTName,
		ttsName:   cfg.TTSName,
		now:       cfg.Now,
		sessions:  NewManager(),
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sttName == "" {
		s.sttName = "stt"
	}
	if s.ttsName == "" {
		s.ttsName = "tts"
	}
	s.SetDefaults(cfg.Defaults)
	return s, nil
}

// SetDefaults replaces the defaults used for new sessions and captures. Zero
// fields fall back to [DefaultDefaults]. Existing sessions keep their
// language.
func (s *Service) SetDefaults(d Defaults) {
	base := DefaultDefaults()
	if d.Language == "" {
		d.Language = base.Language
	}
	if d.RecordDuration <= 0 {
		d.RecordDuration = base.RecordDuration
	}
	if d.Format.SampleRate <= 0 {
		d.Format.SampleRate = base.Format.SampleRate
	}
	if d.Format.Channels <= 0 {
		d.Format.Channels = base.Format.Channels
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = base.SessionTTL
	}
	s.defaultsMu.Lock()
	s.defaults = d
	s.defaultsMu.Unlock()
}

// Defaults returns the current defaults.
func (s *Service) Defaults() Defaults {
	s.defaultsMu.RLock()
	defer s.defaultsMu.RUnlock()
	return s.defaults
}

// Sessions returns the session manager.
func (s *Service) Sessions() *Manager { return s.sessions }

// CanCapture reports whether server-side recording is available.
func (s *Service) CanCapture() bool { return s.recorder != nil }

// Voices lists the voices offered by the TTS provider. It returns nil when
// the provider has no voice catalogue.
func (s *Service) Voices(ctx context.Context) ([]tts.Voice, error) {
	vl, ok := s.tts.(tts.VoiceLister)
	if !ok {
		return nil, nil
	}
	voices, err := vl.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("practice: list voices: %w", err)
	}
	return voices, nil
}

// Create starts a new session. An empty language uses the default.
func (s *Service) Create(ctx context.Context, language string) (View, error) {
	if language == "" {
		language = s.Defaults().Language
	}
	id := uuid.NewString()
	dir, err := s.ws.Dir(id)
	if err != nil {
		return View{}, fmt.Errorf("practice: create session: %w", err)
	}
	now := s.now()
	sess := &Session{id: id, dir: dir, createdAt: now, updatedAt: now, language: language}
	s.sessions.add(sess)
	s.metrics.ActiveSessions.Add(ctx, 1)

	slog.InfoContext(ctx, "practice session created", "session_id", id, "language", language)
	return sess.view(), nil
}

// Get returns a snapshot of session id.
func (s *Service) Get(_ context.Context, id string) (View, error) {
	sess, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// AttachRecording stores an uploaded recording, converting it to WAV when it
// arrives in another encoding. Any previous transcription, edit and result
// are discarded.
func (s *Service) AttachRecording(ctx context.Context, id string, r io.Reader, enc audio.Encoding) (View, error) {
	if _, ok := s.sessions.Get(id); !ok {
		return View{}, ErrNotFound
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return View{}, fmt.Errorf("practice: read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return View{}, fmt.Errorf("%w: upload exceeds %d bytes", ErrInvalidAudio, MaxUploadBytes)
	}
	if len(data) == 0 {
		return View{}, fmt.Errorf("%w: empty upload", ErrInvalidAudio)
	}

	sess, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	wav := data
	if !audio.IsWAV(data) {
		if enc == audio.EncodingWAV {
			return View{}, fmt.Errorf("%w: %v", ErrInvalidAudio, audio.ErrNotWAV)
		}
		start := time.Now()
		wav, err = s.converter.Convert(ctx, data, audio.Source{Encoding: enc}, audio.Target{Encoding: audio.EncodingWAV})
		s.metrics.ConvertDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			return View{}, fmt.Errorf("%w: convert %s to wav: %v", ErrInvalidAudio, enc, err)
		}
	}
	if err := s.storeRecording(sess, wav); err != nil {
		return View{}, err
	}

	slog.InfoContext(ctx, "recording attached", "session_id", id, "encoding", enc, "seconds", sess.audioSeconds)
	return sess.view(), nil
}

// Record captures d of audio from the server's input device. A zero d uses
// the default duration.
func (s *Service) Record(ctx context.Context, id string, d time.Duration) (View, error) {
	if s.recorder == nil {
		return View{}, ErrCaptureUnavailable
	}
	defaults := s.Defaults()
	if d <= 0 {
		d = defaults.RecordDuration
	}
	if d > MaxRecordDuration {
		return View{}, fmt.Errorf("practice: capture of %s exceeds the %s limit", d, MaxRecordDuration)
	}

	sess, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	tmp := filepath.Join(sess.dir, "capture.tmp.wav")
	defer os.Remove(tmp)
	slog.InfoContext(ctx, "recording", "session_id", id, "duration", d, "format", defaults.Format.String())
	if err := s.recorder.Record(ctx, d, defaults.Format, tmp); err != nil {
		return View{}, fmt.Errorf("practice: capture: %w", err)
	}
	wav, err := os.ReadFile(tmp)
	if err != nil {
		return View{}, fmt.Errorf("practice: read capture: %w", err)
	}
	if err := s.storeRecording(sess, wav); err != nil {
		return View{}, err
	}
	return sess.view(), nil
}

// storeRecording validates wav, writes it to the session directory and
// resets derived state. The caller must hold sess.mu.
func (s *Service) storeRecording(sess *Session, wav []byte) error {
	pcm, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	path := filepath.Join(sess.dir, recordingFile)
	if err := os.WriteFile(path, wav, 0o600); err != nil {
		return fmt.Errorf("practice: save recording: %w", err)
	}
	_ = os.Remove(filepath.Join(sess.dir, pronunciationFile))

	sess.resetText()
	sess.audioPath = path
	sess.audioSeconds = f.Duration(len(pcm)).Seconds()
	sess.touch(s.now())
	return nil
}

// Recording returns the path of the session's recorded WAV.
func (s *Service) Recording(_ context.Context, id string) (string, error) {
	sess, err := s.lock(id)
	if err != nil {
		return "", err
	}
	defer sess.mu.Unlock()
	if sess.audioPath == "" {
		return "", ErrNoRecording
	}
	return sess.audioPath, nil
}

// Transcribe turns the recording into the reference text, once per
// recording. The candidate text starts out equal to the reference.
//
// A transcription that comes back empty stores [NoTranscription]; a provider
// failure stores [TranscriptionError]. Neither is returned as an error, so
// the learner can see what happened and record again.
func (s *Service) Transcribe(ctx context.Context, id string) (View, error) {
	sess, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	if sess.audioPath == "" {
		return View{}, ErrNoRecording
	}
	if sess.transcribed {
		return sess.view(), nil
	}
	wav, err := os.ReadFile(sess.audioPath)
	if err != nil {
		return View{}, fmt.Errorf("practice: read recording: %w", err)
	}

	start := time.Now()
	tr, err := s.stt.Transcribe(ctx, stt.Request{Audio: wav, Language: sess.language})
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil && ctx.Err() != nil {
		// The caller went away; leave the session untranscribed.
		return View{}, fmt.Errorf("practice: transcribe: %w", ctx.Err())
	}

	text := strings.TrimSpace(tr.Text)
	switch {
	case err != nil:
		s.metrics.RecordProviderRequest(ctx, s.sttName, "stt", "error")
		s.metrics.RecordProviderError(ctx, s.sttName, "stt")
		slog.ErrorContext(ctx, "transcription failed", "session_id", id, "err", err)
		text = TranscriptionError
	case text == "":
		s.metrics.RecordProviderRequest(ctx, s.sttName, "stt", "ok")
		slog.WarnContext(ctx, "no speech recognised", "session_id", id)
		text = NoTranscription
	default:
		s.metrics.RecordProviderRequest(ctx, s.sttName, "stt", "ok")
		slog.InfoContext(ctx, "transcribed", "session_id", id, "words", len(strings.Fields(text)))
	}

	sess.reference = text
	sess.candidate = text
	sess.transcribed = true
	if sess.checked {
		s.rescore(sess)
	}
	sess.touch(s.now())
	return sess.view(), nil
}

// Edit replaces the candidate text. When the session has been checked
// before, the new text is scored straight away.
func (s *Service) Edit(_ context.Context, id, candidate string) (View, error) {
	sess, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	if !sess.transcribed {
		return View{}, ErrNotTranscribed
	}
	sess.candidate = candidate
	if sess.checked {
		s.rescore(sess)
	}
	sess.touch(s.now())
	return sess.view(), nil
}

// Check scores the candidate against the reference, synthesises the
// candidate as a pronunciation example and records the attempt.
//
// Synthesis and history failures never fail the check: the former is
// reported in View.PronunciationError, the latter only logged.
func (s *Service) Check(ctx context.Context, id string) (View, error) {
	sess, err := s.lock(id)
	if err != nil {
		return View{}, err
	}
	defer sess.mu.Unlock()

	if !sess.transcribed {
		return View{}, ErrNotTranscribed
	}
	sess.checked = true
	res := s.rescore(sess)
	s.metrics.RecordCheck(ctx, sess.language, res.Percentage)

	slog.InfoContext(ctx, "pronunciation checked",
		"session_id", id,
		"percentage", res.Format(),
		"matched", res.Matched(),
		"total", res.Total(),
	)

	s.synthesize(ctx, sess)

	if s.history != nil {
		a := history.NewAttempt(sess.id, sess.language, sess.reference, sess.candidate, res)
		if err := s.history.Record(ctx, a); err != nil {
			slog.WarnContext(ctx, "failed to record attempt", "session_id", id, "err", err)
		}
	}

	sess.touch(s.now())
	return sess.view(), nil
}

// rescore recomputes the result and hints. The caller must hold sess.mu.
func (s *Service) rescore(sess *Session) scoring.Result {
	res := scoring.Score(sess.reference, sess.candidate)
	sess.result = &res
	sess.hints = nil
	if s.hints != nil {
		sess.hints = s.hints.Suggest(res, sess.candidate)
	}
	return res
}

// synthesize speaks the candidate text into the session's pronunciation
// file. The caller must hold sess.mu.
func (s *Service) synthesize(ctx context.Context, sess *Session) {
	path := filepath.Join(sess.dir, pronunciationFile)
	sess.pronunciationPath = ""
	sess.pronunciationErr = ""

	text := strings.TrimSpace(sess.candidate)
	if text == "" {
		_ = os.Remove(path)
		return
	}

	fail := func(err error) {
		_ = os.Remove(path)
		sess.pronunciationErr = "Could not generate pronunciation: " + err.Error()
		slog.WarnContext(ctx, "pronunciation synthesis failed", "session_id", sess.id, "err", err)
	}

	opts := tts.Options{Language: sess.language, Voice: s.Defaults().Voice}
	start := time.Now()
	clip, err := s.tts.Synthesize(ctx, text, opts)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.ttsName, "tts", "error")
		s.metrics.RecordProviderError(ctx, s.ttsName, "tts")
		fail(err)
		return
	}
	s.metrics.RecordProviderRequest(ctx, s.ttsName, "tts", "ok")

	wav, err := s.toWAV(ctx, clip)
	if err != nil {
		fail(err)
		return
	}
	if err := os.WriteFile(path, wav, 0o600); err != nil {
		fail(err)
		return
	}
	sess.pronunciationPath = path
}

// toWAV converts a synthesised clip to WAV.
func (s *Service) toWAV(ctx context.Context, clip *tts.Audio) ([]byte, error) {
	if clip == nil || len(clip.Data) == 0 {
		return nil, errors.New("synthesis returned no audio")
	}
	if clip.Encoding == audio.EncodingWAV || (clip.Encoding == "" && audio.IsWAV(clip.Data)) {
		return clip.Data, nil
	}
	start := time.Now()
	defer func() { s.metrics.ConvertDuration.Record(ctx, time.Since(start).Seconds()) }()
	wav, err := s.converter.Convert(ctx, clip.Data,
		audio.Source{Encoding: clip.Encoding, Format: clip.Format},
		audio.Target{Encoding: audio.EncodingWAV})
	if err != nil {
		return nil, fmt.Errorf("convert %s to wav: %w", clip.Encoding, err)
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		return nil, errors.New("converter did not produce WAV")
	}
	return wav, nil
}

// Pronunciation returns the path of the last synthesised pronunciation.
func (s *Service) Pronunciation(_ context.Context, id string) (string, error) {
	sess, err := s.lock(id)
	if err != nil {
		return "", err
	}
	defer sess.mu.Unlock()
	if sess.pronunciationPath == "" {
		return "", ErrNoPronunciation
	}
	return sess.pronunciationPath, nil
}

// errActive is returned by drop when a session was used after the sweep
// cutoff.
var errActive = errors.New("practice: session active")

// Delete ends session id and removes its files.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.drop(ctx, id, time.Time{})
}

// drop removes session id. A non-zero idleBefore only removes the session
// when it was last updated before that time, checked under the session lock.
func (s *Service) drop(ctx context.Context, id string, idleBefore time.Time) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !idleBefore.IsZero() && !sess.updatedAt.Before(idleBefore) {
		return errActive
	}
	if !s.sessions.remove(id) {
		return ErrNotFound
	}
	s.metrics.ActiveSessions.Add(ctx, -1)
	if err := s.ws.Remove(id); err != nil {
		return fmt.Errorf("practice: delete session: %w", err)
	}
	slog.InfoContext(ctx, "practice session deleted", "session_id", id)
	return nil
}

// Sweep deletes sessions idle for longer than the session TTL and returns
// how many were removed.
func (s *Service) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.Defaults().SessionTTL)
	n := 0
	for _, id := range s.sessions.idleSince(cutoff) {
		if err := s.drop(ctx, id, cutoff); err != nil {
			if !errors.Is(err, ErrNotFound) && !errors.Is(err, errActive) {
				slog.WarnContext(ctx, "sweep: delete session", "session_id", id, "err", err)
			}
			continue
		}
		n++
	}
	if n > 0 {
		slog.InfoContext(ctx, "swept idle sessions", "count", n)
	}
	return n
}

// PruneOrphans removes workspace directories that belong to no live session,
// typically left behind by a previous run.
func (s *Service) PruneOrphans(ctx context.Context) {
	live := make(map[string]bool)
	for _, id := range s.sessions.IDs() {
		live[id] = true
	}
	removed, err := s.ws.Prune(live)
	if err != nil {
		slog.WarnContext(ctx, "prune workspace", "err", err)
	}
	if len(removed) > 0 {
		slog.InfoContext(ctx, "pruned orphaned session directories", "count", len(removed))
	}
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	s.PruneOrphans(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// lock returns session id with its mutex held.
func (s *Service) lock(id string) (*Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	sess.mu.Lock()
	// Delete may have won the race for the lock.
	if _, still := s.sessions.Get(id); !still {
		sess.mu.Unlock()
		return nil, ErrNotFound
	}
	return sess, nil
}
