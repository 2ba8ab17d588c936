package practice

import (
	"sync"
	"time"

	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/pkg/scoring"
)

// Session is one learner's practice round: a recording, its transcription,
// the learner's edit of it, and the outcome of the last check.
//
// All access goes through the owning [Service], which holds mu for the
// duration of each operation.
type Session struct {
	mu sync.Mutex

	id        string
	dir       string
	createdAt time.Time
	updatedAt time.Time
	language  string

	audioPath    string
	audioSeconds float64

	reference   string
	candidate   string
	transcribed bool

	// checked stays true once the learner has asked for a check, so later
	// edits are scored immediately.
	checked bool
	result  *scoring.Result
	hints   []hint.Hint

	pronunciationPath string
	pronunciationErr  string
}

// View is an immutable snapshot of a Session, safe to serialise.
type View struct {
	ID        string    `json:"id"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	HasRecording     bool    `json:"has_recording"`
	RecordingSeconds float64 `json:"recording_seconds,omitempty"`

	Transcribed   bool   `json:"transcribed"`
	ReferenceText string `json:"reference_text"`
	CandidateText string `json:"candidate_text"`

	Checked bool            `json:"checked"`
	Result  *scoring.Result `json:"result,omitempty"`
	Matched int             `json:"matched"`
	Total   int             `json:"total"`
	Hints   []hint.Hint     `json:"hints,omitempty"`

	HasPronunciation   bool   `json:"has_pronunciation"`
	PronunciationError string `json:"pronunciation_error,omitempty"`
}

// view snapshots s. The caller must hold s.mu.
func (s *Session) view() View {
	v := View{
		ID:                 s.id,
		Language:           s.language,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
		HasRecording:       s.audioPath != "",
		RecordingSeconds:   s.audioSeconds,
		Transcribed:        s.transcribed,
		ReferenceText:      s.reference,
		CandidateText:      s.candidate,
		Checked:            s.checked,
		HasPronunciation:   s.pronunciationPath != "",
		PronunciationError: s.pronunciationErr,
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
		v.Matched, v.Total = r.Matched(), r.Total()
	}
	if len(s.hints) > 0 {
		v.Hints = append([]hint.Hint(nil), s.hints...)
	}
	return v
}

// touch records activity on s. The caller must hold s.mu.
func (s *Session) touch(now time.Time) {
	s.updatedAt = now
}

// resetText clears everything derived from the current recording. The check
// flag is left alone. The caller must hold s.mu.
func (s *Session) resetText() {
	s.reference = ""
	s.candidate = ""
	s.transcribed = false
	s.result = nil
	s.hints = nil
	s.pronunciationPath = ""
	s.pronunciationErr = ""
}
