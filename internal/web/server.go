// Package web serves the practice UI and its JSON API.
//
// Routes (all JSON unless noted):
//
//	POST   /api/score                           score two texts
//	GET    /api/defaults                        per-session defaults and capabilities
//	GET    /api/voices                          TTS voices, when the provider lists them
//	POST   /api/sessions                        create a session
//	GET    /api/sessions/{id}                   session snapshot
//	DELETE /api/sessions/{id}                   end a session
//	POST   /api/sessions/{id}/recording         upload audio, or ?capture=server&seconds=N
//	GET    /api/sessions/{id}/recording         recorded audio (audio/wav)
//	POST   /api/sessions/{id}/transcribe        transcribe the recording
//	PUT    /api/sessions/{id}/candidate         replace the edited text
//	POST   /api/sessions/{id}/check             score, hint and synthesise
//	GET    /api/sessions/{id}/pronunciation     synthesised audio (audio/wav)
//	GET    /api/history                         recorded attempts
//	GET    /                                    single-page UI (HTML)
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/practice"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Server holds the handlers' dependencies.
type Server struct {
	svc     *practice.Service
	history history.Store
	hints   *hint.Suggester
	title   string
	page    *template.Template
}

// Option configures a [Server].
type Option func(*Server)

// WithHistory enables GET /api/history.
func WithHistory(store history.Store) Option {
	return func(s *Server) { s.history = store }
}

// WithHints adds nearest-word suggestions to /api/score responses.
func WithHints(h *hint.Suggester) Option {
	return func(s *Server) { s.hints = h }
}

// WithTitle sets the page title. Defaults to "SpeakEz".
func WithTitle(title string) Option {
	return func(s *Server) {
		if title != "" {
			s.title = title
		}
	}
}

// New creates a Server for svc.
func New(svc *practice.Service, opts ...Option) *Server {
	s := &Server{svc: svc, title: "SpeakEz"}
	for _, o := range opts {
		o(s)
	}
	s.page = template.Must(template.New("").Funcs(Funcs()).ParseFS(templateFS, "templates/*.tmpl"))
	return s
}

// Register adds all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/score", s.handleScore)
	mux.HandleFunc("GET /api/defaults", s.handleDefaults)
	mux.HandleFunc("GET /api/voices", s.handleVoices)

	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/sessions/{id}/recording", s.handleRecord)
	mux.HandleFunc("GET /api/sessions/{id}/recording", s.handleRecording)
	mux.HandleFunc("POST /api/sessions/{id}/transcribe", s.handleTranscribe)
	mux.HandleFunc("PUT /api/sessions/{id}/candidate", s.handleEdit)
	mux.HandleFunc("POST /api/sessions/{id}/check", s.handleCheck)
	mux.HandleFunc("GET /api/sessions/{id}/pronunciation", s.handlePronunciation)

	mux.HandleFunc("GET /api/history", s.handleHistory)

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("GET /{$}", s.handleIndex)
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}
