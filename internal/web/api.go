package web

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/practice"
	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
	"github.com/MrWong99/speakez/pkg/scoring"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type scoreRequest struct {
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
}

type scoreResponse struct {
	Percentage  float64              `json:"percentage"`
	Formatted   string               `json:"formatted"`
	Annotations []scoring.Annotation `json:"annotations"`
	Matched     int                  `json:"matched"`
	Total       int                  `json:"total"`
	NoMatch     bool                 `json:"no_match"`
	Message     string               `json:"message,omitempty"`
	Highlighted template.HTML        `json:"highlighted"`
	Hints       []hint.Hint          `json:"hints,omitempty"`
}

type createRequest struct {
	Language string `json:"language"`
}

type editRequest struct {
	Text string `json:"text"`
}

// checkResponse is a session view plus the rendered outcome.
type checkResponse struct {
	practice.View
	Formatted   string        `json:"formatted,omitempty"`
	Message     string        `json:"message,omitempty"`
	Highlighted template.HTML `json:"highlighted,omitempty"`
}

type defaultsResponse struct {
	Language          string  `json:"language"`
	Voice             string  `json:"voice,omitempty"`
	RecordSeconds     float64 `json:"record_seconds"`
	SampleRate        int     `json:"sample_rate"`
	CanCapture        bool    `json:"can_capture"`
	MaxRecordSeconds  float64 `json:"max_record_seconds"`
	MaxUploadBytes    int     `json:"max_upload_bytes"`
	HistoryAvailable  bool    `json:"history_available"`
	SessionTTLSeconds float64 `json:"session_ttl_seconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("web: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps practice errors to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, practice.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, practice.ErrNoRecording),
		errors.Is(err, practice.ErrNotTranscribed),
		errors.Is(err, practice.ErrNoPronunciation):
		status = http.StatusConflict
	case errors.Is(err, practice.ErrCaptureUnavailable):
		status = http.StatusNotImplemented
	case errors.Is(err, practice.ErrInvalidAudio):
		status = http.StatusUnsupportedMediaType
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	if status == http.StatusInternalServerError {
		slog.Error("web: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// formatResult returns the percentage text and the no-match message for res.
func formatResult(res scoring.Result) (formatted, message string) {
	if res.NoMatch() {
		return "", practice.NoMatchMessage
	}
	return res.Format(), ""
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := scoring.Score(req.Reference, req.Candidate)
	resp := scoreResponse{
		Percentage:  res.Percentage,
		Annotations: res.Annotations,
		Matched:     res.Matched(),
		Total:       res.Total(),
		NoMatch:     res.NoMatch(),
		Highlighted: Highlight(res.Annotations),
	}
	if resp.Annotations == nil {
		resp.Annotations = []scoring.Annotation{}
	}
	resp.Formatted, resp.Message = formatResult(res)
	if s.hints != nil {
		resp.Hints = s.hints.Suggest(res, req.Candidate)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDefaults(w http.ResponseWriter, _ *http.Request) {
	d := s.svc.Defaults()
	writeJSON(w, http.StatusOK, defaultsResponse{
		Language:          d.Language,
		Voice:             d.Voice,
		RecordSeconds:     d.RecordDuration.Seconds(),
		SampleRate:        d.Format.SampleRate,
		CanCapture:        s.svc.CanCapture(),
		MaxRecordSeconds:  practice.MaxRecordDuration.Seconds(),
		MaxUploadBytes:    practice.MaxUploadBytes,
		HistoryAvailable:  s.history != nil,
		SessionTTLSeconds: d.SessionTTL.Seconds(),
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.svc.Voices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	v, err := s.svc.Create(r.Context(), req.Language)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()

	if q.Get("capture") == "server" {
		d := s.svc.Defaults().RecordDuration
		if raw := q.Get("seconds"); raw != "" {
			secs, err := strconv.ParseFloat(raw, 64)
			if err != nil || secs <= 0 || secs > practice.MaxRecordDuration.Seconds() {
				writeError(w, http.StatusBadRequest, "seconds must be a number between 0 and "+
					strconv.FormatFloat(practice.MaxRecordDuration.Seconds(), 'f', -1, 64))
				return
			}
			d = time.Duration(secs * float64(time.Second))
		}
		v, err := s.svc.Record(r.Context(), id, d)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	enc := audio.EncodingWAV
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		parsed, err := audio.ParseEncoding(ct)
		if err != nil {
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
			return
		}
		enc = parsed
	}
	body := http.MaxBytesReader(w, r.Body, practice.MaxUploadBytes)
	v, err := s.svc.AttachRecording(r.Context(), id, body, enc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.Recording(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	serveWAV(w, r, path)
}

func (s *Server) handlePronunciation(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.Pronunciation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	serveWAV(w, r, path)
}

func serveWAV(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Transcribe(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.svc.Edit(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckResponse(v))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Check(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckResponse(v))
}

func newCheckResponse(v practice.View) checkResponse {
	resp := checkResponse{View: v}
	if v.Result != nil {
		resp.Formatted, resp.Message = formatResult(*v.Result)
		resp.Highlighted = Highlight(v.Result.Annotations)
	}
	return resp
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	q := history.Query{SessionID: strings.TrimSpace(r.URL.Query().Get("session_id"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}
	attempts, err := s.history.List(r.Context(), q)
	if err != nil {
		slog.Error("web: list history", "err", err)
		writeError(w, http.StatusInternalServerError, "could not read history")
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

type indexData struct {
	Title    string
	Defaults defaultsResponse
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	d := s.svc.Defaults()
	data := indexData{
		Title: s.title,
		Defaults: defaultsResponse{
			Language:      d.Language,
			RecordSeconds: d.RecordDuration.Seconds(),
			SampleRate:    d.Format.SampleRate,
			CanCapture:    s.svc.CanCapture(),
		},
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.ExecuteTemplate(w, "index.html.tmpl", data); err != nil {
		slog.Error("web: render index", "err", err)
	}
}
