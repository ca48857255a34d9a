package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/p-n-ai/pai-course/internal/assessment"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/report"
	"github.com/p-n-ai/pai-course/internal/sequencer"
	"github.com/p-n-ai/pai-course/internal/session"
)

const maxBodyBytes = 1 << 20

// checker is a dependency probed by /readyz.
type checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

type server struct {
	cat    *course.Catalog
	store  progress.Store
	ctrl   *session.Controller
	events http.Handler
	checks []checker

	mu         sync.Mutex
	listing    *sequencer.Listing
	listingFor string // cursor lesson the listing was built around
}

func newServer(cat *course.Catalog, store progress.Store, ctrl *session.Controller, events http.Handler, checks ...checker) *server {
	return &server{
		cat:    cat,
		store:  store,
		ctrl:   ctrl,
		events: events,
		checks: checks,
	}
}

// routes creates the HTTP router.
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /v1/modules", s.handleModules)
	mux.HandleFunc("POST /v1/modules/{id}/toggle", s.handleToggle)
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("POST /v1/session/open", s.handleOpen)
	mux.HandleFunc("POST /v1/session/finished", s.handleFinished)
	mux.HandleFunc("POST /v1/session/complete", s.handleComplete)
	mux.HandleFunc("POST /v1/session/quiz", s.handleQuiz)
	mux.HandleFunc("POST /v1/session/assignment", s.handleAssignment)
	mux.HandleFunc("POST /v1/session/retry", s.handleRetry)
	mux.HandleFunc("POST /v1/session/notes", s.handleNotes)
	mux.HandleFunc("GET /v1/report.xlsx", s.handleReport)
	if s.events != nil {
		mux.Handle("GET /v1/events", s.events)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.checks {
		if err := c.HealthCheck(r.Context()); err != nil {
			slog.Warn("readiness check failed", "dependency", c.Name(), "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"failed": c.Name(),
			})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type lessonRow struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Kind      course.Kind `json:"kind"`
	Duration  string      `json:"duration,omitempty"`
	Locked    bool        `json:"locked"`
	Completed bool        `json:"completed"`
	Current   bool        `json:"current"`
}

type moduleRow struct {
	sequencer.ModuleSummary
	Expanded bool        `json:"expanded"`
	Lessons  []lessonRow `json:"lessons"`
}

type modulesResponse struct {
	CourseID   string      `json:"course_id"`
	Title      string      `json:"title"`
	Percentage int         `json:"percentage"`
	Modules    []moduleRow `json:"modules"`
}

// currentListing returns the expansion state for the module list along with
// the lesson it was built around. Learner toggles are dropped whenever the
// cursor has moved, whether by Open or by auto-advance.
func (s *server) currentListing() (*sequencer.Listing, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.ctrl.Snapshot().Cursor.LessonID
	if s.listing == nil || s.listingFor != current {
		s.listing = sequencer.NewListing(s.cat, current)
		s.listingFor = current
	}
	return s.listing, s.listingFor
}

func (s *server) handleModules(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ctrl.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	listing, current := s.currentListing()

	resp := modulesResponse{
		CourseID:   summary.CourseID,
		Title:      summary.Title,
		Percentage: summary.Percentage,
	}
	modules := s.cat.AllModules()
	for i, ms := range summary.Modules {
		row := moduleRow{ModuleSummary: ms, Expanded: listing.Expanded(ms.ID)}
		for _, l := range modules[i].Lessons {
			done, err := s.store.IsLessonComplete(l.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			row.Lessons = append(row.Lessons, lessonRow{
				ID:        l.ID,
				Title:     l.Title,
				Kind:      l.Kind,
				Duration:  l.Duration,
				Locked:    ms.Locked || l.Locked,
				Completed: done,
				Current:   l.ID == current,
			})
		}
		resp.Modules = append(resp.Modules, row)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.cat.GetModule(id); err != nil {
		writeError(w, err)
		return
	}
	listing, _ := s.currentListing()
	expanded := listing.Toggle(id)
	writeJSON(w, http.StatusOK, map[string]any{"module_id": id, "expanded": expanded})
}

func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

type lessonRequest struct {
	LessonID string `json:"lesson_id"`
}

func (s *server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.Open(req.LessonID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *server) handleFinished(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ctrl.ContentFinished(req.LessonID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.MarkComplete(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

type quizRequest struct {
	Answers map[string]string `json:"answers"`
}

type attemptResponse struct {
	Attempt session.Attempt  `json:"attempt"`
	Session session.Snapshot `json:"session"`
}

func (s *server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if !decode(w, r, &req) {
		return
	}
	attempt, err := s.ctrl.SubmitQuiz(r.Context(), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, attemptResponse{Attempt: attempt, Session: s.ctrl.Snapshot()})
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	attempt, err := s.ctrl.SubmitAssignment(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, attemptResponse{Attempt: attempt, Session: s.ctrl.Snapshot()})
}

func (s *server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Retry(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	s.ctrl.SaveNote(req.Text)
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	if err := report.WriteXLSX(w, s.cat, s.store); err != nil {
		slog.Error("report export failed", "error", err)
		http.Error(w, "report export failed", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error       string   `json:"error"`
	QuestionIDs []string `json:"question_ids,omitempty"`
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var ve *assessment.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		resp.QuestionIDs = ve.QuestionIDs
	case errors.Is(err, assessment.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, course.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrLessonLocked):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrWrongKind),
		errors.Is(err, session.ErrNotCurrent),
		errors.Is(err, session.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
