package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"eacal/internal/config"
	"eacal/internal/lesson"
	appLog "eacal/internal/log"
	"eacal/internal/scheduler"
	"eacal/internal/syncer"
)

// Runner starts sync runs on demand.
type Runner interface {
	// Trigger runs a sync and blocks until it finishes. It returns
	// scheduler.ErrBusy if a run is already in progress.
	Trigger(ctx context.Context) error
	Running() bool
}

// Server exposes sync status and a manual trigger over HTTP.
type Server struct {
	cfg    *config.Config
	runner Runner
	mux    *http.ServeMux

	// Last finished sync, set by Record.
	lastMu sync.RWMutex
	last   *syncer.Report
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, runner Runner) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Record stores r as the last finished sync.
func (s *Server) Record(r syncer.Report) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	s.last = &r
}

func (s *Server) lastReport() *syncer.Report {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eacal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type lessonDTO struct {
	ID        string    `json:"id,omitempty"`
	Subject   string    `json:"subject"`
	Classroom string    `json:"classroom"`
	Teacher   string    `json:"teacher,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

type failureDTO struct {
	Action string    `json:"action"`
	Lesson lessonDTO `json:"lesson"`
	Reason string    `json:"reason"`
}

type reportDTO struct {
	RunID       string       `json:"run_id"`
	Class       string       `json:"class"`
	Week        int          `json:"week"`
	DryRun      bool         `json:"dry_run"`
	OK          bool         `json:"ok"`
	WindowStart *time.Time   `json:"window_start,omitempty"`
	WindowEnd   *time.Time   `json:"window_end,omitempty"`
	Fetched     int          `json:"fetched"`
	Existing    int          `json:"existing"`
	Unchanged   int          `json:"unchanged"`
	Added       []lessonDTO  `json:"added"`
	Deleted     []lessonDTO  `json:"deleted"`
	Failures    []failureDTO `json:"failures"`
	ParseErrors []string     `json:"parse_errors"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Error       string       `json:"error,omitempty"`
}

type statusResponse struct {
	Running bool       `json:"running"`
	LastRun *reportDTO `json:"last_run"`
}

// GET /api/status
//
// Returns whether a sync is running and the last finished run, or
// "last_run": null before the first run.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Running: s.runner != nil && s.runner.Running()}
	if r := s.lastReport(); r != nil {
		dto := toReportDTO(*r)
		resp.LastRun = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/sync
//
// Runs a sync in the request's context and returns its report. A run
// already in progress yields 409.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "sync runner not configured")
		return
	}

	appLog.Info("api sync request", "remote", r.RemoteAddr)
	if err := s.runner.Trigger(r.Context()); err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		appLog.Error("api sync: trigger failed", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}

	last := s.lastReport()
	if last == nil {
		writeError(w, http.StatusInternalServerError, "sync produced no report")
		return
	}
	status := http.StatusOK
	if last.Err != "" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, toReportDTO(*last))
}

func toReportDTO(r syncer.Report) reportDTO {
	dto := reportDTO{
		RunID:       r.RunID,
		Class:       r.Class,
		Week:        r.Week,
		DryRun:      r.DryRun,
		OK:          r.OK(),
		Fetched:     r.Fetched,
		Existing:    r.Existing,
		Unchanged:   r.Unchanged,
		Added:       toLessonDTOs(r.Added),
		Deleted:     toLessonDTOs(r.Deleted),
		Failures:    make([]failureDTO, 0, len(r.Failures)),
		ParseErrors: r.ParseErrors,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Error:       r.Err,
	}
	if dto.ParseErrors == nil {
		dto.ParseErrors = []string{}
	}
	if !r.Window.Start.IsZero() {
		start, end := r.Window.Start, r.Window.End
		dto.WindowStart = &start
		dto.WindowEnd = &end
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, failureDTO{
			Action: string(f.Action),
			Lesson: toLessonDTO(f.Lesson),
			Reason: f.Reason,
		})
	}
	return dto
}

func toLessonDTOs(ls []lesson.Lesson) []lessonDTO {
	out := make([]lessonDTO, 0, len(ls))
	for _, l := range ls {
		out = append(out, toLessonDTO(l))
	}
	return out
}

func toLessonDTO(l lesson.Lesson) lessonDTO {
	return lessonDTO{
		ID:        l.ID,
		Subject:   l.Subject,
		Classroom: l.Classroom,
		Teacher:   l.Teacher,
		Start:     l.Start,
		End:       l.End,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
