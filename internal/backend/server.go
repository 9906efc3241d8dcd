// Package backend is a local stand-in for the case assistant and guided
// engineering services and their SSO token endpoint.
package backend

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/db"
	"github.com/hpungsan/csm-companion/internal/errors"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/pulse"
)

// Run states.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Secret        []byte
	TokenTTL      time.Duration
	SystemAccount string

	// CompleteAfter finishes RUNNING runs after the given delay. Zero leaves
	// them running.
	CompleteAfter time.Duration

	Now func() time.Time
	Log *logging.Logger
}

// OptionsFromConfig maps configuration onto emulator options.
func OptionsFromConfig(cfg *config.Config, log *logging.Logger) Options {
	return Options{
		Secret:        []byte(cfg.BackendSecret),
		TokenTTL:      time.Duration(cfg.BackendTokenTTLMinutes) * time.Minute,
		SystemAccount: cfg.SystemAccount,
		Log:           log,
	}
}

// Server serves the emulated backends over one SQLite database.
type Server struct {
	db            *sql.DB
	secret        []byte
	tokenTTL      time.Duration
	systemAccount string
	completeAfter time.Duration
	now           func() time.Time
	log           *logging.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a Server.
func New(database *sql.DB, opts Options) *Server {
	s := &Server{
		db:            database,
		secret:        opts.Secret,
		tokenTTL:      opts.TokenTTL,
		systemAccount: opts.SystemAccount,
		completeAfter: opts.CompleteAfter,
		now:           opts.Now,
		log:           opts.Log,
		timers:        make(map[string]*time.Timer),
	}
	if len(s.secret) == 0 {
		s.secret = []byte("companion-dev-secret")
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = time.Hour
	}
	if s.systemAccount == "" {
		s.systemAccount = pulse.DefaultSystemAccount
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logging.Nop()
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sso/token", s.handleToken)

	mux.HandleFunc("GET /case/pulse/{case_id}", s.requireAuth(s.handleGetPulse))
	mux.HandleFunc("POST /case/pulse/{case_id}", s.requireAuth(s.handleUpdatePulse))

	mux.HandleFunc("GET /automations/history/{correlation_id}", s.requireAuth(s.handleHistory))
	mux.HandleFunc("GET /automations/{component}", s.requireAuth(s.handleListAutomations))
	mux.HandleFunc("POST /automation/execute", s.requireAuth(s.handleExecute))
	mux.HandleFunc("POST /automation/feedback", s.requireAuth(s.handleFeedback))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errors.NewNotFound("route", r.Method+" "+r.URL.Path))
	})

	return s.logRequests(mux)
}

// Close stops pending run completions.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		writeError(w, errors.NewInvalidRequest("service is required"))
		return
	}
	tok, exp, err := s.issueToken(service, r.URL.Query().Get("env"))
	if err != nil {
		writeError(w, errors.NewInternal(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

// handleGetPulse answers with a one-element list, or an empty list when the
// case has no pulse yet.
func (s *Server) handleGetPulse(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	record, err := db.GetPulse(s.db, caseID)
	if errors.Is(err, errors.ErrNotFound) {
		writeJSON(w, http.StatusOK, []*pulse.Record{})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, []*pulse.Record{record})
}

func (s *Server) handleUpdatePulse(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	var patch pulse.Record
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	record, err := db.UpsertPulse(s.db, caseID, &patch, s.systemAccount, s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("pulse updated", "case_id", caseID, "service", callerService(r))
	writeJSON(w, http.StatusOK, []*pulse.Record{record})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := db.ListRuns(s.db, r.PathValue("correlation_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := db.ListAutomations(s.db, r.PathValue("component"), r.URL.Query().Get("product"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, automations)
}

type executeRequest struct {
	ID         string         `json:"id"`
	IncidentNo string         `json:"incident_no"`
	Component  string         `json:"component"`
	Options    []db.RunOption `json:"options"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" || req.IncidentNo == "" {
		writeError(w, errors.NewInvalidRequest("id and incident_no are required"))
		return
	}
	automation, err := db.GetAutomation(s.db, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	component := req.Component
	if component == "" {
		component = automation.Component
	}

	now := s.now()
	run := &db.Run{
		WorkflowID:   newID(now),
		AutomationID: automation.ID,
		Name:         automation.Name,
		IncidentNo:   req.IncidentNo,
		Component:    component,
		Options:      req.Options,
		Status:       StatusRunning,
		StartedTS:    now.UTC().Format(time.RFC3339),
	}
	if err := db.InsertRun(s.db, run); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("automation started", "automation_id", run.AutomationID, "workflow_id", run.WorkflowID, "incident_no", run.IncidentNo, "service", callerService(r))
	s.scheduleCompletion(run)
	writeJSON(w, http.StatusOK, run)
}

type feedbackRequest struct {
	AutomationID string `json:"automation_id"`
	WorkflowID   string `json:"workflow_id"`
	ThumbUp      bool   `json:"thumb_up"`
	ThumbDown    bool   `json:"thumb_down"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AutomationID == "" || req.WorkflowID == "" {
		writeError(w, errors.NewInvalidRequest("automation_id and workflow_id are required"))
		return
	}
	if req.ThumbUp && req.ThumbDown {
		writeError(w, errors.NewInvalidRequest("thumb_up and thumb_down are exclusive"))
		return
	}
	now := s.now()
	fb := &db.Feedback{
		ID:           newID(now),
		AutomationID: req.AutomationID,
		WorkflowID:   req.WorkflowID,
		ThumbUp:      req.ThumbUp,
		ThumbDown:    req.ThumbDown,
		CreatedAt:    now.Unix(),
	}
	if err := db.AddFeedback(s.db, fb); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

func (s *Server) scheduleCompletion(run *db.Run) {
	if s.completeAfter <= 0 {
		return
	}
	id := run.WorkflowID
	output := fmt.Sprintf("%s finished for %s", run.Name, run.IncidentNo)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[id] = time.AfterFunc(s.completeAfter, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		if err := db.CompleteRun(s.db, id, StatusSuccess, output, s.now()); err != nil {
			s.log.Warn("run completion failed", "workflow_id", id, "error", err)
		}
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("backend request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// newID returns a ULID for the given time.
func newID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	cErr := errors.As(err)
	writeJSON(w, cErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(cErr.Code),
			"message": cErr.Message,
			"status":  cErr.Status,
		},
	})
}

// NewHTTPServer wraps the emulator in an http.Server.
func NewHTTPServer(s *Server, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
