// Package server exposes the report pipeline over HTTP.
//
// Routes:
//
//	POST /generate      run a request (form or JSON field "request_text")
//	GET  /files/{name}  download a stored artifact
//	GET  /history       the caller's run records
//	POST /clear         empty the caller's history
//	GET  /health        liveness
//	GET  /readyz        history and artifact store checks
//
// Callers are identified by an opaque cookie token minted on first contact.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/artifact"
	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/internal/state"
	"github.com/digital-iq/llm-report/pkg/models"
)

// DefaultCookieName is used when Options.CookieName is empty.
const DefaultCookieName = "llmreport_session"

// maxRequestBody bounds POST bodies.
const maxRequestBody = 1 << 20

// Runner executes one report request.
type Runner interface {
	Run(ctx context.Context, identity string, req models.Request) (*models.RunRecord, error)
}

// ReadinessCheck is one named dependency check for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(context.Context) error
}

// Options configures a Server.
type Options struct {
	Runner     Runner
	History    state.HistoryStore
	Artifacts  artifact.Store
	CookieName string
	// SecureCookie marks the identity cookie Secure.
	SecureCookie bool
	// Checks are run by /readyz in addition to the store checks.
	Checks []ReadinessCheck
	Logger *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	runner       Runner
	history      state.HistoryStore
	artifacts    artifact.Store
	cookieName   string
	secureCookie bool
	checks       []ReadinessCheck
	logger       *zap.Logger

	// inflight counts runs started by /generate.
	inflight sync.WaitGroup
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		runner:       opts.Runner,
		history:      opts.History,
		artifacts:    opts.Artifacts,
		cookieName:   opts.CookieName,
		secureCookie: opts.SecureCookie,
		logger:       logging.OrNop(opts.Logger).Named("server"),
	}
	if s.cookieName == "" {
		s.cookieName = DefaultCookieName
	}
	s.checks = append(s.checks,
		ReadinessCheck{Name: "history", Check: s.history.Ping},
		ReadinessCheck{Name: "artifacts", Check: s.artifacts.Check},
	)
	s.checks = append(s.checks, opts.Checks...)
	return s
}

// Wait blocks until every run started by /generate has finished. Runs
// outlive their HTTP requests, so call it after the listener has shut down
// and before closing the stores they write to.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /files/{name}", s.handleFile)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	return Wrap(s.logger, mux)
}

// identity returns the caller's token, minting and setting one if absent.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
	})
	return id
}

type generateBody struct {
	RequestText string `json:"request_text"`
}

func (s *Server) requestText(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body generateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return body.RequestText, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.PostFormValue("request_text"), nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	text, err := s.requestText(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := models.NewRequest(text)
	if req.Empty() {
		writeError(w, http.StatusBadRequest, "request_text is required")
		return
	}
	identity := s.identity(w, r)

	rec, err := s.run(r.Context(), identity, req)
	if rec == nil {
		s.logger.Error("run rejected", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "run could not be started")
		return
	}
	if err != nil {
		s.logger.Warn("run ended with error", zap.String("run_id", rec.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, rec)
}

// run executes req detached from the HTTP request. A started run proceeds
// to a terminal state even if the client leaves.
func (s *Server) run(ctx context.Context, identity string, req models.Request) (*models.RunRecord, error) {
	s.inflight.Add(1)
	defer s.inflight.Done()
	return s.runner.Run(context.WithoutCancel(ctx), identity, req)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := artifact.ValidName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	rc, info, err := s.artifacts.Open(r.Context(), name)
	if errors.Is(err, artifact.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		s.logger.Error("open artifact", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "file unavailable")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if info.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("artifact download interrupted", zap.String("name", name), zap.Error(err))
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity := s.identity(w, r)
	records, err := s.history.List(r.Context(), identity)
	if err != nil {
		s.logger.Error("list history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	identity := s.identity(w, r)
	if err := s.history.Clear(r.Context(), identity); err != nil {
		s.logger.Error("clear history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type checkResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	results := make([]checkResult, 0, len(s.checks))
	overallOK := true

	for _, check := range s.checks {
		start := time.Now()
		err := check.Check(r.Context())
		res := checkResult{Name: check.Name, Status: "ok", DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			overallOK = false
			res.Status = "fail"
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	if overallOK {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": results})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": results})
}
