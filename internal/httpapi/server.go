// Package httpapi exposes the external HTTP surface named by spec §6:
// search, async indexing control, health, and Prometheus metrics, behind a
// bearer-token auth gate.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahart-dev/vaultmind/internal/job"
	"github.com/ahart-dev/vaultmind/internal/metrics"
	"github.com/ahart-dev/vaultmind/internal/model"
	"github.com/ahart-dev/vaultmind/internal/search"
)

// SearchEngine is the subset of *search.Engine the HTTP surface depends on.
type SearchEngine interface {
	Search(ctx context.Context, req search.Request) ([]search.Result, error)
}

// JobController is the subset of *job.Controller the HTTP surface depends
// on.
type JobController interface {
	Start(ctx context.Context, vault model.Vault, full bool, callbackURL string) (job.Submission, error)
	Status(id string) (model.Job, bool)
	RunningProgress() (model.Job, bool)
	Cancel(id string) bool
}

// Server wires the search engine and job controller behind the HTTP
// surface. The MCP surface is a separate type (mcpsrv.Server); the two share
// the same Application value, and this type holds only the HTTP-specific
// pieces (auth, metrics, request decoding).
type Server struct {
	engine  SearchEngine
	jobs    JobController
	metrics *metrics.Collector

	bearerSecret string // static token, or the HMAC key a JWT bearer token must be signed with
	metricsPath  string
}

// Option customizes a Server at construction time.
type Option func(*Server)

// WithMetrics attaches a metrics collector; /metrics is unavailable
// without one.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithMetricsPath overrides the default "/metrics" mount point.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// New builds a Server. bearerSecret is compared directly against an
// incoming static token, and is also tried as the HMAC signing key for a
// JWT bearer token (spec §6: "golang-jwt/jwt/v5-issued or a static
// shared-secret token, configurable") — an empty bearerSecret disables
// auth entirely, for local development.
func New(engine SearchEngine, jobs JobController, bearerSecret string, opts ...Option) *Server {
	s := &Server{
		engine:       engine,
		jobs:         jobs,
		bearerSecret: bearerSecret,
		metricsPath:  "/metrics",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full routed, authenticated http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle(s.metricsPath, promhttp.Handler())
	}

	mux.Handle("POST /search", s.requireAuth(http.HandlerFunc(s.handleSearch)))
	mux.Handle("POST /index/start", s.requireAuth(http.HandlerFunc(s.handleIndexStart)))
	mux.Handle("GET /index/status/{id}", s.requireAuth(http.HandlerFunc(s.handleIndexStatus)))
	mux.Handle("GET /index/progress", s.requireAuth(http.HandlerFunc(s.handleIndexProgress)))
	mux.Handle("POST /index/cancel/{id}", s.requireAuth(http.HandlerFunc(s.handleIndexCancel)))

	return mux
}

// requireAuth gates every non-public route behind a bearer token (spec §6:
// "401 on mismatch").
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bearerSecret == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok || !s.verifyToken(token) {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(auth, prefix)
	return token, token != ""
}

// verifyToken accepts either a JWT signed with bearerSecret as the HMAC key,
// or an exact (constant-time) match against bearerSecret as a static shared
// secret.
func (s *Server) verifyToken(token string) bool {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.bearerSecret), nil
	})
	if err == nil && parsed.Valid {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.bearerSecret)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequestBody struct {
	Query    string `json:"query"`
	Vault    string `json:"vault"`
	Category string `json:"category"`
	Person   string `json:"person"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	Limit    int    `json:"limit"`
	Mode     string `json:"mode"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start := time.Now()
	results, err := s.engine.Search(r.Context(), search.Request{
		Query:    body.Query,
		Vault:    model.Vault(body.Vault),
		Mode:     search.Mode(body.Mode),
		Category: body.Category,
		Person:   body.Person,
		DateFrom: body.DateFrom,
		DateTo:   body.DateTo,
		Limit:    body.Limit,
	})
	if err != nil {
		slog.Warn("search_request_failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSearch(body.Mode, body.Vault, time.Since(start), len(results))
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type indexStartRequestBody struct {
	Vault       string `json:"vault"`
	Full        bool   `json:"full"`
	CallbackURL string `json:"callback_url"`
}

func (s *Server) handleIndexStart(w http.ResponseWriter, r *http.Request) {
	var body indexStartRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := s.jobs.Start(r.Context(), model.Vault(body.Vault), body.Full, body.CallbackURL)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": sub.JobID, "status": sub.Status})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, ok := s.jobs.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleIndexProgress(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jobs.RunningProgress()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"running": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true, "job": j})
}

func (s *Server) handleIndexCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.jobs.Cancel(id) {
		writeError(w, http.StatusConflict, "job is not currently running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
