package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zuzya/try.idea-validator/artifact"
	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
	"github.com/zuzya/try.idea-validator/runner"
)

// ErrEmptyIdea is returned for a run request without an idea.
var ErrEmptyIdea = errors.New("idea must not be empty")

// Runs is what the server needs from a run manager. *runner.Runner
// implements it.
type Runs interface {
	core.Runner
	Get(runID string) (*core.RunRecord, error)
	List() ([]*core.RunRecord, error)
}

// Options configures a Server.
type Options struct {
	// Defaults is the run configuration request overrides are applied to.
	Defaults core.Config
	// Artifacts serves run documents. Nil disables the artifact routes.
	Artifacts core.ArtifactStore
	// Registerer receives the HTTP metrics; Gatherer backs /metrics. Both
	// default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Logger provides structured logging. Defaults to NoOp.
	Logger logging.Logger
}

// Server exposes runs over HTTP. POST /runs streams a run as Server-Sent
// Events; the other routes inspect and cancel runs.
type Server struct {
	runs     Runs
	opts     Options
	router   *mux.Router
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	// baseCtx outlives requests so that a run survives its client.
	baseCtx context.Context
}

// New builds the router. ctx bounds every run started through the server.
func New(ctx context.Context, runs Runs, optFns ...func(o *Options)) *Server {
	opts := Options{
		Defaults: core.DefaultConfig(),
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		runs:    runs,
		opts:    opts,
		baseCtx: ctx,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validator_http_request_duration_seconds",
			Help:    "HTTP request latency by route. Streaming routes measure the whole run.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	s.requests = registerOrExisting(opts.Registerer, s.requests)
	s.latency = registerOrExisting(opts.Registerer, s.latency)

	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/runs", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/runs", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.handleCancel).Methods(http.MethodDelete)
	if opts.Artifacts != nil {
		r.HandleFunc("/runs/{id}/artifacts", s.handleArtifacts).Methods(http.MethodGet)
		r.HandleFunc("/runs/{id}/artifacts/{name}", s.handleArtifact).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	s.router = r
	return s
}

func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// runRequest is the body of POST /runs. Config fields left out keep the
// server defaults.
type runRequest struct {
	Idea   string      `json:"idea"`
	Config core.Config `json:"config"`
}

// startResponse answers an asynchronous POST /runs.
type startResponse struct {
	RunID string `json:"run_id"`
}

// runSummary is one entry of GET /runs.
type runSummary struct {
	RunID     string         `json:"run_id"`
	Status    core.RunStatus `json:"status"`
	Seed      string         `json:"seed"`
	Title     string         `json:"title,omitempty"`
	Iteration int            `json:"iteration"`
	Error     string         `json:"error,omitempty"`
	Created   time.Time      `json:"created"`
	Updated   time.Time      `json:"updated"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req := runRequest{Config: s.opts.Defaults}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Idea) == "" {
		writeError(w, http.StatusBadRequest, ErrEmptyIdea)
		return
	}

	runID, events, err := s.runs.Start(s.baseCtx, req.Idea, req.Config)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if async := r.URL.Query().Get("async"); async == "1" || async == "true" {
		go drain(events)
		writeJSON(w, http.StatusAccepted, startResponse{RunID: runID})
		return
	}

	s.stream(w, r, runID, events)
}

// stream writes events as SSE until the run ends. A client that goes away
// stops receiving but the channel is still drained so the run can finish.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, runID string, events <-chan core.Event) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Run-ID", runID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	gone := r.Context().Done()
	for ev := range events {
		if gone == nil {
			continue
		}
		select {
		case <-gone:
			s.opts.Logger.Info("client left run %s, draining in background", runID)
			gone = nil
			continue
		default:
		}
		if err := writeEvent(w, ev); err != nil {
			s.opts.Logger.Warn("failed to write event %s for run %s: %v", ev.Name(), runID, err)
			gone = nil
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name(), data)
	return err
}

func drain(events <-chan core.Event) {
	for range events {
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.runs.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]runSummary, 0, len(runs))
	for _, rec := range runs {
		sum := runSummary{
			RunID:     rec.RunID,
			Status:    rec.Status,
			Seed:      rec.State.SeedInput,
			Iteration: rec.State.IterationCount,
			Error:     rec.Error,
			Created:   rec.Created,
			Updated:   rec.Updated,
		}
		if rec.State.Artifact != nil {
			sum.Title = rec.State.Artifact.Title
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runs.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.Cancel(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if _, err := s.runs.Get(runID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	names, err := s.opts.Artifacts.List(r.Context(), runID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := s.opts.Artifacts.Get(r.Context(), vars["id"], vars["name"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrRunNotFound), errors.Is(err, artifact.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidConfig), errors.Is(err, artifact.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrTooManyRuns):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
