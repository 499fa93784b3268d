package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/pipeline"
	"github.com/soyeahso/agentgen/internal/planner"
	"github.com/soyeahso/agentgen/internal/store"
	"github.com/soyeahso/agentgen/internal/visualize"
)

// registerHTTPRoutes sets up the HTTP handlers on the given mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /plan", s.handlePlan)
	mux.HandleFunc("POST /build", s.handleBuild)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("GET /builds", s.handleListBuilds)
	mux.HandleFunc("GET /builds/{id}", s.handleGetBuild)
	mux.HandleFunc("GET /ws/events", s.handleEvents)
	mux.HandleFunc("/", handleNotFound)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime,omitempty"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Subscribers: s.clients.Count()}
	if up := s.Uptime(); up > 0 {
		resp.Uptime = up.Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planning is not configured")
		return
	}
	var req planner.Request
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UseCase) == "" {
		writeError(w, http.StatusBadRequest, "use_case is required")
		return
	}

	plan, err := s.planner.Plan(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// BuildResponse is returned by POST /build.
type BuildResponse struct {
	Status  string       `json:"status"`
	Summary BuildSummary `json:"summary"`
}

// BuildSummary describes a finished build.
type BuildSummary struct {
	Target string   `json:"target"`
	Tree   []string `json:"tree"`
	RunID  string   `json:"run_id"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if s.builder == nil {
		writeError(w, http.StatusServiceUnavailable, "building is not configured")
		return
	}
	var plan build.Plan
	if !s.decode(w, r, &plan) {
		return
	}
	switch {
	case plan.SelectedTarget == "":
		writeError(w, http.StatusBadRequest, "selected_target is required")
		return
	case plan.BuildTasks == nil:
		writeError(w, http.StatusBadRequest, "build_tasks is required")
		return
	}

	summary, err := s.builder.Build(r.Context(), &plan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BuildResponse{
		Status: "ok",
		Summary: BuildSummary{
			Target: summary.Target,
			Tree:   summary.Tree,
			RunID:  summary.RunID,
		},
	})
}

// GenerateRequest is the body of POST /generate. Prompt and target are
// required; the rest fall back to configuration.
type GenerateRequest struct {
	Prompt        *string  `json:"prompt"`
	Target        *string  `json:"target"`
	Provider      string   `json:"provider,omitempty"`
	Model         string   `json:"model,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	WrapAsService bool     `json:"wrap_as_service,omitempty"`
	UseLLM        bool     `json:"use_llm,omitempty"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	Code      string          `json:"code"`
	Extension string          `json:"extension"`
	Diagram   string          `json:"diagram"`
	Usage     *pipeline.Usage `json:"usage,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "generation is not configured")
		return
	}
	var body GenerateRequest
	if !s.decode(w, r, &body) {
		return
	}
	switch {
	case body.Prompt == nil:
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	case body.Target == nil:
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	req := pipeline.Request{
		Requirement:   *body.Prompt,
		Target:        *body.Target,
		Provider:      body.Provider,
		Model:         body.Model,
		Temperature:   s.cfg.Temperature,
		MaxTokens:     s.cfg.MaxTokens,
		WrapAsService: body.WrapAsService,
		UseLLM:        body.UseLLM,
	}
	if req.Provider == "" {
		req.Provider = s.cfg.Provider
	}
	if req.Model == "" {
		req.Model = s.cfg.Model
	}
	if body.Temperature != nil {
		req.Temperature = *body.Temperature
	}
	if body.MaxTokens != nil {
		req.MaxTokens = *body.MaxTokens
	}

	res, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	diagram := res.Diagram
	if diagram == "" && res.Workflow != nil {
		diagram = visualize.Mermaid(res.Workflow)
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		Code:      string(res.Artifact.Content),
		Extension: res.Artifact.Extension,
		Diagram:   diagram,
		Usage:     res.Usage,
	})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "build history is not enabled")
		return
	}
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.BuildRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": runs})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "build history is not enabled")
		return
	}
	id := r.PathValue("id")
	run, err := s.history.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown build run "+id)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("malformed request body")
		writeError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}
