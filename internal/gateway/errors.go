package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/generator"
	"github.com/soyeahso/agentgen/internal/llm"
	"github.com/soyeahso/agentgen/internal/parser"
	"github.com/soyeahso/agentgen/internal/planner"
	"github.com/soyeahso/agentgen/internal/prompt"
	"github.com/soyeahso/agentgen/internal/workflow"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	var (
		planErr  *planner.PlanningError
		parseErr *parser.ParseError
		cfgErr   *prompt.ConfigurationError
		genErr   *generator.GenerationError
		valErr   *workflow.ValidationError
		taskErr  *build.BuildTaskError
		provErr  *llm.ProviderError
	)
	switch {
	case errors.As(err, &planErr):
		switch {
		case llm.IsKind(err, llm.KindRateLimit):
			return http.StatusTooManyRequests
		case llm.IsKind(err, llm.KindTimeout):
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &parseErr), errors.As(err, &cfgErr), errors.As(err, &genErr), errors.As(err, &valErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &taskErr):
		return http.StatusInternalServerError
	case errors.As(err, &provErr):
		switch provErr.Kind {
		case llm.KindRateLimit:
			return http.StatusTooManyRequests
		case llm.KindTimeout:
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it with the mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeError(w, status, err.Error())
}
