package cli

import (
	"errors"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/generator"
	"github.com/soyeahso/agentgen/internal/llm"
	"github.com/soyeahso/agentgen/internal/parser"
	"github.com/soyeahso/agentgen/internal/planner"
	"github.com/soyeahso/agentgen/internal/prompt"
	"github.com/soyeahso/agentgen/internal/workflow"
)

// Process exit codes, one per error kind.
const (
	ExitOK         = 0
	ExitGeneric    = 1
	ExitParse      = 2
	ExitConfig     = 3
	ExitProvider   = 4
	ExitGeneration = 5
	ExitPlanning   = 6
	ExitBuildTask  = 7
)

// ExitCode maps an error returned by Execute to the process exit code.
// A planning failure caused by a provider error still exits with
// ExitPlanning.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		planErr   *planner.PlanningError
		parseErr  *parser.ParseError
		valErr    *workflow.ValidationError
		cfgErr    *config.ConfigError
		renderErr *prompt.ConfigurationError
		provErr   *llm.ProviderError
		genErr    *generator.GenerationError
		taskErr   *build.BuildTaskError
	)
	switch {
	case errors.As(err, &planErr):
		return ExitPlanning
	case errors.As(err, &taskErr):
		return ExitBuildTask
	case errors.As(err, &parseErr), errors.As(err, &valErr):
		return ExitParse
	case errors.As(err, &cfgErr), errors.As(err, &renderErr):
		return ExitConfig
	case errors.As(err, &provErr):
		return ExitProvider
	case errors.As(err, &genErr):
		return ExitGeneration
	default:
		return ExitGeneric
	}
}
