package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validProviders = []string{"watsonx", "openai"}
	validLogLevels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validLogStyles = []string{"pretty", "json"}
	minMaxTokens   = 16
	maxTemperature = 2.0
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if !slices.Contains(validProviders, cfg.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.Provider),
		})
	}

	if cfg.Temperature < 0 || cfg.Temperature > maxTemperature {
		issues = append(issues, ValidationIssue{
			Path:    "temperature",
			Message: fmt.Sprintf("must be between 0 and %g, got %g", maxTemperature, cfg.Temperature),
		})
	}

	if cfg.MaxTokens < minMaxTokens {
		issues = append(issues, ValidationIssue{
			Path:    "maxTokens",
			Message: fmt.Sprintf("must be at least %d, got %d", minMaxTokens, cfg.MaxTokens),
		})
	}

	issues = appendPortIssue(issues, "mcpDefaultPort", cfg.MCPDefaultPort)
	issues = appendPortIssue(issues, "server.port", cfg.Server.Port)

	if cfg.Build.Base == "" {
		issues = append(issues, ValidationIssue{
			Path:    "build.base",
			Message: "build base directory is required",
		})
	}

	// Logging validation
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}
	if cfg.Logging.Style != "" && !slices.Contains(validLogStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogStyles, cfg.Logging.Style),
		})
	}

	return issues
}

// ValidateCredentials reports missing credentials for the configured
// provider. It is only checked when a remote completion is about to run.
func ValidateCredentials(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	switch cfg.Provider {
	case "watsonx":
		if cfg.Watsonx.APIKey == "" {
			issues = append(issues, ValidationIssue{Path: "watsonx.apiKey", Message: "required (or set WATSONX_API_KEY)"})
		}
		if cfg.Watsonx.ProjectID == "" {
			issues = append(issues, ValidationIssue{Path: "watsonx.projectId", Message: "required (or set WATSONX_PROJECT_ID)"})
		}
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			issues = append(issues, ValidationIssue{Path: "openai.apiKey", Message: "required (or set OPENAI_API_KEY)"})
		}
	}
	return issues
}

func appendPortIssue(issues []ValidationIssue, path string, port int) []ValidationIssue {
	if port < 1 || port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("port must be 1-65535, got %d", port),
		})
	}
	return issues
}
