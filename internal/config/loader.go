package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every agentgen environment override.
const envPrefix = "AGENTGEN_"

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets credentials be stored as ${ENV_VAR} references.
func expandSensitiveFields(cfg *Config) {
	cfg.Watsonx.APIKey = expandEnvVars(cfg.Watsonx.APIKey)
	cfg.Watsonx.ProjectID = expandEnvVars(cfg.Watsonx.ProjectID)
	cfg.OpenAI.APIKey = expandEnvVars(cfg.OpenAI.APIKey)
	cfg.Server.Token = expandEnvVars(cfg.Server.Token)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set win; missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return &ConfigError{Message: "failed to load " + f + ": " + err.Error()}
		}
	}
	return nil
}

// dotEnvFiles are loaded into the environment before overrides apply.
var dotEnvFiles = []string{".env"}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults plus overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
		applyDefaults(&cfg)
	case !os.IsNotExist(err):
		return cfg, err
	}

	if err := LoadDotEnv(dotEnvFiles...); err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields left empty by the config file.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Provider == "" {
		cfg.Provider = d.Provider
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	if cfg.MCPDefaultPort == 0 {
		cfg.MCPDefaultPort = d.MCPDefaultPort
	}
	if cfg.Watsonx.URL == "" {
		cfg.Watsonx.URL = d.Watsonx.URL
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = d.OpenAI.BaseURL
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = d.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Build.Base == "" {
		cfg.Build.Base = d.Build.Base
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = d.Logging.Style
	}
}

// applyEnvOverrides reads AGENTGEN_* and provider credential variables.
// Unparseable numeric values are ignored so Validate reports the file value.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "PROVIDER"); v != "" {
		cfg.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(envPrefix + "TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv(envPrefix + "MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv(envPrefix + "MCP_DEFAULT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MCPDefaultPort = n
		}
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv(envPrefix + "BUILD_BASE"); v != "" {
		cfg.Build.Base = v
	}
	if v := os.Getenv(envPrefix + "TOKEN"); v != "" {
		cfg.Server.Token = v
	}

	if v := os.Getenv("WATSONX_API_KEY"); v != "" {
		cfg.Watsonx.APIKey = v
	}
	if v := os.Getenv("WATSONX_PROJECT_ID"); v != "" {
		cfg.Watsonx.ProjectID = v
	}
	if v := os.Getenv("WATSONX_URL"); v != "" {
		cfg.Watsonx.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
}
