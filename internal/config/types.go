package config

// Config is the root configuration for agentgen.
type Config struct {
	Provider       string        `yaml:"provider,omitempty"` // "watsonx" | "openai"
	Model          string        `yaml:"model,omitempty"`
	Temperature    float64       `yaml:"temperature,omitempty"`
	MaxTokens      int           `yaml:"maxTokens,omitempty"`
	MCPDefaultPort int           `yaml:"mcpDefaultPort,omitempty"` // port baked into generated service wrappers
	Watsonx        WatsonxConfig `yaml:"watsonx,omitempty"`
	OpenAI         OpenAIConfig  `yaml:"openai,omitempty"`
	Server         ServerConfig  `yaml:"server,omitempty"`
	Build          BuildConfig   `yaml:"build,omitempty"`
	Logging        LoggingConfig `yaml:"logging,omitempty"`
}

// WatsonxConfig holds IBM watsonx.ai credentials.
type WatsonxConfig struct {
	APIKey    string `yaml:"apiKey,omitempty"`
	ProjectID string `yaml:"projectId,omitempty"`
	URL       string `yaml:"url,omitempty"`
}

// OpenAIConfig holds OpenAI credentials.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// ServerConfig controls the plan/build HTTP server.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	Token          string   `yaml:"token,omitempty"` // optional bearer token; empty disables auth
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// BuildConfig controls where build artifacts and history are written.
type BuildConfig struct {
	Base    string `yaml:"base,omitempty"`
	History bool   `yaml:"history,omitempty"` // record build runs in sqlite
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}
