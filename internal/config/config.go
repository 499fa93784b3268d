package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultProvider      = "watsonx"
	DefaultModel         = "meta-llama-3-70b-instruct"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4096
	DefaultMCPPort       = 8080
	DefaultWatsonxURL    = "https://us-south.ml.cloud.ibm.com"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultServerHost    = "0.0.0.0"
	DefaultServerPort    = 8000
	DefaultBuildBase     = "build"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Provider:       DefaultProvider,
		Model:          DefaultModel,
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
		MCPDefaultPort: DefaultMCPPort,
		Watsonx: WatsonxConfig{
			URL: DefaultWatsonxURL,
		},
		OpenAI: OpenAIConfig{
			BaseURL: DefaultOpenAIBaseURL,
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Build: BuildConfig{
			Base:    DefaultBuildBase,
			History: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			Style: "pretty",
		},
	}
}

// APIKey returns the credential for the configured provider.
func (c Config) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAI.APIKey
	default:
		return c.Watsonx.APIKey
	}
}
