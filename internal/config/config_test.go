package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "watsonx", cfg.Provider)
	assert.Equal(t, "meta-llama-3-70b-instruct", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 8080, cfg.MCPDefaultPort)
	assert.Equal(t, "https://us-south.ml.cloud.ibm.com", cfg.Watsonx.URL)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "build", cfg.Build.Base)
	assert.True(t, cfg.Build.History)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Style)
}

func TestAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.Watsonx.APIKey = "wx"
	cfg.OpenAI.APIKey = "oa"
	assert.Equal(t, "wx", cfg.APIKey())

	cfg.Provider = "openai"
	assert.Equal(t, "oa", cfg.APIKey())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
provider: openai
model: gpt-4o-mini
temperature: 0.2
maxTokens: 2048
openai:
  apiKey: sk-test
server:
  port: 9999
  allowedOrigins:
    - http://localhost:3000
build:
  base: /tmp/out
logging:
  level: debug
  style: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/tmp/out", cfg.Build.Base)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Style)

	// Unset fields keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTGEN_PROVIDER", "OpenAI")
	t.Setenv("AGENTGEN_MODEL", "gpt-4o")
	t.Setenv("AGENTGEN_TEMPERATURE", "1.5")
	t.Setenv("AGENTGEN_MAX_TOKENS", "512")
	t.Setenv("AGENTGEN_MCP_DEFAULT_PORT", "9090")
	t.Setenv("AGENTGEN_LOG_LEVEL", "TRACE")
	t.Setenv("AGENTGEN_HOST", "127.0.0.1")
	t.Setenv("AGENTGEN_PORT", "12345")
	t.Setenv("AGENTGEN_BUILD_BASE", "/srv/build")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 1.5, cfg.Temperature)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.Equal(t, 9090, cfg.MCPDefaultPort)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 12345, cfg.Server.Port)
	assert.Equal(t, "/srv/build", cfg.Build.Base)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
}

func TestLoadEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("AGENTGEN_PORT", "not-a-port")
	t.Setenv("AGENTGEN_TEMPERATURE", "warm")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 0.7, cfg.Temperature)
}

func TestLoadWatsonxCredentialsFromEnv(t *testing.T) {
	t.Setenv("WATSONX_API_KEY", "wx-key")
	t.Setenv("WATSONX_PROJECT_ID", "proj-1")
	t.Setenv("WATSONX_URL", "https://eu-de.ml.cloud.ibm.com")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "wx-key", cfg.Watsonx.APIKey)
	assert.Equal(t, "proj-1", cfg.Watsonx.ProjectID)
	assert.Equal(t, "https://eu-de.ml.cloud.ibm.com", cfg.Watsonx.URL)
	assert.Empty(t, ValidateCredentials(&cfg))
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("MY_SECRET_KEY", "expanded")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("watsonx:\n  apiKey: ${MY_SECRET_KEY}\n  projectId: ${UNSET_AGENTGEN_VAR}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded", cfg.Watsonx.APIKey)
	assert.Equal(t, "${UNSET_AGENTGEN_VAR}", cfg.Watsonx.ProjectID)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGENTGEN_TEST_DOTENV=from-file\nAGENTGEN_TEST_PRESET=from-file\n"), 0o600))
	t.Setenv("AGENTGEN_TEST_PRESET", "from-env")
	t.Cleanup(func() { os.Unsetenv("AGENTGEN_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("AGENTGEN_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("AGENTGEN_TEST_PRESET"))
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"server.port", []string{"server", "port"}, false},
		{"watsonx.projectId", []string{"watsonx", "projectId"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{"__proto__.x", nil, true},
		{"x.constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := map[string]any{
		"server": map[string]any{
			"port": 9999,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"server", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadRawMissingFile(t *testing.T) {
	raw, err := LoadRaw(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, raw)
}
