package cli

import (
	"fmt"
	"strings"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/config"
	"github.com/soyeahso/agentgen/internal/generator"
	"github.com/soyeahso/agentgen/internal/llm"
	"github.com/soyeahso/agentgen/internal/logging"
	"github.com/soyeahso/agentgen/internal/pipeline"
	"github.com/soyeahso/agentgen/internal/prompt"
	"github.com/soyeahso/agentgen/internal/store"
)

// loadConfig reads the config file, applies flag overrides and validates
// the result, then replaces the bootstrap logger with one honoring the
// configured level and style.
func loadConfig(overrides ...func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	for _, o := range overrides {
		o(&cfg)
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
			msgs = append(msgs, issue.String())
		}
		return cfg, &config.ConfigError{Message: "validation failed: " + strings.Join(msgs, "; ")}
	}

	log = logging.NewWithStyle(nil, resolveLogLevel(cfg.Logging.Level), cfg.Logging.Style)
	return cfg, nil
}

// clientFactory builds completion clients from cfg. Credentials are only
// checked for the provider actually requested.
func clientFactory(cfg config.Config) pipeline.ClientFactory {
	return func(provider llm.Provider) (llm.Client, error) {
		scoped := cfg
		scoped.Provider = string(provider)
		if issues := config.ValidateCredentials(&scoped); len(issues) > 0 {
			return nil, &prompt.ConfigurationError{Field: issues[0].Path, Message: issues[0].Message}
		}

		opts := llm.Options{
			Model: cfg.Model,
			Log:   log.Sub("llm"),
		}
		switch provider {
		case llm.ProviderWatsonx:
			opts.APIKey = cfg.Watsonx.APIKey
			opts.ProjectID = cfg.Watsonx.ProjectID
			opts.BaseURL = cfg.Watsonx.URL
		case llm.ProviderOpenAI:
			opts.APIKey = cfg.OpenAI.APIKey
			opts.BaseURL = cfg.OpenAI.BaseURL
		}
		return llm.New(provider, opts)
	}
}

// defaultClient returns the client for the configured provider.
func defaultClient(cfg config.Config) (llm.Client, error) {
	provider, err := llm.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, &prompt.ConfigurationError{Field: "provider", Message: err.Error()}
	}
	return clientFactory(cfg)(provider)
}

func newPipeline(cfg config.Config) *pipeline.Pipeline {
	return pipeline.New(clientFactory(cfg), log, pipeline.WithGeneratorSettings(generator.Settings{
		ServicePort: cfg.MCPDefaultPort,
	}))
}

// openHistory opens the build history database. The caller closes it.
func openHistory() (*store.DB, *store.BuildStore, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := store.Open(paths.History, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening build history: %w", err)
	}
	return db, store.NewBuildStore(db), nil
}

// buildOptions assembles Manager options from cfg. The returned close
// function releases the history database, if one was opened.
func buildOptions(cfg config.Config) ([]build.Option, func(), error) {
	opts := []build.Option{build.WithModel(cfg.Model)}
	if !cfg.Build.History {
		return opts, func() {}, nil
	}
	db, history, err := openHistory()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, build.WithHistory(history))
	return opts, func() { db.Close() }, nil
}
