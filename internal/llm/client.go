// Package llm defines the completion client contract and the closed set of
// remote providers that implement it.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/agentgen/internal/logging"
)

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Text             string        `json:"text"`
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	Model            string        `json:"model,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	CostUSD          float64       `json:"costUsd,omitempty"`
}

// Client is the interface every completion provider implements.
type Client interface {
	// Complete sends a prompt and returns the full response. An empty
	// completion is reported as a malformed ProviderError.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "watsonx", "openai").
	Name() string
}

// Provider identifies one of the supported backends.
type Provider string

const (
	ProviderWatsonx Provider = "watsonx"
	ProviderOpenAI  Provider = "openai"
)

// Providers lists the supported backends.
func Providers() []Provider {
	return []Provider{ProviderWatsonx, ProviderOpenAI}
}

// ParseProvider maps a provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderWatsonx:
		return ProviderWatsonx, nil
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	}
	return "", fmt.Errorf("unknown provider %q (want one of %v)", name, Providers())
}

// Options configures a provider client.
type Options struct {
	APIKey    string
	ProjectID string // watsonx only
	BaseURL   string
	IAMURL    string // watsonx only; defaults to the IBM Cloud IAM endpoint
	Model     string // used when a request leaves Model empty
	Timeout   time.Duration
	Log       *logging.Logger
}

func (o Options) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) logger() *logging.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.New(nil, "silent")
}

// New builds the client for kind.
func New(kind Provider, opts Options) (Client, error) {
	switch kind {
	case ProviderWatsonx:
		return NewWatsonxClient(opts), nil
	case ProviderOpenAI:
		return NewOpenAIClient(opts), nil
	}
	return nil, fmt.Errorf("unknown provider %q", kind)
}
