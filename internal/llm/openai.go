package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/agentgen/internal/logging"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to an OpenAI-compatible chat completions API.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	log     *logging.Logger
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(opts Options) *OpenAIClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   opts.Model,
		client:  opts.httpClient(),
		log:     opts.logger().Sub("llm.openai"),
	}
}

// Name returns the provider name.
func (o *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

// Complete sends the prompt as a single user message.
func (o *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	if o.apiKey == "" {
		return nil, &ProviderError{Provider: o.Name(), Kind: KindAuth, Message: "API key is not configured"}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}
	payload, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, requestError(o.Name(), "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, requestError(o.Name(), "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, transportError(o.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(o.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(o.Name(), resp.StatusCode, respBody)
	}

	var result openAIResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, malformedError(o.Name(), "failed to parse response", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, malformedError(o.Name(), "response contained no message content", nil)
	}

	text := result.Choices[0].Message.Content
	if result.Model != "" {
		model = result.Model
	}

	var promptTokens, completionTokens int
	if result.Usage != nil {
		promptTokens = result.Usage.PromptTokens
		completionTokens = result.Usage.CompletionTokens
	} else {
		promptTokens = CountTokens(model, req.Prompt)
		completionTokens = CountTokens(model, text)
	}

	o.log.Debug().
		Str("model", model).
		Int("promptTokens", promptTokens).
		Int("completionTokens", completionTokens).
		Dur("duration", time.Since(start)).
		Msg("completion finished")

	return &CompletionResponse{
		Text:             text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Model:            model,
		Duration:         time.Since(start),
		CostUSD:          EstimateCost(OpenAIPricing, promptTokens, completionTokens),
	}, nil
}

// API request/response structures

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
