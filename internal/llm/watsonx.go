package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/soyeahso/agentgen/internal/logging"
)

const (
	defaultWatsonxURL = "https://us-south.ml.cloud.ibm.com"
	defaultIAMURL     = "https://iam.cloud.ibm.com/identity/token"
	watsonxAPIVersion = "2025-02-11"
	iamGrantType      = "urn:ibm:params:oauth:grant-type:apikey"
	iamTokenKey       = "iam"

	// Tokens are dropped this long before IBM expires them.
	iamExpiryMargin = time.Minute
)

// WatsonxClient talks to the watsonx.ai text generation API.
type WatsonxClient struct {
	apiKey    string
	projectID string
	baseURL   string
	iamURL    string
	model     string
	client    *http.Client
	tokens    *cache.Cache
	log       *logging.Logger
}

// NewWatsonxClient creates a watsonx.ai client.
func NewWatsonxClient(opts Options) *WatsonxClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultWatsonxURL
	}
	iamURL := opts.IAMURL
	if iamURL == "" {
		iamURL = defaultIAMURL
	}
	return &WatsonxClient{
		apiKey:    opts.APIKey,
		projectID: opts.ProjectID,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		iamURL:    iamURL,
		model:     opts.Model,
		client:    opts.httpClient(),
		tokens:    cache.New(50*time.Minute, 10*time.Minute),
		log:       opts.logger().Sub("llm.watsonx"),
	}
}

// Name returns the provider name.
func (w *WatsonxClient) Name() string {
	return string(ProviderWatsonx)
}

// Complete runs one text generation call.
func (w *WatsonxClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	token, err := w.token(ctx)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = w.model
	}
	payload, err := json.Marshal(watsonxRequest{
		ProjectID: w.projectID,
		ModelID:   model,
		Input:     req.Prompt,
		Parameters: watsonxParameters{
			MaxNewTokens: req.MaxTokens,
			Temperature:  req.Temperature,
		},
	})
	if err != nil {
		return nil, requestError(w.Name(), "failed to marshal request", err)
	}

	endpoint := fmt.Sprintf("%s/ml/v1/text/generation?version=%s", w.baseURL, watsonxAPIVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, requestError(w.Name(), "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	respBody, err := w.do(httpReq)
	if err != nil {
		if IsKind(err, KindAuth) {
			w.tokens.Delete(iamTokenKey)
		}
		return nil, err
	}

	var result watsonxResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, malformedError(w.Name(), "failed to parse response", err)
	}
	if len(result.Results) == 0 || strings.TrimSpace(result.Results[0].GeneratedText) == "" {
		return nil, malformedError(w.Name(), "response contained no generated text", nil)
	}

	r := result.Results[0]
	promptTokens := r.InputTokenCount
	if promptTokens == 0 {
		promptTokens = Tokenize(req.Prompt)
	}
	completionTokens := r.GeneratedTokenCount
	if completionTokens == 0 {
		completionTokens = Tokenize(r.GeneratedText)
	}
	if result.ModelID != "" {
		model = result.ModelID
	}

	w.log.Debug().
		Str("model", model).
		Int("promptTokens", promptTokens).
		Int("completionTokens", completionTokens).
		Dur("duration", time.Since(start)).
		Msg("completion finished")

	return &CompletionResponse{
		Text:             r.GeneratedText,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Model:            model,
		Duration:         time.Since(start),
		CostUSD:          EstimateCost(WatsonxPricing, promptTokens, completionTokens),
	}, nil
}

// token returns a cached IAM bearer token, exchanging the API key when the
// cache is empty.
func (w *WatsonxClient) token(ctx context.Context) (string, error) {
	if v, ok := w.tokens.Get(iamTokenKey); ok {
		return v.(string), nil
	}
	if w.apiKey == "" {
		return "", &ProviderError{Provider: w.Name(), Kind: KindAuth, Message: "API key is not configured"}
	}

	form := url.Values{}
	form.Set("grant_type", iamGrantType)
	form.Set("apikey", w.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.iamURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", requestError(w.Name(), "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	respBody, err := w.do(httpReq)
	if err != nil {
		return "", err
	}

	var tok iamTokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return "", malformedError(w.Name(), "failed to parse IAM token", err)
	}
	if tok.AccessToken == "" {
		return "", malformedError(w.Name(), "IAM response contained no access token", nil)
	}

	if ttl := time.Duration(tok.ExpiresIn)*time.Second - iamExpiryMargin; ttl > 0 {
		w.tokens.Set(iamTokenKey, tok.AccessToken, ttl)
		w.log.Debug().Dur("ttl", ttl).Msg("cached IAM token")
	}
	return tok.AccessToken, nil
}

func (w *WatsonxClient) do(httpReq *http.Request) ([]byte, error) {
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, transportError(w.Name(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(w.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(w.Name(), resp.StatusCode, respBody)
	}
	return respBody, nil
}

// API request/response structures

type watsonxRequest struct {
	ProjectID  string            `json:"project_id"`
	ModelID    string            `json:"model_id"`
	Input      string            `json:"input"`
	Parameters watsonxParameters `json:"parameters"`
}

type watsonxParameters struct {
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature"`
}

type watsonxResponse struct {
	ModelID string `json:"model_id"`
	Results []struct {
		GeneratedText       string `json:"generated_text"`
		GeneratedTokenCount int    `json:"generated_token_count"`
		InputTokenCount     int    `json:"input_token_count"`
		StopReason          string `json:"stop_reason"`
	} `json:"results"`
}

type iamTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
