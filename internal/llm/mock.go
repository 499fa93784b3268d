package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{
		Text:             "mock response",
		PromptTokens:     Tokenize(req.Prompt),
		CompletionTokens: 2,
		Model:            req.Model,
	}, nil
}

// StaticClient returns a MockClient that always answers text.
func StaticClient(name, text string) *MockClient {
	return &MockClient{
		ProviderName: name,
		CompleteFunc: func(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{Text: text, Model: req.Model}, nil
		},
	}
}
