// Package pipeline wires the parser, prompt renderer, completion client and
// generators into the single generate call used by the CLI and the gateway.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/agentgen/internal/generator"
	"github.com/soyeahso/agentgen/internal/llm"
	"github.com/soyeahso/agentgen/internal/logging"
	"github.com/soyeahso/agentgen/internal/parser"
	"github.com/soyeahso/agentgen/internal/prompt"
	"github.com/soyeahso/agentgen/internal/visualize"
	"github.com/soyeahso/agentgen/internal/workflow"
)

// ClientFactory returns the completion client for a provider.
type ClientFactory func(provider llm.Provider) (llm.Client, error)

// Request is one generation request.
type Request struct {
	Requirement   string
	Target        string
	Provider      string
	Model         string
	Temperature   float64
	MaxTokens     int
	WrapAsService bool
	UseLLM        bool
}

// Usage reports what a completion cost.
type Usage struct {
	Provider         string        `json:"provider"`
	Model            string        `json:"model,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	Duration         time.Duration `json:"duration"`
}

// Result is everything one generate call produced.
type Result struct {
	Artifact *generator.Artifact
	Workflow *workflow.Workflow
	Prompt   string
	Diagram  string
	Usage    *Usage // nil unless the completion provider was called
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParser replaces the default parser.
func WithParser(p *parser.Parser) Option {
	return func(pl *Pipeline) { pl.parser = p }
}

// WithGeneratorSettings sets the service port and agent style passed to
// generators. The model always comes from the request.
func WithGeneratorSettings(s generator.Settings) Option {
	return func(pl *Pipeline) { pl.settings = s }
}

// Pipeline runs generate requests. It is safe for concurrent use.
type Pipeline struct {
	parser   *parser.Parser
	clients  ClientFactory
	settings generator.Settings
	log      *logging.Logger
}

// New creates a Pipeline. clients may be nil when no request sets UseLLM.
func New(clients ClientFactory, log *logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		clients: clients,
		log:     log.Sub("pipeline"),
	}
	for _, o := range opts {
		o(p)
	}
	if p.parser == nil {
		p.parser = parser.New(parser.WithLogger(log))
	}
	return p
}

// Prepare parses the requirement and renders the prompt without calling
// any provider or generator.
func (p *Pipeline) Prepare(req Request) (*workflow.Workflow, generator.Target, string, error) {
	if strings.TrimSpace(req.Target) == "" {
		return nil, "", "", &prompt.ConfigurationError{Field: "target", Message: "target syntax is required"}
	}
	target, err := generator.ParseTarget(req.Target)
	if err != nil {
		return nil, "", "", &prompt.ConfigurationError{Field: "target", Message: err.Error()}
	}

	wf, err := p.parser.Parse(req.Requirement)
	if err != nil {
		return nil, "", "", err
	}

	text, err := prompt.Render(wf, prompt.Settings{Provider: req.Provider, Target: string(target)})
	if err != nil {
		return nil, "", "", err
	}
	return wf, target, text, nil
}

// Generate turns a requirement into an artifact. With UseLLM set the
// artifact body is the first fenced code block of the completion;
// otherwise the deterministic generator renders it.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	wf, target, text, err := p.Prepare(req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Workflow: wf,
		Prompt:   text,
		Diagram:  visualize.Mermaid(wf),
	}

	if !req.UseLLM {
		settings := p.settings
		settings.Model = req.Model
		res.Artifact, err = generator.Generate(wf, target, settings, req.WrapAsService)
		if err != nil {
			return nil, err
		}
		p.log.Info().
			Str("target", string(target)).
			Int("agents", len(wf.Agents)).
			Int("tasks", len(wf.Tasks)).
			Msg("generated artifact")
		return res, nil
	}

	art, usage, err := p.complete(ctx, req, target, text)
	if err != nil {
		return nil, err
	}
	res.Artifact = art
	res.Usage = usage
	p.log.Info().
		Str("target", string(target)).
		Str("provider", usage.Provider).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Float64("cost_usd", usage.CostUSD).
		Msg("generated artifact with completion provider")
	return res, nil
}

func (p *Pipeline) complete(ctx context.Context, req Request, target generator.Target, text string) (*generator.Artifact, *Usage, error) {
	if p.clients == nil {
		return nil, nil, &prompt.ConfigurationError{Field: "provider", Message: "no completion provider configured"}
	}
	name := req.Provider
	if name == "" {
		name = string(llm.ProviderWatsonx)
	}
	kind, err := llm.ParseProvider(name)
	if err != nil {
		return nil, nil, &prompt.ConfigurationError{Field: "provider", Message: err.Error()}
	}
	client, err := p.clients(kind)
	if err != nil {
		return nil, nil, err
	}

	p.log.Debug().Str("provider", client.Name()).Str("model", req.Model).Msg("requesting completion")
	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Prompt:      text,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, nil, err
	}

	code := ExtractCode(resp.Text)
	if code == "" {
		return nil, nil, &llm.ProviderError{Provider: client.Name(), Kind: llm.KindMalformed, Message: "completion contained no code"}
	}
	body := []byte(code + "\n")
	if req.WrapAsService && target.Executable() {
		if body, err = generator.WrapService(body, p.settings.ServicePort); err != nil {
			return nil, nil, &generator.GenerationError{Target: target, Entity: "service", Message: err.Error()}
		}
	}

	usage := &Usage{
		Provider:         client.Name(),
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		CostUSD:          resp.CostUSD,
		Duration:         resp.Duration,
	}
	return &generator.Artifact{Target: target, Extension: target.Extension(), Content: body}, usage, nil
}

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_+.-]*[ \t]*\r?\n(.*?)```")

// ExtractCode returns the first fenced code block in text, or the trimmed
// text when there is none.
func ExtractCode(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// String summarises usage for CLI output.
func (u *Usage) String() string {
	return fmt.Sprintf("%s %d+%d tokens, $%.4f", u.Provider, u.PromptTokens, u.CompletionTokens, u.CostUSD)
}
