// Package planner turns a use-case description into a build plan. A
// completion provider proposes the target and tasks; catalog reuse, task
// validation and plan assembly happen here.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/soyeahso/agentgen/internal/build"
	"github.com/soyeahso/agentgen/internal/generator"
	"github.com/soyeahso/agentgen/internal/hooks"
	"github.com/soyeahso/agentgen/internal/llm"
	"github.com/soyeahso/agentgen/internal/logging"
)

// DefaultAgentName names the agent definition when the use case yields no
// usable slug.
const DefaultAgentName = "workflow"

// PlanningError reports a plan that could not be produced. No partial plan
// accompanies it.
type PlanningError struct {
	Message string
	Err     error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planning: %s: %v", e.Message, e.Err)
	}
	return "planning: " + e.Message
}

func (e *PlanningError) Unwrap() error { return e.Err }

// Options tunes the completion call and the tree preview.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BuildBase   string // root shown in the tree preview; "build" when empty
	Hooks       *hooks.Manager
}

// Request is one planning request.
type Request struct {
	UseCase         string  `json:"use_case"`
	PreferredTarget string  `json:"preferred_target,omitempty"`
	Catalog         Catalog `json:"component_catalog,omitempty"`
}

// Planner produces build plans.
type Planner struct {
	client llm.Client
	opts   Options
	log    *logging.Logger
}

// New creates a Planner backed by client.
func New(client llm.Client, opts Options, log *logging.Logger) *Planner {
	if opts.BuildBase == "" {
		opts.BuildBase = "build"
	}
	return &Planner{client: client, opts: opts, log: log.Sub("planner")}
}

// planResponse is the shape the completion must return.
type planResponse struct {
	SelectedTarget string       `json:"selected_target" jsonschema:"required,enum=watsonx_orchestrate,enum=crewai,enum=crewai_flow,enum=langgraph,enum=react,enum=beeai"`
	BuildTasks     []build.Task `json:"build_tasks" jsonschema:"required"`
}

var responseSchema = sync.OnceValue(func() string {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.MarshalIndent(r.Reflect(&planResponse{}), "", "  ")
	if err != nil {
		panic(fmt.Sprintf("planner: reflecting response schema: %v", err))
	}
	return string(data)
})

// Plan asks the completion provider for a plan, then applies catalog
// reuse and validates every task.
func (p *Planner) Plan(ctx context.Context, req Request) (*build.Plan, error) {
	useCase := strings.TrimSpace(req.UseCase)
	if useCase == "" {
		return nil, &PlanningError{Message: "use case is empty"}
	}

	var preferred generator.Target
	if req.PreferredTarget != "" {
		t, err := generator.ParseTarget(req.PreferredTarget)
		if err != nil {
			return nil, &PlanningError{Message: "invalid preferred target", Err: err}
		}
		preferred = t
	}
	if p.client == nil {
		return nil, &PlanningError{Message: "no completion provider configured"}
	}

	text, err := buildPrompt(useCase, preferred, req.Catalog)
	if err != nil {
		return nil, &PlanningError{Message: "building prompt", Err: err}
	}

	p.log.Debug().Str("provider", p.client.Name()).Int("catalog", len(req.Catalog)).Msg("requesting plan")
	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		Prompt:      text,
		Model:       p.opts.Model,
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		return nil, &PlanningError{Message: "completion provider failed", Err: err}
	}

	raw, err := parseResponse(resp.Text)
	if err != nil {
		return nil, &PlanningError{Message: "response is not a plan", Err: err}
	}

	target := preferred
	if target == "" {
		if target, err = generator.ParseTarget(raw.SelectedTarget); err != nil {
			return nil, &PlanningError{Message: "response selected an invalid target", Err: err}
		}
	}

	tasks, err := p.resolveTasks(raw.BuildTasks, req.Catalog)
	if err != nil {
		return nil, err
	}
	tasks = ensureAgentDefinition(tasks, useCase)

	plan := &build.Plan{
		SelectedTarget: string(target),
		UseCase:        useCase,
		ProjectTree:    ProjectTree(p.opts.BuildBase, string(target), tasks),
		BuildTasks:     tasks,
	}

	p.log.Info().
		Str("target", plan.SelectedTarget).
		Int("tasks", len(plan.BuildTasks)).
		Msg("plan created")
	p.opts.Hooks.EmitAsync(ctx, hooks.EventPlanCreated, map[string]any{
		"target": plan.SelectedTarget,
		"tasks":  len(plan.BuildTasks),
	})
	return plan, nil
}

// resolveTasks validates the proposed tasks, rewrites python tools the
// catalog already provides, and drops duplicates keeping the first.
func (p *Planner) resolveTasks(proposed []build.Task, catalog Catalog) ([]build.Task, error) {
	var out []build.Task
	seen := map[build.Task]bool{}
	for i, t := range proposed {
		if !t.Kind.Valid() {
			return nil, &PlanningError{Message: fmt.Sprintf("task %d has unknown kind %q", i, t.Kind)}
		}
		proposedName := t.Name
		name := sanitizeName(t.Name)
		if name == "" {
			return nil, &PlanningError{Message: fmt.Sprintf("task %d (%s) has no name", i, t.Kind)}
		}
		t.Name = name

		switch t.Kind {
		case build.KindPythonTool:
			t.Gateway = ""
			if d := Decide(t.Name, catalog); d.Action == ActionReuse {
				gateway, _ := catalog.GatewayFor(d.Match)
				p.log.Debug().Str("capability", t.Name).Str("match", d.Match).Float64("score", d.Score).Msg("reusing catalog component")
				t = build.Task{Kind: build.KindMCPTool, Name: sanitizeName(d.Match), Gateway: gateway}
			}
		case build.KindMCPTool:
			if t.Gateway == "" {
				key, ok := catalog.Lookup(proposedName)
				if !ok {
					key, ok = catalog.Lookup(t.Name)
				}
				if !ok {
					return nil, &PlanningError{Message: fmt.Sprintf("mcp_tool %q names no gateway and is not in the catalog", t.Name)}
				}
				t.Gateway, _ = catalog.GatewayFor(key)
				t.Name = sanitizeName(key)
			}
		case build.KindAgentDefinition:
			t.Gateway = ""
		}

		key := build.Task{Kind: t.Kind, Name: t.Name}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out, nil
}

func ensureAgentDefinition(tasks []build.Task, useCase string) []build.Task {
	for _, t := range tasks {
		if t.Kind == build.KindAgentDefinition {
			return tasks
		}
	}
	return append(tasks, build.Task{Kind: build.KindAgentDefinition, Name: AgentName(useCase)})
}

var nonName = regexp.MustCompile(`[^a-z0-9_-]+`)

// sanitizeName lower-cases s and replaces anything that is not safe in a
// single path segment.
func sanitizeName(s string) string {
	s = nonName.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	return strings.Trim(s, "_-")
}

// AgentName derives the agent definition name from the first words of the
// use case.
func AgentName(useCase string) string {
	words := Tokens(useCase)
	if len(words) > 4 {
		words = words[:4]
	}
	name := sanitizeName(strings.Join(words, "_"))
	if name == "" {
		return DefaultAgentName
	}
	return name
}

// ProjectTree previews the directories a build of tasks creates.
func ProjectTree(base, target string, tasks []build.Task) []string {
	root := path.Join(base, target)
	tree := []string{base + "/", root + "/", path.Join(root, build.KindAgentDefinition.Category()) + "/"}
	for _, kind := range []build.Kind{build.KindPythonTool, build.KindMCPTool} {
		for _, t := range tasks {
			if t.Kind == kind {
				tree = append(tree, path.Join(root, kind.Category(), t.Name)+"/")
			}
		}
	}
	return tree
}

func buildPrompt(useCase string, preferred generator.Target, catalog Catalog) (string, error) {
	if catalog == nil {
		catalog = Catalog{}
	}
	catalogJSON, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return "", err
	}
	quoted, err := json.Marshal(useCase)
	if err != nil {
		return "", err
	}

	targets := make([]string, 0, len(generator.Targets()))
	for _, t := range generator.Targets() {
		targets = append(targets, string(t))
	}
	pref := "none (choose the best fit)"
	if preferred != "" {
		pref = string(preferred)
	}

	var b strings.Builder
	b.WriteString("You are a build planner for multi-agent projects.\n")
	b.WriteString("Propose the minimal set of build tasks for the use case below.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Prefer components from the catalog over new ones; reference them as mcp_tool tasks.\n")
	b.WriteString("- Use python_tool only for capabilities no catalog entry provides.\n")
	b.WriteString("- Task names are lower_snake_case.\n")
	fmt.Fprintf(&b, "- selected_target is one of: %s.\n\n", strings.Join(targets, ", "))
	fmt.Fprintf(&b, "Use case (JSON string): %s\n", quoted)
	fmt.Fprintf(&b, "Preferred target: %s\n\n", pref)
	fmt.Fprintf(&b, "Component catalog:\n%s\n\n", catalogJSON)
	fmt.Fprintf(&b, "Reply with one JSON object matching this schema and nothing else:\n%s\n", responseSchema())
	return b.String(), nil
}

var fence = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n(.*?)```")

// parseResponse reads the first JSON object out of a completion.
func parseResponse(text string) (*planResponse, error) {
	if m := fence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object found")
	}

	var raw struct {
		SelectedTarget    string       `json:"selected_target"`
		SelectedFramework string       `json:"selected_framework"`
		BuildTasks        []build.Task `json:"build_tasks"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, err
	}
	if raw.SelectedTarget == "" {
		raw.SelectedTarget = raw.SelectedFramework
	}
	if raw.BuildTasks == nil {
		return nil, errors.New("build_tasks is missing")
	}
	return &planResponse{SelectedTarget: raw.SelectedTarget, BuildTasks: raw.BuildTasks}, nil
}
