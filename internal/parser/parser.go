// Package parser turns a free-text requirement into a workflow graph using
// sentence and clause heuristics.
package parser

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/soyeahso/agentgen/internal/logging"
	"github.com/soyeahso/agentgen/internal/workflow"
)

// ParseError is returned when the requirement cannot be parsed at all.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "parse: " + e.Message
}

const (
	// DefaultAgentID names the agent synthesized when no role is detected.
	DefaultAgentID   = "agent_generic_assistant"
	DefaultAgentRole = "generic-assistant"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)

	// Sequencing connectors. "next" and "finally" only count after a comma,
	// a semicolon or "and" so that "next quarter" stays intact.
	sequenceSplit = regexp.MustCompile(`(?i)\s*;\s*|,?\s+(?:and\s+)?(?:then|after\s+that|afterwards)\b,?\s*|(?:,\s*|\s+and\s+)(?:next|finally)\b,?\s*`)

	parallelSplit = regexp.MustCompile(`(?i)\s+(?:while|meanwhile|in\s+parallel\s+with|and\s+simultaneously)\s+`)

	leadingSequence = regexp.MustCompile(`(?i)^(?:first(?:ly)?|then|next|finally|afterwards|after\s+that)\b,?\s*`)
	leadingParallel = regexp.MustCompile(`(?i)^(?:meanwhile|simultaneously|in\s+parallel)\b,?\s*`)
	leadingAfter    = regexp.MustCompile(`(?i)^after\s+([^,]+),\s*(.+)$`)

	explicitAgent = regexp.MustCompile(`(?i)^(?:the\s+)?agent\s+([a-z0-9][a-z0-9_-]*)\b`)
	namedAgent    = regexp.MustCompile(`(?i)^the\s+([a-z0-9][a-z0-9_-]*)\s+agent\b`)

	wordPattern = regexp.MustCompile(`[a-z0-9]+`)
	nonSlug     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Option configures a Parser.
type Option func(*Parser)

// WithDefaultLLM stamps an LLM override on every agent the parser creates.
func WithDefaultLLM(cfg workflow.LLMConfig) Option {
	return func(p *Parser) {
		c := cfg
		p.llm = &c
	}
}

// WithDefaultTools gives every created agent the listed tools.
func WithDefaultTools(tools ...string) Option {
	return func(p *Parser) {
		for _, t := range tools {
			if t != "" && !slices.Contains(p.tools, t) {
				p.tools = append(p.tools, t)
			}
		}
	}
}

// WithLogger sets the parser's logger.
func WithLogger(log *logging.Logger) Option {
	return func(p *Parser) {
		p.log = log.Sub("parser")
	}
}

// Parser converts requirement text into a workflow. It holds no per-call
// state and is safe for concurrent use.
type Parser struct {
	llm   *workflow.LLMConfig
	tools []string
	log   *logging.Logger
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{log: logging.New(nil, "silent")}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse is shorthand for New().Parse(text).
func Parse(text string) (*workflow.Workflow, error) {
	return New().Parse(text)
}

// clause is one candidate task. Clauses sharing a stage run in parallel.
type clause struct {
	text  string
	stage int
	agent string // resolved agent id, "" until assigned
}

// Parse converts text into a validated workflow. Only empty or
// whitespace-only input fails.
func (p *Parser) Parse(text string) (*workflow.Workflow, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ParseError{Message: "requirement text is empty"}
	}

	clauses := splitClauses(text)
	agents := p.assignAgents(clauses)

	if len(agents) == 0 {
		p.log.Debug().Int("clauses", len(clauses)).Msg("no roles detected, using default agent")
		return workflow.New(
			[]workflow.Agent{p.newAgent(DefaultAgentID, DefaultAgentRole)},
			[]workflow.Task{{
				ID:      "task_1",
				Goal:    text,
				Outputs: []string{"output_1"},
				AgentID: DefaultAgentID,
			}},
			nil,
		)
	}

	tasks, edges := buildGraph(clauses)
	wf, err := workflow.New(agents, tasks, edges)
	if err != nil {
		// The graph is built stage by stage, so this is a bug, not bad input.
		return nil, fmt.Errorf("parser produced an invalid workflow: %w", err)
	}

	p.log.Debug().
		Int("agents", len(wf.Agents)).
		Int("tasks", len(wf.Tasks)).
		Int("edges", len(wf.Edges)).
		Msg("parsed requirement")
	return wf, nil
}

// splitClauses breaks text into sentences, then sequencing clauses, then
// parallel parts, numbering stages as it goes.
func splitClauses(text string) []clause {
	var out []clause
	stage := -1

	for _, sentence := range sentenceSplit.Split(text, -1) {
		for i, part := range sequenceParts(sentence) {
			parallel := false
			if loc := leadingParallel.FindStringIndex(part); loc != nil {
				part = part[loc[1]:]
				parallel = stage >= 0
			}
			if i > 0 || !parallel {
				stage++
			}
			for _, sub := range parallelSplit.Split(part, -1) {
				sub = cleanClause(sub)
				if sub == "" {
					continue
				}
				out = append(out, clause{text: sub, stage: stage})
			}
		}
	}
	return compactStages(out)
}

// sequenceParts splits one sentence on sequencing connectors, expanding a
// leading "after X, Y" into X followed by Y.
func sequenceParts(sentence string) []string {
	sentence = strings.TrimSpace(sentence)
	if m := leadingAfter.FindStringSubmatch(sentence); m != nil && !strings.EqualFold(strings.TrimSpace(m[1]), "that") {
		return append(sequenceParts(m[1]), sequenceParts(m[2])...)
	}

	var parts []string
	for _, part := range sequenceSplit.Split(sentence, -1) {
		part = strings.TrimSpace(leadingSequence.ReplaceAllString(strings.TrimSpace(part), ""))
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func cleanClause(s string) string {
	s = strings.TrimSpace(s)
	s = leadingSequence.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.TrimRight(s, ".!?,; "))
}

// compactStages renumbers stages so they run 0..k without gaps left by
// empty clauses.
func compactStages(in []clause) []clause {
	next := 0
	last := -1
	for i := range in {
		if in[i].stage != last {
			last = in[i].stage
			in[i].stage = next
			next++
		} else {
			in[i].stage = next - 1
		}
	}
	return in
}

// assignAgents resolves an agent for every clause and returns the agents in
// order of first appearance. It returns nil when no clause carries a signal.
func (p *Parser) assignAgents(clauses []clause) []workflow.Agent {
	var agents []workflow.Agent
	known := map[string]bool{}

	inUse := func(roleName string) bool {
		return known["agent_"+roleName]
	}
	ensure := func(id, roleName string) string {
		if !known[id] {
			known[id] = true
			agents = append(agents, p.newAgent(id, roleName))
		}
		return id
	}

	for i := range clauses {
		if name := explicitName(clauses[i].text); name != "" {
			if slug := slugify(name); slug != "" {
				clauses[i].agent = ensure("agent_"+slug, name)
				continue
			}
		}
		words := wordPattern.FindAllString(strings.ToLower(clauses[i].text), -1)
		if r := pickRole(words, inUse); r != "" {
			clauses[i].agent = ensure("agent_"+r, r)
		}
	}
	if len(agents) == 0 {
		return nil
	}

	// Unsignalled clauses join the previous agent, or the next one when
	// they lead the text.
	prev := ""
	for i := range clauses {
		if clauses[i].agent != "" {
			prev = clauses[i].agent
			continue
		}
		if prev != "" {
			clauses[i].agent = prev
			continue
		}
		for j := i + 1; j < len(clauses); j++ {
			if clauses[j].agent != "" {
				clauses[i].agent = clauses[j].agent
				break
			}
		}
	}
	return agents
}

func explicitName(text string) string {
	if m := namedAgent.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := explicitAgent.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// buildGraph numbers tasks in clause order and links every task of one
// stage to every task of the next.
func buildGraph(clauses []clause) ([]workflow.Task, []workflow.Edge) {
	tasks := make([]workflow.Task, len(clauses))
	var stages [][]int
	for i, c := range clauses {
		n := i + 1
		tasks[i] = workflow.Task{
			ID:      fmt.Sprintf("task_%d", n),
			Goal:    c.text,
			Outputs: []string{fmt.Sprintf("output_%d", n)},
			AgentID: c.agent,
		}
		if c.stage == len(stages) {
			stages = append(stages, nil)
		}
		stages[c.stage] = append(stages[c.stage], i)
	}

	var edges []workflow.Edge
	for s := 1; s < len(stages); s++ {
		for _, from := range stages[s-1] {
			for _, to := range stages[s] {
				edges = append(edges, workflow.Edge{From: tasks[from].ID, To: tasks[to].ID})
				tasks[to].Inputs = append(tasks[to].Inputs, tasks[from].Outputs...)
			}
		}
	}
	return tasks, edges
}

func (p *Parser) newAgent(id, roleName string) workflow.Agent {
	a := workflow.Agent{ID: id, Role: roleName, Tools: slices.Clone(p.tools)}
	if p.llm != nil {
		c := *p.llm
		a.LLM = &c
	}
	return a
}

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
