// Package workflow holds the agent/task/edge graph produced from a
// requirement and consumed by the prompt renderer and artifact generators.
package workflow

import "slices"

// LLMConfig is an optional per-agent model override.
type LLMConfig struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Agent is a named role that owns one or more tasks.
type Agent struct {
	ID    string     `json:"id"`
	Role  string     `json:"role"`
	Tools []string   `json:"tools,omitempty"`
	LLM   *LLMConfig `json:"llm_config,omitempty"`
}

// Task is one unit of work owned by exactly one agent.
type Task struct {
	ID      string   `json:"id"`
	Goal    string   `json:"goal"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
	AgentID string   `json:"agent_id"`
}

// Edge says From must complete before To is ready.
type Edge struct {
	From string `json:"source"`
	To   string `json:"target"`
}

// Workflow is the aggregate root. Agents and Tasks keep insertion order.
//
// The fields are exported so that callers (and tests) can hand-construct a
// graph; anything built that way must pass Validate before it is trusted.
// Values returned by New are already valid.
type Workflow struct {
	Agents []Agent `json:"agents"`
	Tasks  []Task  `json:"tasks"`
	Edges  []Edge  `json:"edges"`
}

// New copies the given entities into a Workflow and validates it.
func New(agents []Agent, tasks []Task, edges []Edge) (*Workflow, error) {
	wf := &Workflow{
		Agents: cloneAgents(agents),
		Tasks:  cloneTasks(tasks),
		Edges:  slices.Clone(edges),
	}
	if wf.Agents == nil {
		wf.Agents = []Agent{}
	}
	if wf.Tasks == nil {
		wf.Tasks = []Task{}
	}
	if wf.Edges == nil {
		wf.Edges = []Edge{}
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// Agent returns a copy of the agent with the given id.
func (w *Workflow) Agent(id string) (Agent, bool) {
	for _, a := range w.Agents {
		if a.ID == id {
			return cloneAgent(a), true
		}
	}
	return Agent{}, false
}

// Task returns a copy of the task with the given id.
func (w *Workflow) Task(id string) (Task, bool) {
	for _, t := range w.Tasks {
		if t.ID == id {
			return cloneTask(t), true
		}
	}
	return Task{}, false
}

// TasksFor returns the tasks owned by agentID, in insertion order.
func (w *Workflow) TasksFor(agentID string) []Task {
	var out []Task
	for _, t := range w.Tasks {
		if t.AgentID == agentID {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// Predecessors returns the ids of tasks with an edge into id, in edge order.
func (w *Workflow) Predecessors(id string) []string {
	var out []string
	for _, e := range w.Edges {
		if e.To == id {
			out = append(out, e.From)
		}
	}
	return out
}

// Successors returns the ids of tasks id has an edge into, in edge order.
func (w *Workflow) Successors(id string) []string {
	var out []string
	for _, e := range w.Edges {
		if e.From == id {
			out = append(out, e.To)
		}
	}
	return out
}

// Roots returns the tasks with no predecessors, in insertion order.
func (w *Workflow) Roots() []Task {
	hasPred := make(map[string]bool, len(w.Edges))
	for _, e := range w.Edges {
		hasPred[e.To] = true
	}
	var out []Task
	for _, t := range w.Tasks {
		if !hasPred[t.ID] {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// TopologicalOrder returns the tasks ordered so that every edge's From comes
// before its To. Among ready tasks the one inserted first wins, so a graph
// without edges comes back in insertion order.
func (w *Workflow) TopologicalOrder() ([]Task, error) {
	index := make(map[string]int, len(w.Tasks))
	for i, t := range w.Tasks {
		index[t.ID] = i
	}

	indegree := make([]int, len(w.Tasks))
	succ := make([][]int, len(w.Tasks))
	for _, e := range w.Edges {
		from, okFrom := index[e.From]
		to, okTo := index[e.To]
		if !okFrom || !okTo {
			return nil, danglingEdge(e)
		}
		indegree[to]++
		succ[from] = append(succ[from], to)
	}

	done := make([]bool, len(w.Tasks))
	order := make([]Task, 0, len(w.Tasks))
	for len(order) < len(w.Tasks) {
		next := -1
		for i := range w.Tasks {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, &ValidationError{
				Entity:  firstPending(w.Tasks, done),
				Rule:    RuleCycle,
				Message: "edges form a cycle",
			}
		}
		done[next] = true
		order = append(order, cloneTask(w.Tasks[next]))
		for _, s := range succ[next] {
			indegree[s]--
		}
	}
	return order, nil
}

func firstPending(tasks []Task, done []bool) string {
	for i, t := range tasks {
		if !done[i] {
			return t.ID
		}
	}
	return ""
}

func cloneAgent(a Agent) Agent {
	a.Tools = slices.Clone(a.Tools)
	if a.LLM != nil {
		llm := *a.LLM
		if llm.Temperature != nil {
			temp := *llm.Temperature
			llm.Temperature = &temp
		}
		a.LLM = &llm
	}
	return a
}

func cloneTask(t Task) Task {
	t.Inputs = slices.Clone(t.Inputs)
	t.Outputs = slices.Clone(t.Outputs)
	return t
}

func cloneAgents(in []Agent) []Agent {
	if in == nil {
		return nil
	}
	out := make([]Agent, len(in))
	for i, a := range in {
		out[i] = cloneAgent(a)
	}
	return out
}

func cloneTasks(in []Task) []Task {
	if in == nil {
		return nil
	}
	out := make([]Task, len(in))
	for i, t := range in {
		out[i] = cloneTask(t)
	}
	return out
}
