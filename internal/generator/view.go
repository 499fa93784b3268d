package generator

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/soyeahso/agentgen/internal/workflow"
)

// view is the read-only projection of a workflow handed to templates.
type view struct {
	Agents  []agentView
	Tasks   []taskView // insertion order
	Ordered []taskView // topological order
	Edges   []edgeView
	Roots   []taskView
	Leaves  []taskView
	Model   string
	Style   string
}

type agentView struct {
	ID        string
	Var       string
	Role      string
	Goal      string
	Backstory string
	Tools     []string
	LLM       string
}

type taskView struct {
	ID       string
	Var      string
	Goal     string
	AgentID  string
	AgentVar string
	Expected string
	Result   string   // key the step's result is stored under
	Deps     []string // predecessor task vars, edge order
	DepIDs   []string
}

type edgeView struct {
	From, To       string
	FromVar, ToVar string
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Names the templates define or import themselves, plus Python keywords.
var reservedIdents = []string{
	"crew", "main", "run", "app", "invoke", "State", "WorkflowFlow", "build_graph",
	"think", "act", "merge_results", "workflow", "payload", "context", "thought",
	"results", "graph", "flow", "final", "response", "json", "asyncio", "uvicorn",
	"Any", "Dict", "Annotated", "TypedDict", "CrewAgent", "Crew", "CrewTask", "Process",
	"Flow", "listen", "start", "and_", "BaseModel", "Field", "StateGraph", "START", "END",
	"ChatModel", "AgentWorkflow", "AgentWorkflowInput", "FastAPI", "Body", "CORSMiddleware",
	"False", "None", "True", "and", "as", "assert", "async", "await", "break", "class",
	"continue", "def", "del", "elif", "else", "except", "finally", "for", "from", "global",
	"if", "import", "in", "is", "lambda", "nonlocal", "not", "or", "pass", "raise",
	"return", "try", "while", "with", "yield",
}

// pyIdent turns an id into a Python identifier.
func pyIdent(id string) string {
	s := nonIdent.ReplaceAllString(id, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	if slices.Contains(reservedIdents, s) {
		s += "_"
	}
	return s
}

// newView validates wf and projects it for rendering.
func newView(wf *workflow.Workflow, target Target, s Settings) (*view, error) {
	if wf == nil {
		return nil, &GenerationError{Target: target, Entity: "workflow", Message: "workflow is nil"}
	}
	if err := wf.Validate(); err != nil {
		var ve *workflow.ValidationError
		if errors.As(err, &ve) {
			return nil, &GenerationError{Target: target, Entity: ve.Entity, Message: ve.Rule + ": " + ve.Message}
		}
		return nil, &GenerationError{Target: target, Entity: "workflow", Message: err.Error()}
	}
	if len(wf.Agents) == 0 {
		return nil, &GenerationError{Target: target, Entity: "workflow", Message: "workflow has no agents"}
	}
	if len(wf.Tasks) == 0 {
		return nil, &GenerationError{Target: target, Entity: "workflow", Message: "workflow has no tasks"}
	}

	owners := map[string]string{} // python identifier -> entity id
	claim := func(id string) (string, error) {
		v := pyIdent(id)
		if other, ok := owners[v]; ok {
			return "", &GenerationError{
				Target:  target,
				Entity:  id,
				Message: fmt.Sprintf("identifier %q collides with %q", v, other),
			}
		}
		owners[v] = id
		return v, nil
	}

	v := &view{Model: s.Model, Style: s.AgentStyle}
	agentVars := make(map[string]string, len(wf.Agents))
	for _, a := range wf.Agents {
		name, err := claim(a.ID)
		if err != nil {
			return nil, err
		}
		agentVars[a.ID] = name

		var goals []string
		for _, t := range wf.TasksFor(a.ID) {
			goals = append(goals, t.Goal)
		}
		goal := "Achieve task objectives"
		if len(goals) > 0 {
			goal = strings.Join(goals, "; ")
		}
		av := agentView{
			ID:        a.ID,
			Var:       name,
			Role:      a.Role,
			Goal:      goal,
			Backstory: fmt.Sprintf("You are the %s of this workflow.", a.Role),
			Tools:     a.Tools,
		}
		if a.LLM != nil {
			av.LLM = a.LLM.Model
		}
		v.Agents = append(v.Agents, av)
	}

	taskVars := make(map[string]string, len(wf.Tasks))
	byID := make(map[string]taskView, len(wf.Tasks))
	for _, t := range wf.Tasks {
		name, err := claim(t.ID)
		if err != nil {
			return nil, err
		}
		taskVars[t.ID] = name
	}
	for _, t := range wf.Tasks {
		tv := taskView{
			ID:       t.ID,
			Var:      taskVars[t.ID],
			Goal:     t.Goal,
			AgentID:  t.AgentID,
			AgentVar: agentVars[t.AgentID],
			Expected: expectedOutput(t),
			Result:   t.ID,
		}
		if len(t.Outputs) > 0 {
			tv.Result = t.Outputs[0]
		}
		for _, p := range wf.Predecessors(t.ID) {
			tv.Deps = append(tv.Deps, taskVars[p])
			tv.DepIDs = append(tv.DepIDs, p)
		}
		byID[t.ID] = tv
		v.Tasks = append(v.Tasks, tv)
		if len(tv.Deps) == 0 {
			v.Roots = append(v.Roots, tv)
		}
		if len(wf.Successors(t.ID)) == 0 {
			v.Leaves = append(v.Leaves, tv)
		}
	}

	ordered, err := wf.TopologicalOrder()
	if err != nil {
		return nil, &GenerationError{Target: target, Entity: "workflow", Message: err.Error()}
	}
	for _, t := range ordered {
		v.Ordered = append(v.Ordered, byID[t.ID])
	}
	for _, e := range wf.Edges {
		v.Edges = append(v.Edges, edgeView{From: e.From, To: e.To, FromVar: taskVars[e.From], ToVar: taskVars[e.To]})
	}
	return v, nil
}

func expectedOutput(t workflow.Task) string {
	if len(t.Outputs) == 0 {
		return "A concise result for: " + t.Goal
	}
	return "Produce " + strings.Join(t.Outputs, ", ") + " for: " + t.Goal
}
