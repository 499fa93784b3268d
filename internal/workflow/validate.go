package workflow

import "fmt"

// Validation rules reported in ValidationError.Rule.
const (
	RuleEmptyID       = "empty_id"
	RuleDuplicateID   = "duplicate_id"
	RuleEmptyRole     = "empty_role"
	RuleDuplicateTool = "duplicate_tool"
	RuleDanglingAgent = "dangling_agent"
	RuleDanglingEdge  = "dangling_edge"
	RuleSelfLoop      = "self_loop"
	RuleDuplicateEdge = "duplicate_edge"
	RuleCycle         = "cycle"
)

// ValidationError names the offending entity and the rule it breaks.
type ValidationError struct {
	Entity  string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: %s: %s: %s", e.Entity, e.Rule, e.Message)
}

// Validate checks every graph invariant and returns the first violation.
func (w *Workflow) Validate() error {
	agents := make(map[string]bool, len(w.Agents))
	for _, a := range w.Agents {
		if a.ID == "" {
			return &ValidationError{Entity: "agent", Rule: RuleEmptyID, Message: "agent id is empty"}
		}
		if agents[a.ID] {
			return &ValidationError{Entity: a.ID, Rule: RuleDuplicateID, Message: "agent id is not unique"}
		}
		agents[a.ID] = true
		if a.Role == "" {
			return &ValidationError{Entity: a.ID, Rule: RuleEmptyRole, Message: "agent role is empty"}
		}
		seen := make(map[string]bool, len(a.Tools))
		for _, tool := range a.Tools {
			if seen[tool] {
				return &ValidationError{Entity: a.ID, Rule: RuleDuplicateTool, Message: fmt.Sprintf("tool %q listed twice", tool)}
			}
			seen[tool] = true
		}
	}

	tasks := make(map[string]bool, len(w.Tasks))
	for _, t := range w.Tasks {
		if t.ID == "" {
			return &ValidationError{Entity: "task", Rule: RuleEmptyID, Message: "task id is empty"}
		}
		if tasks[t.ID] {
			return &ValidationError{Entity: t.ID, Rule: RuleDuplicateID, Message: "task id is not unique"}
		}
		tasks[t.ID] = true
		if !agents[t.AgentID] {
			return &ValidationError{Entity: t.ID, Rule: RuleDanglingAgent, Message: fmt.Sprintf("agent %q does not exist", t.AgentID)}
		}
	}

	edges := make(map[Edge]bool, len(w.Edges))
	for _, e := range w.Edges {
		if !tasks[e.From] || !tasks[e.To] {
			return danglingEdge(e)
		}
		if e.From == e.To {
			return &ValidationError{Entity: e.String(), Rule: RuleSelfLoop, Message: "edge points at its own source"}
		}
		if edges[e] {
			return &ValidationError{Entity: e.String(), Rule: RuleDuplicateEdge, Message: "edge listed twice"}
		}
		edges[e] = true
	}

	_, err := w.TopologicalOrder()
	return err
}

func (e Edge) String() string {
	return e.From + "->" + e.To
}

func danglingEdge(e Edge) *ValidationError {
	return &ValidationError{
		Entity:  e.String(),
		Rule:    RuleDanglingEdge,
		Message: "edge references a task that does not exist",
	}
}
