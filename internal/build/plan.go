// Package build executes a build plan: one leaf builder per task runs
// concurrently, then the merger lists what was written.
package build

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/soyeahso/agentgen/internal/generator"
)

// Kind selects the leaf builder for a task.
type Kind string

const (
	KindPythonTool      Kind = "python_tool"      // generated source package
	KindMCPTool         Kind = "mcp_tool"         // reference to an existing gateway component
	KindAgentDefinition Kind = "agent_definition" // declarative agent definition
)

// Kinds lists every kind in the order leaf directories are described.
func Kinds() []Kind {
	return []Kind{KindPythonTool, KindMCPTool, KindAgentDefinition}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPythonTool, KindMCPTool, KindAgentDefinition:
		return true
	}
	return false
}

// Category is the directory under the target root that holds tasks of k.
func (k Kind) Category() string {
	switch k {
	case KindPythonTool:
		return "tool_sources"
	case KindMCPTool:
		return "mcp_servers"
	case KindAgentDefinition:
		return "agents"
	}
	return ""
}

// Task is one unit of build work.
type Task struct {
	Kind    Kind   `json:"kind" jsonschema:"enum=python_tool,enum=mcp_tool,enum=agent_definition"`
	Name    string `json:"name" jsonschema:"pattern=^[A-Za-z0-9][A-Za-z0-9_-]*$"`
	Gateway string `json:"gateway,omitempty" jsonschema:"description=MCP gateway that serves an mcp_tool"`
}

func (t Task) String() string {
	return string(t.Kind) + "/" + t.Name
}

// Plan is the output of the planner and the input of a build.
type Plan struct {
	SelectedTarget string   `json:"selected_target"`
	UseCase        string   `json:"use_case,omitempty"`
	ProjectTree    []string `json:"project_tree"`
	BuildTasks     []Task   `json:"build_tasks"`
}

// UnmarshalJSON also accepts "selected_framework" for the target.
func (p *Plan) UnmarshalJSON(data []byte) error {
	type plain Plan
	var aux struct {
		plain
		SelectedFramework string `json:"selected_framework"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Plan(aux.plain)
	if p.SelectedTarget == "" {
		p.SelectedTarget = aux.SelectedFramework
	}
	return nil
}

var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Validate checks the plan before any file is written. The error names
// the first offending task.
func (p *Plan) Validate() error {
	if _, err := generator.ParseTarget(p.SelectedTarget); err != nil {
		return &BuildTaskError{Name: "plan", Kind: "selected_target", Err: err}
	}
	if len(p.BuildTasks) == 0 {
		return &BuildTaskError{Name: "plan", Kind: "build_tasks", Err: fmt.Errorf("plan has no build tasks")}
	}
	seen := make(map[Task]bool, len(p.BuildTasks))
	for _, t := range p.BuildTasks {
		if !t.Kind.Valid() {
			return &BuildTaskError{Name: t.Name, Kind: t.Kind, Err: fmt.Errorf("unknown kind %q", t.Kind)}
		}
		if !safeName.MatchString(t.Name) {
			return &BuildTaskError{Name: t.Name, Kind: t.Kind, Err: fmt.Errorf("name %q is not a single safe path segment", t.Name)}
		}
		key := Task{Kind: t.Kind, Name: t.Name}
		if seen[key] {
			return &BuildTaskError{Name: t.Name, Kind: t.Kind, Err: fmt.Errorf("duplicate task")}
		}
		seen[key] = true
	}
	return nil
}

// BuildTaskError reports the task that stopped a build.
type BuildTaskError struct {
	Name string
	Kind Kind
	Err  error
}

func (e *BuildTaskError) Error() string {
	return fmt.Sprintf("build task %s (%s): %v", e.Name, e.Kind, e.Err)
}

func (e *BuildTaskError) Unwrap() error { return e.Err }
