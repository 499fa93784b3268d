package generator

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

const orchestrateHeader = "# Auto-generated watsonx Orchestrate definitions\n"

// nativeAgent is one watsonx Orchestrate native agent document.
type nativeAgent struct {
	SpecVersion   string   `yaml:"spec_version"`
	Kind          string   `yaml:"kind"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Instructions  string   `yaml:"instructions"`
	LLM           string   `yaml:"llm"`
	Style         string   `yaml:"style"`
	Collaborators []string `yaml:"collaborators"`
	Tools         []string `yaml:"tools"`
	KnowledgeBase []string `yaml:"knowledge_base"`
	Hidden        bool     `yaml:"hidden"`
}

// flowDocument orders the agents' tasks.
type flowDocument struct {
	SpecVersion string     `yaml:"spec_version"`
	Kind        string     `yaml:"kind"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []flowStep `yaml:"steps"`
}

type flowStep struct {
	ID        string   `yaml:"id"`
	Agent     string   `yaml:"agent"`
	Goal      string   `yaml:"goal"`
	DependsOn []string `yaml:"depends_on"`
}

func orchestrateName(id string) string {
	return strings.ReplaceAll(id, "_", "-")
}

func orchestrateLLM(model string) string {
	if strings.HasPrefix(model, "watsonx/") {
		return model
	}
	return "watsonx/" + model
}

// renderOrchestrate emits one native agent document per agent, then a
// single flow document with one step per task.
func renderOrchestrate(v *view) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(orchestrateHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	for _, a := range v.Agents {
		instructions := "You are a helpful AI agent."
		var lines []string
		for _, t := range v.Tasks {
			if t.AgentID == a.ID {
				lines = append(lines, "- "+t.Goal)
			}
		}
		if len(lines) > 0 {
			instructions = "You are an AI agent that can:\n" + strings.Join(lines, "\n")
		}
		model := v.Model
		if a.LLM != "" {
			model = a.LLM
		}
		doc := nativeAgent{
			SpecVersion:   "v1",
			Kind:          "native",
			Name:          orchestrateName(a.ID),
			Description:   a.Role,
			Instructions:  instructions,
			LLM:           orchestrateLLM(model),
			Style:         v.Style,
			Collaborators: []string{},
			Tools:         nonNil(a.Tools),
			KnowledgeBase: []string{},
		}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}

	flow := flowDocument{
		SpecVersion: "v1",
		Kind:        "flow",
		Name:        "workflow",
		Description: "Task ordering for the agents above",
	}
	for _, t := range v.Tasks {
		flow.Steps = append(flow.Steps, flowStep{
			ID:        t.ID,
			Agent:     orchestrateName(t.AgentID),
			Goal:      t.Goal,
			DependsOn: nonNil(t.DepIDs),
		})
	}
	if err := enc.Encode(flow); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
