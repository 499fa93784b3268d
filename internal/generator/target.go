package generator

import (
	"fmt"
	"strings"
)

// Target is one supported output syntax. The set is closed: adding a
// target means adding a constant, a renderer and a template.
type Target string

const (
	WatsonxOrchestrate Target = "watsonx_orchestrate"
	CrewAI             Target = "crewai"
	CrewAIFlow         Target = "crewai_flow"
	LangGraph          Target = "langgraph"
	ReAct              Target = "react"
	BeeAI              Target = "beeai"
)

// Targets lists every supported target in display order.
func Targets() []Target {
	return []Target{WatsonxOrchestrate, CrewAI, CrewAIFlow, LangGraph, ReAct, BeeAI}
}

// ParseTarget maps a target name to a Target.
func ParseTarget(name string) (Target, error) {
	t := Target(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Targets() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown target %q (want one of %v)", name, Targets())
}

// Extension is the file extension of the artifact, without the dot.
func (t Target) Extension() string {
	if t == WatsonxOrchestrate {
		return "yaml"
	}
	return "py"
}

// Executable reports whether the artifact is a runnable script that can be
// wrapped as a service.
func (t Target) Executable() bool {
	return t.Extension() == "py"
}

// ImplicitOrder reports whether the target encodes edges only through the
// order of its step statements.
func (t Target) ImplicitOrder() bool {
	return t == ReAct || t == BeeAI
}

func (t Target) String() string { return string(t) }
