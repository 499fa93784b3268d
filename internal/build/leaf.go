package build

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// file is one output of a leaf builder, relative to the task directory.
type file struct {
	rel  string
	data []byte
}

// leafDir is the only directory the task may write in.
func leafDir(targetRoot string, t Task) string {
	return filepath.Join(targetRoot, t.Kind.Category(), t.Name)
}

// ExpectedPaths lists the manifest entries a task produces, relative to the
// target root.
func ExpectedPaths(p *Plan, t Task) []string {
	files, err := leafFiles(p, t, "")
	if err != nil {
		return nil
	}
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = t.Kind.Category() + "/" + t.Name + "/" + f.rel
	}
	return out
}

// runLeaf renders and writes every file of t under its own directory.
func runLeaf(ctx context.Context, targetRoot string, p *Plan, t Task, model string) (written int, err error) {
	files, err := leafFiles(p, t, model)
	if err != nil {
		return 0, err
	}
	dir := leafDir(targetRoot, t)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		changed, err := writeFileIfChanged(filepath.Join(dir, filepath.FromSlash(f.rel)), f.data, 0o644)
		if err != nil {
			return written, err
		}
		if changed {
			written++
		}
	}
	return written, nil
}

func leafFiles(p *Plan, t Task, model string) ([]file, error) {
	switch t.Kind {
	case KindPythonTool:
		return pythonToolFiles(t), nil
	case KindMCPTool:
		return mcpToolFiles(t)
	case KindAgentDefinition:
		return agentDefinitionFiles(p, t, model)
	}
	return nil, fmt.Errorf("unknown kind %q", t.Kind)
}

func pythonModule(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func pythonToolFiles(t Task) []file {
	mod := pythonModule(t.Name)
	initPy := fmt.Sprintf("\"\"\"%s tool package.\"\"\"\n\nfrom .main import run\n\n__all__ = [\"run\"]\n", t.Name)

	mainPy := fmt.Sprintf(`"""Entry point for the %[1]s tool."""

import json
import sys
from typing import Any, Dict


def run(payload: Dict[str, Any]) -> Dict[str, Any]:
    """Execute the %[1]s tool."""
    return {"tool": %[2]q, "input": payload}


if __name__ == "__main__":
    data = json.load(sys.stdin) if not sys.stdin.isatty() else {}
    print(json.dumps(run(data)))
`, t.Name, t.Name)

	pyproject := fmt.Sprintf(`[project]
name = %[1]q
version = "0.1.0"
description = "Generated tool %[1]s"
requires-python = ">=3.10"
dependencies = []

[project.scripts]
%[1]s = "%[2]s.main:run"

[build-system]
requires = ["hatchling"]
build-backend = "hatchling.build"

[tool.hatch.build.targets.wheel]
packages = ["src/%[2]s"]
`, t.Name, mod)

	return []file{
		{rel: "pyproject.toml", data: []byte(pyproject)},
		{rel: "src/" + mod + "/__init__.py", data: []byte(initPy)},
		{rel: "src/" + mod + "/main.py", data: []byte(mainPy)},
	}
}

type mcpReference struct {
	Name    string `yaml:"name"`
	Gateway string `yaml:"gateway"`
	Kind    string `yaml:"kind"`
}

func mcpToolFiles(t Task) ([]file, error) {
	gateway := t.Gateway
	if gateway == "" {
		gateway = t.Name
	}
	data, err := marshalYAML(mcpReference{Name: t.Name, Gateway: gateway, Kind: string(KindMCPTool)})
	if err != nil {
		return nil, err
	}
	return []file{
		{rel: ".placeholder", data: []byte{}},
		{rel: "reference.yaml", data: data},
	}, nil
}

type agentDefinition struct {
	SpecVersion   string   `yaml:"spec_version"`
	Kind          string   `yaml:"kind"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Instructions  string   `yaml:"instructions"`
	LLM           string   `yaml:"llm"`
	Style         string   `yaml:"style"`
	Collaborators []string `yaml:"collaborators"`
	Tools         []string `yaml:"tools"`
}

func agentDefinitionFiles(p *Plan, t Task, model string) ([]file, error) {
	tools := []string{}
	for _, other := range p.BuildTasks {
		if other.Kind != KindAgentDefinition {
			tools = append(tools, other.Name)
		}
	}
	desc := strings.TrimSpace(p.UseCase)
	if desc == "" {
		desc = "Generated agent " + t.Name
	}
	llm := model
	if llm != "" && !strings.HasPrefix(llm, "watsonx/") {
		llm = "watsonx/" + llm
	}
	def := agentDefinition{
		SpecVersion:   "v1",
		Kind:          "native",
		Name:          strings.ReplaceAll(t.Name, "_", "-"),
		Description:   desc,
		Instructions:  "Use the available tools to accomplish: " + desc,
		LLM:           llm,
		Style:         "default",
		Collaborators: []string{},
		Tools:         tools,
	}
	data, err := marshalYAML(def)
	if err != nil {
		return nil, err
	}
	return []file{{rel: "agent.yaml", data: data}}, nil
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
