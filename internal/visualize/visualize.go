// Package visualize draws a workflow's task graph as Mermaid or Graphviz
// source text. Rendering the diagram itself is left to external tools.
package visualize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/agentgen/internal/workflow"
)

// MaxLabel is the longest node label, in runes, before truncation.
const MaxLabel = 60

// Format names accepted by Render.
const (
	FormatMermaid = "mermaid"
	FormatDOT     = "dot"
)

// Render dispatches on format.
func Render(wf *workflow.Workflow, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatMermaid, "":
		return Mermaid(wf), nil
	case FormatDOT:
		return DOT(wf), nil
	default:
		return "", fmt.Errorf("unknown diagram format %q", format)
	}
}

// Mermaid returns a top-down flowchart with one node per task.
func Mermaid(wf *workflow.Workflow) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	if wf == nil {
		return b.String()
	}
	for _, t := range wf.Tasks {
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", nodeID(t.ID), label(t))
	}
	for _, e := range wf.Edges {
		fmt.Fprintf(&b, "    %s --> %s\n", nodeID(e.From), nodeID(e.To))
	}
	return b.String()
}

// DOT returns a left-to-right Graphviz digraph.
func DOT(wf *workflow.Workflow) string {
	var b strings.Builder
	b.WriteString("digraph G {\n    rankdir=LR;\n")
	if wf != nil {
		for _, t := range wf.Tasks {
			fmt.Fprintf(&b, "    %q [label=%q];\n", t.ID, label(t))
		}
		for _, e := range wf.Edges {
			fmt.Fprintf(&b, "    %q -> %q;\n", e.From, e.To)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func label(t workflow.Task) string {
	s := t.Goal
	if strings.TrimSpace(s) == "" {
		s = t.ID
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, `"`, "'")
	if utf8.RuneCountInString(s) > MaxLabel {
		r := []rune(s)
		s = string(r[:MaxLabel-3]) + "..."
	}
	return s
}

// nodeID makes a task id safe as a bare Mermaid node name.
func nodeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
