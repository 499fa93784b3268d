// Package generator renders a workflow into one of a closed set of target
// syntaxes. Generators only read the workflow and never write files.
package generator

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/soyeahso/agentgen/internal/workflow"
)

// DefaultServicePort is used by the service wrapper when Settings leaves
// ServicePort unset.
const DefaultServicePort = 8080

// DefaultModel is used when Settings leaves Model unset.
const DefaultModel = "ibm/granite-3-8b-instruct"

// Settings tunes rendering.
type Settings struct {
	Model       string
	ServicePort int
	AgentStyle  string // watsonx_orchestrate only; "default" when empty
}

func (s Settings) withDefaults() Settings {
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.ServicePort == 0 {
		s.ServicePort = DefaultServicePort
	}
	if s.AgentStyle == "" {
		s.AgentStyle = "default"
	}
	return s
}

// Artifact is the rendered output of one generator.
type Artifact struct {
	Target    Target
	Extension string
	Content   []byte
}

// Filename returns base with the artifact's extension appended.
func (a *Artifact) Filename(base string) string {
	return base + "." + a.Extension
}

// GenerationError reports a workflow that cannot be rendered.
type GenerationError struct {
	Target  Target
	Entity  string
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %s: %s", e.Target, e.Entity, e.Message)
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("generator").Funcs(template.FuncMap{
	"py":      pyString,
	"pylist":  pyList,
	"comment": comment,
	"join":    strings.Join,
	"listen":  listenExpr,
}).ParseFS(templateFS, "templates/*.tmpl"))

// Generate renders wf for target. With wrapAsService set, executable
// targets get a FastAPI /invoke wrapper appended after the body; other
// targets ignore the flag.
func Generate(wf *workflow.Workflow, target Target, s Settings, wrapAsService bool) (*Artifact, error) {
	parsed, err := ParseTarget(string(target))
	if err != nil {
		return nil, &GenerationError{Target: target, Entity: "target", Message: err.Error()}
	}
	target = parsed
	s = s.withDefaults()

	v, err := newView(wf, target, s)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch target {
	case WatsonxOrchestrate:
		body, err = renderOrchestrate(v)
	case BeeAI:
		if !strings.Contains(v.Model, ":") {
			v.Model = "watsonx:" + v.Model
		}
		body, err = renderTemplate(target, v)
	default:
		body, err = renderTemplate(target, v)
	}
	if err != nil {
		return nil, &GenerationError{Target: target, Entity: "template", Message: err.Error()}
	}

	body = ensureTrailingNewline(body)
	if wrapAsService && target.Executable() {
		body, err = WrapService(body, s.ServicePort)
		if err != nil {
			return nil, &GenerationError{Target: target, Entity: "service", Message: err.Error()}
		}
	}

	return &Artifact{Target: target, Extension: target.Extension(), Content: body}, nil
}

// WrapService appends the HTTP /invoke wrapper to an executable script that
// defines main(payload). The script itself is left untouched.
func WrapService(code []byte, port int) ([]byte, error) {
	if port <= 0 {
		port = DefaultServicePort
	}
	var buf bytes.Buffer
	buf.Write(ensureTrailingNewline(code))
	buf.WriteString("\n\n")
	if err := templates.ExecuteTemplate(&buf, "service.py.tmpl", struct{ Port int }{port}); err != nil {
		return nil, err
	}
	return ensureTrailingNewline(buf.Bytes()), nil
}

func renderTemplate(target Target, v *view) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(target)+".py.tmpl", v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ensureTrailingNewline(b []byte) []byte {
	b = bytes.TrimRight(b, "\n")
	return append(b, '\n')
}

// pyString quotes s as a Python string literal. Go's escapes (\n, \t, \",
// \\, \xNN, \uNNNN, \UNNNNNNNN) are all valid in Python.
func pyString(s string) string {
	return strconv.Quote(s)
}

func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = pyString(s)
	}
	return strings.Join(quoted, ", ")
}

// comment flattens s onto a single line for use after "#".
func comment(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// listenExpr builds the @listen argument for a flow method.
func listenExpr(deps []string) string {
	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = pyString("run_" + d)
	}
	if len(names) == 1 {
		return names[0]
	}
	return "and_(" + strings.Join(names, ", ") + ")"
}
