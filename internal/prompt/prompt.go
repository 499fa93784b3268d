// Package prompt renders a workflow into the text sent to a completion
// provider.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"text/template"

	"github.com/soyeahso/agentgen/internal/workflow"
)

// ConfigurationError reports a missing or unusable rendering setting.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// Settings selects the template.
type Settings struct {
	Provider string // defaults to "watsonx"
	Target   string
}

type templateData struct {
	Target   string
	SpecJSON string
}

var templates = buildTable(map[string]map[string]string{
	"watsonx": watsonxTemplates,
	"openai":  inherit(watsonxTemplates, openaiTemplates),
})

func inherit(base, override map[string]string) map[string]string {
	out := maps.Clone(base)
	maps.Copy(out, override)
	return out
}

func buildTable(src map[string]map[string]string) map[string]map[string]*template.Template {
	table := make(map[string]map[string]*template.Template, len(src))
	for provider, targets := range src {
		table[provider] = make(map[string]*template.Template, len(targets))
		for target, text := range targets {
			name := provider + "/" + target
			table[provider][target] = template.Must(template.New(name).Option("missingkey=error").Parse(text))
		}
	}
	return table
}

// Providers lists the providers that have templates.
func Providers() []string {
	return []string{"openai", "watsonx"}
}

// Render expands the template for s.Provider and s.Target with the workflow
// embedded as indented JSON. Output is byte-identical for equal inputs.
func Render(wf *workflow.Workflow, s Settings) (string, error) {
	target := strings.TrimSpace(s.Target)
	if target == "" {
		return "", &ConfigurationError{Field: "target", Message: "target syntax is required"}
	}
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider == "" {
		provider = "watsonx"
	}
	byTarget, ok := templates[provider]
	if !ok {
		return "", &ConfigurationError{Field: "provider", Message: fmt.Sprintf("no templates for provider %q", s.Provider)}
	}
	tmpl, ok := byTarget[target]
	if !ok {
		tmpl = byTarget["generic"]
	}

	spec, err := specJSON(wf)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Target: target, SpecJSON: spec}); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// specJSON marshals the workflow and escapes any "===" so user text can
// never close the spec fence. The escape keeps the JSON decodable to the
// same strings.
func specJSON(wf *workflow.Workflow) (string, error) {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding workflow: %w", err)
	}
	return strings.ReplaceAll(string(data), "===", `=\u003d=`), nil
}
