package util

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompt templates are plain text: no HTML escaping, and a missing map key
// renders as the zero value instead of "<no value>".
var funcs = template.FuncMap{
	"default":  orDefault,
	"inc":      func(i int) int { return i + 1 },
	"upper":    strings.ToUpper,
	"bullets":  func(items []string) string { return list(items, func(int) string { return "-" }) },
	"numbered": func(items []string) string { return list(items, func(i int) string { return fmt.Sprintf("%d.", i+1) }) },
}

func orDefault(fallback, v any) any {
	if v == nil || v == "" {
		return fallback
	}
	return v
}

func list(items []string, marker func(i int) string) string {
	var b strings.Builder
	for i, it := range items {
		b.WriteString(marker(i))
		b.WriteByte(' ')
		b.WriteString(it)
		b.WriteByte('\n')
	}
	return b.String()
}

func parse(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
}

// MustParse parses a prompt template at init time and panics on syntax errors.
func MustParse(name, text string) *template.Template {
	return template.Must(parse(name, text))
}

// Execute renders a parsed template to a string.
func Execute(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// RenderTemplate parses and renders text in one go. Text without template
// actions is returned as is.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := parse("prompt", text)
	if err != nil {
		return "", err
	}
	return Execute(tmpl, data)
}
