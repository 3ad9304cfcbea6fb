package stage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/internal/util"
)

// Frontmatter is the YAML header of every markdown artifact.
type Frontmatter struct {
	RunID     string `yaml:"run_id"`
	Stage     string `yaml:"stage"`
	Iteration int    `yaml:"iteration"`
	Cycle     int    `yaml:"cycle,omitempty"`
	Title     string `yaml:"title,omitempty"`
	Degraded  bool   `yaml:"degraded,omitempty"`
}

const fmDelim = "---\n"

// ErrNoFrontmatter is returned by ParseDocument for text without a header.
var ErrNoFrontmatter = errors.New("document has no frontmatter")

// Document joins a frontmatter header and a markdown body.
func Document(fm Frontmatter, body string) string {
	b, err := yaml.Marshal(fm)
	if err != nil {
		return body
	}
	return fmDelim + string(b) + fmDelim + "\n" + body
}

// ParseDocument splits a document produced by Document.
func ParseDocument(doc string) (Frontmatter, string, error) {
	var fm Frontmatter
	if !strings.HasPrefix(doc, fmDelim) {
		return fm, doc, ErrNoFrontmatter
	}
	rest := doc[len(fmDelim):]
	end := strings.Index(rest, fmDelim)
	if end < 0 {
		return fm, doc, ErrNoFrontmatter
	}
	if err := yaml.NewDecoder(bytes.NewBufferString(rest[:end])).Decode(&fm); err != nil {
		return fm, doc, fmt.Errorf("decode frontmatter: %w", err)
	}
	return fm, strings.TrimPrefix(rest[end+len(fmDelim):], "\n"), nil
}

var (
	ideaDoc = util.MustParse("idea_doc", `# {{.Title}}
{{if .Degraded}}
> Generation failed; this is a placeholder.
{{end}}
## Description
{{.Description}}

## Target audience
{{.TargetAudience}}

## Monetization
{{.MonetizationStrategy}}
`)

	guideDoc = util.MustParse("guide_doc", `# Interview Guide: {{.Title}}

## Target Personas
{{range $i, $p := .Guide.TargetPersonas}}
### Persona {{inc $i}}: {{$p.Name}}
- **Role:** {{$p.Role}}
{{- if $p.Archetype}}
- **Archetype:** {{$p.Archetype}}{{end}}
{{- if $p.Background}}
- **Context:** {{$p.Background}}{{end}}
{{end}}
## Hypotheses to Test
{{range .Guide.Hypotheses}}- **[{{.Type}}]** {{.Description}}
{{end}}
## Questions
{{numbered .Guide.Questions}}`)

	interviewsDoc = util.MustParse("interviews_doc", `# User Interviews: {{.Title}}
{{range .Results}}
## Interview with {{.Persona.Name}}
**Role:** {{.Persona.Role}}
**Pain Level:** {{.PainLevel}}/10
**Willingness to Pay:** {{.WillingnessToPay}}/10
{{- if .Degraded}}
**Simulated without a model.**{{end}}

### Transcript Summary
{{.TranscriptSummary}}
{{if .Transcript}}
### Transcript
{{range .Transcript}}**{{.Speaker}}:** {{.Text}}

{{end}}{{end}}
---
{{end}}`)

	reportDoc = util.MustParse("report_doc", `# Research Report: {{.Title}}

## Confirmed Hypotheses
{{bullets .Report.ConfirmedHypotheses}}
## Rejected Hypotheses
{{bullets .Report.RejectedHypotheses}}
## Key Insights
{{bullets .Report.KeyInsights}}
## Pivot Recommendation
{{.Report.PivotRecommendation}}
`)

	critiqueDoc = util.MustParse("critique_doc", `# Critique: {{.Title}}

**Verdict:** {{if .Critique.IsApproved}}approved{{else}}rejected{{end}}
**Score:** {{.Critique.Score}}/10

{{.Critique.Feedback}}
`)
)

func titleOf(s core.GraphState) string {
	if s.Artifact == nil {
		return s.SeedInput
	}
	return s.Artifact.Title
}

func render(tmplName string, exec func() (string, error)) string {
	out, err := exec()
	if err != nil {
		return fmt.Sprintf("<!-- %s render failed: %v -->\n", tmplName, err)
	}
	return out
}

// RenderIdea renders an idea version.
func RenderIdea(runID string, version int, idea core.Idea) string {
	body := render("idea", func() (string, error) { return util.Execute(ideaDoc, idea) })
	return Document(Frontmatter{
		RunID: runID, Stage: core.StageGenerate.String(), Iteration: version,
		Title: idea.Title, Degraded: idea.Degraded,
	}, body)
}

// RenderGuide renders an interview guide for the cycle.
func RenderGuide(runID string, s core.GraphState, cycle int, g core.Guide) string {
	data := struct {
		Title string
		Guide core.Guide
	}{titleOf(s), g}
	body := render("guide", func() (string, error) { return util.Execute(guideDoc, data) })
	return Document(Frontmatter{
		RunID: runID, Stage: core.StageResearch.String(), Iteration: s.IterationCount,
		Cycle: cycle, Title: titleOf(s), Degraded: g.Degraded,
	}, body)
}

// RenderInterviews renders every interview result of the cycle.
func RenderInterviews(runID string, s core.GraphState, cycle int) string {
	data := struct {
		Title   string
		Results []core.InterviewResult
	}{titleOf(s), s.InterviewResults}
	body := render("interviews", func() (string, error) { return util.Execute(interviewsDoc, data) })
	return Document(Frontmatter{
		RunID: runID, Stage: core.StageSimulate.String(), Iteration: s.IterationCount,
		Cycle: cycle, Title: titleOf(s),
	}, body)
}

// RenderReport renders a research report.
func RenderReport(runID string, s core.GraphState, cycle int, r core.Report) string {
	data := struct {
		Title  string
		Report core.Report
	}{titleOf(s), r}
	body := render("report", func() (string, error) { return util.Execute(reportDoc, data) })
	return Document(Frontmatter{
		RunID: runID, Stage: core.StageAnalyze.String(), Iteration: s.IterationCount,
		Cycle: cycle, Title: titleOf(s), Degraded: r.Degraded,
	}, body)
}

// RenderCritique renders a critique of the current idea version.
func RenderCritique(runID string, s core.GraphState, c core.Critique) string {
	data := struct {
		Title    string
		Critique core.Critique
	}{titleOf(s), c}
	body := render("critique", func() (string, error) { return util.Execute(critiqueDoc, data) })
	return Document(Frontmatter{
		RunID: runID, Stage: core.StageCritique.String(), Iteration: s.IterationCount,
		Title: titleOf(s), Degraded: c.Degraded,
	}, body)
}

// Artifact filenames.
func ideaFile(version int) string     { return fmt.Sprintf("idea_v%d.md", version) }
func guideFile(cycle int) string      { return fmt.Sprintf("interview_guide_c%d.md", cycle) }
func interviewsFile(cycle int) string { return fmt.Sprintf("interviews_c%d.md", cycle) }
func reportFile(cycle int) string     { return fmt.Sprintf("research_report_c%d.md", cycle) }
func critiqueFile(version int) string { return fmt.Sprintf("critique_v%d.md", version) }
