package stage

import (
	"context"
	"fmt"
	"text/template"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/internal/util"
)

// Generate produces the first idea from the seed input and revises it on
// later passes, using the research report or the critique as feedback.
type Generate struct {
	base
}

// NewGenerate creates the Generate stage.
func NewGenerate(optFns ...func(o *Options)) *Generate {
	return &Generate{base: newBase(core.StageGenerate, GeneratorSystem, optFns)}
}

// Run implements core.Stage.
func (g *Generate) Run(ctx context.Context, s core.GraphState) (core.Patch, error) {
	gw, err := g.generator(s.Config)
	if err != nil {
		return core.Patch{}, err
	}

	prompt, err := g.prompt(s)
	if err != nil {
		return core.Patch{}, err
	}

	idea, out, err := retrier(ctx, &g.base, s.Config, degradedIdea).Invoke(ctx, gw, prompt)
	if err != nil {
		return core.Patch{}, err
	}
	idea.Degraded = out.Degraded

	version := s.IterationCount + 1
	g.logger(ctx).Info("idea v%d %q after %d attempt(s)", version, idea.Title, out.Attempts)
	g.save(ctx, ideaFile(version), RenderIdea(core.RunIDFromContext(ctx), version, idea))

	return core.Patch{
		Artifact:     &idea,
		IncIteration: true,
		Resets:       core.ResetGuide | core.ResetCritique | core.ResetReport | core.ResetInterviewCycle,
	}, nil
}

// prompt picks the first-pass, research-pivot or critique-pivot request.
func (g *Generate) prompt(s core.GraphState) (core.Prompt, error) {
	system, err := g.system(s)
	if err != nil {
		return core.Prompt{}, err
	}

	data := map[string]any{
		"Seed": s.SeedInput,
		"Hint": extract.FormatHint[core.Idea](),
	}

	var tmpl *template.Template
	switch {
	case s.IterationCount == 0 || s.Artifact == nil:
		tmpl = generateFirstTmpl
	case s.Report != nil && s.Critique == nil:
		tmpl = generateResearchTmpl
		data["Idea"] = asJSON(s.Artifact)
		data["Report"] = asJSON(s.Report)
	case s.Critique != nil:
		tmpl = generateCritiqueTmpl
		data["Idea"] = asJSON(s.Artifact)
		data["Critique"] = asJSON(s.Critique)
	default:
		tmpl = generateFirstTmpl
	}

	user, err := util.Execute(tmpl, data)
	if err != nil {
		return core.Prompt{}, fmt.Errorf("render generate prompt: %w", err)
	}
	return core.Prompt{System: system, User: user}, nil
}

func degradedIdea(lastErr error) core.Idea {
	return core.Idea{
		Title:                "Generation failed",
		Description:          fmt.Sprintf("The model did not return a usable idea: %v", lastErr),
		MonetizationStrategy: "n/a",
		TargetAudience:       "n/a",
		Degraded:             true,
	}
}
