package stage

import (
	"context"
	"fmt"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/internal/util"
	"github.com/zuzya/try.idea-validator/persona"
)

// Research drafts the interview guide for the current idea: target personas,
// Mom Test questions and the hypotheses the interviews must test.
type Research struct {
	base
}

// NewResearch creates the Research stage.
func NewResearch(optFns ...func(o *Options)) *Research {
	return &Research{base: newBase(core.StageResearch, ResearchSystem, optFns)}
}

// Run implements core.Stage.
func (r *Research) Run(ctx context.Context, s core.GraphState) (core.Patch, error) {
	if s.Artifact == nil {
		return core.Patch{}, ErrNoArtifact
	}
	gw, err := r.generator(s.Config)
	if err != nil {
		return core.Patch{}, err
	}

	system, err := r.system(s)
	if err != nil {
		return core.Patch{}, err
	}
	user, err := util.Execute(researchTmpl, map[string]any{
		"Idea":  asJSON(s.Artifact),
		"Count": s.Config.PersonaCount,
		"Hint":  extract.FormatHint[core.Guide](),
	})
	if err != nil {
		return core.Patch{}, fmt.Errorf("render research prompt: %w", err)
	}

	fallback := func(error) core.Guide { return defaultGuide(*s.Artifact, s.Config.PersonaCount) }
	guide, out, err := retrier(ctx, &r.base, s.Config, fallback).Invoke(ctx, gw, core.Prompt{System: system, User: user})
	if err != nil {
		return core.Patch{}, err
	}
	guide.Degraded = out.Degraded
	for i := range guide.TargetPersonas {
		if guide.TargetPersonas[i].Source == "" {
			guide.TargetPersonas[i].Source = SourceGuide
		}
	}

	cycle := s.InterviewCycle + 1
	r.logger(ctx).Info("guide for cycle %d: %d personas, %d questions, %d hypotheses",
		cycle, len(guide.TargetPersonas), len(guide.Questions), len(guide.Hypotheses))
	r.save(ctx, guideFile(cycle), RenderGuide(core.RunIDFromContext(ctx), s, cycle, guide))

	return core.Patch{
		ResearchGuide: &guide,
		Resets:        core.ResetInterviews | core.ResetPersonas,
	}, nil
}

// defaultGuide is the deterministic guide used when the model cannot
// produce one.
func defaultGuide(idea core.Idea, personas int) core.Guide {
	return core.Guide{
		TargetPersonas: persona.Synthetic(personas),
		Questions: []string{
			"Tell me about the last time you ran into this problem.",
			"What did you do about it?",
			"What does solving it cost you today, in time or money?",
			"What have you tried that did not work?",
			"Who else is involved when this comes up?",
		},
		Hypotheses: []core.Hypothesis{
			{Type: core.HypothesisProblem, Description: fmt.Sprintf("%s have a recurring problem this idea addresses", idea.TargetAudience)},
			{Type: core.HypothesisSolution, Description: fmt.Sprintf("%q solves it better than current workarounds", idea.Title)},
			{Type: core.HypothesisMonetization, Description: fmt.Sprintf("They would pay for it: %s", idea.MonetizationStrategy)},
		},
		Degraded: true,
	}
}
