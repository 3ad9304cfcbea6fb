package stage

import (
	"context"
	"fmt"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/internal/util"
)

// Critique evaluates the current idea. When the critic cannot answer, the
// idea is rejected with the minimum score so the loop keeps iterating.
type Critique struct {
	base
}

// NewCritique creates the Critique stage.
func NewCritique(optFns ...func(o *Options)) *Critique {
	return &Critique{base: newBase(core.StageCritique, CriticSystem, optFns)}
}

// Run implements core.Stage.
func (c *Critique) Run(ctx context.Context, s core.GraphState) (core.Patch, error) {
	if s.Artifact == nil {
		return core.Patch{}, ErrNoArtifact
	}
	gw, err := c.critic(s.Config)
	if err != nil {
		return core.Patch{}, err
	}
	system, err := c.system(s)
	if err != nil {
		return core.Patch{}, err
	}

	data := map[string]any{
		"Idea": asJSON(s.Artifact),
		"Hint": extract.FormatHint[core.Critique](),
	}
	if s.Report != nil {
		data["Report"] = asJSON(s.Report)
	}
	user, err := util.Execute(critiqueTmpl, data)
	if err != nil {
		return core.Patch{}, fmt.Errorf("render critique prompt: %w", err)
	}

	crit, out, err := retrier(ctx, &c.base, s.Config, rejectingCritique).Invoke(ctx, gw, core.Prompt{System: system, User: user})
	if err != nil {
		return core.Patch{}, err
	}
	crit.Score = core.ClampScore(crit.Score)
	crit.Degraded = out.Degraded

	c.logger(ctx).Info("critique of v%d: approved=%t score=%d", s.IterationCount, crit.IsApproved, crit.Score)
	c.save(ctx, critiqueFile(s.IterationCount), RenderCritique(core.RunIDFromContext(ctx), s, crit))

	return core.Patch{Critique: &crit}, nil
}

func rejectingCritique(lastErr error) core.Critique {
	return core.Critique{
		IsApproved: false,
		Score:      core.MinScore,
		Feedback:   fmt.Sprintf("Critique failed due to model error: %v", lastErr),
		Degraded:   true,
	}
}
