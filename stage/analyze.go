package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/internal/util"
)

// NoInterviewsRecommendation is the pivot recommendation of the report
// produced for a cycle without any completed interview.
const NoInterviewsRecommendation = "No interviews completed in this cycle; keep the current direction and rerun research."

// Analyze turns the cycle's interview results into a research report and
// closes the interview cycle.
type Analyze struct {
	base
}

// NewAnalyze creates the Analyze stage.
func NewAnalyze(optFns ...func(o *Options)) *Analyze {
	return &Analyze{base: newBase(core.StageAnalyze, AnalystSystem, optFns)}
}

// Run implements core.Stage.
func (a *Analyze) Run(ctx context.Context, s core.GraphState) (core.Patch, error) {
	cycle := s.InterviewCycle + 1
	log := a.logger(ctx)

	var report core.Report
	if len(s.InterviewResults) == 0 {
		log.Warn("cycle %d has no interviews", cycle)
		report = emptyReport()
	} else {
		var err error
		report, err = a.analyze(ctx, s)
		if err != nil {
			return core.Patch{}, err
		}
	}

	log.Info("report for cycle %d: %d confirmed, %d rejected", cycle, len(report.ConfirmedHypotheses), len(report.RejectedHypotheses))
	a.save(ctx, reportFile(cycle), RenderReport(core.RunIDFromContext(ctx), s, cycle, report))

	return core.Patch{Report: &report, IncInterviewCycle: true}, nil
}

func (a *Analyze) analyze(ctx context.Context, s core.GraphState) (core.Report, error) {
	gw, err := a.generator(s.Config)
	if err != nil {
		return core.Report{}, err
	}
	system, err := a.system(s)
	if err != nil {
		return core.Report{}, err
	}

	hypotheses := []string{}
	if s.ResearchGuide != nil {
		for _, h := range s.ResearchGuide.Hypotheses {
			hypotheses = append(hypotheses, fmt.Sprintf("[%s] %s", h.Type, h.Description))
		}
	}
	var interviews strings.Builder
	for i, r := range s.InterviewResults {
		fmt.Fprintf(&interviews, "INTERVIEW %d (%s, %s):\nSummary: %s\nPain Level: %d/10\nWillingness to Pay: %d/10\n\n",
			i+1, r.Persona.Name, r.Persona.Role, r.TranscriptSummary, r.PainLevel, r.WillingnessToPay)
	}

	user, err := util.Execute(analyzeTmpl, map[string]any{
		"Idea":       asJSON(s.Artifact),
		"Hypotheses": hypotheses,
		"Interviews": interviews.String(),
		"Hint":       extract.FormatHint[core.Report](),
	})
	if err != nil {
		return core.Report{}, fmt.Errorf("render analyze prompt: %w", err)
	}

	report, out, err := retrier(ctx, &a.base, s.Config, degradedReport).Invoke(ctx, gw, core.Prompt{System: system, User: user})
	if err != nil {
		return core.Report{}, err
	}
	report.Degraded = out.Degraded
	return report, nil
}

func emptyReport() core.Report {
	return core.Report{
		KeyInsights:         []string{},
		ConfirmedHypotheses: []string{},
		RejectedHypotheses:  []string{},
		PivotRecommendation: NoInterviewsRecommendation,
	}
}

func degradedReport(lastErr error) core.Report {
	r := emptyReport()
	r.PivotRecommendation = fmt.Sprintf("Analysis failed (%v); keep the current direction.", lastErr)
	r.Degraded = true
	return r
}
