package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zuzya/try.idea-validator/core"
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	stageStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Width(10)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
)

// progress renders a run's event stream as one line per stage and a summary
// box at the end.
type progress struct {
	out io.Writer
}

func newProgress(out io.Writer) *progress { return &progress{out: out} }

func (p *progress) Header(runID, idea string) {
	fmt.Fprintln(p.out, titleStyle.Render("Validating: "+idea))
	fmt.Fprintln(p.out, detailStyle.Render("run "+runID))
}

func (p *progress) Event(ev core.Event) {
	switch ev.Kind {
	case core.KindStage:
		line := stageStyle.Render(ev.Stage.String()) + " " + okStyle.Render("✓") + " " + detailStyle.Render(stageDetail(ev))
		if degraded(ev) {
			line += " " + degradedStyle.Render("(degraded)")
		}
		fmt.Fprintln(p.out, line)
	case core.KindComplete:
		fmt.Fprintln(p.out, boxStyle.Render(summary(ev.State)))
	case core.KindError:
		fmt.Fprintln(p.out, stageStyle.Render(ev.Stage.String())+" "+failStyle.Render("✗")+" "+ev.ErrorMessage)
	}
}

func stageDetail(ev core.Event) string {
	s := ev.State
	switch ev.Stage {
	case core.StageGenerate:
		if s.Artifact != nil {
			return fmt.Sprintf("v%d %s", s.IterationCount, s.Artifact.Title)
		}
	case core.StageResearch:
		if s.ResearchGuide != nil {
			return fmt.Sprintf("%d questions, %d hypotheses", len(s.ResearchGuide.Questions), len(s.ResearchGuide.Hypotheses))
		}
	case core.StageRecruit:
		names := make([]string, 0, len(s.Personas))
		for _, p := range s.Personas {
			names = append(names, p.Name)
		}
		return strings.Join(names, ", ")
	case core.StageSimulate:
		return fmt.Sprintf("%d interviews", len(s.InterviewResults))
	case core.StageAnalyze:
		if s.Report != nil {
			return fmt.Sprintf("cycle %d: %d confirmed, %d rejected", s.InterviewCycle, len(s.Report.ConfirmedHypotheses), len(s.Report.RejectedHypotheses))
		}
	case core.StageCritique:
		if s.Critique != nil {
			verdict := "rejected"
			if s.Critique.IsApproved {
				verdict = "approved"
			}
			return fmt.Sprintf("%s, score %d/10", verdict, s.Critique.Score)
		}
	}
	return ""
}

func degraded(ev core.Event) bool {
	p := ev.Patch
	switch {
	case p.Artifact != nil:
		return p.Artifact.Degraded
	case p.ResearchGuide != nil:
		return p.ResearchGuide.Degraded
	case p.Report != nil:
		return p.Report.Degraded
	case p.Critique != nil:
		return p.Critique.Degraded
	}
	return false
}

func summary(s core.GraphState) string {
	var b strings.Builder
	if s.Artifact == nil {
		b.WriteString("No idea produced.")
		return b.String()
	}
	b.WriteString(titleStyle.Render(s.Artifact.Title))
	b.WriteString("\n")
	b.WriteString(s.Artifact.Description)
	if s.Artifact.TargetAudience != "" {
		b.WriteString("\nAudience: " + s.Artifact.TargetAudience)
	}
	if s.Artifact.MonetizationStrategy != "" {
		b.WriteString("\nMonetization: " + s.Artifact.MonetizationStrategy)
	}
	fmt.Fprintf(&b, "\nIterations: %d", s.IterationCount)
	if s.Critique != nil {
		verdict := failStyle.Render("not approved")
		if s.Critique.IsApproved {
			verdict = okStyle.Render("approved")
		}
		fmt.Fprintf(&b, "\nVerdict: %s (%d/10)", verdict, s.Critique.Score)
	}
	return b.String()
}
