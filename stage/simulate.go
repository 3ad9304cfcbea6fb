package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/flow"
	"github.com/zuzya/try.idea-validator/internal/util"
)

// Stub scores reported for interviews simulated without a model.
const (
	StubPainLevel        = 7
	StubWillingnessToPay = 4
)

// Speakers in a multi-turn transcript.
const (
	SpeakerInterviewer = "interviewer"
	SpeakerRespondent  = "respondent"
)

// interviewSummary is what the model reports about one interview. Persona
// and transcript are filled in by the stage.
type interviewSummary struct {
	TranscriptSummary string `json:"transcript_summary"`
	PainLevel         int    `json:"pain_level"`
	WillingnessToPay  int    `json:"willingness_to_pay"`
}

// Simulate interviews every recruited persona. It is a fan-out stage: the
// engine runs one task per persona concurrently and merges the results.
// A task that fails after its retries contributes nothing.
type Simulate struct {
	base
}

// NewSimulate creates the Simulate stage.
func NewSimulate(optFns ...func(o *Options)) *Simulate {
	return &Simulate{base: newBase(core.StageSimulate, RespondentSystem, optFns)}
}

// Plan implements core.FanOutStage.
func (sim *Simulate) Plan(s core.GraphState) []core.Task {
	return flow.TasksFor(s.Personas,
		func(i int, p core.Persona) string { return fmt.Sprintf("interview-%d-%s", i+1, p.Name) },
		sim.interview)
}

// AfterFanOut implements core.FanOutFinisher: it persists the merged
// interviews of the cycle.
func (sim *Simulate) AfterFanOut(ctx context.Context, s core.GraphState) {
	cycle := s.InterviewCycle + 1
	sim.save(ctx, interviewsFile(cycle), RenderInterviews(core.RunIDFromContext(ctx), s, cycle))
}

func (sim *Simulate) interview(ctx context.Context, s core.GraphState, p core.Persona) (core.Patch, error) {
	var (
		result core.InterviewResult
		err    error
	)
	switch {
	case s.Config.DegradedMode:
		result = StubInterview(p)
	case s.Config.InterviewTurns > 0:
		result, err = sim.dialogue(ctx, s, p)
	default:
		result, err = sim.singleShot(ctx, s, p)
	}
	if err != nil {
		return core.Patch{}, err
	}

	sim.logger(ctx).Debug("interviewed %s: pain %d, wtp %d", p.Name, result.PainLevel, result.WillingnessToPay)
	return core.Patch{InterviewResults: []core.InterviewResult{result}}, nil
}

// StubInterview is the deterministic result used in degraded mode.
func StubInterview(p core.Persona) core.InterviewResult {
	return core.InterviewResult{
		Persona:           p,
		TranscriptSummary: fmt.Sprintf("%s finds the idea interesting but too expensive and would rather use a chat bot than install another app.", p.Name),
		PainLevel:         StubPainLevel,
		WillingnessToPay:  StubWillingnessToPay,
		Degraded:          true,
	}
}

// singleShot asks the respondent model to play the whole interview and
// summarise it in one answer.
func (sim *Simulate) singleShot(ctx context.Context, s core.GraphState, p core.Persona) (core.InterviewResult, error) {
	gw, err := sim.critic(s.Config)
	if err != nil {
		return core.InterviewResult{}, err
	}
	system, err := sim.system(s)
	if err != nil {
		return core.InterviewResult{}, err
	}
	user, err := util.Execute(interviewSingleTmpl, map[string]any{
		"Persona":   p,
		"Idea":      asJSON(s.Artifact),
		"Questions": questions(s),
		"Hint":      extract.FormatHint[interviewSummary](),
	})
	if err != nil {
		return core.InterviewResult{}, fmt.Errorf("render interview prompt: %w", err)
	}

	sum, _, err := retrier[interviewSummary](ctx, &sim.base, s.Config, nil).Invoke(ctx, gw, core.Prompt{System: system, User: user})
	if err != nil {
		return core.InterviewResult{}, err
	}
	return toResult(p, sum, nil), nil
}

// dialogue alternates interviewer and respondent turns until the
// interviewer says FINISHED or InterviewTurns exchanges have happened, then
// has the transcript summarised.
func (sim *Simulate) dialogue(ctx context.Context, s core.GraphState, p core.Persona) (core.InterviewResult, error) {
	interviewer, err := sim.generator(s.Config)
	if err != nil {
		return core.InterviewResult{}, err
	}
	respondent, err := sim.critic(s.Config)
	if err != nil {
		return core.InterviewResult{}, err
	}
	respondentSystem, err := sim.system(s)
	if err != nil {
		return core.InterviewResult{}, err
	}

	hypotheses := []string{}
	if s.ResearchGuide != nil {
		for _, h := range s.ResearchGuide.Hypotheses {
			hypotheses = append(hypotheses, fmt.Sprintf("[%s] %s", h.Type, h.Description))
		}
	}

	var transcript []core.Turn
	for turn := 0; turn < s.Config.InterviewTurns; turn++ {
		user, err := util.Execute(interviewerTmpl, map[string]any{
			"Questions":  questions(s),
			"Hypotheses": hypotheses,
			"Transcript": formatTranscript(transcript),
		})
		if err != nil {
			return core.InterviewResult{}, fmt.Errorf("render interviewer prompt: %w", err)
		}
		question, err := invokeText(ctx, interviewer, core.Prompt{System: InterviewerSystem, User: user})
		if err != nil {
			return core.InterviewResult{}, err
		}
		if strings.Contains(question, FinishedMarker) {
			break
		}
		transcript = append(transcript, core.Turn{Speaker: SpeakerInterviewer, Text: strings.TrimSpace(question)})

		user, err = util.Execute(respondentTmpl, map[string]any{
			"Persona":    p,
			"Transcript": formatTranscript(transcript),
		})
		if err != nil {
			return core.InterviewResult{}, fmt.Errorf("render respondent prompt: %w", err)
		}
		answer, err := invokeText(ctx, respondent, core.Prompt{System: respondentSystem, User: user})
		if err != nil {
			return core.InterviewResult{}, err
		}
		transcript = append(transcript, core.Turn{Speaker: SpeakerRespondent, Text: strings.TrimSpace(answer)})
	}

	user, err := util.Execute(summaryTmpl, map[string]any{
		"Idea":       asJSON(s.Artifact),
		"Transcript": formatTranscript(transcript),
		"Hint":       extract.FormatHint[interviewSummary](),
	})
	if err != nil {
		return core.InterviewResult{}, fmt.Errorf("render summary prompt: %w", err)
	}
	sum, _, err := retrier[interviewSummary](ctx, &sim.base, s.Config, nil).Invoke(ctx, interviewer, core.Prompt{System: SummarySystem, User: user})
	if err != nil {
		return core.InterviewResult{}, err
	}
	return toResult(p, sum, transcript), nil
}

func invokeText(ctx context.Context, gw core.ModelGateway, p core.Prompt) (string, error) {
	text, err := gw.Invoke(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func toResult(p core.Persona, sum interviewSummary, transcript []core.Turn) core.InterviewResult {
	return core.InterviewResult{
		Persona:           p,
		TranscriptSummary: sum.TranscriptSummary,
		PainLevel:         core.ClampScore(sum.PainLevel),
		WillingnessToPay:  core.ClampScore(sum.WillingnessToPay),
		Transcript:        transcript,
	}
}

func questions(s core.GraphState) []string {
	if s.ResearchGuide == nil {
		return nil
	}
	return s.ResearchGuide.Questions
}

func formatTranscript(turns []core.Turn) string {
	if len(turns) == 0 {
		return "(no conversation yet)\n"
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Speaker, t.Text)
	}
	return b.String()
}
