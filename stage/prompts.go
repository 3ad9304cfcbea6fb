package stage

import (
	"encoding/json"

	"github.com/zuzya/try.idea-validator/internal/util"
)

// System prompts. Each names its role so that scripted gateways in tests can
// route on it.
const (
	GeneratorSystem = `You are an idea generator for early-stage startups. You turn a rough input into one concrete, testable business concept and revise it when research or critique shows a flaw. Be specific about who pays and why.`

	ResearchSystem = `You are a research planner preparing customer discovery. Follow the Mom Test: ask about past behaviour and real spending, never pitch the idea and never ask whether people would use it.`

	RecruiterSystem = `You are recruiting interview participants. From the candidate profiles, pick the people whose situation makes them most relevant to the idea, including at least one likely skeptic.`

	InterviewerSystem = `You are the interviewer in a customer discovery interview. Ask one question at a time, dig into specifics and do not sell. When every question in the guide has been answered, reply with the single word FINISHED.`

	RespondentSystem = `You are the interviewee in a customer discovery interview. Stay in character, answer from your own context and say plainly when something does not fit you.`

	SummarySystem = `You are a note taker condensing interview transcripts into structured notes. Report what the respondent said, not what you expected.`

	AnalystSystem = `You are a research analyst. Synthesise interview evidence into insights, decide which hypotheses held up and recommend the single most important change to the idea.`

	CriticSystem = `You are a venture critic. Judge the idea as an investor would: market size, willingness to pay, competition and execution risk. Approve only ideas you would fund.`
)

// FinishedMarker ends a multi-turn interview when the interviewer says it.
const FinishedMarker = "FINISHED"

var (
	generateFirstTmpl = util.MustParse("generate_first", `USER INPUT: {{.Seed}}

Task: synthesise a startup concept from this input.

{{.Hint}}`)

	generateResearchTmpl = util.MustParse("generate_research", `User research is complete. Update the idea.

PREVIOUS IDEA:
{{.Idea}}

RESEARCH FINDINGS:
{{.Report}}

1. Drop what the rejected hypotheses contradict.
2. Double down on the confirmed hypotheses.
3. Apply the pivot recommendation.

{{.Hint}}`)

	generateCritiqueTmpl = util.MustParse("generate_critique", `Critique received. Iterate or pivot.

PREVIOUS IDEA:
{{.Idea}}

CRITIC FEEDBACK:
{{.Critique}}

Address every fatal flaw the critic named.

{{.Hint}}`)

	researchTmpl = util.MustParse("research", `Prepare user research for this idea:

{{.Idea}}

Propose exactly {{.Count}} target personas with distinct archetypes, open interview questions and hypotheses of type Problem, Solution or Monetization.

{{.Hint}}`)

	recruitTmpl = util.MustParse("recruit", `Startup idea:
{{.Idea}}

Candidate profiles:
{{.Excerpts}}
Select exactly {{.Count}} participants. Use the profile text for background and label each attitude.

{{.Hint}}`)

	interviewSingleTmpl = util.MustParse("interview_single", `YOU ARE:
Name: {{.Persona.Name}}
Role: {{.Persona.Role}}
{{- if .Persona.Archetype}}
Archetype: {{.Persona.Archetype}}{{end}}
{{- if .Persona.Background}}
Background: {{.Persona.Background}}{{end}}

THE PRODUCT:
{{.Idea}}

INTERVIEWER QUESTIONS:
{{numbered .Questions}}
Answer honestly, then summarise the interview.

{{.Hint}}`)

	interviewerTmpl = util.MustParse("interviewer", `INTERVIEW GUIDE:
{{numbered .Questions}}
HYPOTHESES:
{{bullets .Hypotheses}}
CONVERSATION SO FAR:
{{.Transcript}}
Ask your next question, or reply FINISHED.`)

	respondentTmpl = util.MustParse("respondent", `YOU ARE:
Name: {{.Persona.Name}}
Role: {{.Persona.Role}}
{{- if .Persona.Background}}
Background: {{.Persona.Background}}{{end}}
{{- if .Persona.Attitude}}
Attitude: {{.Persona.Attitude}}{{end}}

CONVERSATION SO FAR:
{{.Transcript}}
Answer the last question.`)

	summaryTmpl = util.MustParse("summary", `Summarise this customer interview.

PRODUCT:
{{.Idea}}

TRANSCRIPT:
{{.Transcript}}
Rate the respondent's pain level and willingness to pay from 1 to 10.

{{.Hint}}`)

	analyzeTmpl = util.MustParse("analyze", `Analyse these interviews about the idea below.

IDEA:
{{.Idea}}

HYPOTHESES:
{{bullets .Hypotheses}}
INTERVIEWS:
{{.Interviews}}
Validate the hypotheses and recommend a pivot.

{{.Hint}}`)

	critiqueTmpl = util.MustParse("critique", `CANDIDATE STARTUP IDEA FOR EVALUATION:

{{.Idea}}
{{- if .Report}}

USER RESEARCH:
{{.Report}}{{end}}

Give your verdict with a score from 1 to 10.

{{.Hint}}`)
)

// asJSON renders v for inclusion in a prompt.
func asJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
