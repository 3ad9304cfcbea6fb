package core

// Reset names a GraphState field that a patch clears before its replacement
// values are applied. Resets are the only way a stage can drop a value.
type Reset uint8

const (
	// ResetGuide clears ResearchGuide.
	ResetGuide Reset = 1 << iota
	// ResetCritique clears Critique.
	ResetCritique
	// ResetReport clears Report.
	ResetReport
	// ResetInterviews empties InterviewResults.
	ResetInterviews
	// ResetPersonas empties Personas.
	ResetPersonas
	// ResetInterviewCycle sets InterviewCycle back to zero.
	ResetInterviewCycle
)

// Has reports whether every bit of o is set in r.
func (r Reset) Has(o Reset) bool { return r&o == o }

// String lists the reset names, mainly for logs.
func (r Reset) String() string {
	names := []struct {
		bit  Reset
		name string
	}{
		{ResetGuide, "guide"},
		{ResetCritique, "critique"},
		{ResetReport, "report"},
		{ResetInterviews, "interviews"},
		{ResetPersonas, "personas"},
		{ResetInterviewCycle, "interview_cycle"},
	}
	out := ""
	for _, n := range names {
		if r.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// Patch is the partial state a stage returns. Nil pointers and nil slices mean
// "unchanged". InterviewResults accumulate; every other value replaces.
//
// Application order: resets, then replacements, then appends, then counters.
type Patch struct {
	Artifact      *Idea     `json:"artifact,omitempty"`
	ResearchGuide *Guide    `json:"research_guide,omitempty"`
	Personas      []Persona `json:"personas,omitempty"`
	Report        *Report   `json:"report,omitempty"`
	Critique      *Critique `json:"critique,omitempty"`

	InterviewResults []InterviewResult `json:"interview_results,omitempty"`

	Resets            Reset `json:"resets,omitempty"`
	IncIteration      bool  `json:"inc_iteration,omitempty"`
	IncInterviewCycle bool  `json:"inc_interview_cycle,omitempty"`
}

// IsEmpty reports whether applying p would change nothing but the version.
func (p Patch) IsEmpty() bool {
	return p.Artifact == nil && p.ResearchGuide == nil && p.Personas == nil &&
		p.Report == nil && p.Critique == nil && len(p.InterviewResults) == 0 &&
		p.Resets == 0 && !p.IncIteration && !p.IncInterviewCycle
}

// Apply returns a new state with p applied to s. s is left untouched.
func Apply(s GraphState, p Patch) GraphState {
	next := s.Clone()

	if p.Resets.Has(ResetGuide) {
		next.ResearchGuide = nil
	}
	if p.Resets.Has(ResetCritique) {
		next.Critique = nil
	}
	if p.Resets.Has(ResetReport) {
		next.Report = nil
	}
	if p.Resets.Has(ResetInterviews) {
		next.InterviewResults = nil
	}
	if p.Resets.Has(ResetPersonas) {
		next.Personas = nil
	}
	if p.Resets.Has(ResetInterviewCycle) {
		next.InterviewCycle = 0
	}

	if p.Artifact != nil {
		a := *p.Artifact
		next.Artifact = &a
	}
	if p.ResearchGuide != nil {
		g := p.ResearchGuide.clone()
		next.ResearchGuide = &g
	}
	if p.Personas != nil {
		next.Personas = clonePersonas(p.Personas)
	}
	if p.Report != nil {
		r := p.Report.clone()
		next.Report = &r
	}
	if p.Critique != nil {
		c := *p.Critique
		next.Critique = &c
	}

	for _, r := range p.InterviewResults {
		next.InterviewResults = append(next.InterviewResults, r.clone())
	}

	if p.IncIteration {
		next.IterationCount++
	}
	if p.IncInterviewCycle {
		next.InterviewCycle++
	}

	next.Version++
	return next
}

// Merge combines two patches produced against the same base state. Replacement
// fields prefer b when both are set, InterviewResults are concatenated and
// resets and counters are OR-ed. Over InterviewResults alone the merge is
// commutative as a multiset, which is all the fan-out relies on.
func Merge(a, b Patch) Patch {
	out := a
	if b.Artifact != nil {
		out.Artifact = b.Artifact
	}
	if b.ResearchGuide != nil {
		out.ResearchGuide = b.ResearchGuide
	}
	if b.Personas != nil {
		out.Personas = b.Personas
	}
	if b.Report != nil {
		out.Report = b.Report
	}
	if b.Critique != nil {
		out.Critique = b.Critique
	}
	if len(b.InterviewResults) > 0 {
		merged := make([]InterviewResult, 0, len(a.InterviewResults)+len(b.InterviewResults))
		merged = append(merged, a.InterviewResults...)
		merged = append(merged, b.InterviewResults...)
		out.InterviewResults = merged
	}
	out.Resets = a.Resets | b.Resets
	out.IncIteration = a.IncIteration || b.IncIteration
	out.IncInterviewCycle = a.IncInterviewCycle || b.IncInterviewCycle
	return out
}
