package core

// HypothesisType classifies a hypothesis the interviews are meant to test.
type HypothesisType string

const (
	// HypothesisProblem asserts that a pain exists.
	HypothesisProblem HypothesisType = "Problem"
	// HypothesisSolution asserts that the proposed solution addresses the pain.
	HypothesisSolution HypothesisType = "Solution"
	// HypothesisMonetization asserts that someone will pay for it.
	HypothesisMonetization HypothesisType = "Monetization"
)

// Idea is the artifact under refinement: a business proposal produced by the
// generation stage.
type Idea struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	MonetizationStrategy string `json:"monetization_strategy"`
	TargetAudience       string `json:"target_audience"`

	// Degraded marks a fallback value substituted after repeated extraction
	// failures.
	Degraded bool `json:"degraded,omitempty"`
}

// Hypothesis is a single testable assumption about the idea.
type Hypothesis struct {
	Description string         `json:"description"`
	Type        HypothesisType `json:"type"`
}

// Persona describes an interview target. Recruited personas may come from the
// persona index, from the research guide or from the synthetic fallback set.
type Persona struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Archetype  string `json:"archetype,omitempty"`
	Background string `json:"background,omitempty"`
	Attitude   string `json:"attitude,omitempty"`
	Source     string `json:"source,omitempty"`
}

// Guide is the research plan for one interview cycle.
type Guide struct {
	TargetPersonas []Persona    `json:"target_personas"`
	Questions      []string     `json:"questions"`
	Hypotheses     []Hypothesis `json:"hypotheses_to_test"`
	Degraded       bool         `json:"degraded,omitempty"`
}

// Turn is one utterance of a simulated interview.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// InterviewResult summarises one simulated interview.
type InterviewResult struct {
	Persona           Persona `json:"persona"`
	TranscriptSummary string  `json:"transcript_summary"`
	PainLevel         int     `json:"pain_level"`
	WillingnessToPay  int     `json:"willingness_to_pay"`
	Transcript        []Turn  `json:"transcript,omitempty"`
	Degraded          bool    `json:"degraded,omitempty"`
}

// Report is the synthesis of one interview cycle.
type Report struct {
	KeyInsights         []string `json:"key_insights"`
	ConfirmedHypotheses []string `json:"confirmed_hypotheses"`
	RejectedHypotheses  []string `json:"rejected_hypotheses"`
	PivotRecommendation string   `json:"pivot_recommendation"`
	Degraded            bool     `json:"degraded,omitempty"`
}

// Critique is the evaluator verdict on the current artifact. Score is kept in
// [MinScore, MaxScore]; IsApproved is independent of Score.
type Critique struct {
	IsApproved bool   `json:"is_approved"`
	Score      int    `json:"score"`
	Feedback   string `json:"feedback"`
	Degraded   bool   `json:"degraded,omitempty"`
}

const (
	// MinScore is the lowest critique score and interview rating.
	MinScore = 1
	// MaxScore is the highest critique score and interview rating.
	MaxScore = 10
)

// ClampScore forces v into [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// GraphState is the single record carried through a run. Stages never mutate
// it; they return a Patch that the engine applies.
type GraphState struct {
	SeedInput        string            `json:"seed_input"`
	Artifact         *Idea             `json:"artifact,omitempty"`
	ResearchGuide    *Guide            `json:"research_guide,omitempty"`
	Personas         []Persona         `json:"personas,omitempty"`
	InterviewResults []InterviewResult `json:"interview_results,omitempty"`
	Report           *Report           `json:"report,omitempty"`
	Critique         *Critique         `json:"critique,omitempty"`
	IterationCount   int               `json:"iteration_count"`
	InterviewCycle   int               `json:"interview_cycle"`
	Config           Config            `json:"config"`

	// Version increments with every applied patch.
	Version int `json:"version"`
}

// NewGraphState returns the initial state for a run.
func NewGraphState(seed string, cfg Config) GraphState {
	return GraphState{SeedInput: seed, Config: cfg}
}

// Clone returns a deep copy safe for independent use by concurrent tasks.
func (s GraphState) Clone() GraphState {
	c := s
	if s.Artifact != nil {
		a := *s.Artifact
		c.Artifact = &a
	}
	if s.ResearchGuide != nil {
		g := s.ResearchGuide.clone()
		c.ResearchGuide = &g
	}
	c.Personas = clonePersonas(s.Personas)
	if s.InterviewResults != nil {
		c.InterviewResults = make([]InterviewResult, len(s.InterviewResults))
		for i, r := range s.InterviewResults {
			c.InterviewResults[i] = r.clone()
		}
	}
	if s.Report != nil {
		r := s.Report.clone()
		c.Report = &r
	}
	if s.Critique != nil {
		cr := *s.Critique
		c.Critique = &cr
	}
	return c
}

func (g Guide) clone() Guide {
	c := g
	c.TargetPersonas = clonePersonas(g.TargetPersonas)
	c.Questions = cloneStrings(g.Questions)
	if g.Hypotheses != nil {
		c.Hypotheses = append([]Hypothesis(nil), g.Hypotheses...)
	}
	return c
}

func (r InterviewResult) clone() InterviewResult {
	c := r
	if r.Transcript != nil {
		c.Transcript = append([]Turn(nil), r.Transcript...)
	}
	return c
}

func (r Report) clone() Report {
	c := r
	c.KeyInsights = cloneStrings(r.KeyInsights)
	c.ConfirmedHypotheses = cloneStrings(r.ConfirmedHypotheses)
	c.RejectedHypotheses = cloneStrings(r.RejectedHypotheses)
	return c
}

func clonePersonas(in []Persona) []Persona {
	if in == nil {
		return nil
	}
	return append([]Persona(nil), in...)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
