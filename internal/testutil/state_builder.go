package testutil

import (
	"github.com/zuzya/try.idea-validator/core"
)

// StateBuilder helps construct graph states with fluent chaining for tests.
// Example:
//
//	s := NewStateBuilder("seed").Idea("Title").Iteration(1).Build()
type StateBuilder struct {
	state core.GraphState
}

// NewStateBuilder creates a builder for a state seeded with seed and the
// default config.
func NewStateBuilder(seed string) *StateBuilder {
	return &StateBuilder{state: core.NewGraphState(seed, core.DefaultConfig())}
}

// Config replaces the run configuration (chainable).
func (b *StateBuilder) Config(cfg core.Config) *StateBuilder {
	b.state.Config = cfg
	return b
}

// Configure mutates the run configuration in place (chainable).
func (b *StateBuilder) Configure(fn func(c *core.Config)) *StateBuilder {
	fn(&b.state.Config)
	return b
}

// Idea sets an artifact with the given title (chainable).
func (b *StateBuilder) Idea(title string) *StateBuilder {
	b.state.Artifact = &core.Idea{
		Title:                title,
		Description:          title + " description",
		MonetizationStrategy: "subscription",
		TargetAudience:       "small teams",
	}
	return b
}

// Guide sets a research guide with the given target personas (chainable).
func (b *StateBuilder) Guide(personas ...core.Persona) *StateBuilder {
	b.state.ResearchGuide = &core.Guide{
		TargetPersonas: personas,
		Questions:      []string{"Tell me about the last time this happened."},
		Hypotheses:     []core.Hypothesis{{Description: "The pain is real", Type: core.HypothesisProblem}},
	}
	return b
}

// Personas sets recruited personas (chainable).
func (b *StateBuilder) Personas(personas ...core.Persona) *StateBuilder {
	b.state.Personas = personas
	return b
}

// Interviews appends interview results (chainable).
func (b *StateBuilder) Interviews(results ...core.InterviewResult) *StateBuilder {
	b.state.InterviewResults = append(b.state.InterviewResults, results...)
	return b
}

// Report sets the research report (chainable).
func (b *StateBuilder) Report(pivot string) *StateBuilder {
	b.state.Report = &core.Report{KeyInsights: []string{"insight"}, PivotRecommendation: pivot}
	return b
}

// Critique sets the critique (chainable).
func (b *StateBuilder) Critique(approved bool, score int) *StateBuilder {
	b.state.Critique = &core.Critique{IsApproved: approved, Score: score, Feedback: "feedback"}
	return b
}

// Iteration sets the iteration counter (chainable).
func (b *StateBuilder) Iteration(n int) *StateBuilder {
	b.state.IterationCount = n
	return b
}

// Cycle sets the interview cycle counter (chainable).
func (b *StateBuilder) Cycle(n int) *StateBuilder {
	b.state.InterviewCycle = n
	return b
}

// Build returns the constructed state.
func (b *StateBuilder) Build() core.GraphState {
	return b.state.Clone()
}
