package core

import "fmt"

// DefaultParallelismCap bounds fan-out width when Config.Parallelism is zero.
const DefaultParallelismCap = 4

// Config tunes a single run. It is immutable for the lifetime of the run and
// travels inside GraphState so stages can read it.
type Config struct {
	// MaxIterations bounds generation passes.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// MaxInterviewCycles bounds research cycles per generation pass.
	MaxInterviewCycles int `json:"max_interview_cycles" yaml:"max_interview_cycles"`
	// EnableResearch turns the research branch on.
	EnableResearch bool `json:"enable_research" yaml:"enable_research"`
	// EnableCritique turns the critique stage on.
	EnableCritique bool `json:"enable_critique" yaml:"enable_critique"`
	// FastMode routes every model call through the fast gateway when one is
	// configured.
	FastMode bool `json:"fast_mode" yaml:"fast_mode"`
	// Parallelism is the fan-out width. Zero means "task count, capped at
	// DefaultParallelismCap".
	Parallelism int `json:"parallelism" yaml:"parallelism"`
	// DegradedMode replaces model calls inside fan-out tasks with
	// deterministic stubs.
	DegradedMode bool `json:"degraded_mode" yaml:"degraded_mode"`
	// PersonaCount is the number of personas recruited per cycle.
	PersonaCount int `json:"persona_count" yaml:"persona_count"`
	// InterviewTurns is the number of interviewer/respondent exchanges per
	// simulated interview. Zero runs a single-shot simulation.
	InterviewTurns int `json:"interview_turns" yaml:"interview_turns"`
	// StrictFanOut turns any failed fan-out task into a fatal stage error.
	StrictFanOut bool `json:"strict_fan_out" yaml:"strict_fan_out"`
	// ExtractAttempts is the retry budget for structured extraction.
	ExtractAttempts int `json:"extract_attempts" yaml:"extract_attempts"`
}

// DefaultConfig returns the configuration used when callers do not override
// anything.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      3,
		MaxInterviewCycles: 1,
		EnableResearch:     true,
		EnableCritique:     true,
		PersonaCount:       3,
		ExtractAttempts:    3,
	}
}

// Validate rejects configurations that would make the run unbounded or
// meaningless.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max_iterations must be > 0, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if c.MaxInterviewCycles <= 0 {
		return fmt.Errorf("%w: max_interview_cycles must be > 0, got %d", ErrInvalidConfig, c.MaxInterviewCycles)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("%w: parallelism must be >= 0, got %d", ErrInvalidConfig, c.Parallelism)
	}
	if c.PersonaCount <= 0 {
		return fmt.Errorf("%w: persona_count must be > 0, got %d", ErrInvalidConfig, c.PersonaCount)
	}
	if c.InterviewTurns < 0 {
		return fmt.Errorf("%w: interview_turns must be >= 0, got %d", ErrInvalidConfig, c.InterviewTurns)
	}
	if c.ExtractAttempts <= 0 {
		return fmt.Errorf("%w: extract_attempts must be > 0, got %d", ErrInvalidConfig, c.ExtractAttempts)
	}
	return nil
}

// Width returns the fan-out width to use for n tasks.
func (c Config) Width(n int) int {
	w := c.Parallelism
	if w == 0 {
		w = min(n, DefaultParallelismCap)
	}
	if w < 1 {
		w = 1
	}
	return w
}
