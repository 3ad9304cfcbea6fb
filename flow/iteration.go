package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zuzya/try.idea-validator/core"
)

var (
	// ErrStepBudgetExceeded is returned once a run has dispatched more stages
	// than its configuration can legitimately require.
	ErrStepBudgetExceeded = errors.New("stage invocation budget exceeded")
	// ErrCounterViolation is returned when a stage touches a counter it does
	// not own.
	ErrCounterViolation = errors.New("counter owned by another stage")
)

// IterationController owns the run's termination bounds. It enforces that
// only Generate advances IterationCount and only Analyze advances
// InterviewCycle, redirects transitions that would exceed the configured
// limits and caps the total number of stage invocations.
type IterationController struct {
	cfg    core.Config
	max    int
	mu     sync.Mutex
	steps  int
	guards int
}

// NewIterationController builds a controller for cfg.
func NewIterationController(cfg core.Config) *IterationController {
	return &IterationController{cfg: cfg, max: StepBudget(cfg)}
}

// StepBudget is the largest number of stage invocations a run configured
// with cfg can need: every generation pass runs Generate and Critique plus up
// to MaxInterviewCycles research cycles of four stages each, and the final
// Terminal transition is counted once.
func StepBudget(cfg core.Config) int {
	perPass := 2 + 4*cfg.MaxInterviewCycles + 1
	return cfg.MaxIterations*perPass + 1
}

// Step records one stage invocation.
func (c *IterationController) Step() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.steps++
	if c.steps > c.max {
		return fmt.Errorf("%w: %d", ErrStepBudgetExceeded, c.max)
	}
	return nil
}

// Steps returns the number of invocations recorded so far.
func (c *IterationController) Steps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

// Redirects returns how many transitions Guard rewrote.
func (c *IterationController) Redirects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guards
}

// Validate checks that stage only advances the counters it owns.
func (c *IterationController) Validate(stage core.StageID, p core.Patch) error {
	if p.IncIteration && stage != core.StageGenerate {
		return fmt.Errorf("%w: %s advanced iteration_count", ErrCounterViolation, stage)
	}
	if p.IncInterviewCycle && stage != core.StageAnalyze {
		return fmt.Errorf("%w: %s advanced interview_cycle", ErrCounterViolation, stage)
	}
	return nil
}

// Guard rewrites next when following it would break a bound:
//   - Generate once IterationCount has reached MaxIterations ends the run
//   - Research once InterviewCycle has reached MaxInterviewCycles skips to
//     what AfterAnalyze would choose with the cycle budget spent
func (c *IterationController) Guard(next core.StageID, s core.GraphState) core.StageID {
	out := next
	switch next {
	case core.StageGenerate:
		if s.IterationCount >= c.cfg.MaxIterations {
			out = core.StageTerminal
		}
	case core.StageResearch:
		if s.InterviewCycle >= c.cfg.MaxInterviewCycles {
			if c.cfg.EnableCritique {
				out = core.StageCritique
			} else if s.IterationCount < c.cfg.MaxIterations {
				out = core.StageGenerate
			} else {
				out = core.StageTerminal
			}
		}
	}
	if out != next {
		c.mu.Lock()
		c.guards++
		c.mu.Unlock()
	}
	return out
}
