package core

import (
	"context"
	"fmt"
)

// StageID is the closed set of workflow nodes.
type StageID int

const (
	// StageGenerate produces or refines the artifact.
	StageGenerate StageID = iota
	// StageResearch drafts the interview guide.
	StageResearch
	// StageRecruit selects interview personas.
	StageRecruit
	// StageSimulate runs one simulated interview per persona in parallel.
	StageSimulate
	// StageAnalyze synthesises interview results into a report.
	StageAnalyze
	// StageCritique evaluates the artifact.
	StageCritique
	// StageTerminal ends the run.
	StageTerminal
)

var stageNames = [...]string{
	StageGenerate: "generate",
	StageResearch: "research",
	StageRecruit:  "recruit",
	StageSimulate: "simulate",
	StageAnalyze:  "analyze",
	StageCritique: "critique",
	StageTerminal: "terminal",
}

// Stages lists every StageID in declaration order.
func Stages() []StageID {
	return []StageID{StageGenerate, StageResearch, StageRecruit, StageSimulate, StageAnalyze, StageCritique, StageTerminal}
}

func (s StageID) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s is one of the declared stages.
func (s StageID) Valid() bool { return s >= StageGenerate && s <= StageTerminal }

// MarshalText encodes the stage by name.
func (s StageID) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStage, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name.
func (s *StageID) UnmarshalText(b []byte) error {
	id, err := ParseStageID(string(b))
	if err != nil {
		return err
	}
	*s = id
	return nil
}

// ParseStageID maps a stage name back to its id.
func ParseStageID(name string) (StageID, error) {
	for i, n := range stageNames {
		if n == name {
			return StageID(i), nil
		}
	}
	return StageTerminal, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Stage is one workflow node. Run reads the state and returns a partial
// update; it must not retain or mutate the state it was given.
//
// Recoverable failures (extraction, model) are absorbed inside the stage with
// a deterministic fallback. Any error returned halts the run.
type Stage interface {
	ID() StageID
	Run(ctx context.Context, state GraphState) (Patch, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	id StageID
	fn func(ctx context.Context, state GraphState) (Patch, error)
}

// NewStageFunc wraps fn as a Stage with the given id.
func NewStageFunc(id StageID, fn func(ctx context.Context, state GraphState) (Patch, error)) StageFunc {
	return StageFunc{id: id, fn: fn}
}

// ID implements Stage.
func (f StageFunc) ID() StageID { return f.id }

// Run implements Stage.
func (f StageFunc) Run(ctx context.Context, state GraphState) (Patch, error) {
	return f.fn(ctx, state)
}

// Task is one independent unit of a fan-out stage. It receives its own copy
// of the state.
type Task struct {
	Name string
	Run  func(ctx context.Context, state GraphState) (Patch, error)
}

// FanOutStage is a stage whose work is split into independent tasks executed
// concurrently by the engine and merged at a barrier.
type FanOutStage interface {
	ID() StageID
	Plan(state GraphState) []Task
}

// FanOutFinisher is optionally implemented by fan-out stages that need to see
// the merged result once every task has finished (for example to persist a
// combined transcript). It must not fail the run.
type FanOutFinisher interface {
	AfterFanOut(ctx context.Context, state GraphState)
}
