package stage

import (
	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/internal/util"
)

// Provider supplies a system instruction derived from the run state.
type Provider interface {
	Instruction(core.GraphState) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(core.GraphState) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(s core.GraphState) (string, error) { return f(s) }

// Instruction is either static text or a dynamic provider. Static text may
// contain text/template actions; they are rendered against the GraphState.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(core.GraphState) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether the instruction carries neither text nor provider.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text for s.
func (i Instruction) Resolve(s core.GraphState) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(s)
	}
	return util.RenderTemplate(i.text, s)
}
