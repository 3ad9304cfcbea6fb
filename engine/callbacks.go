package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zuzya/try.idea-validator/core"
)

// CallbackType names a point in the dispatch loop where hooks run.
//
// Hooks run synchronously on the run's goroutine. An error from a
// BeforeStage, OnStateChange or AfterStage hook halts the run with a
// FatalStageError. Errors from OnError hooks are only logged.
type CallbackType string

const (
	// CallbackBeforeStage runs before a stage is dispatched.
	CallbackBeforeStage CallbackType = "before_stage"
	// CallbackOnStateChange runs once a patch has produced the next state and
	// before its event is emitted. Returning an error rejects the transition.
	CallbackOnStateChange CallbackType = "on_state_change"
	// CallbackAfterStage runs after the stage event has been emitted.
	CallbackAfterStage CallbackType = "after_stage"
	// CallbackOnError runs when a run halts on a fatal error or cancellation.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the transition a hook is called for. Fields that
// do not apply to a callback type are left zero.
type CallbackContext struct {
	RunID        string
	Stage        core.StageID
	CallbackType CallbackType

	// State is the input state for BeforeStage and OnError and the post-patch
	// state otherwise.
	State core.GraphState
	// Previous and Patch are set for OnStateChange and AfterStage.
	Previous *core.GraphState
	Patch    *core.Patch
	// Event is set for AfterStage.
	Event *core.Event
	// Err is set for OnError.
	Err error

	Metadata map[string]any
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

type hook struct {
	typ CallbackType
	fn  func(ctx context.Context, cc *CallbackContext) error
}

func (h hook) Type() CallbackType { return h.typ }

func (h hook) Execute(ctx context.Context, cc *CallbackContext) error { return h.fn(ctx, cc) }

// On turns fn into a Callback for t.
//
//	cm.Register(engine.On(engine.CallbackBeforeStage, func(_ context.Context, cc *engine.CallbackContext) error {
//		log.Printf("starting %s", cc.Stage)
//		return nil
//	}))
func On(t CallbackType, fn func(ctx context.Context, cc *CallbackContext) error) Callback {
	return hook{typ: t, fn: fn}
}

// CallbackManager holds the hooks an engine consults. Hooks of one type run
// in registration order and the first error stops the rest. A manager may be
// shared by engines serving parallel runs.
type CallbackManager struct {
	mu    sync.RWMutex
	hooks map[CallbackType][]Callback
}

// NewCallbackManager returns an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{hooks: make(map[CallbackType][]Callback)}
}

// Register adds callbacks under their own types.
func (cm *CallbackManager) Register(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.hooks[cb.Type()] = append(cm.hooks[cb.Type()], cb)
	}
}

// Run executes the hooks registered for t. A nil manager has none.
func (cm *CallbackManager) Run(ctx context.Context, t CallbackType, cc *CallbackContext) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	hooks := append([]Callback(nil), cm.hooks[t]...)
	cm.mu.RUnlock()

	cc.CallbackType = t
	for _, cb := range hooks {
		if err := cb.Execute(ctx, cc); err != nil {
			return fmt.Errorf("%s callback: %w", t, err)
		}
	}
	return nil
}

// NewLoggingCallback reports each transition as one line to sink: run,
// stage, state version, iteration and interview cycle, plus the error for
// OnError.
func NewLoggingCallback(t CallbackType, sink func(line string)) Callback {
	return On(t, func(_ context.Context, cc *CallbackContext) error {
		if sink == nil {
			return nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] run=%s stage=%s version=%d iteration=%d cycle=%d",
			cc.CallbackType, cc.RunID, cc.Stage, cc.State.Version, cc.State.IterationCount, cc.State.InterviewCycle)
		if cc.Err != nil {
			fmt.Fprintf(&b, " error=%q", cc.Err.Error())
		}
		sink(b.String())
		return nil
	})
}

// NewStateValidationCallback rejects transitions check returns an error for.
//
//	engine.NewStateValidationCallback(func(prev, next core.GraphState, _ core.Patch) error {
//		if prev.Artifact != nil && next.Artifact == nil {
//			return errors.New("idea dropped")
//		}
//		return nil
//	})
func NewStateValidationCallback(check func(prev, next core.GraphState, patch core.Patch) error) Callback {
	return On(CallbackOnStateChange, func(_ context.Context, cc *CallbackContext) error {
		if check == nil || cc.Previous == nil || cc.Patch == nil {
			return nil
		}
		return check(*cc.Previous, cc.State, *cc.Patch)
	})
}
