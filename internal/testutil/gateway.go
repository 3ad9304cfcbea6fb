package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/zuzya/try.idea-validator/core"
)

type rule struct {
	contains string
	replies  []string
	err      error
	next     int
}

// ScriptedGateway is a deterministic core.ModelGateway. Rules are matched in
// registration order against the system and user prompt text; the first
// match answers. A rule with several replies hands them out in order and then
// repeats the last one.
//
//	gw := NewScriptedGateway().
//	    On("idea generator", `{"title":"A"}`).
//	    Fail("critic", &core.ModelError{Kind: core.ModelErrorTransport})
type ScriptedGateway struct {
	mu       sync.Mutex
	rules    []*rule
	fallback string
	prompts  []core.Prompt
}

// NewScriptedGateway returns a gateway that answers "{}" to unmatched prompts.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{fallback: "{}"}
}

// On registers replies for prompts containing substr (chainable).
func (g *ScriptedGateway) On(substr string, replies ...string) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &rule{contains: substr, replies: replies})
	return g
}

// Fail makes prompts containing substr return err (chainable).
func (g *ScriptedGateway) Fail(substr string, err error) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, &rule{contains: substr, err: err})
	return g
}

// Default sets the reply for unmatched prompts (chainable).
func (g *ScriptedGateway) Default(reply string) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = reply
	return g
}

// Invoke implements core.ModelGateway.
func (g *ScriptedGateway) Invoke(ctx context.Context, p core.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, p)
	text := p.System + "\n" + p.User

	for _, r := range g.rules {
		if !strings.Contains(text, r.contains) {
			continue
		}
		if r.err != nil {
			return "", r.err
		}
		if len(r.replies) == 0 {
			return "", nil
		}
		reply := r.replies[min(r.next, len(r.replies)-1)]
		r.next++
		return reply, nil
	}

	return g.fallback, nil
}

// Calls returns the number of prompts received.
func (g *ScriptedGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// CallsMatching returns the number of prompts whose text contains substr.
func (g *ScriptedGateway) CallsMatching(substr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if strings.Contains(p.System+"\n"+p.User, substr) {
			n++
		}
	}
	return n
}

// Prompts returns a copy of every prompt received.
func (g *ScriptedGateway) Prompts() []core.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]core.Prompt(nil), g.prompts...)
}
