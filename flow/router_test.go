package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/internal/testutil"
)

func TestAfterGenerate(t *testing.T) {
	tests := []struct {
		name     string
		research bool
		critique bool
		report   bool
		want     core.StageID
	}{
		{"research without report", true, true, false, core.StageResearch},
		{"research with report", true, true, true, core.StageCritique},
		{"research disabled", false, true, false, core.StageCritique},
		{"nothing enabled", false, false, false, core.StageTerminal},
		{"report present critique off", true, false, true, core.StageTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewStateBuilder("seed").Configure(func(c *core.Config) {
				c.EnableResearch = tt.research
				c.EnableCritique = tt.critique
			})
			if tt.report {
				b.Report("pivot")
			}
			assert.Equal(t, tt.want, AfterGenerate(b.Build()))
		})
	}
}

func TestAfterAnalyze(t *testing.T) {
	tests := []struct {
		name     string
		cycle    int
		max      int
		critique bool
		want     core.StageID
	}{
		{"cycles left", 1, 2, true, core.StageResearch},
		{"cycles spent critique on", 2, 2, true, core.StageCritique},
		{"cycles spent critique off", 2, 2, false, core.StageGenerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewStateBuilder("seed").Cycle(tt.cycle).Configure(func(c *core.Config) {
				c.MaxInterviewCycles = tt.max
				c.EnableCritique = tt.critique
			}).Build()
			assert.Equal(t, tt.want, AfterAnalyze(s))
		})
	}
}

func TestAfterCritique(t *testing.T) {
	tests := []struct {
		name      string
		approved  bool
		iteration int
		max       int
		want      core.StageID
	}{
		{"approved", true, 1, 3, core.StageTerminal},
		{"rejected at limit", false, 3, 3, core.StageTerminal},
		{"rejected below limit", false, 1, 3, core.StageGenerate},
		{"approved at limit", true, 3, 3, core.StageTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewStateBuilder("seed").
				Critique(tt.approved, 5).
				Iteration(tt.iteration).
				Configure(func(c *core.Config) { c.MaxIterations = tt.max }).
				Build()
			assert.Equal(t, tt.want, AfterCritique(s))
		})
	}
}

func TestNext_IsTotal(t *testing.T) {
	s := testutil.NewStateBuilder("seed").Build()
	for _, id := range core.Stages() {
		next := Next(id, s)
		assert.True(t, next.Valid(), "stage %s routed to invalid %v", id, next)
	}
	assert.Equal(t, core.StageTerminal, Next(core.StageID(42), s))
	assert.Equal(t, core.StageTerminal, Next(core.StageTerminal, s))
}

func TestNext_FixedEdges(t *testing.T) {
	s := testutil.NewStateBuilder("seed").Build()
	assert.Equal(t, core.StageRecruit, Next(core.StageResearch, s))
	assert.Equal(t, core.StageSimulate, Next(core.StageRecruit, s))
	assert.Equal(t, core.StageAnalyze, Next(core.StageSimulate, s))
}
