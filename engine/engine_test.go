package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/flow"
)

var _ core.Engine = (*Engine)(nil)

// fakeSimulate runs one task per persona.
type fakeSimulate struct {
	fail     map[string]bool
	finished atomic.Int32
	merged   atomic.Int32
}

func (f *fakeSimulate) ID() core.StageID { return core.StageSimulate }

func (f *fakeSimulate) Plan(s core.GraphState) []core.Task {
	return flow.TasksFor(s.Personas,
		func(i int, p core.Persona) string { return fmt.Sprintf("interview-%d-%s", i, p.Name) },
		func(_ context.Context, _ core.GraphState, p core.Persona) (core.Patch, error) {
			if f.fail[p.Name] {
				return core.Patch{}, errors.New("respondent walked out")
			}
			return core.Patch{InterviewResults: []core.InterviewResult{{Persona: p, PainLevel: 7}}}, nil
		})
}

func (f *fakeSimulate) AfterFanOut(_ context.Context, s core.GraphState) {
	f.finished.Add(1)
	f.merged.Store(int32(len(s.InterviewResults)))
}

type fixture struct {
	stages    Stages
	simulate  *fakeSimulate
	approveAt int
	calls     map[core.StageID]*atomic.Int32
}

func newFixture() *fixture {
	f := &fixture{
		simulate:  &fakeSimulate{fail: map[string]bool{}},
		approveAt: 0,
		calls:     map[core.StageID]*atomic.Int32{},
	}
	for _, id := range core.Stages() {
		f.calls[id] = &atomic.Int32{}
	}
	count := func(id core.StageID) { f.calls[id].Add(1) }

	f.stages = Stages{
		Generate: core.NewStageFunc(core.StageGenerate, func(_ context.Context, s core.GraphState) (core.Patch, error) {
			count(core.StageGenerate)
			return core.Patch{
				Artifact:     &core.Idea{Title: fmt.Sprintf("Invoice Bot v%d", s.IterationCount+1)},
				IncIteration: true,
				Resets:       core.ResetGuide | core.ResetCritique | core.ResetReport | core.ResetInterviewCycle,
			}, nil
		}),
		Research: core.NewStageFunc(core.StageResearch, func(_ context.Context, _ core.GraphState) (core.Patch, error) {
			count(core.StageResearch)
			return core.Patch{
				ResearchGuide: &core.Guide{Questions: []string{"Tell me about the last time this happened."}},
				Resets:        core.ResetInterviews | core.ResetPersonas,
			}, nil
		}),
		Recruit: core.NewStageFunc(core.StageRecruit, func(_ context.Context, _ core.GraphState) (core.Patch, error) {
			count(core.StageRecruit)
			return core.Patch{Personas: []core.Persona{{Name: "Anna"}, {Name: "Mark"}, {Name: "Olga"}}}, nil
		}),
		Simulate: f.simulate,
		Analyze: core.NewStageFunc(core.StageAnalyze, func(_ context.Context, s core.GraphState) (core.Patch, error) {
			count(core.StageAnalyze)
			return core.Patch{
				Report:            &core.Report{PivotRecommendation: fmt.Sprintf("%d interviews", len(s.InterviewResults))},
				IncInterviewCycle: true,
			}, nil
		}),
		Critique: core.NewStageFunc(core.StageCritique, func(_ context.Context, s core.GraphState) (core.Patch, error) {
			count(core.StageCritique)
			approved := f.approveAt > 0 && s.IterationCount >= f.approveAt
			return core.Patch{Critique: &core.Critique{IsApproved: approved, Score: 5}}, nil
		}),
	}
	return f
}

func config(fn func(c *core.Config)) core.Config {
	cfg := core.DefaultConfig()
	if fn != nil {
		fn(&cfg)
	}
	return cfg
}

func counters(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += fmt.Sprintf(",%s=%s", l.GetName(), l.GetValue())
			}
			if c := m.GetCounter(); c != nil {
				out[key] = c.GetValue()
			}
		}
	}
	return out
}

func stageNames(events []core.Event) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name())
	}
	return names
}

func TestEngine_FullPipeline(t *testing.T) {
	f := newFixture()
	f.approveAt = 2
	eng := New(f.stages)

	final, events, err := eng.RunSync(context.Background(), "run-1", core.NewGraphState("invoices", config(nil)))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generate", "research", "recruit", "simulate", "analyze", "critique",
		"generate", "research", "recruit", "simulate", "analyze", "critique", "complete",
	}, stageNames(events))

	assert.Equal(t, 2, final.IterationCount)
	require.NotNil(t, final.Critique)
	assert.True(t, final.Critique.IsApproved)
	assert.Equal(t, "Invoice Bot v2", final.Artifact.Title)
	assert.Len(t, final.InterviewResults, 3)
	assert.Equal(t, "3 interviews", final.Report.PivotRecommendation)
	assert.Equal(t, int32(2), f.simulate.finished.Load())
	assert.Equal(t, int32(3), f.simulate.merged.Load())

	for i, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		if i < len(events)-1 {
			assert.Equal(t, core.KindStage, ev.Kind)
			assert.Equal(t, i+1, ev.State.Version)
		}
	}
	assert.True(t, events[len(events)-1].IsTerminal())
}

func TestEngine_ResearchRunsEveryPass(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) { c.MaxIterations = 3 })

	final, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("invoices", cfg))
	require.NoError(t, err)

	assert.Equal(t, 3, final.IterationCount)
	assert.False(t, final.Critique.IsApproved)
	for _, id := range []core.StageID{core.StageGenerate, core.StageResearch, core.StageAnalyze, core.StageCritique} {
		assert.Equal(t, int32(3), f.calls[id].Load(), id)
	}
	assert.Equal(t, int32(3), f.simulate.finished.Load())

	var generated int
	for _, ev := range events {
		if ev.Stage == core.StageGenerate && ev.Kind == core.KindStage {
			generated++
			assert.Nil(t, ev.State.Report, "generate pass %d kept the previous report", generated)
		}
	}
	assert.Equal(t, 3, generated)
}

func TestEngine_ApprovedOnFirstPass(t *testing.T) {
	f := newFixture()
	f.stages.Critique = core.NewStageFunc(core.StageCritique, func(context.Context, core.GraphState) (core.Patch, error) {
		f.calls[core.StageCritique].Add(1)
		return core.Patch{Critique: &core.Critique{IsApproved: true, Score: 9, Feedback: "Fund it"}}, nil
	})
	cfg := config(func(c *core.Config) {
		c.MaxIterations = 1
		c.EnableResearch = false
	})

	final, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("invoices", cfg))
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "critique", "complete"}, stageNames(events))
	assert.Equal(t, 1, final.IterationCount)
	require.NotNil(t, final.Critique)
	assert.True(t, final.Critique.IsApproved)
	assert.Equal(t, 9, final.Critique.Score)
	assert.Equal(t, int32(1), f.calls[core.StageGenerate].Load())
	assert.Equal(t, int32(1), f.calls[core.StageCritique].Load())
	assert.Equal(t, int32(0), f.calls[core.StageResearch].Load())
}

func TestEngine_GenerateOnly(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) {
		c.EnableResearch = false
		c.EnableCritique = false
	})

	final, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("invoices", cfg))
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "complete"}, stageNames(events))
	assert.Equal(t, 1, final.IterationCount)
	assert.NotEmpty(t, events[0].RunID)
}

func TestEngine_CritiqueLoopStopsAtMaxIterations(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) {
		c.EnableResearch = false
		c.MaxIterations = 2
	})

	final, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("invoices", cfg))
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "critique", "generate", "critique", "complete"}, stageNames(events))
	assert.Equal(t, 2, final.IterationCount)
	assert.False(t, final.Critique.IsApproved)
}

func TestEngine_MultipleInterviewCycles(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) {
		c.MaxIterations = 1
		c.MaxInterviewCycles = 2
	})

	final, _, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("invoices", cfg))
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.calls[core.StageResearch].Load())
	assert.Equal(t, int32(2), f.calls[core.StageAnalyze].Load())
	assert.Equal(t, 2, final.InterviewCycle)
	assert.Equal(t, int32(1), f.calls[core.StageCritique].Load())
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) { c.MaxIterations = 0 })

	_, err := New(f.stages).Run(context.Background(), "", core.NewGraphState("x", cfg))
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Equal(t, int32(0), f.calls[core.StageGenerate].Load())
}

func TestEngine_RejectsMissingStage(t *testing.T) {
	f := newFixture()
	f.stages.Critique = nil

	_, err := New(f.stages).Run(context.Background(), "", core.NewGraphState("x", config(nil)))
	assert.ErrorIs(t, err, ErrMissingStage)

	cfg := config(func(c *core.Config) { c.EnableCritique = false })
	_, err = New(f.stages).Run(context.Background(), "", core.NewGraphState("x", cfg))
	assert.NoError(t, err)
}

func TestEngine_StageFailureIsFatal(t *testing.T) {
	f := newFixture()
	boom := errors.New("planner exploded")
	f.stages.Research = core.NewStageFunc(core.StageResearch, func(context.Context, core.GraphState) (core.Patch, error) {
		return core.Patch{}, boom
	})

	final, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))

	var fatal *core.FatalStageError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, core.StageResearch, fatal.Stage)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, fatal.State.Artifact)

	assert.Equal(t, []string{"generate", "error"}, stageNames(events))
	last := events[len(events)-1]
	assert.Equal(t, core.StageResearch, last.Stage)
	assert.Equal(t, err.Error(), last.ErrorMessage)
	assert.Equal(t, 1, final.Version)
}

func TestEngine_CounterViolation(t *testing.T) {
	f := newFixture()
	f.stages.Research = core.NewStageFunc(core.StageResearch, func(context.Context, core.GraphState) (core.Patch, error) {
		return core.Patch{IncIteration: true}, nil
	})

	_, _, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))
	assert.ErrorIs(t, err, flow.ErrCounterViolation)
}

func TestEngine_PanicIsFatal(t *testing.T) {
	f := newFixture()
	f.stages.Generate = core.NewStageFunc(core.StageGenerate, func(context.Context, core.GraphState) (core.Patch, error) {
		panic("nil idea")
	})

	_, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))

	var fatal *core.FatalStageError
	require.ErrorAs(t, err, &fatal)
	assert.Contains(t, err.Error(), "panicked")
	assert.Len(t, events, 1)
}

func TestEngine_CancellationBetweenStages(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := f.stages.Generate
	f.stages.Generate = core.NewStageFunc(core.StageGenerate, func(ctx context.Context, s core.GraphState) (core.Patch, error) {
		p, err := inner.Run(ctx, s)
		cancel()
		return p, err
	})

	final, events, err := New(f.stages).RunSync(ctx, "", core.NewGraphState("x", config(nil)))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"generate", "error"}, stageNames(events))
	assert.Equal(t, core.StageResearch, events[1].Stage)
	assert.Equal(t, 1, final.IterationCount)
	assert.Equal(t, int32(0), f.calls[core.StageResearch].Load())
}

func TestEngine_CancellationInsideStage(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.stages.Research = core.NewStageFunc(core.StageResearch, func(ctx context.Context, _ core.GraphState) (core.Patch, error) {
		cancel()
		<-ctx.Done()
		return core.Patch{}, ctx.Err()
	})

	_, events, err := New(f.stages).RunSync(ctx, "", core.NewGraphState("x", config(nil)))

	assert.ErrorIs(t, err, context.Canceled)
	var fatal *core.FatalStageError
	assert.False(t, errors.As(err, &fatal))
	assert.Equal(t, core.KindError, events[len(events)-1].Kind)
}

func TestEngine_FanOutPartialFailure(t *testing.T) {
	f := newFixture()
	f.approveAt = 1
	f.simulate.fail["Mark"] = true

	final, _, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))
	require.NoError(t, err)
	assert.Len(t, final.InterviewResults, 2)
	assert.Equal(t, "2 interviews", final.Report.PivotRecommendation)
}

func TestEngine_StrictFanOutFailure(t *testing.T) {
	f := newFixture()
	f.simulate.fail["Mark"] = true
	cfg := config(func(c *core.Config) { c.StrictFanOut = true })

	_, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("x", cfg))

	var fatal *core.FatalStageError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, core.StageSimulate, fatal.Stage)
	assert.Equal(t, core.StageSimulate, events[len(events)-1].Stage)
	assert.Equal(t, int32(0), f.simulate.finished.Load())
}

func TestEngine_EventStatesAreSnapshots(t *testing.T) {
	f := newFixture()
	f.approveAt = 1

	_, events, err := New(f.stages).RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))
	require.NoError(t, err)

	events[0].State.Artifact.Title = "mutated"
	assert.NotEqual(t, "mutated", events[1].State.Artifact.Title)
}

func TestEngine_Callbacks(t *testing.T) {
	f := newFixture()
	f.approveAt = 1

	var (
		mu     sync.Mutex
		before []core.StageID
		after  []core.StageID
	)
	cm := NewCallbackManager()
	cm.Register(On(CallbackBeforeStage, func(_ context.Context, c *CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		before = append(before, c.Stage)
		return nil
	}))
	cm.Register(On(CallbackAfterStage, func(_ context.Context, c *CallbackContext) error {
		mu.Lock()
		defer mu.Unlock()
		after = append(after, c.Stage)
		assert.NotNil(t, c.Event)
		return nil
	}))

	_, events, err := New(f.stages, func(o *Options) { o.Callbacks = cm }).
		RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))
	require.NoError(t, err)

	assert.Len(t, before, len(events)-1)
	assert.Equal(t, before, after)
}

func TestEngine_StateValidationCallbackHaltsRun(t *testing.T) {
	f := newFixture()

	var onError atomic.Int32
	cm := NewCallbackManager()
	cm.Register(NewStateValidationCallback(func(_, next core.GraphState, _ core.Patch) error {
		if next.ResearchGuide != nil {
			return errors.New("guides are not allowed")
		}
		return nil
	}))
	cm.Register(On(CallbackOnError, func(_ context.Context, c *CallbackContext) error {
		onError.Add(1)
		assert.Error(t, c.Err)
		return nil
	}))

	_, events, err := New(f.stages, func(o *Options) { o.Callbacks = cm }).
		RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "guides are not allowed")
	assert.Equal(t, []string{"generate", "error"}, stageNames(events))
	assert.Equal(t, int32(1), onError.Load())
}

func TestEngine_LoggingCallback(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) {
		c.EnableResearch = false
		c.EnableCritique = false
	})

	var lines []string
	cm := NewCallbackManager()
	cm.Register(NewLoggingCallback(CallbackAfterStage, func(m string) { lines = append(lines, m) }))

	_, _, err := New(f.stages, func(o *Options) { o.Callbacks = cm }).
		RunSync(context.Background(), "run-9", core.NewGraphState("x", cfg))
	require.NoError(t, err)

	require.Len(t, lines, 1)
	assert.Equal(t, "[after_stage] run=run-9 stage=generate version=1 iteration=1 cycle=0", lines[0])
}

func TestEngine_Metrics(t *testing.T) {
	f := newFixture()
	f.approveAt = 1
	f.simulate.fail["Olga"] = true

	reg := prometheus.NewRegistry()
	eng := New(f.stages, func(o *Options) { o.Metrics = NewMetrics(reg) })

	_, _, err := eng.RunSync(context.Background(), "", core.NewGraphState("x", config(nil)))
	require.NoError(t, err)

	got := counters(t, reg)
	assert.Equal(t, 1.0, got["validator_runs_total,outcome=complete"])
	assert.Equal(t, 1.0, got["validator_stage_runs_total,stage=generate,status=ok"])
	assert.Equal(t, 2.0, got["validator_fanout_tasks_total,status=ok"])
	assert.Equal(t, 1.0, got["validator_fanout_tasks_total,status=error"])
}

func TestEngine_AbandonedStreamCloses(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var onError atomic.Int32
	cm := NewCallbackManager()
	cm.Register(On(CallbackOnError, func(_ context.Context, c *CallbackContext) error {
		onError.Add(1)
		assert.ErrorIs(t, c.Err, context.Canceled)
		return nil
	}))

	reg := prometheus.NewRegistry()
	eng := New(f.stages, func(o *Options) {
		o.Callbacks = cm
		o.Metrics = NewMetrics(reg)
		o.DrainTimeout = 20 * time.Millisecond
	})

	events, err := eng.Run(ctx, "", core.NewGraphState("x", config(nil)))
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, core.StageGenerate, first.Stage)
	cancel()

	// The run records its outcome only after its last emit has returned.
	assert.Eventually(t, func() bool {
		return counters(t, reg)["validator_runs_total,outcome=cancelled"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), onError.Load())

	select {
	case ev, ok := <-events:
		assert.False(t, ok, "unexpected %s event after the consumer left", ev.Name())
	case <-time.After(time.Second):
		t.Fatal("event channel was not closed")
	}
}

func TestEngine_CancelledRunStillDeliversToDrainingConsumer(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.stages.Research = core.NewStageFunc(core.StageResearch, func(context.Context, core.GraphState) (core.Patch, error) {
		cancel()
		return core.Patch{ResearchGuide: &core.Guide{}}, nil
	})

	_, events, err := New(f.stages, func(o *Options) { o.DrainTimeout = time.Second }).
		RunSync(ctx, "", core.NewGraphState("x", config(nil)))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"generate", "research", "error"}, stageNames(events))
}

func TestEngine_BufferedEvents(t *testing.T) {
	f := newFixture()
	cfg := config(func(c *core.Config) {
		c.EnableResearch = false
		c.EnableCritique = false
	})

	events, err := New(f.stages, func(o *Options) { o.EventBufferSize = 8 }).
		Run(context.Background(), "", core.NewGraphState("x", cfg))
	require.NoError(t, err)

	var kinds []core.EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []core.EventKind{core.KindStage, core.KindComplete}, kinds)
}
