package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/internal/testutil"
)

func resultTask(name string) core.Task {
	return core.Task{Name: name, Run: func(context.Context, core.GraphState) (core.Patch, error) {
		return core.Patch{InterviewResults: []core.InterviewResult{{TranscriptSummary: name}}}, nil
	}}
}

func failingTask(name string) core.Task {
	return core.Task{Name: name, Run: func(context.Context, core.GraphState) (core.Patch, error) {
		return core.Patch{}, errors.New("nope")
	}}
}

func summaries(p core.Patch) []string {
	out := []string{}
	for _, r := range p.InterviewResults {
		out = append(out, r.TranscriptSummary)
	}
	sort.Strings(out)
	return out
}

func TestFanOut_MergesEveryTask(t *testing.T) {
	base := testutil.NewStateBuilder("seed").Build()
	tasks := []core.Task{resultTask("a"), resultTask("b"), resultTask("c")}

	p, report, err := FanOut(context.Background(), base, tasks, func(o *FanOutOptions) { o.Width = 2 })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, summaries(p))
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Empty(t, report.Failed)
}

func TestFanOut_OrderIndependent(t *testing.T) {
	base := testutil.NewStateBuilder("seed").Build()
	forward := []core.Task{resultTask("a"), resultTask("b"), resultTask("c"), resultTask("d")}
	reversed := []core.Task{forward[3], forward[2], forward[1], forward[0]}

	p1, _, err := FanOut(context.Background(), base, forward)
	require.NoError(t, err)
	p2, _, err := FanOut(context.Background(), base, reversed, func(o *FanOutOptions) { o.Width = 1 })
	require.NoError(t, err)

	assert.Equal(t, summaries(p1), summaries(p2))
}

func TestFanOut_PartialFailureDropsTask(t *testing.T) {
	base := testutil.NewStateBuilder("seed").Build()
	var done int32
	tasks := []core.Task{resultTask("a"), failingTask("b"), resultTask("c")}

	p, report, err := FanOut(context.Background(), base, tasks, func(o *FanOutOptions) {
		o.OnTaskDone = func(string, error) { atomic.AddInt32(&done, 1) }
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, summaries(p))
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "b", report.Failed[0].Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&done))
}

func TestFanOut_StrictFailureIsFatal(t *testing.T) {
	base := testutil.NewStateBuilder("seed").Build()
	tasks := []core.Task{resultTask("a"), failingTask("b")}

	_, _, err := FanOut(context.Background(), base, tasks, func(o *FanOutOptions) { o.Strict = true })

	var fatal *core.FatalStageError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, core.StageSimulate, fatal.Stage)
}

func TestFanOut_EmptyTasks(t *testing.T) {
	p, report, err := FanOut(context.Background(), core.GraphState{}, nil)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, 0, report.Total)
}

func TestFanOut_RespectsWidth(t *testing.T) {
	var running, peak int32
	tasks := make([]core.Task, 8)
	for i := range tasks {
		tasks[i] = core.Task{Name: fmt.Sprintf("t%d", i), Run: func(context.Context, core.GraphState) (core.Patch, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return core.Patch{}, nil
		}}
	}

	_, _, err := FanOut(context.Background(), core.GraphState{}, tasks, func(o *FanOutOptions) { o.Width = 3 })
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestFanOut_TasksGetIsolatedState(t *testing.T) {
	base := testutil.NewStateBuilder("seed").Idea("original").Build()
	tasks := []core.Task{
		{Name: "mutator", Run: func(_ context.Context, s core.GraphState) (core.Patch, error) {
			s.Artifact.Title = "mutated"
			return core.Patch{}, nil
		}},
		{Name: "reader", Run: func(_ context.Context, s core.GraphState) (core.Patch, error) {
			time.Sleep(5 * time.Millisecond)
			return core.Patch{InterviewResults: []core.InterviewResult{{TranscriptSummary: s.Artifact.Title}}}, nil
		}},
	}

	p, _, err := FanOut(context.Background(), base, tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"original"}, summaries(p))
	assert.Equal(t, "original", base.Artifact.Title)
}

func TestFanOut_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tasks := []core.Task{
		{Name: "canceller", Run: func(context.Context, core.GraphState) (core.Patch, error) {
			cancel()
			return core.Patch{}, nil
		}},
		resultTask("late"),
	}

	_, _, err := FanOut(ctx, core.GraphState{}, tasks, func(o *FanOutOptions) { o.Width = 1 })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFanOut_PanickingTaskIsAFailure(t *testing.T) {
	tasks := []core.Task{
		resultTask("ok"),
		{Name: "panics", Run: func(context.Context, core.GraphState) (core.Patch, error) { panic("kaboom") }},
	}

	p, report, err := FanOut(context.Background(), core.GraphState{}, tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, summaries(p))
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Err.Error(), "kaboom")
}

func TestTasksFor(t *testing.T) {
	tasks := TasksFor([]string{"x", "y"},
		func(i int, s string) string { return fmt.Sprintf("%d-%s", i, s) },
		func(_ context.Context, _ core.GraphState, s string) (core.Patch, error) {
			return core.Patch{InterviewResults: []core.InterviewResult{{TranscriptSummary: s}}}, nil
		})
	require.Len(t, tasks, 2)
	assert.Equal(t, "1-y", tasks[1].Name)

	p, _, err := FanOut(context.Background(), core.GraphState{}, tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, summaries(p))
}
