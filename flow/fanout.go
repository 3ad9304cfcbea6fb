package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/logging"
)

// FanOutOptions tunes a FanOut call.
type FanOutOptions struct {
	// Width bounds concurrently running tasks. Values below one run tasks
	// one at a time.
	Width int
	// Strict turns the first task failure into a *core.FatalStageError and
	// cancels the remaining tasks.
	Strict bool
	// Stage labels errors and logs.
	Stage core.StageID
	// Logger receives one warning per failed task.
	Logger logging.Logger
	// OnTaskDone, when set, is called after every task (err is nil on
	// success). It may be called concurrently.
	OnTaskDone func(name string, err error)
}

// TaskError pairs a failed task with its error.
type TaskError struct {
	Name string
	Err  error
}

// FanOutReport summarises a fan-out.
type FanOutReport struct {
	Total     int
	Succeeded int
	Failed    []TaskError
	Duration  time.Duration
}

// FanOut runs tasks concurrently, each against its own copy of base, and
// merges their patches with core.Merge once every task has finished. Merge
// order follows task order, so the result does not depend on scheduling.
//
// A failed task contributes nothing and is reported in FanOutReport.Failed;
// with Strict set it fails the whole fan-out instead. An empty task list
// yields an empty patch. Cancellation stops scheduling new tasks and the
// context error is returned after in-flight tasks drain.
func FanOut(ctx context.Context, base core.GraphState, tasks []core.Task, optFns ...func(o *FanOutOptions)) (core.Patch, FanOutReport, error) {
	opts := FanOutOptions{
		Width:  len(tasks),
		Stage:  core.StageSimulate,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Width < 1 {
		opts.Width = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	start := time.Now()
	report := FanOutReport{Total: len(tasks)}
	if len(tasks) == 0 {
		return core.Patch{}, report, nil
	}

	var (
		g      *errgroup.Group
		gctx   = ctx
		mu     sync.Mutex
		result = make([]*core.Patch, len(tasks))
	)
	if opts.Strict {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(opts.Width)

	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			p, err := runTask(gctx, task, base.Clone())
			if opts.OnTaskDone != nil {
				opts.OnTaskDone(task.Name, err)
			}
			if err != nil {
				mu.Lock()
				report.Failed = append(report.Failed, TaskError{Name: task.Name, Err: err})
				mu.Unlock()
				opts.Logger.Warn("fan-out task %s failed: %v", task.Name, err)
				if opts.Strict {
					return fmt.Errorf("task %s: %w", task.Name, err)
				}
				return nil
			}

			result[i] = &p
			return nil
		})
	}

	waitErr := g.Wait()
	report.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return core.Patch{}, report, err
	}
	if waitErr != nil {
		return core.Patch{}, report, &core.FatalStageError{Stage: opts.Stage, State: base, Cause: waitErr}
	}

	merged := core.Patch{}
	for _, p := range result {
		if p == nil {
			continue
		}
		report.Succeeded++
		merged = core.Merge(merged, *p)
	}

	return merged, report, nil
}

func runTask(ctx context.Context, task core.Task, state core.GraphState) (p core.Patch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx, state)
}

// TasksFor builds one task per item. name labels each task in logs and
// reports.
func TasksFor[T any](items []T, name func(i int, item T) string, run func(ctx context.Context, state core.GraphState, item T) (core.Patch, error)) []core.Task {
	tasks := make([]core.Task, 0, len(items))
	for i, item := range items {
		tasks = append(tasks, core.Task{
			Name: name(i, item),
			Run: func(ctx context.Context, state core.GraphState) (core.Patch, error) {
				return run(ctx, state, item)
			},
		})
	}
	return tasks
}
