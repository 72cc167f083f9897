package dagexec_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/dagexec"
	"github.com/dpmerrell/dagger/pkg/datum"
	"github.com/dpmerrell/dagger/pkg/task"
)

func out(v interface{}) map[dagapi.LocalLabel]interface{} {
	return map[dagapi.LocalLabel]interface{}{"out": v}
}

func TestDiamondWorkflow(t *testing.T) {
	x := datum.NewMemValue(3)

	t0 := task.NewFunc("t0", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(args["x"].(int) + 1), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "x", Binding: task.Bind(x)}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	t1 := task.NewFunc("t1", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(args["x"].(int) + 1), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "x", Binding: t0.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	t2 := task.NewFunc("t2", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(args["x"].(int) * 2), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "x", Binding: t0.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	t3 := task.NewFunc("t3", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(args["x"].(int) * args["y"].(int)), nil
	}, task.Config{
		Inputs: []task.InputBinding{
			{Label: "x", Binding: t1.Output("out")},
			{Label: "y", Binding: t2.Output("out")},
		},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})

	mgr, err := dagexec.New(t3, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNil)

	result, err := mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowComplete)

	snap := mgr.Status()
	for _, name := range []dagapi.TaskName{"t0", "t1", "t2", "t3"} {
		qt.Assert(t, snap.Tasks[name], qt.Equals, dagapi.TaskComplete)
	}

	d, err := t3.Output("out").Resolve()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, d.State(), qt.Equals, dagapi.DatumAvailable)
	qt.Assert(t, d.Pointer(), qt.Equals, 40)
}

func TestChainWithMidTaskFailure(t *testing.T) {
	boom := errors.New("b blew up")
	a := task.NewFunc("a", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(1), nil
	}, task.Config{Outputs: []task.OutputSpec{{Label: "out"}}})
	b := task.NewFunc("b", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return nil, boom
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: a.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	c := task.NewFunc("c", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(3), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: b.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})

	mgr, err := dagexec.New(c, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNil)

	result, err := mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowFailed)
	qt.Assert(t, result.Failed, qt.HasLen, 1)
	qt.Assert(t, serum.Code(result.Failed["b"]), qt.Equals, dagapi.CodeWorkerCrash)
	qt.Assert(t, result.Stuck, qt.DeepEquals, []dagapi.TaskName{"c"})

	snap := mgr.Status()
	qt.Assert(t, snap.Tasks["a"], qt.Equals, dagapi.TaskComplete)
	qt.Assert(t, snap.Tasks["b"], qt.Equals, dagapi.TaskFailed)
	qt.Assert(t, snap.Tasks["c"], qt.Equals, dagapi.TaskWaiting)
}

func TestResourceSaturation(t *testing.T) {
	var current, peak int64
	worker := func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return out(1), nil
	}

	siblings := make([]*task.Base, 4)
	rootInputs := make([]task.InputBinding, 0, 4)
	for i, name := range []dagapi.TaskName{"g0", "g1", "g2", "g3"} {
		siblings[i] = task.NewFunc(name, worker, task.Config{
			Outputs:   []task.OutputSpec{{Label: "out"}},
			Resources: dagapi.ResourceDemand{"gpu": 1},
		})
		rootInputs = append(rootInputs, task.InputBinding{
			Label:   dagapi.LocalLabel(name),
			Binding: siblings[i].Output("out"),
		})
	}
	root := task.NewFunc("sink", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out("done"), nil
	}, task.Config{
		Inputs:  rootInputs,
		Outputs: []task.OutputSpec{{Label: "out"}},
	})

	mgr, err := dagexec.New(root, dagexec.ExecConfig{
		Budget: dagapi.ResourceBudget{"gpu": 2},
	})
	qt.Assert(t, err, qt.IsNil)

	result, err := mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowComplete)

	// never more than two holders of gpu at once
	qt.Assert(t, atomic.LoadInt64(&peak) <= 2, qt.IsTrue)
	stats := mgr.Stats()
	qt.Assert(t, stats.PeakUsage["gpu"] <= 2, qt.IsTrue)

	// admission order among ready siblings equals declaration order
	qt.Assert(t, stats.Admitted[:4], qt.DeepEquals,
		[]dagapi.TaskName{"g0", "g1", "g2", "g3"})
	qt.Assert(t, stats.Admitted[4], qt.Equals, dagapi.TaskName("sink"))
	qt.Assert(t, stats.CompletedCount, qt.Equals, 5)
}

func TestCycleRejectedAtConstruction(t *testing.T) {
	dispatched := int64(0)
	body := func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		atomic.AddInt64(&dispatched, 1)
		return out(1), nil
	}
	a := task.NewFunc("a", body, task.Config{Outputs: []task.OutputSpec{{Label: "out"}}})
	b := task.NewFunc("b", body, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: a.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	a.BindInput("loop", b.Output("out"))

	_, err := dagexec.New(b, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNotNil)
	qt.Assert(t, serum.Code(err), qt.Equals, dagapi.CodeCyclicGraph)
	qt.Assert(t, atomic.LoadInt64(&dispatched), qt.Equals, int64(0))
}

func TestUnsatisfiableDemandRejectedAtConstruction(t *testing.T) {
	greedy := task.NewFunc("greedy", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(1), nil
	}, task.Config{
		Outputs:   []task.OutputSpec{{Label: "out"}},
		Resources: dagapi.ResourceDemand{"gpu": 4},
	})

	_, err := dagexec.New(greedy, dagexec.ExecConfig{
		Budget: dagapi.ResourceBudget{"gpu": 2},
	})
	qt.Assert(t, err, qt.IsNotNil)
	qt.Assert(t, serum.Code(err), qt.Equals, dagapi.CodeUnsatisfiableResource)
}

func TestCancellationMidRun(t *testing.T) {
	var interrupts int64

	a := task.NewFunc("a", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(1), nil
	}, task.Config{Outputs: []task.OutputSpec{{Label: "out"}}})

	bBody := &task.Func{
		Run: func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		OnInterrupt: func() { atomic.AddInt64(&interrupts, 1) },
	}
	b := task.New("b", bBody, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: a.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	c := task.NewFunc("c", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(3), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: b.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})

	mgr, err := dagexec.New(c, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNil)

	resultCh := make(chan dagapi.RunResult, 1)
	go func() {
		result, _ := mgr.Run(context.Background())
		resultCh <- result
	}()

	// wait until b is RUNNING
	deadline := time.Now().Add(5 * time.Second)
	for {
		if mgr.Status().Tasks["b"] == dagapi.TaskRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("b never started running")
		}
		time.Sleep(time.Millisecond)
	}

	mgr.Cancel()
	mgr.Cancel() // idempotent

	result := <-resultCh
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowFailed)
	qt.Assert(t, atomic.LoadInt64(&interrupts), qt.Equals, int64(1))

	snap := mgr.Status()
	qt.Assert(t, snap.Tasks["c"], qt.Equals, dagapi.TaskWaiting)
}

func TestContextCancellationCancelsRun(t *testing.T) {
	blocker := task.NewFunc("blocker", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, task.Config{Outputs: []task.OutputSpec{{Label: "out"}}})

	mgr, err := dagexec.New(blocker, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	result, err := mgr.Run(ctx)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowFailed)
}

func TestDeadlockReported(t *testing.T) {
	never := datum.NewMem() // EMPTY forever; nothing produces it
	stuck := task.NewFunc("stuck", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(1), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: task.Bind(never)}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})

	mgr, err := dagexec.New(stuck, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNil)

	result, err := mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowFailed)
	qt.Assert(t, result.Stuck, qt.DeepEquals, []dagapi.TaskName{"stuck"})
	qt.Assert(t, serum.Code(result.Failed["stuck"]), qt.Equals, dagapi.CodeDeadlock)
}

func TestRerunRejected(t *testing.T) {
	tk := task.NewFunc("t", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(1), nil
	}, task.Config{Outputs: []task.OutputSpec{{Label: "out"}}})

	mgr, err := dagexec.New(tk, dagexec.ExecConfig{})
	qt.Assert(t, err, qt.IsNil)

	result, err := mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowComplete)

	_, err = mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNotNil)
	qt.Assert(t, serum.Code(err), qt.Equals, dagapi.CodeAlreadyRun)
}

func TestSkipSatisfiedTasksAreNotDispatched(t *testing.T) {
	parent := task.NewFunc("parent", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return nil, errors.New("must not run: output already exists")
	}, task.Config{
		Outputs: []task.OutputSpec{{Label: "out", Spec: datum.NewMemValue(5)}},
	})
	child := task.NewFunc("child", func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(args["in"].(int) * 10), nil
	}, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: parent.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})

	mgr, err := dagexec.New(child, dagexec.ExecConfig{SkipSatisfied: true})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, mgr.Status().Tasks["parent"], qt.Equals, dagapi.TaskComplete)

	result, err := mgr.Run(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, result.State, qt.Equals, dagapi.WorkflowComplete)

	d, err := child.Output("out").Resolve()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, d.Pointer(), qt.Equals, 50)
}

func TestDuplicateTaskNamesRejected(t *testing.T) {
	body := func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error) {
		return out(1), nil
	}
	a1 := task.NewFunc("dup", body, task.Config{Outputs: []task.OutputSpec{{Label: "out"}}})
	a2 := task.NewFunc("dup", body, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: a1.Output("out")}},
		Outputs: []task.OutputSpec{{Label: "out"}},
	})
	_, err := dagexec.New(a2, dagexec.ExecConfig{})
	qt.Assert(t, serum.Code(err), qt.Equals, dagapi.CodeWorkflowInvalid)
}
