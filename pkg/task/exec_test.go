package task_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/warpfork/go-fsx/osfs"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/datum"
	"github.com/dpmerrell/dagger/pkg/task"
)

func skipWithoutShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec task tests need a posix shell")
	}
}

func TestExecTaskWritesDeclaredOutput(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	fsys := osfs.DirFS(dir)

	body := &task.Exec{
		Command: []string{"sh", "-c", `printf hello > "$DAGGER_OUTPUT_OUT"`},
		Dir:     dir,
	}
	tk := task.NewExec("emit", body, fsys, task.Config{
		Outputs: []task.OutputSpec{{Label: "out", Spec: "out.txt"}},
	})
	qt.Assert(t, tk.InitializeOutputs(), qt.IsNil)

	collected, err := tk.CollectInputs(context.Background())
	qt.Assert(t, err, qt.IsNil)
	raw, err := tk.RunLogic(context.Background(), collected)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, raw["out"], qt.Equals, interface{}("out.txt"))

	qt.Assert(t, tk.Finalize(raw), qt.IsNil)
	d, err := tk.Output("out").Resolve()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, d.State(), qt.Equals, dagapi.DatumAvailable)
}

func TestExecTaskReceivesInputEnv(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	fsys := osfs.DirFS(dir)

	in := datum.NewMemValue("payload")
	body := &task.Exec{
		Command: []string{"sh", "-c", `printf '%s' "$DAGGER_INPUT_IN" > "$DAGGER_OUTPUT_OUT"`},
		Dir:     dir,
	}
	tk := task.NewExec("copy", body, fsys, task.Config{
		Inputs:  []task.InputBinding{{Label: "in", Binding: task.Bind(in)}},
		Outputs: []task.OutputSpec{{Label: "out", Spec: "copied.txt"}},
	})
	qt.Assert(t, tk.InitializeOutputs(), qt.IsNil)

	collected, err := tk.CollectInputs(context.Background())
	qt.Assert(t, err, qt.IsNil)
	raw, err := tk.RunLogic(context.Background(), collected)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, tk.Finalize(raw), qt.IsNil)
}

func TestExecTaskFailureCarriesStderr(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	fsys := osfs.DirFS(dir)

	body := &task.Exec{
		Command: []string{"sh", "-c", "echo boom >&2; exit 3"},
		Dir:     dir,
	}
	tk := task.NewExec("explode", body, fsys, task.Config{
		Outputs: []task.OutputSpec{{Label: "out", Spec: "never.txt"}},
	})
	qt.Assert(t, tk.InitializeOutputs(), qt.IsNil)

	collected, err := tk.CollectInputs(context.Background())
	qt.Assert(t, err, qt.IsNil)
	_, err = tk.RunLogic(context.Background(), collected)
	qt.Assert(t, err, qt.IsNotNil)
	qt.Assert(t, err.Error(), qt.Contains, "boom")
}

func TestExecTaskInterruptKillsProcess(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	fsys := osfs.DirFS(dir)

	body := &task.Exec{
		Command: []string{"sh", "-c", "sleep 30"},
		Dir:     dir,
	}
	tk := task.NewExec("sleeper", body, fsys, task.Config{
		Outputs: []task.OutputSpec{{Label: "out", Spec: "never.txt"}},
	})
	qt.Assert(t, tk.InitializeOutputs(), qt.IsNil)

	errCh := make(chan error, 1)
	go func() {
		collected, err := tk.CollectInputs(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		_, err = tk.RunLogic(context.Background(), collected)
		errCh <- err
	}()

	// keep interrupting until the process dies; the first interrupts may
	// land before the process has started
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-errCh:
			qt.Assert(t, err, qt.IsNotNil)
			return
		case <-ticker.C:
			body.InterruptCleanup()
		}
	}
}
