package task

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/warpfork/go-fsx"
	"go.opentelemetry.io/otel/trace"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/datum"
	"github.com/dpmerrell/dagger/pkg/logging"
	"github.com/dpmerrell/dagger/pkg/tracing"
)

const LOG_TAG_PROC = "│  proc"

// Exec is the subprocess task variant: the body runs an argv on the
// host, inputs arrive as environment variables, and outputs are files
// the command is expected to write at declared paths.
//
// Input bindings resolve to environment variables named
// DAGGER_INPUT_<LABEL>; declared outputs are exported as
// DAGGER_OUTPUT_<LABEL> so the command knows where to write.
type Exec struct {
	// Command is the argv to run. Command[0] is resolved via PATH.
	Command []string

	// Dir is the working directory for the process. Empty means inherit.
	Dir string

	// Env is extra environment to append, in "KEY=value" form.
	Env []string

	// KeepFailedOutputs leaves partial output files on disk after a
	// failure, for postmortem inspection.
	KeepFailedOutputs bool

	fsys fsx.FS

	mu      sync.Mutex
	cancel  context.CancelFunc
	outputs map[dagapi.LocalLabel]datum.Datum
}

// NewExec builds a task around a subprocess body. Declared output specs
// must be path strings within fsys.
func NewExec(name dagapi.TaskName, body *Exec, fsys fsx.FS, cfg Config) *Base {
	body.fsys = fsys
	return New(name, body, cfg)
}

func (e *Exec) InitializeOutputs(keys []dagapi.LocalLabel, specs map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]datum.Datum, error) {
	out := make(map[dagapi.LocalLabel]datum.Datum, len(keys))
	for _, k := range keys {
		path, ok := specs[k].(string)
		if !ok {
			return nil, dagapi.ErrorInvalidFormat(fmt.Sprintf("%v", specs[k]),
				"exec task output specs must be path strings")
		}
		d, err := datum.NewFilePath(e.fsys, path)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	e.mu.Lock()
	e.outputs = out
	e.mu.Unlock()
	return out, nil
}

func (e *Exec) CollectInputs(ctx context.Context, inputs *datum.Collection) (interface{}, error) {
	env := make([]string, 0, inputs.Len())
	for _, k := range inputs.Keys {
		env = append(env, fmt.Sprintf("DAGGER_INPUT_%s=%v", envKey(k), inputs.Get(k).Pointer()))
	}
	return env, nil
}

func (e *Exec) RunLogic(ctx context.Context, collected interface{}) (map[dagapi.LocalLabel]interface{}, error) {
	inputEnv, ok := collected.([]string)
	if !ok {
		return nil, dagapi.ErrorWorkflowInvalid("exec task received mismatched collected inputs")
	}
	if len(e.Command) == 0 {
		return nil, dagapi.ErrorWorkflowInvalid("exec task has an empty command")
	}

	procCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	outputs := e.outputs
	e.mu.Unlock()
	defer cancel()

	ctx, span := tracing.Start(ctx, "exec task process",
		trace.WithAttributes(tracing.AttrFullExecNameProcess, tracing.AttrFullExecPhaseRun))
	defer span.End()
	logger := logging.Ctx(ctx)

	cmd := exec.CommandContext(procCtx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env, inputEnv...)
	var stderrBuf bytes.Buffer
	logWriter := logger.InfoWriter(LOG_TAG_PROC)
	cmd.Stdout = logWriter
	cmd.Stderr = &stderrBuf

	result := make(map[dagapi.LocalLabel]interface{}, len(outputs))
	for k, d := range outputs {
		cmd.Env = append(cmd.Env, fmt.Sprintf("DAGGER_OUTPUT_%s=%v", envKey(k), d.Pointer()))
		result[k] = d.Pointer()
	}

	if err := cmd.Run(); err != nil {
		if procCtx.Err() != nil {
			// killed by cancellation; report that rather than the exit code
			return nil, procCtx.Err()
		}
		return nil, fmt.Errorf("command %q failed: %w; stderr: %s",
			strings.Join(e.Command, " "), err, strings.TrimSpace(stderrBuf.String()))
	}
	return result, nil
}

// InterruptCleanup kills the running process, if any.
// Safe to call from the scheduler goroutine.
func (e *Exec) InterruptCleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// FailCleanup removes partial output files so a rerun starts clean.
func (e *Exec) FailCleanup() {
	if e.KeepFailedOutputs {
		return
	}
	e.mu.Lock()
	outputs := e.outputs
	e.mu.Unlock()
	for _, d := range outputs {
		_ = d.Clear() // best-effort
	}
}

func envKey(label dagapi.LocalLabel) string {
	s := strings.ToUpper(string(label))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}
