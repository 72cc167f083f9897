package dab

import (
	"fmt"

	"github.com/warpfork/go-fsx"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/datum"
	"github.com/dpmerrell/dagger/pkg/task"
)

// CompileConfig carries the host-side knobs of compilation.
type CompileConfig struct {
	// Dir is the working directory for task processes.
	Dir string

	// KeepFailedOutputs leaves partial outputs of failed tasks on disk.
	KeepFailedOutputs bool
}

// CompileWorkflow turns a parsed workflow document into the live task
// graph the engine executes: one exec task per declared task, file
// datums for workflow inputs and file bindings, in-memory datums for
// literals, and output references for pipes between tasks.
//
// Declared output paths are interpreted within fsys; cfg.Dir is the host
// working directory handed to each task's process (empty means inherit).
//
// The returned slice holds every compiled task in document order; the
// root is also returned directly for handing to the manager.
//
// Errors:
//
//    - dagger-error-workflow-invalid -- when a binding names an unknown input, task, or output
//    - dagger-error-invalid-format -- when a file path fails datum validation
func CompileWorkflow(fsys fsx.FS, cfg CompileConfig, doc dagapi.WorkflowDocument) (*task.Base, []*task.Base, error) {
	// workflow-level inputs become file datums up front
	inputs := make(map[dagapi.LocalLabel]datum.Datum, len(doc.Inputs.Keys))
	for _, label := range doc.Inputs.Keys {
		d, err := datum.NewFilePath(fsys, doc.Inputs.Values[label])
		if err != nil {
			return nil, nil, err
		}
		inputs[label] = d
	}

	// first pass: construct every task without inputs, so pipes can
	// reference tasks regardless of declaration order
	tasks := make(map[dagapi.TaskName]*task.Base, len(doc.Tasks.Keys))
	ordered := make([]*task.Base, 0, len(doc.Tasks.Keys))
	for _, name := range doc.Tasks.Keys {
		spec := doc.Tasks.Values[name]
		outputs := make([]task.OutputSpec, 0, len(spec.Outputs.Keys))
		for _, label := range spec.Outputs.Keys {
			outputs = append(outputs, task.OutputSpec{Label: label, Spec: spec.Outputs.Values[label]})
		}
		demand := dagapi.ResourceDemand{}
		for _, key := range spec.Resources.Keys {
			demand[key] = spec.Resources.Values[key]
		}
		t := task.NewExec(name, &task.Exec{
			Command:           spec.Command,
			Dir:               cfg.Dir,
			KeepFailedOutputs: cfg.KeepFailedOutputs,
		}, fsys, task.Config{
			Outputs:   outputs,
			Resources: demand,
		})
		tasks[name] = t
		ordered = append(ordered, t)
	}

	// second pass: wire the bindings
	for _, name := range doc.Tasks.Keys {
		spec := doc.Tasks.Values[name]
		t := tasks[name]
		for _, label := range spec.Inputs.Keys {
			binding, err := compileBinding(fsys, doc, tasks, inputs, spec.Inputs.Values[label])
			if err != nil {
				return nil, nil, err
			}
			t.BindInput(label, binding)
		}
	}

	return tasks[doc.Root], ordered, nil
}

// compileBinding resolves one serial binding to a live one.
//
// Errors:
//
//    - dagger-error-workflow-invalid -- when the binding names an unknown input, task, or output
//    - dagger-error-invalid-format -- when a file path fails datum validation
func compileBinding(
	fsys fsx.FS,
	doc dagapi.WorkflowDocument,
	tasks map[dagapi.TaskName]*task.Base,
	inputs map[dagapi.LocalLabel]datum.Datum,
	b dagapi.Binding,
) (task.Binding, error) {
	parsed, err := b.Parse()
	if err != nil {
		return nil, err
	}
	switch parsed.Kind {
	case dagapi.BindingPipe:
		if parsed.Task == "" {
			d, ok := inputs[parsed.Label]
			if !ok {
				return nil, dagapi.ErrorWorkflowInvalid(
					fmt.Sprintf("no label %q in workflow inputs ('pipe::%s' not defined)", parsed.Label, parsed.Label))
			}
			return task.Bind(d), nil
		}
		upstream, ok := tasks[parsed.Task]
		if !ok {
			return nil, dagapi.ErrorWorkflowInvalid(
				fmt.Sprintf("invalid pipe 'pipe:%s:%s', task %q does not exist", parsed.Task, parsed.Label, parsed.Task))
		}
		if _, ok := doc.Tasks.Values[parsed.Task].Outputs.Values[parsed.Label]; !ok {
			return nil, dagapi.ErrorWorkflowInvalid(
				fmt.Sprintf("invalid pipe 'pipe:%s:%s', label %q does not exist for task %s", parsed.Task, parsed.Label, parsed.Label, parsed.Task))
		}
		return upstream.Output(parsed.Label), nil
	case dagapi.BindingFile:
		d, err := datum.NewFilePath(fsys, parsed.Value)
		if err != nil {
			return nil, err
		}
		return task.Bind(d), nil
	case dagapi.BindingLiteral:
		return task.Bind(datum.NewMemValue(parsed.Value)), nil
	default:
		panic("unreachable")
	}
}
