// Package task implements the unit-of-work layer of the engine.
//
// A task binds named inputs (external datums or upstream outputs) to a
// body that produces named outputs, and declares the resources it holds
// while running. The four-state machine --
//
//	WAITING ──► RUNNING ──► COMPLETE
//	               └──────► FAILED
//
// -- lives in Base and is driven exclusively by the workflow manager;
// bodies never mutate their own state.
package task

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/datum"
)

// Body supplies the variant-specific logic of a task.
// Base wraps these with state-machine enforcement, input-readiness
// checks, and output finalization.
type Body interface {
	// InitializeOutputs converts user-facing output specs into concrete
	// datum handles, one per declared output. Called once per task,
	// before scheduling begins.
	//
	// Errors:
	//
	//    - dagger-error-invalid-format -- when a spec cannot be turned into a handle
	InitializeOutputs(keys []dagapi.LocalLabel, specs map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]datum.Datum, error)

	// CollectInputs resolves AVAILABLE input datums to the argument form
	// RunLogic consumes. Runs on the worker, immediately before RunLogic.
	CollectInputs(ctx context.Context, inputs *datum.Collection) (interface{}, error)

	// RunLogic performs the computation in a worker context and returns
	// the pointer or value for each declared output, keyed by name.
	RunLogic(ctx context.Context, collected interface{}) (map[dagapi.LocalLabel]interface{}, error)

	// InterruptCleanup is called when the workflow is cancelled while
	// this task is RUNNING. Must be idempotent and safe to call from a
	// different goroutine than the one running RunLogic.
	InterruptCleanup()

	// FailCleanup is called when the task reports failure or its worker
	// crashes.
	FailCleanup()
}

// Binding wires a task input to its source: either a concrete datum
// (an external input) or a reference to an upstream task's output.
type Binding interface {
	// Resolve returns the concrete datum behind the binding.
	//
	// Errors:
	//
	//    - dagger-error-workflow-invalid -- when the binding refers to outputs not yet initialized
	Resolve() (datum.Datum, error)

	// Producer returns the task whose output this binding references,
	// or nil for external datums.
	Producer() *Base
}

// Bind wraps a concrete datum as an input binding with no producer.
func Bind(d datum.Datum) Binding {
	return datumBinding{d}
}

type datumBinding struct {
	d datum.Datum
}

func (b datumBinding) Resolve() (datum.Datum, error) { return b.d, nil }
func (b datumBinding) Producer() *Base               { return nil }

// outputRef is the lazy handle behind Task.Output: a name plus a
// back-reference to the producing task, resolved to the concrete output
// datum once that task's outputs have been initialized. The
// back-reference is a relation, not ownership.
type outputRef struct {
	task  *Base
	label dagapi.LocalLabel
}

// Resolve returns the concrete output datum.
//
// Errors:
//
//    - dagger-error-workflow-invalid -- when outputs are not yet initialized or the label is not declared
func (r outputRef) Resolve() (datum.Datum, error) {
	outs := r.task.Outputs()
	if outs == nil {
		return nil, dagapi.ErrorWorkflowInvalid(
			"output " + string(r.label) + " of task " + string(r.task.Name()) + " referenced before outputs were initialized")
	}
	d := outs.Get(r.label)
	if d == nil {
		return nil, dagapi.ErrorWorkflowInvalid(
			"task " + string(r.task.Name()) + " declares no output named " + string(r.label))
	}
	return d, nil
}

func (r outputRef) Producer() *Base { return r.task }

// InputBinding is one ordered entry of a task's input map.
type InputBinding struct {
	Label   dagapi.LocalLabel
	Binding Binding
}

// OutputSpec is one ordered entry of a task's declared outputs.
// The Spec value is interpreted by the body's InitializeOutputs:
// a path string for file-backed variants, nil for in-memory ones,
// or an already-constructed datum to adopt.
type OutputSpec struct {
	Label dagapi.LocalLabel
	Spec  interface{}
}

// Config carries the declarative parts of a task.
type Config struct {
	Inputs    []InputBinding
	Outputs   []OutputSpec
	Resources dagapi.ResourceDemand
}

// Base is the engine-facing task value.
type Base struct {
	name dagapi.TaskName
	body Body

	inputKeys   []dagapi.LocalLabel
	inputValues map[dagapi.LocalLabel]Binding

	outputKeys  []dagapi.LocalLabel
	outputSpecs map[dagapi.LocalLabel]interface{}

	resources dagapi.ResourceDemand
	parents   []*Base

	mu      sync.Mutex
	state   dagapi.TaskState
	outputs *datum.Collection

	interruptOnce sync.Once
}

// New constructs a WAITING task around the given body.
// Parents are derived from the input bindings, deduplicated in first
// appearance order; that order is what makes scheduling deterministic.
func New(name dagapi.TaskName, body Body, cfg Config) *Base {
	t := &Base{
		name:        name,
		body:        body,
		inputValues: make(map[dagapi.LocalLabel]Binding, len(cfg.Inputs)),
		outputSpecs: make(map[dagapi.LocalLabel]interface{}, len(cfg.Outputs)),
		resources:   cfg.Resources,
		state:       dagapi.TaskWaiting,
	}
	if t.resources == nil {
		t.resources = dagapi.ResourceDemand{}
	}
	seen := make(map[*Base]struct{})
	for _, in := range cfg.Inputs {
		t.inputKeys = append(t.inputKeys, in.Label)
		t.inputValues[in.Label] = in.Binding
		if p := in.Binding.Producer(); p != nil {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				t.parents = append(t.parents, p)
			}
		}
	}
	for _, out := range cfg.Outputs {
		t.outputKeys = append(t.outputKeys, out.Label)
		t.outputSpecs[out.Label] = out.Spec
	}
	return t
}

// BindInput adds an input binding after construction. Late binding is
// how mutually-referencing graphs get wired (and how the manager's cycle
// detection earns its keep). Must not be called once scheduling begins.
func (t *Base) BindInput(label dagapi.LocalLabel, binding Binding) {
	if _, exists := t.inputValues[label]; !exists {
		t.inputKeys = append(t.inputKeys, label)
	}
	t.inputValues[label] = binding
	if p := binding.Producer(); p != nil {
		for _, existing := range t.parents {
			if existing == p {
				return
			}
		}
		t.parents = append(t.parents, p)
	}
}

func (t *Base) Name() dagapi.TaskName { return t.name }

func (t *Base) State() dagapi.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Resources returns the declared demand. Absent keys mean zero.
func (t *Base) Resources() dagapi.ResourceDemand { return t.resources }

// Parents returns the tasks whose outputs appear in this task's inputs,
// in first-appearance order of the input bindings.
func (t *Base) Parents() []*Base { return t.parents }

// InputKeys returns the input labels in declaration order.
func (t *Base) InputKeys() []dagapi.LocalLabel { return t.inputKeys }

// Input returns the binding for an input label, or nil if absent.
func (t *Base) Input(label dagapi.LocalLabel) Binding { return t.inputValues[label] }

// OutputKeys returns the declared output labels in declaration order.
func (t *Base) OutputKeys() []dagapi.LocalLabel { return t.outputKeys }

// Output returns a handle for the named output's future value. It can be
// bound into downstream tasks before this task's outputs exist; the
// scheduler resolves it once InitializeOutputs has run.
func (t *Base) Output(label dagapi.LocalLabel) Binding {
	return outputRef{task: t, label: label}
}

// Outputs returns the initialized output collection, or nil before
// InitializeOutputs has run.
func (t *Base) Outputs() *datum.Collection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputs
}

// Transition moves the task to a new state, enforcing the permitted
// transition graph. Only the workflow manager should call this.
//
// Errors:
//
//    - dagger-error-workflow-invalid -- on a disallowed transition
func (t *Base) Transition(to dagapi.TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !allowedTransition(t.state, to) {
		return dagapi.ErrorWorkflowInvalid(
			"disallowed transition for task " + string(t.name) + ": " + t.state.String() + " -> " + to.String())
	}
	t.state = to
	return nil
}

func allowedTransition(from, to dagapi.TaskState) bool {
	switch from {
	case dagapi.TaskWaiting:
		// WAITING -> COMPLETE covers tasks found already satisfied at
		// initialization, which are never dispatched.
		return to == dagapi.TaskRunning || to == dagapi.TaskComplete
	case dagapi.TaskRunning:
		return to == dagapi.TaskComplete || to == dagapi.TaskFailed
	default:
		return false
	}
}

// InitializeOutputs converts the declared output specs into concrete
// datums via the body. Called once per task before scheduling begins;
// subsequent calls are no-ops.
//
// Errors:
//
//    - dagger-error-invalid-format -- when a spec cannot be turned into a handle
//    - dagger-error-workflow-invalid -- when the body omits a declared output
func (t *Base) InitializeOutputs() error {
	t.mu.Lock()
	if t.outputs != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	made, err := t.body.InitializeOutputs(t.outputKeys, t.outputSpecs)
	if err != nil {
		return err
	}
	values := make(map[dagapi.LocalLabel]datum.Datum, len(t.outputKeys))
	for _, k := range t.outputKeys {
		d, ok := made[k]
		if !ok || d == nil {
			return dagapi.ErrorWorkflowInvalid(
				"task " + string(t.name) + " body did not initialize declared output " + string(k))
		}
		values[k] = d
	}
	outs := datum.NewCollection(t.outputKeys, values)
	t.mu.Lock()
	t.outputs = outs
	t.mu.Unlock()
	return nil
}

// Ready reports whether the task can be admitted: WAITING, every parent
// COMPLETE, and every input datum AVAILABLE.
func (t *Base) Ready() bool {
	if t.State() != dagapi.TaskWaiting {
		return false
	}
	for _, p := range t.parents {
		if p.State() != dagapi.TaskComplete {
			return false
		}
	}
	for _, k := range t.inputKeys {
		d, err := t.inputValues[k].Resolve()
		if err != nil || d.State() != dagapi.DatumAvailable {
			return false
		}
	}
	return true
}

// CollectInputs resolves the input bindings and hands them to the body.
// Runs on the worker, immediately before RunLogic.
//
// Errors:
//
//    - dagger-error-input-not-ready -- when an input datum is not AVAILABLE; indicates a scheduler bug
//    - dagger-error-workflow-invalid -- when a binding cannot be resolved
func (t *Base) CollectInputs(ctx context.Context) (interface{}, error) {
	values := make(map[dagapi.LocalLabel]datum.Datum, len(t.inputKeys))
	for _, k := range t.inputKeys {
		d, err := t.inputValues[k].Resolve()
		if err != nil {
			return nil, err
		}
		if d.State() != dagapi.DatumAvailable {
			return nil, dagapi.ErrorInputNotReady(t.name, k, d.State())
		}
		values[k] = d
	}
	return t.body.CollectInputs(ctx, datum.NewCollection(t.inputKeys, values))
}

// RunLogic performs the computation on the worker.
func (t *Base) RunLogic(ctx context.Context, collected interface{}) (map[dagapi.LocalLabel]interface{}, error) {
	return t.body.RunLogic(ctx, collected)
}

// Finalize populates and verifies every declared output from the body's
// raw result map. Run by the scheduler after the worker returns.
//
// Errors:
//
//    - dagger-error-output-missing -- when a declared output is absent from the result map
//    - dagger-error-invalid-format -- when an output datum rejects its pointer
//    - dagger-error-not-available -- when an output datum fails verification
//    - dagger-error-workflow-invalid -- when outputs were never initialized
func (t *Base) Finalize(raw map[dagapi.LocalLabel]interface{}) error {
	outs := t.Outputs()
	if outs == nil {
		return dagapi.ErrorWorkflowInvalid("task " + string(t.name) + " finalized before outputs were initialized")
	}
	for _, k := range t.outputKeys {
		value, ok := raw[k]
		if !ok {
			return dagapi.ErrorOutputMissing(t.name, k)
		}
		d := outs.Get(k)
		if err := d.Populate(value); err != nil {
			return err
		}
		if err := d.Verify(); err != nil {
			return err
		}
	}
	return nil
}

// InterruptCleanup runs the body's interrupt cleanup exactly once, no
// matter how many times cancellation is requested.
func (t *Base) InterruptCleanup() {
	t.interruptOnce.Do(t.body.InterruptCleanup)
}

// FailCleanup runs the body's failure cleanup.
func (t *Base) FailCleanup() {
	t.body.FailCleanup()
}

// Quickhash is a cheap identity for change detection: it folds the task
// name, the input labels with their datum hashes, and the declared output
// labels. The resource demand does not contribute.
func (t *Base) Quickhash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(t.name))
	for _, k := range t.inputKeys {
		h.Write([]byte(k))
		if d, err := t.inputValues[k].Resolve(); err == nil {
			qh := d.Quickhash()
			var buf [8]byte
			for i := 0; i < 8; i++ {
				buf[i] = byte(qh >> (8 * i))
			}
			h.Write(buf[:])
		}
	}
	for _, k := range t.outputKeys {
		h.Write([]byte(k))
	}
	return h.Sum64()
}
