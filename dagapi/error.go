package dagapi

import (
	"github.com/serum-errors/go-serum"
)

const (
	CodeInitialization        = "dagger-error-initialization"
	CodeCyclicGraph           = "dagger-error-cyclic-graph"
	CodeUnsatisfiableResource = "dagger-error-unsatisfiable-resource"
	CodeInvalidFormat         = "dagger-error-invalid-format"
	CodeNotAvailable          = "dagger-error-not-available"
	CodeOutputMissing         = "dagger-error-output-missing"
	CodeInputNotReady         = "dagger-error-input-not-ready"
	CodeWorkerCrash           = "dagger-error-worker-crash"
	CodeDeadlock              = "dagger-error-deadlock"
	CodeAlreadyRun            = "dagger-error-already-run"
	CodeWorkflowInvalid       = "dagger-error-workflow-invalid"
	CodeSerialization         = "dagger-error-serialization"
	CodeIo                    = "dagger-error-io"
	CodeGit                   = "dagger-error-git"
)

// ErrorCyclicGraph is returned at manager construction when the task
// graph reachable from the root contains a cycle. The witness is the
// cycle's task names in walk order.
//
// Errors:
//
//    - dagger-error-cyclic-graph --
func ErrorCyclicGraph(witness []TaskName) error {
	path := ""
	for i, n := range witness {
		if i > 0 {
			path += " -> "
		}
		path += string(n)
	}
	return serum.Error(CodeCyclicGraph,
		serum.WithMessageTemplate("task graph contains a cycle: {{cycle}}"),
		serum.WithDetail("cycle", path),
	)
}

// ErrorUnsatisfiableResource is returned at manager construction when a
// task declares a demand exceeding the global budget for some key; such
// a task could never be admitted.
//
// Errors:
//
//    - dagger-error-unsatisfiable-resource --
func ErrorUnsatisfiableResource(task TaskName, key string, demand, budget int) error {
	return serum.Errorf(CodeUnsatisfiableResource,
		"task %q demands %d of resource %q but the global budget is %d", task, demand, key, budget)
}

// ErrorInvalidFormat is returned when a datum is populated with a
// pointer that fails format validation.
//
// Errors:
//
//    - dagger-error-invalid-format --
func ErrorInvalidFormat(pointer string, reason string) error {
	return serum.Error(CodeInvalidFormat,
		serum.WithMessageTemplate("datum pointer {{pointer|q}} is not well-formed: {{reason}}"),
		serum.WithDetail("pointer", pointer),
		serum.WithDetail("reason", reason),
	)
}

// ErrorNotAvailable is returned when a populated datum fails its
// availability check.
//
// Errors:
//
//    - dagger-error-not-available --
func ErrorNotAvailable(pointer string, cause error) error {
	if cause == nil {
		return serum.Error(CodeNotAvailable,
			serum.WithMessageTemplate("data at {{pointer|q}} is not available"),
			serum.WithDetail("pointer", pointer),
		)
	}
	result := serum.Errorf(CodeNotAvailable, "data at %q is not available: %w", pointer, cause)
	addDetails(result, [][2]string{{"pointer", pointer}})
	return result
}

// ErrorOutputMissing is returned by task finalization when the body's
// result map lacks a declared output.
//
// Errors:
//
//    - dagger-error-output-missing --
func ErrorOutputMissing(task TaskName, output LocalLabel) error {
	return serum.Error(CodeOutputMissing,
		serum.WithMessageTemplate("task {{task|q}} completed without producing declared output {{output|q}}"),
		serum.WithDetail("task", string(task)),
		serum.WithDetail("output", string(output)),
	)
}

// ErrorInputNotReady indicates a scheduler invariant violation: a task
// body was asked to collect an input datum that is not AVAILABLE. This
// is a bug in the manager, not in user code.
//
// Errors:
//
//    - dagger-error-input-not-ready --
func ErrorInputNotReady(task TaskName, input LocalLabel, state DatumState) error {
	return serum.Error(CodeInputNotReady,
		serum.WithMessageTemplate("task {{task|q}} input {{input|q}} is {{state}}, not AVAILABLE; this is a scheduler bug"),
		serum.WithDetail("task", string(task)),
		serum.WithDetail("input", string(input)),
		serum.WithDetail("state", state.String()),
	)
}

// ErrorWorkerCrash wraps an error that escaped a worker: a panic in a
// task body, or a transport failure between manager and worker.
//
// Errors:
//
//    - dagger-error-worker-crash --
func ErrorWorkerCrash(task TaskName, cause error) error {
	result := serum.Errorf(CodeWorkerCrash, "worker running task %q crashed: %w", task, cause)
	addDetails(result, [][2]string{{"task", string(task)}})
	return result
}

// ErrorDeadlock is returned when the manager terminates with waiting
// tasks that can never become ready and nothing running.
//
// Errors:
//
//    - dagger-error-deadlock --
func ErrorDeadlock(stuck []TaskName) error {
	names := ""
	for i, n := range stuck {
		if i > 0 {
			names += ", "
		}
		names += string(n)
	}
	return serum.Error(CodeDeadlock,
		serum.WithMessageTemplate("workflow deadlocked: tasks {{stuck}} are waiting but nothing is running or ready"),
		serum.WithDetail("stuck", names),
	)
}

// ErrorAlreadyRun is returned when Run is invoked on a manager that has
// already driven its workflow to a terminal state. Managers are
// single-shot.
//
// Errors:
//
//    - dagger-error-already-run --
func ErrorAlreadyRun(state WorkflowState) error {
	return serum.Error(CodeAlreadyRun,
		serum.WithMessageTemplate("this manager already ran its workflow (result: {{state}}); construct a new manager to run again"),
		serum.WithDetail("state", state.String()),
	)
}

// ErrorWorkflowInvalid is returned when a workflow or its document form
// contains invalid data.
//
// Errors:
//
//    - dagger-error-workflow-invalid --
func ErrorWorkflowInvalid(reason string) error {
	return serum.Error(CodeWorkflowInvalid,
		serum.WithMessageTemplate("invalid workflow: {{reason}}"),
		serum.WithDetail("reason", reason),
	)
}

// ErrorSerialization is returned when a workflow document cannot be
// parsed or emitted.
//
// Errors:
//
//    - dagger-error-serialization --
func ErrorSerialization(context string, cause error) error {
	result := serum.Errorf(CodeSerialization, "serialization error: %s: %w", context, cause)
	addDetails(result, [][2]string{{"context", context}})
	return result
}

// ErrorIo wraps generic I/O errors from the Go stdlib.
//
// Errors:
//
//    - dagger-error-io --
func ErrorIo(context string, path string, cause error) error {
	result := serum.Errorf(CodeIo, "io error: %s: %w", context, cause)
	addDetails(result, [][2]string{{"context", context}, {"path", path}})
	return result
}

// ErrorGit is returned when a go-git error occurs.
//
// Errors:
//
//    - dagger-error-git --
func ErrorGit(context string, cause error) error {
	result := serum.Errorf(CodeGit, "git error: %s: %w", context, cause)
	addDetails(result, [][2]string{
		{"context", context},
	})
	return result
}

func addDetails(err error, details [][2]string) {
	s := err.(*serum.ErrorValue)
	s.Data.Details = append(s.Data.Details, details...)
}
