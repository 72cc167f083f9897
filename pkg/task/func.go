package task

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/datum"
	"github.com/dpmerrell/dagger/pkg/tracing"
)

// Func is the pure-function task variant: the body is a Go function from
// named input values to named output values, and outputs are in-memory
// datums. Suited to workloads that stay within the process.
type Func struct {
	// Run receives the input values keyed by label and returns the
	// output values keyed by label.
	Run func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error)

	// OnInterrupt and OnFail are optional cleanup callbacks.
	OnInterrupt func()
	OnFail      func()
}

// NewFunc builds a task around a pure function body.
func NewFunc(name dagapi.TaskName, run func(ctx context.Context, args map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]interface{}, error), cfg Config) *Base {
	return New(name, &Func{Run: run}, cfg)
}

func (f *Func) InitializeOutputs(keys []dagapi.LocalLabel, specs map[dagapi.LocalLabel]interface{}) (map[dagapi.LocalLabel]datum.Datum, error) {
	out := make(map[dagapi.LocalLabel]datum.Datum, len(keys))
	for _, k := range keys {
		switch spec := specs[k].(type) {
		case nil:
			out[k] = datum.NewMem()
		case datum.Datum:
			// adopt a partially-constructed handle supplied by the user
			out[k] = spec
		default:
			return nil, dagapi.ErrorInvalidFormat(fmt.Sprintf("%v", spec),
				"func task output specs must be nil or a datum")
		}
	}
	return out, nil
}

func (f *Func) CollectInputs(ctx context.Context, inputs *datum.Collection) (interface{}, error) {
	args := make(map[dagapi.LocalLabel]interface{}, inputs.Len())
	for _, k := range inputs.Keys {
		args[k] = inputs.Get(k).Pointer()
	}
	return args, nil
}

func (f *Func) RunLogic(ctx context.Context, collected interface{}) (map[dagapi.LocalLabel]interface{}, error) {
	args, ok := collected.(map[dagapi.LocalLabel]interface{})
	if !ok {
		return nil, dagapi.ErrorWorkflowInvalid("func task received mismatched collected inputs")
	}
	ctx, span := tracing.Start(ctx, "func task body",
		trace.WithAttributes(tracing.AttrFullExecNameFunc, tracing.AttrFullExecPhaseRun))
	defer span.End()
	return f.Run(ctx, args)
}

func (f *Func) InterruptCleanup() {
	if f.OnInterrupt != nil {
		f.OnInterrupt()
	}
}

func (f *Func) FailCleanup() {
	if f.OnFail != nil {
		f.OnFail()
	}
}
