package dagapi_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/serum-errors/go-serum"

	"github.com/dpmerrell/dagger/dagapi"
)

func TestBindingParse(t *testing.T) {
	for _, tc := range []struct {
		binding dagapi.Binding
		want    dagapi.BindingParsed
		errCode string
	}{
		{
			binding: "pipe::src",
			want:    dagapi.BindingParsed{Kind: dagapi.BindingPipe, Task: "", Label: "src"},
		},
		{
			binding: "pipe:prep:out",
			want:    dagapi.BindingParsed{Kind: dagapi.BindingPipe, Task: "prep", Label: "out"},
		},
		{
			binding: "file:/data/x.txt",
			want:    dagapi.BindingParsed{Kind: dagapi.BindingFile, Value: "/data/x.txt"},
		},
		{
			binding: "literal:hello world",
			want:    dagapi.BindingParsed{Kind: dagapi.BindingLiteral, Value: "hello world"},
		},
		{
			binding: "pipe:no-label",
			errCode: dagapi.CodeWorkflowInvalid,
		},
		{
			binding: "wat:dunno",
			errCode: dagapi.CodeWorkflowInvalid,
		},
	} {
		t.Run(string(tc.binding), func(t *testing.T) {
			got, err := tc.binding.Parse()
			if tc.errCode != "" {
				qt.Assert(t, serum.Code(err), qt.Equals, tc.errCode)
				return
			}
			qt.Assert(t, err, qt.IsNil)
			qt.Assert(t, got, qt.Equals, tc.want)
		})
	}
}

func minimalDoc() dagapi.WorkflowDocument {
	doc := dagapi.WorkflowDocument{}
	doc.Inputs.Keys = []dagapi.LocalLabel{"src"}
	doc.Inputs.Values = map[dagapi.LocalLabel]string{"src": "data/src.txt"}
	spec := dagapi.TaskSpec{Command: []string{"true"}}
	spec.Inputs.Keys = []dagapi.LocalLabel{}
	spec.Inputs.Values = map[dagapi.LocalLabel]dagapi.Binding{}
	spec.Outputs.Keys = []dagapi.LocalLabel{"out"}
	spec.Outputs.Values = map[dagapi.LocalLabel]string{"out": "build/out.txt"}
	spec.Resources.Keys = []string{}
	spec.Resources.Values = map[string]int{}
	doc.Tasks.Keys = []dagapi.TaskName{"only"}
	doc.Tasks.Values = map[dagapi.TaskName]dagapi.TaskSpec{"only": spec}
	doc.Root = "only"
	return doc
}

func TestWorkflowCidIsStable(t *testing.T) {
	a := minimalDoc()
	b := minimalDoc()
	qt.Assert(t, a.Cid(), qt.Equals, b.Cid())

	c := minimalDoc()
	c.Root = "renamed"
	c.Tasks.Keys = []dagapi.TaskName{"renamed"}
	c.Tasks.Values = map[dagapi.TaskName]dagapi.TaskSpec{"renamed": c.Tasks.Values["only"]}
	delete(c.Tasks.Values, "only")
	qt.Assert(t, a.Cid(), qt.Not(qt.Equals), c.Cid())
}

func TestResourceBudgetArithmetic(t *testing.T) {
	budget := dagapi.ResourceBudget{"gpu": 2, "mem": 16}

	qt.Assert(t, budget.Satisfies(dagapi.ResourceDemand{"gpu": 2}), qt.IsTrue)
	qt.Assert(t, budget.Satisfies(dagapi.ResourceDemand{"gpu": 3}), qt.IsFalse)
	// absent budget keys are unbounded
	qt.Assert(t, budget.Satisfies(dagapi.ResourceDemand{"disk": 9000}), qt.IsTrue)
	// absent demand keys are zero
	qt.Assert(t, budget.Satisfies(dagapi.ResourceDemand{}), qt.IsTrue)

	budget.Grab(dagapi.ResourceDemand{"gpu": 2, "disk": 5})
	qt.Assert(t, budget["gpu"], qt.Equals, 0)
	qt.Assert(t, budget.Satisfies(dagapi.ResourceDemand{"gpu": 1}), qt.IsFalse)

	budget.Release(dagapi.ResourceDemand{"gpu": 2})
	qt.Assert(t, budget["gpu"], qt.Equals, 2)

	clone := budget.Clone()
	clone.Grab(dagapi.ResourceDemand{"gpu": 1})
	qt.Assert(t, budget["gpu"], qt.Equals, 2)
}

func TestStateStrings(t *testing.T) {
	qt.Assert(t, dagapi.DatumEmpty.String(), qt.Equals, "EMPTY")
	qt.Assert(t, dagapi.DatumPopulated.String(), qt.Equals, "POPULATED")
	qt.Assert(t, dagapi.DatumAvailable.String(), qt.Equals, "AVAILABLE")
	qt.Assert(t, dagapi.TaskWaiting.String(), qt.Equals, "WAITING")
	qt.Assert(t, dagapi.TaskRunning.String(), qt.Equals, "RUNNING")
	qt.Assert(t, dagapi.TaskComplete.String(), qt.Equals, "COMPLETE")
	qt.Assert(t, dagapi.TaskFailed.String(), qt.Equals, "FAILED")
	qt.Assert(t, dagapi.TaskComplete.Terminal(), qt.IsTrue)
	qt.Assert(t, dagapi.TaskRunning.Terminal(), qt.IsFalse)
}
