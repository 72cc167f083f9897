package dagapi

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	_ "github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/node/bindnode"
	"github.com/ipld/go-ipld-prime/schema"

	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
)

func init() {
	TypeSystem.Accumulate(schema.SpawnString("TaskName"))
	TypeSystem.Accumulate(schema.SpawnString("LocalLabel"))
	TypeSystem.Accumulate(schema.SpawnString("Binding"))
	TypeSystem.Accumulate(schema.SpawnStruct("WorkflowDocument",
		[]schema.StructField{
			schema.SpawnStructField("inputs", "Map__LocalLabel__String", false, false),
			schema.SpawnStructField("tasks", "Map__TaskName__TaskSpec", false, false),
			schema.SpawnStructField("root", "TaskName", false, false),
		},
		schema.SpawnStructRepresentationMap(nil)))
	TypeSystem.Accumulate(schema.SpawnStruct("TaskSpec",
		[]schema.StructField{
			schema.SpawnStructField("command", "List__String", false, false),
			schema.SpawnStructField("inputs", "Map__LocalLabel__Binding", false, false),
			schema.SpawnStructField("outputs", "Map__LocalLabel__String", false, false),
			schema.SpawnStructField("resources", "Map__String__Int", false, false),
		},
		schema.SpawnStructRepresentationMap(nil)))
	TypeSystem.Accumulate(schema.SpawnMap("Map__LocalLabel__String",
		"LocalLabel", "String", false))
	TypeSystem.Accumulate(schema.SpawnMap("Map__TaskName__TaskSpec",
		"TaskName", "TaskSpec", false))
	TypeSystem.Accumulate(schema.SpawnMap("Map__LocalLabel__Binding",
		"LocalLabel", "Binding", false))
	TypeSystem.Accumulate(schema.SpawnMap("Map__String__Int",
		"String", "Int", false))
	TypeSystem.Accumulate(schema.SpawnList("List__String", "String", false))
	TypeSystem.Accumulate(schema.SpawnString("String"))
	TypeSystem.Accumulate(schema.SpawnInt("Int"))
}

// WorkflowDocument is the serial form of an exec-task workflow:
// named input files, a graph of subprocess tasks wired by bindings,
// and the root task whose outputs the caller wants.
//
// This is the format the CLI consumes; the engine itself only ever sees
// the task and datum values the document is compiled into.
type WorkflowDocument struct {
	Inputs struct {
		Keys   []LocalLabel
		Values map[LocalLabel]string
	}
	Tasks struct {
		Keys   []TaskName
		Values map[TaskName]TaskSpec
	}
	Root TaskName
}

// TaskSpec is the serial form of one exec task: the argv to run, input
// bindings, declared output files, and resource demand.
type TaskSpec struct {
	Command []string
	Inputs  struct {
		Keys   []LocalLabel
		Values map[LocalLabel]Binding
	}
	Outputs struct {
		Keys   []LocalLabel
		Values map[LocalLabel]string
	}
	Resources struct {
		Keys   []string
		Values map[string]int
	}
}

// WorkflowCID identifies a workflow document by content.
type WorkflowCID string

// Cid computes the content id of a workflow document.
// Used for change detection between runs of the same document.
func (doc *WorkflowDocument) Cid() WorkflowCID {
	n := bindnode.Wrap(doc, TypeSystem.TypeByName("WorkflowDocument"))
	lsys := cidlink.DefaultLinkSystem()
	lnk, errRaw := lsys.ComputeLink(cidlink.LinkPrototype{Prefix: cid.Prefix{
		Version:  1,    // Usually '1'.
		Codec:    0x71, // 0x71 means "dag-cbor" -- See the multicodecs table: https://github.com/multiformats/multicodec/
		MhType:   0x13, // 0x13 means "sha2-512" -- See the multicodecs table: https://github.com/multiformats/multicodec/
		MhLength: 64,   // sha2-512 hash has a 64-byte sum.
	}}, n.(schema.TypedNode).Representation())
	if errRaw != nil {
		// panic! this should never fail unless IPLD is broken
		panic(fmt.Sprintf("Fatal IPLD Error: lsys.ComputeLink failed for WorkflowDocument: %s", errRaw))
	}
	return WorkflowCID(lnk.String())
}

// Binding wires a task input to its source. Serial forms:
//
//	"pipe::label"       -- a workflow-level input named by label
//	"pipe:task:label"   -- output `label` of upstream task `task`
//	"file:/some/path"   -- a literal file path
//	"literal:text"      -- an inline literal value
type Binding string

// BindingParsed is the structured view of a Binding string.
// Exactly one member group is meaningful per kind.
type BindingParsed struct {
	Kind BindingKind

	// for BindingPipe: Task may be empty, meaning a workflow-level input.
	Task  TaskName
	Label LocalLabel

	// for BindingFile and BindingLiteral.
	Value string
}

type BindingKind int

const (
	BindingPipe BindingKind = iota
	BindingFile
	BindingLiteral
)

// Parse splits a binding string into its structured form.
//
// Errors:
//
//    - dagger-error-workflow-invalid -- when the binding string has an unknown form
func (b Binding) Parse() (BindingParsed, error) {
	s := string(b)
	switch {
	case strings.HasPrefix(s, "pipe:"):
		rest := strings.TrimPrefix(s, "pipe:")
		i := strings.Index(rest, ":")
		if i < 0 {
			return BindingParsed{}, ErrorWorkflowInvalid(fmt.Sprintf("binding %q: pipe form is pipe:<task>:<label>", s))
		}
		return BindingParsed{
			Kind:  BindingPipe,
			Task:  TaskName(rest[:i]),
			Label: LocalLabel(rest[i+1:]),
		}, nil
	case strings.HasPrefix(s, "file:"):
		return BindingParsed{Kind: BindingFile, Value: strings.TrimPrefix(s, "file:")}, nil
	case strings.HasPrefix(s, "literal:"):
		return BindingParsed{Kind: BindingLiteral, Value: strings.TrimPrefix(s, "literal:")}, nil
	default:
		return BindingParsed{}, ErrorWorkflowInvalid(fmt.Sprintf("binding %q: unknown form", s))
	}
}
