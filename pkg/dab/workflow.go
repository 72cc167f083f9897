package dab

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec/json"
	"github.com/serum-errors/go-serum"

	"github.com/dpmerrell/dagger/dagapi"
)

const (
	MagicFilename_Workflow = "workflow.dg"
)

var (
	alphaNumReFmt = `[a-zA-Z0-9]`
	wordReFmt     = `[-a-zA-Z0-9_\.]`
	reTaskName    = regexp.MustCompile(fmt.Sprintf(`^%s(%s*%s)?$`, alphaNumReFmt, wordReFmt, alphaNumReFmt))
)

// ValidateTaskName checks a task name for invalid strings.
//
// Task names have the following rules:
//    - Name MUST start AND end with an ASCII alpha-numeric character.
//    - Name MUST contain only ASCII alpha-numeric characters plus underscores '_', hyphens '-', and dots '.'.
//
// In particular no ':' (reserved by the binding syntax) and no whitespace.
//
// Errors:
//
//  - dagger-error-workflow-invalid -- when the task name is invalid
func ValidateTaskName(name dagapi.TaskName) error {
	if !reTaskName.MatchString(string(name)) {
		return serum.Error(dagapi.CodeWorkflowInvalid,
			serum.WithMessageLiteral("task names must start and end with an alphanumeric character and consist of alphanumeric characters, '-', '_', or '.'"),
			serum.WithDetail("name", string(name)),
		)
	}
	return nil
}

// WorkflowFromFile loads a dagapi.WorkflowDocument from a filesystem path.
//
// In typical usage, the filename parameter will have the suffix of MagicFilename_Workflow.
//
// Errors:
//
// 	- dagger-error-io -- for errors reading from fsys.
// 	- dagger-error-serialization -- for errors from trying to parse the data as a WorkflowDocument.
//  - dagger-error-workflow-invalid -- when a task name is invalid or the root is undeclared
func WorkflowFromFile(fsys fs.FS, filename string) (dagapi.WorkflowDocument, error) {
	const situation = "loading a workflow"
	if strings.HasPrefix(filename, "/") {
		filename = filename[1:]
	}
	f, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return dagapi.WorkflowDocument{}, dagapi.ErrorIo(situation, filename, err)
	}
	return WorkflowFromBytes(f)
}

// WorkflowFromBytes parses a serial WorkflowDocument.
//
// Errors:
//
// 	- dagger-error-serialization -- for errors from trying to parse the data as a WorkflowDocument.
//  - dagger-error-workflow-invalid -- when a task name is invalid or the root is undeclared
func WorkflowFromBytes(serial []byte) (dagapi.WorkflowDocument, error) {
	const situation = "parsing a workflow"
	doc := dagapi.WorkflowDocument{}
	_, err := ipld.Unmarshal(serial, json.Decode, &doc, dagapi.TypeSystem.TypeByName("WorkflowDocument"))
	if err != nil {
		return dagapi.WorkflowDocument{}, dagapi.ErrorSerialization(situation, err)
	}
	for _, name := range doc.Tasks.Keys {
		if err := ValidateTaskName(name); err != nil {
			return dagapi.WorkflowDocument{}, err
		}
	}
	if _, ok := doc.Tasks.Values[doc.Root]; !ok {
		return dagapi.WorkflowDocument{}, dagapi.ErrorWorkflowInvalid(
			fmt.Sprintf("root task %q is not declared in the workflow", doc.Root))
	}
	return doc, nil
}
