package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	qt "github.com/frankban/quicktest"
)

func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	app := makeApp(bytes.NewReader(nil), &outBuf, &errBuf)
	err = app.Run(append([]string{"dagger"}, args...))
	return outBuf.String(), errBuf.String(), err
}

func writeWorkflow(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "workflow.dg")
	err := os.WriteFile(path, []byte(body), 0644)
	qt.Assert(t, err, qt.IsNil)
	return path
}

const singleTaskWorkflow = `{
	"inputs": {},
	"tasks": {
		"emit": {
			"command": ["sh", "-c", "printf hello > \"$DAGGER_OUTPUT_OUT\""],
			"inputs": {},
			"outputs": {"out": "out.txt"},
			"resources": {}
		}
	},
	"root": "emit"
}`

const cyclicWorkflow = `{
	"inputs": {},
	"tasks": {
		"ping": {
			"command": ["true"],
			"inputs": {"in": "pipe:pong:out"},
			"outputs": {"out": "ping.txt"},
			"resources": {}
		},
		"pong": {
			"command": ["true"],
			"inputs": {"in": "pipe:ping:out"},
			"outputs": {"out": "pong.txt"},
			"resources": {}
		}
	},
	"root": "pong"
}`

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, singleTaskWorkflow)

	stdout, _, err := runApp(t, "check", path)
	qt.Assert(t, err, qt.IsNil)
	// check echoes the parsed document as the command result
	qt.Assert(t, stdout, qt.Contains, `"root"`)
}

func TestCheckRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, cyclicWorkflow)

	_, _, err := runApp(t, "check", path)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestGraphCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, singleTaskWorkflow)

	stdout, _, err := runApp(t, "graph", path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, stdout, qt.Contains, "emit")
}

func TestRunCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("run test needs a posix shell")
	}
	dir := t.TempDir()
	path := writeWorkflow(t, dir, singleTaskWorkflow)

	stdout, _, err := runApp(t, "run", "--force", path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, stdout, qt.Contains, "emit")

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, string(data), qt.Equals, "hello")
}
