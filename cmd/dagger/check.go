package main

import (
	"os"
	"path/filepath"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec/json"
	"github.com/urfave/cli/v2"
	"github.com/warpfork/go-fsx/osfs"

	"github.com/dpmerrell/dagger/cmd/dagger/internal/util"
	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/config"
	"github.com/dpmerrell/dagger/pkg/dab"
	"github.com/dpmerrell/dagger/pkg/dag"
	"github.com/dpmerrell/dagger/pkg/logging"
)

var checkCmdDef = cli.Command{
	Name:        "check",
	Usage:       "Check workflow file(s) for syntax and sanity",
	Description: checkCmdDescription,
	ArgsUsage:   "[workflow file...]",
	Action: util.ChainCmdMiddleware(cmdCheck,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
}

func checkWorkflow(state config.State, fileName string) (*ipld.Node, error) {
	abs := state.Resolve(fileName)
	f, err := os.ReadFile(abs)
	if err != nil {
		return nil, dagapi.ErrorIo("cannot read workflow file", fileName, err)
	}

	doc := dagapi.WorkflowDocument{}
	n, err := ipld.Unmarshal(f, json.Decode, &doc, dagapi.TypeSystem.TypeByName("WorkflowDocument"))
	if err != nil {
		return nil, dagapi.ErrorSerialization("cannot deserialize workflow", err)
	}
	if _, err := dab.WorkflowFromBytes(f); err != nil {
		return &n, err
	}

	// compile and ensure the graph is acyclic
	root, _, err := dab.CompileWorkflow(osfs.DirFS(filepath.Dir(abs)), dab.CompileConfig{Dir: filepath.Dir(abs)}, doc)
	if err != nil {
		return &n, err
	}
	if witness := dag.DetectCycle(root); witness != nil {
		return &n, dagapi.ErrorCyclicGraph(witness)
	}
	return &n, nil
}

func cmdCheck(c *cli.Context) error {
	if !c.Args().Present() {
		return dagapi.ErrorWorkflowInvalid("no workflow file given")
	}
	logger := logging.Ctx(c.Context)
	state, err := config.Load()
	if err != nil {
		return err
	}
	for _, filename := range c.Args().Slice() {
		n, err := checkWorkflow(state, filename)
		if err != nil {
			return err
		}
		logger.Debug("", "checked %q: ok", filename)
		if n != nil {
			c.App.Metadata["result"] = *n
		}
	}
	return nil
}
