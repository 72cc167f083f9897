package main

import (
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/warpfork/go-fsx/osfs"

	"github.com/dpmerrell/dagger/cmd/dagger/internal/util"
	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/config"
	"github.com/dpmerrell/dagger/pkg/dab"
	"github.com/dpmerrell/dagger/pkg/dag"
	"github.com/dpmerrell/dagger/pkg/logging"
)

var graphCmdDef = cli.Command{
	Name:        "graph",
	Usage:       "Print a workflow's tasks in execution order, with their dependencies",
	Description: graphCmdDescription,
	ArgsUsage:   "[workflow file]",
	Action: util.ChainCmdMiddleware(cmdGraph,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
}

func cmdGraph(c *cli.Context) error {
	logger := logging.Ctx(c.Context)

	state, err := config.Load()
	if err != nil {
		return err
	}

	filename := c.Args().First()
	if filename == "" {
		filename = dab.MagicFilename_Workflow
	}
	abs := state.Resolve(filename)
	fsys := osfs.DirFS(filepath.Dir(abs))

	doc, err := dab.WorkflowFromFile(fsys, filepath.Base(abs))
	if err != nil {
		return err
	}
	root, _, err := dab.CompileWorkflow(fsys, dab.CompileConfig{Dir: filepath.Dir(abs)}, doc)
	if err != nil {
		return err
	}
	if witness := dag.DetectCycle(root); witness != nil {
		return dagapi.ErrorCyclicGraph(witness)
	}

	for _, t := range dag.TopoOrder(root) {
		parents := make([]string, 0, len(t.Parents()))
		for _, p := range t.Parents() {
			parents = append(parents, string(p.Name()))
		}
		if len(parents) == 0 {
			logger.Out("%s", t.Name())
			continue
		}
		logger.Out("%s <- [%s]", t.Name(), strings.Join(parents, " "))
	}
	return nil
}
