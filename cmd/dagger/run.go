package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/warpfork/go-fsx/osfs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dpmerrell/dagger/cmd/dagger/internal/util"
	"github.com/dpmerrell/dagger/dagapi"
	"github.com/dpmerrell/dagger/pkg/config"
	"github.com/dpmerrell/dagger/pkg/dab"
	"github.com/dpmerrell/dagger/pkg/dagexec"
	"github.com/dpmerrell/dagger/pkg/logging"
	"github.com/dpmerrell/dagger/pkg/tracing"
	"github.com/dpmerrell/dagger/pkg/workerpool"
)

var runCmdDef = cli.Command{
	Name:        "run",
	Usage:       "Run a workflow",
	Description: runCmdDescription,
	ArgsUsage:   "[workflow file]",
	Action: util.ChainCmdMiddleware(cmdRun,
		util.CmdMiddlewareLogging,
		util.CmdMiddlewareTracingConfig,
		util.CmdMiddlewareTracingSpan,
	),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "resources",
			Aliases: []string{"r"},
			Usage:   "Global resource budget, e.g. 'gpu=2,memory_gb=16'. Unnamed resources are unbounded.",
		},
		&cli.BoolFlag{
			Name:    "force",
			Aliases: []string{"f"},
			Usage:   "Force execution, even if declared outputs already exist",
		},
	},
}

func cmdRun(c *cli.Context) error {
	ctx := c.Context
	logger := logging.Ctx(ctx)

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
	logger.Debug("", "workflow cid: %s", doc.Cid())
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(tracing.AttrKeyDaggerWorkflowCid, string(doc.Cid())))

	root, all, err := dab.CompileWorkflow(fsys, dab.CompileConfig{
		Dir:               filepath.Dir(abs),
		KeepFailedOutputs: config.KeepFailedOutputs(state),
	}, doc)
	if err != nil {
		return err
	}

	budget, err := parseBudget(c.String("resources"))
	if err != nil {
		return err
	}
	pool := workerpool.NewGoroutine(config.PoolSize(state))
	defer pool.Shutdown()

	mgr, err := dagexec.New(root, dagexec.ExecConfig{
		Budget:        budget,
		Pool:          pool,
		PollInterval:  config.PollInterval(state),
		SkipSatisfied: !c.Bool("force"),
	})
	if err != nil {
		return err
	}

	// ctrl-c cancels the workflow; running tasks get interrupted and the
	// manager drains before we exit.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	result, err := mgr.Run(ctx)
	if err != nil {
		return err
	}

	snap := mgr.Status()
	for _, t := range all {
		logger.Out("%s\t%s", t.Name(), snap.Tasks[t.Name()])
	}

	if result.State == dagapi.WorkflowFailed {
		for name, cause := range result.Failed {
			logger.Info(LOG_TAG_RESULT, "task %q failed: %s", name, cause)
		}
		for _, cause := range result.Failed {
			// surface one failure as the command error; the rest are logged above
			return cause
		}
		return dagapi.ErrorWorkflowInvalid("workflow failed")
	}
	return nil
}

const LOG_TAG_RESULT = "├─ result"

func parseBudget(s string) (dagapi.ResourceBudget, error) {
	budget := dagapi.ResourceBudget{}
	if s == "" {
		return budget, nil
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, dagapi.ErrorWorkflowInvalid(fmt.Sprintf("malformed resource %q: want key=value", part))
		}
		n, err := strconv.Atoi(kv[1])
		if err != nil || n < 0 {
			return nil, dagapi.ErrorWorkflowInvalid(fmt.Sprintf("malformed resource %q: value must be a nonnegative integer", part))
		}
		budget[kv[0]] = n
	}
	return budget, nil
}
