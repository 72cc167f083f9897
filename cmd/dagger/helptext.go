package main

import (
	"github.com/MakeNowJust/heredoc"
)

// appHelpTemplate overrides urfave/cli's default so the layout stays
// stable even if the library's default shifts between versions.
var appHelpTemplate = heredoc.Doc(`
	NAME:
	   {{.Name}}{{if .Usage}} - {{.Usage}}{{end}}

	USAGE:
	   {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}{{if .Description}}

	DESCRIPTION:
	   {{.Description}}{{end}}{{if .VisibleCommands}}

	COMMANDS:{{range .VisibleCategories}}{{if .Name}}
	   {{.Name}}:{{range .VisibleCommands}}
	     {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
	   {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}

	GLOBAL OPTIONS:
	   {{range $index, $option := .VisibleFlags}}{{if $index}}
	   {{end}}{{$option}}{{end}}{{end}}
`)

var runCmdDescription = heredoc.Doc(`
	Loads a workflow document, compiles it into a task graph, and executes
	it: tasks are admitted as their upstream outputs become available,
	subject to the global resource budget given with --resources.

	Tasks whose declared outputs already exist are not re-run unless
	--force is given.
`)

var checkCmdDescription = heredoc.Doc(`
	Parses each given workflow document and verifies it compiles: every
	pipe must resolve, every task name must be legal, and the task graph
	must be acyclic. The parsed document is echoed to stdout on success.
`)

var graphCmdDescription = heredoc.Doc(`
	Prints the workflow's tasks in execution order, each with the tasks
	it depends on.
`)
