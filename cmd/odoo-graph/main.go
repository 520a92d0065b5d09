package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/DeusData/odoo-graph/internal/config"
	"github.com/DeusData/odoo-graph/internal/discover"
	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
	"github.com/DeusData/odoo-graph/internal/pipeline"
	"github.com/DeusData/odoo-graph/internal/query"
	"github.com/DeusData/odoo-graph/internal/store"
	"github.com/DeusData/odoo-graph/internal/tools"
)

var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitPartial = 3
)

const usage = `usage: odoo-graph <command> [flags]

Commands:
  load      scan the addons tree and sync the graph (--full forces FULL)
  model     show one model: odoo-graph model sale.order
  view      show one view: odoo-graph view sale.view_order_form
  models    list or search models
  impact    blast radius of changing a model or view
  stats     graph statistics and the last run
  clear     delete the project's graph and fingerprints
  serve     MCP server on stdio, optional HTTP API, schedule and watcher
  parse     print the fragments of one file (--ast dumps the Python syntax tree)

Run 'odoo-graph <command> --help' for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type command func(ctx context.Context, a *app, fs *pflag.FlagSet) int

type commandSpec struct {
	flags func(fs *pflag.FlagSet)
	run   command
	// noStore commands never open the database.
	noStore bool
}

var commands = map[string]commandSpec{
	"load":   {flags: loadFlags, run: runLoad},
	"model":  {run: runModel},
	"view":   {run: runView},
	"models": {flags: modelsFlags, run: runModels},
	"impact": {flags: impactFlags, run: runImpact},
	"stats":  {run: runStats},
	"clear":  {run: runClear},
	"serve":  {flags: serveFlags, run: runServe},
	"parse":  {flags: parseFlags, run: runParse, noStore: true},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	switch args[0] {
	case "--version", "version":
		fmt.Fprintln(stdout, "odoo-graph", version)
		return exitOK
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	spec, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
	fs := pflag.NewFlagSet("odoo-graph "+args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.Flags(fs)
	if spec.flags != nil {
		spec.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(fs)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}
	cfg.SetupLogging(stderr)

	a := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	if spec.noStore {
		return spec.run(ctx, a, fs)
	}
	st, err := store.Open(cfg.DB)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailed
	}
	defer st.Close()

	a.st = st
	return spec.run(ctx, a, fs)
}

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	st     *store.Store
	stdout io.Writer
	stderr io.Writer
}

func (a *app) project() string { return a.cfg.ProjectName() }

func (a *app) engine() *query.Engine { return query.New(a.st, a.project()) }

// modules discovers the addons tree, or reads the module list file when
// one is configured.
func (a *app) modules(ctx context.Context) ([]entity.Module, error) {
	if a.cfg.ModulesFile != "" {
		return discover.LoadModuleList(ctx, a.cfg.ModulesFile, a.cfg.AbsSource(), a.cfg.DiscoverOptions())
	}
	return discover.Discover(ctx, a.cfg.AbsSource(), a.cfg.DiscoverOptions())
}

func (a *app) pipeline() *pipeline.Pipeline {
	project := a.project()
	p := pipeline.New(a.cfg.PipelineOptions(), a.st.Graph(project), a.st.Fingerprints(project))
	p.Runs = a.st.Runs(project)
	return p
}

// runOnce discovers modules and runs the pipeline. The returned report is
// non-nil whenever the pipeline started.
func (a *app) runOnce(ctx context.Context, full bool) (*pipeline.Report, error) {
	modules, err := a.modules(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover modules: %w", err)
	}
	p := a.pipeline()
	var r *pipeline.Report
	if full {
		r, err = p.RunFull(ctx, modules)
	} else {
		r, err = p.Run(ctx, modules)
	}
	if err != nil {
		return r, err
	}
	if err := a.st.UpsertProject(ctx, a.project(), a.cfg.AbsSource()); err != nil {
		return r, err
	}
	return r, nil
}

// toolRunner adapts runOnce to the MCP reprocess tool.
func (a *app) toolRunner() tools.RunFunc {
	return a.runOnce
}

func (a *app) printJSON(v any) int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return exitFailed
	}
	return exitOK
}

func (a *app) fail(err error) int {
	fmt.Fprintf(a.stderr, "error: %v\n", err)
	if errs.KindOf(err) == errs.KindConfiguration {
		return exitUsage
	}
	return exitFailed
}

// statusCode maps a run status onto the process exit code.
func statusCode(s errs.Status) int {
	switch s {
	case errs.StatusSuccess:
		return exitOK
	case errs.StatusPartial:
		return exitPartial
	default:
		return exitFailed
	}
}
