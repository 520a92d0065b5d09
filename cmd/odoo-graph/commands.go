package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/query"
)

func loadFlags(fs *pflag.FlagSet) {
	fs.Bool("full", false, "force a FULL run")
}

func runLoad(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	full, _ := fs.GetBool("full")
	r, err := a.runOnce(ctx, full)
	if r == nil {
		return a.fail(err)
	}
	if code := a.printJSON(r); code != exitOK {
		return code
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
	}
	return statusCode(r.Status)
}

// oneArg returns the single positional argument of a lookup command.
func oneArg(a *app, fs *pflag.FlagSet, what string) (string, bool) {
	if fs.NArg() != 1 {
		fmt.Fprintf(a.stderr, "error: expected exactly one %s\n", what)
		return "", false
	}
	return fs.Arg(0), true
}

func runModel(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	name, ok := oneArg(a, fs, "model name")
	if !ok {
		return exitUsage
	}
	d, err := a.engine().GetModel(ctx, name)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(d)
}

func runView(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	id, ok := oneArg(a, fs, "view xml id")
	if !ok {
		return exitUsage
	}
	d, err := a.engine().GetView(ctx, id)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(d)
}

func modelsFlags(fs *pflag.FlagSet) {
	fs.String("module", "", "only models introduced by this module")
	fs.String("kind", "", "model kind (base|extension|redefinition|mixin|transient)")
	fs.String("transient", "", "filter on transience (true|false)")
	fs.String("pattern", "", "regular expression on the model name")
	fs.String("search", "", "case-insensitive substring search")
	fs.Bool("stubs", false, "include models referenced but never defined")
	fs.Int("limit", 100, "max results")
	fs.Int("offset", 0, "skip this many results")
}

func runModels(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	limit, _ := fs.GetInt("limit")
	if term, _ := fs.GetString("search"); term != "" {
		list, err := a.engine().SearchModels(ctx, term, limit)
		if err != nil {
			return a.fail(err)
		}
		return a.printJSON(list)
	}

	filter := query.ModelFilter{Limit: limit}
	filter.Module, _ = fs.GetString("module")
	kind, _ := fs.GetString("kind")
	filter.Kind = entity.ModelKind(kind)
	filter.Pattern, _ = fs.GetString("pattern")
	filter.IncludeStubs, _ = fs.GetBool("stubs")
	filter.Offset, _ = fs.GetInt("offset")
	if v, _ := fs.GetString("transient"); v != "" {
		t, err := strconv.ParseBool(v)
		if err != nil {
			fmt.Fprintf(a.stderr, "error: --transient: %v\n", err)
			return exitUsage
		}
		filter.Transient = &t
	}
	list, err := a.engine().ListModels(ctx, filter)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(list)
}

func impactFlags(fs *pflag.FlagSet) {
	fs.Bool("view", false, "the key is a view xml id")
	fs.Int("depth", 3, "maximum hops")
}

func runImpact(ctx context.Context, a *app, fs *pflag.FlagSet) int {
	key, ok := oneArg(a, fs, "model name or view xml id")
	if !ok {
		return exitUsage
	}
	label := entity.LabelModel
	if v, _ := fs.GetBool("view"); v {
		label = entity.LabelView
	}
	depth, _ := fs.GetInt("depth")
	imp, err := a.engine().Impact(ctx, label, key, depth)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(imp)
}

func runStats(ctx context.Context, a *app, _ *pflag.FlagSet) int {
	s, err := a.engine().Stats(ctx)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(s)
}

func runClear(ctx context.Context, a *app, _ *pflag.FlagSet) int {
	if err := a.st.Clear(ctx, a.project()); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "cleared %s\n", a.project())
	return exitOK
}
