package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/extract"
	"github.com/DeusData/odoo-graph/internal/lang"
	"github.com/DeusData/odoo-graph/internal/parser"
)

func parseFlags(fs *pflag.FlagSet) {
	fs.Bool("ast", false, "dump the syntax tree of a Python file instead of its fragments")
	fs.String("module", "", "owning module (default: first path element)")
}

// runParse extracts one file without touching the graph.
func runParse(_ context.Context, a *app, fs *pflag.FlagSet) int {
	path, ok := oneArg(a, fs, "file")
	if !ok {
		return exitUsage
	}
	l, ok := lang.ForPath(path)
	if !ok {
		fmt.Fprintf(a.stderr, "error: %s is not a Python or XML file\n", path)
		return exitUsage
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return a.fail(err)
	}

	if dump, _ := fs.GetBool("ast"); dump {
		if l != lang.Python {
			fmt.Fprintln(a.stderr, "error: --ast needs a Python file")
			return exitUsage
		}
		tree, err := parser.Parse(l, source)
		if err != nil {
			return a.fail(err)
		}
		defer tree.Close()
		printAST(a.stdout, tree.RootNode(), source, 0)
		return exitOK
	}

	module, _ := fs.GetString("module")
	rel := filepath.ToSlash(path)
	if module == "" {
		module, _, _ = strings.Cut(strings.TrimPrefix(rel, "./"), "/")
	}
	res := extract.File(rel, module, l, source)
	if res.Err != nil {
		return a.fail(res.Err)
	}
	return a.printJSON(struct {
		Path     string                 `json:"path"`
		Module   string                 `json:"module"`
		Language lang.Language          `json:"language"`
		Models   []entity.ModelFragment `json:"models"`
		Views    []entity.ViewFragment  `json:"views"`
	}{res.Path, res.Module, res.Language, res.Models, res.Views})
}

func printAST(w io.Writer, node *tree_sitter.Node, source []byte, indent int) {
	if node == nil {
		return
	}
	text := parser.NodeText(node, source)
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	fmt.Fprintf(w, "%s%s [%d] %q\n", strings.Repeat("  ", indent), node.Kind(), parser.Line(node), text)
	for i := uint(0); i < node.ChildCount(); i++ {
		printAST(w, node.Child(i), source, indent+1)
	}
}
