package extract

import (
	"fmt"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/lang"
)

// Result is the isolated output of extracting one file.
type Result struct {
	Path     string
	Module   string
	Language lang.Language
	Models   []entity.ModelFragment
	Views    []entity.ViewFragment
	// Err is a *errs.ParseError when the file could not be parsed.
	Err error
}

// Fragments returns the number of fragments produced.
func (r *Result) Fragments() int {
	return len(r.Models) + len(r.Views)
}

// File extracts one file according to its language.
func File(relPath, module string, l lang.Language, source []byte) Result {
	res := Result{Path: relPath, Module: module, Language: l}
	switch l {
	case lang.Python:
		res.Models, res.Err = ExtractModels(relPath, module, source)
	case lang.XML:
		res.Views, res.Err = ExtractViews(relPath, module, source)
	default:
		res.Err = fmt.Errorf("extract %s: unsupported language %q", relPath, l)
	}
	return res
}
