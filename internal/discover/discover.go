// Package discover finds addon modules under a source root: manifest
// scanning, an optional YAML module list, and dependency ordering.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/lang"
	"github.com/DeusData/odoo-graph/internal/parser"
)

// IgnoreDirs are directory names never descended into.
var IgnoreDirs = map[string]bool{
	".cache": true, ".git": true, ".hg": true, ".idea": true,
	".mypy_cache": true, ".pytest_cache": true, ".ruff_cache": true,
	".svn": true, ".tox": true, ".venv": true, ".vscode": true,
	"__pycache__": true, "node_modules": true, "venv": true,
}

// DefaultExcludes are the doublestar patterns skipped unless configured otherwise.
var DefaultExcludes = []string{"**/tests/**", "**/test_*.py", "**/__pycache__/**"}

// Options configures module discovery.
type Options struct {
	// Exclude lists doublestar patterns matched against root-relative paths.
	Exclude []string
}

func (o *Options) excluded(rel string) bool {
	if o == nil {
		return false
	}
	for _, pattern := range o.Exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Manifest is the subset of a module descriptor the graph uses.
type Manifest struct {
	Name        string
	Version     string
	Summary     string
	Depends     []string
	Installable bool
}

// ParseManifest evaluates a manifest file as a Python dict literal.
func ParseManifest(source []byte) (*Manifest, error) {
	tree, err := parser.Parse(lang.Python, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	root := tree.RootNode()
	if err := parser.CheckSyntax(root, source); err != nil {
		return nil, err
	}

	var pairs []parser.Pair
	for _, stmt := range parser.NamedChildren(root) {
		if stmt.Kind() != "expression_statement" {
			continue
		}
		expr := parser.NamedChildren(stmt)
		if len(expr) != 1 || expr[0].Kind() != "dictionary" {
			continue
		}
		v, ok := parser.Literal(expr[0], source)
		if !ok {
			return nil, fmt.Errorf("manifest is not a literal dict")
		}
		pairs, _ = v.([]parser.Pair)
		break
	}
	if pairs == nil {
		return nil, fmt.Errorf("no manifest dict found")
	}

	m := &Manifest{Version: "1.0", Installable: true}
	str := func(key string) string {
		v, _ := parser.Lookup(pairs, key)
		s, _ := v.(string)
		return s
	}
	m.Name = str("name")
	if s := str("version"); s != "" {
		m.Version = s
	}
	m.Summary = str("summary")
	if m.Summary == "" {
		m.Summary = strings.TrimSpace(str("description"))
	}
	if v, ok := parser.Lookup(pairs, "depends"); ok {
		if deps, ok := parser.AsStrings(v); ok {
			m.Depends = deps
		}
	}
	if v, ok := parser.Lookup(pairs, "installable"); ok {
		if b, ok := v.(bool); ok {
			m.Installable = b
		}
	}
	return m, nil
}

// manifestIn returns the manifest path inside dir, or "".
func manifestIn(dir string) string {
	for _, name := range lang.ForLanguage(lang.Python).ManifestNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Discover walks root and returns every installable module in dependency
// order. A module owns the files under its directory that are not inside
// a nested module. Paths are relative to root with forward slashes.
func Discover(ctx context.Context, root string, opts *Options) ([]entity.Module, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", root)
	}

	byDir := make(map[string]*entity.Module)
	skipped := make(map[string]bool)
	var order []string

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path != root && (IgnoreDirs[d.Name()] || opts.excluded(rel) || opts.excluded(rel+"/")) {
				return filepath.SkipDir
			}
			manifest := manifestIn(path)
			if manifest == "" {
				return nil
			}
			m, err := loadModule(manifest, d.Name(), rel)
			if err != nil {
				slog.Warn("discover.manifest.err", "path", rel, "err", err)
				skipped[rel] = true
				return nil
			}
			if m == nil {
				slog.Info("discover.skip", "module", d.Name(), "reason", "not installable")
				skipped[rel] = true
				return nil
			}
			byDir[rel] = m
			order = append(order, rel)
			return nil
		}

		if opts.excluded(rel) {
			return nil
		}
		if owner, ok := ownerDir(rel, byDir, skipped); ok {
			m := byDir[owner]
			m.Files = append(m.Files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	modules := make([]entity.Module, 0, len(order))
	for _, dir := range order {
		modules = append(modules, *byDir[dir])
	}
	sorted := Order(modules)
	slog.Info("discover.done", "root", root, "modules", len(sorted))
	return sorted, nil
}

// ownerDir finds the nearest enclosing module directory of rel. Files under
// a skipped module belong to no module.
func ownerDir(rel string, byDir map[string]*entity.Module, skipped map[string]bool) (string, bool) {
	dir := filepath.ToSlash(filepath.Dir(rel))
	for {
		if _, ok := byDir[dir]; ok {
			return dir, true
		}
		if skipped[dir] || dir == "." || dir == "/" {
			return "", false
		}
		dir = filepath.ToSlash(filepath.Dir(dir))
	}
}

// loadModule reads a manifest; it returns nil for a non-installable module.
func loadModule(manifestPath, name, rel string) (*entity.Module, error) {
	source, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	man, err := ParseManifest(source)
	if err != nil {
		return nil, err
	}
	if !man.Installable {
		return nil, nil
	}
	return &entity.Module{
		Name:    name,
		Depends: man.Depends,
		Version: man.Version,
		Summary: man.Summary,
		Path:    rel,
	}, nil
}

// moduleList is the YAML module list document.
type moduleList struct {
	Modules []entity.Module `yaml:"modules"`
}

// LoadModuleList reads a YAML module list. Modules listed without files
// get the files found under their path below root.
func LoadModuleList(ctx context.Context, path, root string, opts *Options) ([]entity.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module list: %w", err)
	}
	var doc moduleList
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse module list %s: %w", path, err)
	}
	seen := make(map[string]bool, len(doc.Modules))
	for i := range doc.Modules {
		m := &doc.Modules[i]
		if m.Name == "" {
			return nil, fmt.Errorf("module list %s: entry %d has no name", path, i)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("module list %s: duplicate module %q", path, m.Name)
		}
		seen[m.Name] = true
		if m.Path == "" {
			m.Path = m.Name
		}
		if len(m.Files) > 0 {
			continue
		}
		files, err := listFiles(ctx, root, m.Path, opts)
		if err != nil {
			return nil, fmt.Errorf("list files of %s: %w", m.Name, err)
		}
		m.Files = files
	}
	return Order(doc.Modules), nil
}

// listFiles returns the root-relative files under dir, sorted.
func listFiles(ctx context.Context, root, dir string, opts *Options) ([]string, error) {
	var files []string
	base := filepath.Join(root, filepath.FromSlash(dir))
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if path != base && (IgnoreDirs[d.Name()] || opts.excluded(rel) || opts.excluded(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !opts.excluded(rel) {
			files = append(files, rel)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
