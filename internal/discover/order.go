package discover

import (
	"errors"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/DeusData/odoo-graph/internal/entity"
)

// Order sorts modules dependencies-first, ties broken by name. Dependencies
// on unknown modules are ignored here. Members of a dependency cycle are
// kept together at the cycle's position, in name order.
func Order(modules []entity.Module) []entity.Module {
	if len(modules) < 2 {
		return modules
	}
	byName := make(map[string]int, len(modules))
	names := make([]string, 0, len(modules))
	for i, m := range modules {
		if _, dup := byName[m.Name]; dup {
			continue
		}
		byName[m.Name] = i
		names = append(names, m.Name)
	}
	sort.Strings(names)

	// Node IDs follow name order so the stabilized sort breaks ties by name.
	ids := make(map[string]int64, len(names))
	g := simple.NewDirectedGraph()
	for i, name := range names {
		ids[name] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	for _, name := range names {
		for _, dep := range modules[byName[name]].Depends {
			depID, ok := ids[dep]
			if !ok || dep == name {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(depID), T: simple.Node(ids[name])})
		}
	}

	sorted, err := topo.SortStabilized(g, nil)
	var cycles topo.Unorderable
	if err != nil && !errors.As(err, &cycles) {
		slog.Warn("discover.order.err", "err", err)
	}
	out := make([]entity.Module, 0, len(names))
	next := 0
	for _, n := range sorted {
		if n != nil {
			out = append(out, modules[byName[names[n.ID()]]])
			continue
		}
		if next >= len(cycles) {
			continue
		}
		component := cycles[next]
		next++
		members := make([]string, 0, len(component))
		for _, c := range component {
			members = append(members, names[c.ID()])
		}
		sort.Strings(members)
		slog.Warn("discover.cycle", "modules", members)
		for _, name := range members {
			out = append(out, modules[byName[name]])
		}
	}
	return out
}
