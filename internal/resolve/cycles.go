package resolve

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/errs"
)

const (
	white = iota
	gray
	black
)

// cycleBreaker finds cycles in one relationship subgraph with a
// visited/in-progress marking walk and drops the new edges that close them.
type cycleBreaker struct {
	edgeType entity.EdgeType
	g        *simple.DirectedGraph
	ids      map[string]int64
	names    []string
	// fresh marks edges produced by this run; only those can be dropped.
	fresh map[[2]int64]bool
}

func newCycleBreaker(t entity.EdgeType, fresh, persisted []entity.Edge) *cycleBreaker {
	b := &cycleBreaker{
		edgeType: t,
		g:        simple.NewDirectedGraph(),
		ids:      make(map[string]int64),
		fresh:    make(map[[2]int64]bool),
	}
	seen := make(map[string]bool)
	var names []string
	for _, set := range [][]entity.Edge{fresh, persisted} {
		for _, e := range set {
			for _, n := range []string{e.From, e.To} {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	sort.Strings(names)
	b.names = names
	for i, n := range names {
		b.ids[n] = int64(i)
		b.g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range persisted {
		b.setEdge(e)
	}
	for _, e := range fresh {
		b.setEdge(e)
		b.fresh[[2]int64{b.ids[e.From], b.ids[e.To]}] = true
	}
	return b
}

func (b *cycleBreaker) setEdge(e entity.Edge) {
	from, to := b.ids[e.From], b.ids[e.To]
	if from == to {
		return
	}
	b.g.SetEdge(b.g.NewEdge(simple.Node(from), simple.Node(to)))
}

// run walks from each start node and returns the dropped edges along with
// one error per cycle found. Self references are reported as one-node cycles.
func (b *cycleBreaker) run(fresh []entity.Edge, starts []string) (dropped map[entity.EdgeID]bool, found []error) {
	dropped = make(map[entity.EdgeID]bool)
	for _, e := range fresh {
		if e.From == e.To {
			dropped[e.ID()] = true
			found = append(found, errs.NewCycleError(string(b.edgeType), []string{e.From, e.To}))
		}
	}

	sort.Strings(starts)
	for {
		cycle := b.findCycle(starts)
		if cycle == nil {
			return dropped, found
		}
		path := make([]string, len(cycle))
		for i, id := range cycle {
			path[i] = b.names[id]
		}
		found = append(found, errs.NewCycleError(string(b.edgeType), path))

		removed := false
		for i := 0; i+1 < len(cycle); i++ {
			key := [2]int64{cycle[i], cycle[i+1]}
			if !b.fresh[key] {
				continue
			}
			b.g.RemoveEdge(cycle[i], cycle[i+1])
			dropped[entity.EdgeID{Type: b.edgeType, From: path[i], To: path[i+1]}] = true
			removed = true
		}
		if !removed {
			// Entirely persisted cycle: cut the closing edge so the walk terminates.
			n := len(cycle)
			b.g.RemoveEdge(cycle[n-2], cycle[n-1])
		}
	}
}

// findCycle returns the first cycle reachable from starts as a node path
// whose last element repeats the first, or nil.
func (b *cycleBreaker) findCycle(starts []string) []int64 {
	color := make(map[int64]int, len(b.names))
	var stack []int64

	var visit func(id int64) []int64
	visit = func(id int64) []int64 {
		color[id] = gray
		stack = append(stack, id)
		for _, next := range b.successors(id) {
			switch color[next] {
			case gray:
				for i, s := range stack {
					if s == next {
						cycle := append([]int64(nil), stack[i:]...)
						return append(cycle, next)
					}
				}
			case white:
				if c := visit(next); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, name := range starts {
		id, ok := b.ids[name]
		if !ok || color[id] != white {
			continue
		}
		if c := visit(id); c != nil {
			return c
		}
	}
	return nil
}

func (b *cycleBreaker) successors(id int64) []int64 {
	nodes := graph.NodesOf(b.g.From(id))
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
