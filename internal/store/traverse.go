package store

import "context"

// Direction of a traversal.
const (
	Outbound = "outbound"
	Inbound  = "inbound"
)

// TraverseResult holds BFS traversal results.
type TraverseResult struct {
	Root    *Node
	Visited []*NodeHop
	Edges   []EdgeRef
}

// NodeHop is a node with its BFS hop distance.
type NodeHop struct {
	Node *Node
	Hop  int
}

type bfsQueue struct {
	label, key string
	hop        int
}

type nodeKey struct{ label, key string }

// fetchEdgesForNode retrieves edges from a node in the given direction and edge types.
func (s *Store) fetchEdgesForNode(ctx context.Context, project, label, key, direction string, edgeTypes []string) ([]EdgeRef, error) {
	var edges []EdgeRef
	for _, et := range edgeTypes {
		var found []EdgeRef
		var err error
		if direction == Outbound {
			found, err = s.FindEdgesFrom(ctx, project, label, key, et)
		} else {
			found, err = s.FindEdgesTo(ctx, project, label, key, et)
		}
		if err != nil {
			return nil, err
		}
		edges = append(edges, found...)
	}
	return edges, nil
}

// BFS performs breadth-first traversal from (label, key) following edges
// of the given types. Outbound follows source->target, inbound follows
// target->source. maxDepth caps the depth, maxResults the visited nodes.
// A missing root yields a nil Root and no hops.
func (s *Store) BFS(ctx context.Context, project, label, key, direction string, edgeTypes []string, maxDepth, maxResults int) (*TraverseResult, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxResults <= 0 {
		maxResults = 200
	}

	root, err := s.FindNode(ctx, project, label, key)
	if err != nil {
		return nil, err
	}
	result := &TraverseResult{Root: root}
	if root == nil {
		return result, nil
	}
	visited := map[nodeKey]int{{label, key}: 0}
	queue := []bfsQueue{{label, key, 0}}

	for len(queue) > 0 && len(result.Visited) < maxResults {
		item := queue[0]
		queue = queue[1:]

		if item.hop >= maxDepth {
			continue
		}

		edges, err := s.fetchEdgesForNode(ctx, project, item.label, item.key, direction, edgeTypes)
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			next := nodeKey{e.ToLabel, e.ToKey}
			if direction != Outbound {
				next = nodeKey{e.FromLabel, e.FromKey}
			}
			result.Edges = append(result.Edges, e)

			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = item.hop + 1

			n, err := s.FindNode(ctx, project, next.label, next.key)
			if err != nil {
				return nil, err
			}
			if n == nil {
				continue
			}
			result.Visited = append(result.Visited, &NodeHop{Node: n, Hop: item.hop + 1})
			queue = append(queue, bfsQueue{next.label, next.key, item.hop + 1})

			if len(result.Visited) >= maxResults {
				break
			}
		}
	}

	return result, nil
}
