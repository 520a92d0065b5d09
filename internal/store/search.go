package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// SearchParams defines structured search parameters.
type SearchParams struct {
	Project string
	Label   string
	// KeyPattern is a regular expression matched against node keys.
	KeyPattern string
	// Module restricts results to nodes whose module property matches.
	Module string
	// Property/Value filter on one top-level JSON property.
	Property string
	Value    string
	// Relationship restricts degree counting to one edge type.
	Relationship string
	Limit        int
	Offset       int
}

// SearchResult is a node with edge degree info.
type SearchResult struct {
	Node      *Node
	InDegree  int
	OutDegree int
}

// SearchOutput wraps search results with total count for pagination.
type SearchOutput struct {
	Results []*SearchResult
	Total   int
}

// Search executes a parameterized search query with pagination support.
func (s *Store) Search(ctx context.Context, params SearchParams) (*SearchOutput, error) {
	if params.Limit <= 0 {
		params.Limit = 100000
	}

	var conditions []string
	var args []any

	conditions = append(conditions, "n.project = ?")
	args = append(args, params.Project)

	if params.Label != "" {
		conditions = append(conditions, "n.label = ?")
		args = append(args, params.Label)
	}
	if params.Module != "" {
		conditions = append(conditions, "json_extract(n.properties, '$.module') = ?")
		args = append(args, params.Module)
	}
	if params.Property != "" {
		if !propertyName.MatchString(params.Property) {
			return nil, fmt.Errorf("invalid property name %q", params.Property)
		}
		conditions = append(conditions, fmt.Sprintf("CAST(json_extract(n.properties, '$.%s') AS TEXT) = ?", params.Property))
		args = append(args, params.Value)
	}

	where := strings.Join(conditions, " AND ")

	// Regex filtering happens in Go, so fetch more rows than the page.
	var sqlLimit int
	if params.KeyPattern != "" {
		sqlLimit = 100000
	} else {
		sqlLimit = params.Offset + params.Limit
		if sqlLimit > 100000 {
			sqlLimit = 100000
		}
	}

	query := fmt.Sprintf(`SELECT n.id, n.project, n.label, n.key, n.properties
		FROM nodes n
		WHERE %s
		ORDER BY n.label, n.key
		LIMIT ?`, where)
	args = append(args, sqlLimit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("search", err)
	}
	nodes, err := scanNodes(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if params.KeyPattern != "" {
		nodes, err = filterByKeyPattern(nodes, params.KeyPattern)
		if err != nil {
			return nil, err
		}
	}

	total := len(nodes)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	out := &SearchOutput{Total: total}
	for _, n := range nodes[start:end] {
		sr := &SearchResult{Node: n}
		if err := s.degrees(ctx, sr, params.Relationship); err != nil {
			return nil, err
		}
		out.Results = append(out.Results, sr)
	}
	return out, nil
}

func (s *Store) degrees(ctx context.Context, sr *SearchResult, relationship string) error {
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges WHERE target_id=? AND (?='' OR type=?)",
		sr.Node.ID, relationship, relationship).Scan(&sr.InDegree)
	if err != nil {
		return wrapErr("in degree", err)
	}
	err = s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges WHERE source_id=? AND (?='' OR type=?)",
		sr.Node.ID, relationship, relationship).Scan(&sr.OutDegree)
	return wrapErr("out degree", err)
}

var propertyName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// filterByKeyPattern filters nodes by a regex key pattern.
func filterByKeyPattern(nodes []*Node, pattern string) ([]*Node, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern: %w", err)
	}
	var filtered []*Node
	for _, n := range nodes {
		if re.MatchString(n.Key) {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}
