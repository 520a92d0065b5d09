package store

import (
	"context"
	"database/sql"
)

// EdgeRef is an edge with its endpoints resolved to label and key.
type EdgeRef struct {
	Type       string
	FromLabel  string
	FromKey    string
	ToLabel    string
	ToKey      string
	Properties map[string]any
}

// InsertEdge inserts an edge (dedup by source_id, target_id, type).
func (s *Store) InsertEdge(ctx context.Context, e *Edge) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO edges (project, source_id, target_id, type, properties)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET properties=excluded.properties`,
		e.Project, e.SourceID, e.TargetID, e.Type, marshalProps(e.Properties))
	return wrapErr("insert edge", err)
}

// UpsertEdge merges both endpoint nodes, then inserts or updates the edge.
func (s *Store) UpsertEdge(ctx context.Context, project string, e EdgeRef) error {
	from, err := s.EnsureNode(ctx, project, e.FromLabel, e.FromKey)
	if err != nil {
		return err
	}
	to, err := s.EnsureNode(ctx, project, e.ToLabel, e.ToKey)
	if err != nil {
		return err
	}
	return s.InsertEdge(ctx, &Edge{Project: project, SourceID: from, TargetID: to, Type: e.Type, Properties: e.Properties})
}

// DeleteEdge removes one edge identified by its endpoint keys. Deleting a
// missing edge is not an error.
func (s *Store) DeleteEdge(ctx context.Context, project string, e EdgeRef) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM edges WHERE id IN (
			SELECT e.id FROM edges e
			JOIN nodes src ON e.source_id = src.id
			JOIN nodes dst ON e.target_id = dst.id
			WHERE e.project=? AND e.type=?
				AND src.label=? AND src.key=? AND dst.label=? AND dst.key=?
		)`, project, e.Type, e.FromLabel, e.FromKey, e.ToLabel, e.ToKey)
	return wrapErr("delete edge", err)
}

const edgeRefQuery = `
	SELECT e.type, src.label, src.key, dst.label, dst.key, e.properties
	FROM edges e
	JOIN nodes src ON e.source_id = src.id
	JOIN nodes dst ON e.target_id = dst.id`

// FindEdges returns a project's edges, optionally restricted to one type.
func (s *Store) FindEdges(ctx context.Context, project, edgeType string) ([]EdgeRef, error) {
	var rows *sql.Rows
	var err error
	if edgeType == "" {
		rows, err = s.q.QueryContext(ctx, edgeRefQuery+` WHERE e.project=? ORDER BY e.type, src.key, dst.key`, project)
	} else {
		rows, err = s.q.QueryContext(ctx, edgeRefQuery+` WHERE e.project=? AND e.type=? ORDER BY src.key, dst.key`, project, edgeType)
	}
	if err != nil {
		return nil, wrapErr("find edges", err)
	}
	defer rows.Close()
	return scanEdgeRefs(rows)
}

// FindEdgesFrom returns edges leaving a node, optionally of one type.
func (s *Store) FindEdgesFrom(ctx context.Context, project, label, key, edgeType string) ([]EdgeRef, error) {
	rows, err := s.q.QueryContext(ctx, edgeRefQuery+`
		WHERE e.project=? AND src.label=? AND src.key=? AND (?='' OR e.type=?)
		ORDER BY e.type, dst.key`, project, label, key, edgeType, edgeType)
	if err != nil {
		return nil, wrapErr("find edges from", err)
	}
	defer rows.Close()
	return scanEdgeRefs(rows)
}

// FindEdgesTo returns edges entering a node, optionally of one type.
func (s *Store) FindEdgesTo(ctx context.Context, project, label, key, edgeType string) ([]EdgeRef, error) {
	rows, err := s.q.QueryContext(ctx, edgeRefQuery+`
		WHERE e.project=? AND dst.label=? AND dst.key=? AND (?='' OR e.type=?)
		ORDER BY e.type, src.key`, project, label, key, edgeType, edgeType)
	if err != nil {
		return nil, wrapErr("find edges to", err)
	}
	defer rows.Close()
	return scanEdgeRefs(rows)
}

// CountEdges returns the number of edges in a project.
func (s *Store) CountEdges(ctx context.Context, project string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges WHERE project=?", project).Scan(&count)
	return count, wrapErr("count edges", err)
}

// DeleteEdgesByProject deletes all edges for a project.
func (s *Store) DeleteEdgesByProject(ctx context.Context, project string) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM edges WHERE project=?", project)
	return wrapErr("delete edges", err)
}

func scanEdgeRefs(rows *sql.Rows) ([]EdgeRef, error) {
	var result []EdgeRef
	for rows.Next() {
		var e EdgeRef
		var props string
		if err := rows.Scan(&e.Type, &e.FromLabel, &e.FromKey, &e.ToLabel, &e.ToKey, &props); err != nil {
			return nil, err
		}
		e.Properties = unmarshalProps(props)
		result = append(result, e)
	}
	return result, rows.Err()
}
