package store

import (
	"context"
	"fmt"
)

// SchemaInfo contains graph statistics for a project.
type SchemaInfo struct {
	NodeLabels           []LabelCount `json:"node_labels"`
	RelationshipTypes    []TypeCount  `json:"relationship_types"`
	RelationshipPatterns []string     `json:"relationship_patterns"`
	Stubs                int          `json:"stubs"`
	Fingerprints         int          `json:"fingerprints"`
}

// LabelCount is a label with its count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TypeCount is a relationship type with its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// GetSchema returns graph statistics for a project.
func (s *Store) GetSchema(ctx context.Context, project string) (*SchemaInfo, error) {
	info := &SchemaInfo{}

	var err error
	if info.NodeLabels, err = s.schemaNodeLabels(ctx, project); err != nil {
		return nil, err
	}
	if info.RelationshipTypes, err = s.schemaEdgeTypes(ctx, project); err != nil {
		return nil, err
	}
	if info.RelationshipPatterns, err = s.schemaRelPatterns(ctx, project); err != nil {
		return nil, err
	}
	err = s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE project=? AND json_extract(properties, '$.stub') = 1", project).Scan(&info.Stubs)
	if err != nil {
		return nil, wrapErr("schema stubs", err)
	}
	err = s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_hashes WHERE project=?", project).Scan(&info.Fingerprints)
	if err != nil {
		return nil, wrapErr("schema fingerprints", err)
	}
	return info, nil
}

func (s *Store) schemaNodeLabels(ctx context.Context, project string) ([]LabelCount, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT label, COUNT(*) as cnt FROM nodes WHERE project=? GROUP BY label ORDER BY cnt DESC, label", project)
	if err != nil {
		return nil, wrapErr("schema labels", err)
	}
	defer rows.Close()
	var labels []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		labels = append(labels, lc)
	}
	return labels, rows.Err()
}

func (s *Store) schemaEdgeTypes(ctx context.Context, project string) ([]TypeCount, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT type, COUNT(*) as cnt FROM edges WHERE project=? GROUP BY type ORDER BY cnt DESC, type", project)
	if err != nil {
		return nil, wrapErr("schema edge types", err)
	}
	defer rows.Close()
	var types []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, err
		}
		types = append(types, tc)
	}
	return types, rows.Err()
}

func (s *Store) schemaRelPatterns(ctx context.Context, project string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT src.label, e.type, dst.label
		FROM edges e
		JOIN nodes src ON e.source_id = src.id
		JOIN nodes dst ON e.target_id = dst.id
		WHERE e.project=?
		ORDER BY e.type`, project)
	if err != nil {
		return nil, wrapErr("schema patterns", err)
	}
	defer rows.Close()
	var patterns []string
	for rows.Next() {
		var from, typ, to string
		if err := rows.Scan(&from, &typ, &to); err != nil {
			return nil, err
		}
		patterns = append(patterns, fmt.Sprintf("(%s)-[:%s]->(%s)", from, typ, to))
	}
	return patterns, rows.Err()
}
