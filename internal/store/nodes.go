package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const nodeCols = "id, project, label, key, properties"

// UpsertNode inserts or replaces a node (dedup by project, label, key) and
// returns its id.
func (s *Store) UpsertNode(ctx context.Context, n *Node) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO nodes (project, label, key, properties) VALUES (?, ?, ?, ?)
		ON CONFLICT(project, label, key) DO UPDATE SET properties=excluded.properties
		RETURNING id`,
		n.Project, n.Label, n.Key, marshalProps(n.Properties)).Scan(&id)
	if err != nil {
		return 0, wrapErr("upsert node", err)
	}
	return id, nil
}

// EnsureNode returns the id of a node, creating it with empty properties
// when absent. Existing properties are left untouched.
func (s *Store) EnsureNode(ctx context.Context, project, label, key string) (int64, error) {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO nodes (project, label, key, properties) VALUES (?, ?, ?, '{}')
		ON CONFLICT(project, label, key) DO NOTHING`, project, label, key)
	if err != nil {
		return 0, wrapErr("ensure node", err)
	}
	var id int64
	err = s.q.QueryRowContext(ctx, "SELECT id FROM nodes WHERE project=? AND label=? AND key=?",
		project, label, key).Scan(&id)
	if err != nil {
		return 0, wrapErr("get node id", err)
	}
	return id, nil
}

// FindNode finds a node by project, label and key. It returns nil, nil when
// the node does not exist.
func (s *Store) FindNode(ctx context.Context, project, label, key string) (*Node, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeCols+` FROM nodes WHERE project=? AND label=? AND key=?`,
		project, label, key)
	return scanNode(row)
}

// FindNodeByID finds a node by its primary key ID.
func (s *Store) FindNodeByID(ctx context.Context, id int64) (*Node, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeCols+` FROM nodes WHERE id=?`, id)
	return scanNode(row)
}

// FindNodesByLabel finds all nodes with a given label in a project, ordered by key.
func (s *Store) FindNodesByLabel(ctx context.Context, project, label string) ([]*Node, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+nodeCols+` FROM nodes WHERE project=? AND label=? ORDER BY key`,
		project, label)
	if err != nil {
		return nil, wrapErr("find by label", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodes returns the number of nodes in a project.
func (s *Store) CountNodes(ctx context.Context, project string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE project=?", project).Scan(&count)
	return count, wrapErr("count nodes", err)
}

// DeleteNode deletes one node; its edges go with it (ON DELETE CASCADE).
func (s *Store) DeleteNode(ctx context.Context, project, label, key string) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM nodes WHERE project=? AND label=? AND key=?", project, label, key)
	return wrapErr("delete node", err)
}

// DeleteNodesByProject deletes all nodes for a project.
func (s *Store) DeleteNodesByProject(ctx context.Context, project string) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM nodes WHERE project=?", project)
	return wrapErr("delete nodes", err)
}

// FindNodesByIDs returns a map of nodeID → *Node for the given IDs.
func (s *Store) FindNodesByIDs(ctx context.Context, ids []int64) (map[int64]*Node, error) {
	if len(ids) == 0 {
		return map[int64]*Node{}, nil
	}
	result := make(map[int64]*Node, len(ids))
	const batchSize = 998 // leave room under 999 limit

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args[j] = id
		}

		query := fmt.Sprintf("SELECT "+nodeCols+" FROM nodes WHERE id IN (%s)", strings.Join(placeholders, ","))

		if err := func() error {
			rows, err := s.q.QueryContext(ctx, query, args...)
			if err != nil {
				return wrapErr("find nodes by ids", err)
			}
			defer rows.Close()
			nodes, err := scanNodes(rows)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				result[n.ID] = n
			}
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AllNodes returns all nodes for a project.
func (s *Store) AllNodes(ctx context.Context, project string) ([]*Node, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+nodeCols+` FROM nodes WHERE project=?`, project)
	if err != nil {
		return nil, wrapErr("all nodes", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var props string
	err := row.Scan(&n.ID, &n.Project, &n.Label, &n.Key, &props)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("scan node", err)
	}
	n.Properties = unmarshalProps(props)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var result []*Node
	for rows.Next() {
		var n Node
		var props string
		if err := rows.Scan(&n.ID, &n.Project, &n.Label, &n.Key, &props); err != nil {
			return nil, err
		}
		n.Properties = unmarshalProps(props)
		result = append(result, &n)
	}
	return result, rows.Err()
}
