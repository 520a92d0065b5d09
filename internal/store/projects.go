package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Project represents an indexed addons tree.
type Project struct {
	Name      string
	IndexedAt string
	RootPath  string
}

// UpsertProject creates or updates a project record.
func (s *Store) UpsertProject(ctx context.Context, name, rootPath string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO projects (name, indexed_at, root_path) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET indexed_at=excluded.indexed_at, root_path=excluded.root_path`,
		name, Now(), rootPath)
	return wrapErr("upsert project", err)
}

// GetProject returns a project by name, or nil when unknown.
func (s *Store) GetProject(ctx context.Context, name string) (*Project, error) {
	var p Project
	err := s.q.QueryRowContext(ctx, "SELECT name, indexed_at, root_path FROM projects WHERE name=?", name).
		Scan(&p.Name, &p.IndexedAt, &p.RootPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get project", err)
	}
	return &p, nil
}

// ListProjects returns all indexed projects.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT name, indexed_at, root_path FROM projects ORDER BY name")
	if err != nil {
		return nil, wrapErr("list projects", err)
	}
	defer rows.Close()
	var result []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Name, &p.IndexedAt, &p.RootPath); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// DeleteProject deletes a project and all associated data (CASCADE).
func (s *Store) DeleteProject(ctx context.Context, name string) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM projects WHERE name=?", name)
	if err != nil {
		return wrapErr("delete project", err)
	}
	_, err = s.q.ExecContext(ctx, "DELETE FROM runs WHERE project=?", name)
	return wrapErr("delete runs", err)
}

// Clear removes a project's graph and fingerprints but keeps the project
// row, so the next run starts from an empty fingerprint table.
func (s *Store) Clear(ctx context.Context, project string) error {
	return s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.DeleteEdgesByProject(ctx, project); err != nil {
			return err
		}
		if err := tx.DeleteNodesByProject(ctx, project); err != nil {
			return err
		}
		return tx.DeleteFileHashes(ctx, project)
	})
}

// UpsertFileHash stores a file's content fingerprint.
func (s *Store) UpsertFileHash(ctx context.Context, project, relPath, fingerprint string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO file_hashes (project, rel_path, fingerprint) VALUES (?, ?, ?)
		ON CONFLICT(project, rel_path) DO UPDATE SET fingerprint=excluded.fingerprint`,
		project, relPath, fingerprint)
	return wrapErr("upsert file hash", err)
}

// GetFileHash returns one file's fingerprint.
func (s *Store) GetFileHash(ctx context.Context, project, relPath string) (string, bool, error) {
	var fp string
	err := s.q.QueryRowContext(ctx, "SELECT fingerprint FROM file_hashes WHERE project=? AND rel_path=?",
		project, relPath).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("get file hash", err)
	}
	return fp, true, nil
}

// GetFileHashes returns all file fingerprints for a project.
func (s *Store) GetFileHashes(ctx context.Context, project string) (map[string]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT rel_path, fingerprint FROM file_hashes WHERE project=?", project)
	if err != nil {
		return nil, wrapErr("get file hashes", err)
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}
	return result, rows.Err()
}

// DeleteFileHash deletes a single file hash entry.
func (s *Store) DeleteFileHash(ctx context.Context, project, relPath string) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM file_hashes WHERE project=? AND rel_path=?", project, relPath)
	return wrapErr("delete file hash", err)
}

// DeleteFileHashes deletes all file hashes for a project.
func (s *Store) DeleteFileHashes(ctx context.Context, project string) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM file_hashes WHERE project=?", project)
	return wrapErr("delete file hashes", err)
}

// Fingerprints is the per-project fingerprint table.
type Fingerprints struct {
	s       *Store
	project string
}

// Fingerprints returns the fingerprint table of a project.
func (s *Store) Fingerprints(project string) *Fingerprints {
	return &Fingerprints{s: s, project: project}
}

func (f *Fingerprints) GetFingerprint(ctx context.Context, path string) (string, bool, error) {
	return f.s.GetFileHash(ctx, f.project, path)
}

func (f *Fingerprints) Fingerprints(ctx context.Context) (map[string]string, error) {
	return f.s.GetFileHashes(ctx, f.project)
}

// SetFingerprints writes all entries in one transaction.
func (f *Fingerprints) SetFingerprints(ctx context.Context, fps map[string]string) error {
	return f.CommitFingerprints(ctx, fps, nil)
}

func (f *Fingerprints) DeleteFingerprints(ctx context.Context, paths []string) error {
	return f.CommitFingerprints(ctx, nil, paths)
}

// CommitFingerprints upserts fps and deletes removed in one transaction.
func (f *Fingerprints) CommitFingerprints(ctx context.Context, fps map[string]string, removed []string) error {
	if len(fps) == 0 && len(removed) == 0 {
		return nil
	}
	return f.s.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.ensureProject(ctx, f.project); err != nil {
			return err
		}
		for path, fp := range fps {
			if err := tx.UpsertFileHash(ctx, f.project, path, fp); err != nil {
				return fmt.Errorf("fingerprint %s: %w", path, err)
			}
		}
		for _, path := range removed {
			if err := tx.DeleteFileHash(ctx, f.project, path); err != nil {
				return err
			}
		}
		return nil
	})
}

// ensureProject creates the project row if missing, keeping its root path.
func (s *Store) ensureProject(ctx context.Context, name string) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO projects (name, indexed_at, root_path) VALUES (?, ?, '')
		ON CONFLICT(name) DO NOTHING`, name, Now())
	return wrapErr("ensure project", err)
}
