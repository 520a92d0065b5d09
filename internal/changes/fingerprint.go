// Package changes decides which files a run must re-extract: it
// fingerprints the current file set, compares against the persisted
// fingerprint table, picks FULL or INCREMENTAL mode, and expands an
// incremental change set to every file whose entities must be re-merged.
package changes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Supported fingerprint algorithms.
const (
	SHA256 = "sha256"
	XXH3   = "xxh3"
)

// ValidAlgorithm reports whether algo can be used for fingerprints.
func ValidAlgorithm(algo string) bool {
	return algo == SHA256 || algo == XXH3
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case SHA256, "":
		return sha256.New(), nil
	case XXH3:
		return xxh3.New(), nil
	}
	return nil, fmt.Errorf("unknown fingerprint algorithm %q", algo)
}

// Fingerprint returns "algo:hex" for data.
func Fingerprint(algo string, data []byte) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return prefix(algo) + hex.EncodeToString(h.Sum(nil)), nil
}

// FileFingerprint streams a file through the hash.
func FileFingerprint(algo, path string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return prefix(algo) + hex.EncodeToString(h.Sum(nil)), nil
}

func prefix(algo string) string {
	if algo == "" {
		algo = SHA256
	}
	return algo + ":"
}

// Store is the persisted fingerprint table.
type Store interface {
	GetFingerprint(ctx context.Context, path string) (string, bool, error)
	Fingerprints(ctx context.Context) (map[string]string, error)
	// CommitFingerprints sets fps and deletes removed in one atomic write.
	CommitFingerprints(ctx context.Context, fps map[string]string, removed []string) error
}

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	Entries map[string]string
	// FailCommit makes CommitFingerprints fail, changing nothing, when
	// non-nil.
	FailCommit error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Entries: make(map[string]string)}
}

func (m *MemoryStore) GetFingerprint(_ context.Context, path string) (string, bool, error) {
	fp, ok := m.Entries[path]
	return fp, ok, nil
}

func (m *MemoryStore) Fingerprints(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(m.Entries))
	for k, v := range m.Entries {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) CommitFingerprints(_ context.Context, fps map[string]string, removed []string) error {
	if m.FailCommit != nil {
		return m.FailCommit
	}
	for k, v := range fps {
		m.Entries[k] = v
	}
	for _, p := range removed {
		delete(m.Entries, p)
	}
	return nil
}
