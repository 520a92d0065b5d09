package changes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeusData/odoo-graph/internal/entity"
)

// writeTree creates n files and returns them as SourceFiles.
func writeTree(t *testing.T, n int) []SourceFile {
	t.Helper()
	dir := t.TempDir()
	files := make([]SourceFile, n)
	for i := range files {
		rel := fmt.Sprintf("m/models/f%03d.py", i)
		abs := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(fmt.Sprintf("# file %d\n", i)), 0o600))
		files[i] = SourceFile{RelPath: rel, AbsPath: abs}
	}
	return files
}

// seed records the current fingerprint of every file, then marks `stale`
// of them as different.
func seed(t *testing.T, files []SourceFile, stale int) *MemoryStore {
	t.Helper()
	st := NewMemoryStore()
	for i, f := range files {
		fp, err := FileFingerprint(SHA256, f.AbsPath)
		require.NoError(t, err)
		if i < stale {
			fp = "sha256:stale"
		}
		st.Entries[f.RelPath] = fp
	}
	return st
}

func TestDetectFirstRunIsFull(t *testing.T) {
	files := writeTree(t, 3)
	d := &Detector{Store: NewMemoryStore(), Algorithm: SHA256}

	plan, err := d.Detect(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, Full, plan.Mode)
	assert.Len(t, plan.Changed, 3)
	assert.Len(t, plan.Fingerprints, 3)
}

func TestDetectOneStaleIsIncremental(t *testing.T) {
	files := writeTree(t, 100)
	d := &Detector{Store: seed(t, files, 1), Algorithm: SHA256, FullRatio: 0.3}

	plan, err := d.Detect(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, Incremental, plan.Mode)
	assert.Equal(t, []string{files[0].RelPath}, plan.Changed)
	assert.Equal(t, 99, plan.Unchanged)
	assert.InDelta(t, 0.01, plan.Ratio, 1e-9)
}

func TestDetectFortyStaleIsFull(t *testing.T) {
	files := writeTree(t, 100)
	d := &Detector{Store: seed(t, files, 40), Algorithm: SHA256, FullRatio: 0.3}

	plan, err := d.Detect(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, Full, plan.Mode)
	assert.Len(t, plan.Changed, 40)
	assert.Contains(t, plan.Reason, "exceeds")
}

func TestDetectRemovedFiles(t *testing.T) {
	files := writeTree(t, 10)
	st := seed(t, files, 0)
	st.Entries["m/models/deleted.py"] = "sha256:abc"
	d := &Detector{Store: st, Algorithm: SHA256}

	plan, err := d.Detect(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, Incremental, plan.Mode)
	assert.Empty(t, plan.Changed)
	assert.Equal(t, []string{"m/models/deleted.py"}, plan.Removed)
	assert.False(t, plan.Noop())
}

func TestDetectNoop(t *testing.T) {
	files := writeTree(t, 5)
	d := &Detector{Store: seed(t, files, 0), Algorithm: SHA256}

	plan, err := d.Detect(context.Background(), files)
	require.NoError(t, err)
	assert.True(t, plan.Noop())
}

func TestDetectCancelled(t *testing.T) {
	files := writeTree(t, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Detector{Store: seed(t, files, 0), Algorithm: SHA256, Workers: 2}

	_, err := d.Detect(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprintAlgorithms(t *testing.T) {
	sha, err := Fingerprint(SHA256, []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sha, "sha256:"))
	assert.Len(t, sha, len("sha256:")+64)

	fast, err := Fingerprint(XXH3, []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fast, "xxh3:"))

	_, err = Fingerprint("md5", []byte("x"))
	assert.Error(t, err)
	assert.False(t, ValidAlgorithm("md5"))
}

func TestIsStale(t *testing.T) {
	files := writeTree(t, 2)
	d := &Detector{Store: seed(t, files, 1), Algorithm: SHA256}
	ctx := context.Background()

	stale, err := d.IsStale(ctx, files[0])
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = d.IsStale(ctx, files[1])
	require.NoError(t, err)
	assert.False(t, stale)
}

func closureSnapshot() *entity.Snapshot {
	s := entity.NewSnapshot()
	s.AddNode(entity.LabelModel, "sale.order", map[string]any{
		"name": "sale.order", "source_files": []any{"sale/models/order.py", "sale_stock/models/order.py"},
	})
	s.AddNode(entity.LabelModel, "sale.order.line", map[string]any{
		"name": "sale.order.line", "source_files": []any{"sale/models/line.py"},
	})
	s.AddNode(entity.LabelModel, "custom.order", map[string]any{
		"name": "custom.order", "source_files": []any{"custom/models/order.py"},
	})
	s.AddNode(entity.LabelView, "sale.view_order_form", map[string]any{
		"xml_id": "sale.view_order_form", "source_files": []any{"sale/views/order.xml"},
	})
	s.AddNode(entity.LabelView, "custom.view_order_form", map[string]any{
		"xml_id": "custom.view_order_form", "source_files": []any{"custom/views/order.xml"},
	})
	s.AddEdge(entity.Edge{Type: entity.Inherits, From: "custom.order", To: "sale.order"})
	s.AddEdge(entity.Edge{Type: entity.Extends, From: "custom.view_order_form", To: "sale.view_order_form"})
	return s
}

func TestExpandIncludesContributorsAndInheritors(t *testing.T) {
	c := NewContributions(closureSnapshot())

	exp := Expand(c, []string{"sale_stock/models/order.py"}, nil, nil)
	assert.Equal(t, []entity.NodeRef{
		{Label: entity.LabelModel, Key: "custom.order"},
		{Label: entity.LabelModel, Key: "sale.order"},
	}, exp.Touched)
	assert.Equal(t, []string{
		"custom/models/order.py",
		"sale/models/order.py",
		"sale_stock/models/order.py",
	}, exp.Files)
}

func TestExpandRemovedFileNotReextracted(t *testing.T) {
	c := NewContributions(closureSnapshot())

	exp := Expand(c, nil, []string{"sale/views/order.xml"}, nil)
	assert.Equal(t, []entity.NodeRef{
		{Label: entity.LabelView, Key: "custom.view_order_form"},
		{Label: entity.LabelView, Key: "sale.view_order_form"},
	}, exp.Touched)
	assert.Equal(t, []string{"custom/views/order.xml"}, exp.Files)
}

func TestExpandFreshIdentity(t *testing.T) {
	c := NewContributions(closureSnapshot())

	exp := Expand(c, []string{"new/models/thing.py"}, nil,
		[]entity.NodeRef{{Label: entity.LabelModel, Key: "new.thing"}})
	assert.Equal(t, []entity.NodeRef{{Label: entity.LabelModel, Key: "new.thing"}}, exp.Touched)
	assert.Equal(t, []string{"new/models/thing.py"}, exp.Files)
}

func TestExpandFollowsViewChain(t *testing.T) {
	s := closureSnapshot()
	s.AddNode(entity.LabelView, "extra.view_order_form", map[string]any{
		"xml_id": "extra.view_order_form", "source_files": []any{"extra/views/order.xml"},
	})
	s.AddEdge(entity.Edge{Type: entity.Extends, From: "extra.view_order_form", To: "custom.view_order_form"})
	c := NewContributions(s)

	exp := Expand(c, []string{"sale/views/order.xml"}, nil, nil)
	assert.Equal(t, []entity.NodeRef{
		{Label: entity.LabelView, Key: "custom.view_order_form"},
		{Label: entity.LabelView, Key: "extra.view_order_form"},
		{Label: entity.LabelView, Key: "sale.view_order_form"},
	}, exp.Touched)
	assert.Equal(t, []string{
		"custom/views/order.xml",
		"extra/views/order.xml",
		"sale/views/order.xml",
	}, exp.Files)
}

func TestExpandViewCycleTerminates(t *testing.T) {
	s := closureSnapshot()
	s.AddEdge(entity.Edge{Type: entity.Extends, From: "sale.view_order_form", To: "custom.view_order_form"})
	c := NewContributions(s)

	exp := Expand(c, []string{"custom/views/order.xml"}, nil, nil)
	assert.Len(t, exp.Touched, 2)
}

func TestExpandIncludesStubTargets(t *testing.T) {
	s := closureSnapshot()
	s.AddNode(entity.LabelModel, "mail.thread", map[string]any{"name": "mail.thread", "stub": true})
	s.AddNode(entity.LabelModel, "res.partner", map[string]any{
		"name": "res.partner", "source_files": []any{"base/models/partner.py"},
	})
	s.AddNode(entity.LabelModel, "res.currency", map[string]any{"name": "res.currency", "stub": true})
	s.AddNode(entity.LabelField, "sale.order.currency_id", map[string]any{"name": "currency_id"})
	s.AddEdge(entity.Edge{Type: entity.Inherits, From: "sale.order", To: "mail.thread"})
	s.AddEdge(entity.Edge{Type: entity.HasField, From: "sale.order", To: "sale.order.currency_id"})
	s.AddEdge(entity.Edge{Type: entity.RelatesTo, From: "sale.order.currency_id", To: "res.currency"})
	s.AddEdge(entity.Edge{Type: entity.Inherits, From: "custom.order", To: "res.partner"})
	c := NewContributions(s)

	assert.Equal(t, []entity.NodeRef{
		{Label: entity.LabelModel, Key: "mail.thread"},
		{Label: entity.LabelModel, Key: "res.currency"},
	}, c.StubTargets([]entity.NodeRef{{Label: entity.LabelModel, Key: "sale.order"}}))

	exp := Expand(c, []string{"sale/models/order.py"}, nil, nil)
	assert.Contains(t, exp.Touched, entity.NodeRef{Label: entity.LabelModel, Key: "mail.thread"})
	assert.Contains(t, exp.Touched, entity.NodeRef{Label: entity.LabelModel, Key: "res.currency"})
	assert.NotContains(t, exp.Touched, entity.NodeRef{Label: entity.LabelModel, Key: "res.partner"},
		"defined targets stay out of scope")
	assert.NotContains(t, exp.Files, "base/models/partner.py")
}
