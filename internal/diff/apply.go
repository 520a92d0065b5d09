package diff

import (
	"context"
	"fmt"

	"github.com/DeusData/odoo-graph/internal/entity"
)

// Batch is a run of whole units applied in one store transaction.
type Batch struct {
	Units []Unit
	Ops   int
}

// Batches packs units into batches of at most max operations. A unit is
// never split; a unit larger than max gets a batch of its own.
func Batches(units []Unit, max int) []Batch {
	if max <= 0 {
		max = 1
	}
	var out []Batch
	var cur Batch
	for _, u := range units {
		n := len(u.Ops)
		if cur.Ops > 0 && cur.Ops+n > max {
			out = append(out, cur)
			cur = Batch{}
		}
		cur.Units = append(cur.Units, u)
		cur.Ops += n
	}
	if cur.Ops > 0 {
		out = append(out, cur)
	}
	return out
}

// Writer performs single graph writes inside a batch.
type Writer interface {
	UpsertNode(ctx context.Context, label, key string, props map[string]any) error
	DeleteNode(ctx context.Context, label, key string) error
	UpsertEdge(ctx context.Context, t entity.EdgeType, from, to string, props map[string]any) error
	DeleteEdge(ctx context.Context, t entity.EdgeType, from, to string) error
}

// Graph runs fn transactionally: either every write of fn persists or none.
type Graph interface {
	WithBatch(ctx context.Context, fn func(w Writer) error) error
}

// ApplyBatch writes one batch in a single transaction.
func ApplyBatch(ctx context.Context, g Graph, b Batch) error {
	return g.WithBatch(ctx, func(w Writer) error {
		for _, u := range b.Units {
			for _, op := range u.Ops {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := applyOp(ctx, w, op); err != nil {
					return fmt.Errorf("%s %s/%s: %w", op.Kind, u.Owner.Label, u.Owner.Key, err)
				}
			}
		}
		return nil
	})
}

func applyOp(ctx context.Context, w Writer, op Op) error {
	switch op.Kind {
	case UpsertNode:
		return w.UpsertNode(ctx, op.Label, op.Key, op.Properties)
	case DeleteNode:
		return w.DeleteNode(ctx, op.Label, op.Key)
	case UpsertEdge:
		return w.UpsertEdge(ctx, op.Edge.Type, op.Edge.From, op.Edge.To, op.Properties)
	case DeleteEdge:
		return w.DeleteEdge(ctx, op.Edge.Type, op.Edge.From, op.Edge.To)
	}
	return fmt.Errorf("unknown op kind %q", op.Kind)
}
