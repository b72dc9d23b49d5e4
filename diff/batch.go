package diff

import (
	"context"

	"golang.org/x/sync/errgroup"

	"hyperdiff/graph"
)

// Pair names two roots to diff.
type Pair struct {
	Name     string
	Src, Dst graph.NodeID
}

// Outcome is the result of one Pair.
type Outcome struct {
	Pair
	Result *Result
}

// Batch diffs independent pairs concurrently, at most limit at a time
// (unlimited when limit <= 0). Outcomes keep the order of pairs.
func (d *Differ) Batch(ctx context.Context, pairs []Pair, limit int) ([]Outcome, error) {
	out := make([]Outcome, len(pairs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range pairs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Outcome{Pair: p, Result: d.Diff(p.Src, p.Dst)}
			d.log.Debug("batch item done", "name", p.Name, "mapped", out[i].Result.MappingCount)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
