package matchers

import (
	"sort"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
	"hyperdiff/similarity"
)

// BottomUpOptions configures BottomUp.
type BottomUpOptions struct {
	// MaxLeaves is the leaf count above which SimThresholdLarge applies.
	MaxLeaves         int
	SimThresholdLarge float64
	SimThresholdSmall float64
	// SizeThreshold bounds last-chance matching: it runs when either
	// subtree has fewer nodes. Zero disables it.
	SizeThreshold int
	Metric        similarity.Metric
	// Labels prices label updates during last-chance matching.
	Labels *similarity.Labels

	RangedSimilarity        bool
	TypeGrouping            bool
	LeafCountPrecomputation bool
	StatementLevel          bool
}

// BottomUpStats reports what a BottomUp run did.
type BottomUpStats struct {
	Containers int
	LastChance int
}

type bottomUp struct {
	src, dst decompress.Tree
	m        *mapping.Store
	opts     BottomUpOptions

	leafCounts []int
	dstByType  map[graph.Type][]int
}

// BottomUp links unmapped inner source nodes to the most similar
// unmapped destination ancestor of their mapped descendants, visiting
// sources in post-order. Roots are linked last, unconditionally.
func BottomUp(src, dst decompress.Tree, m *mapping.Store, opts BottomUpOptions) BottomUpStats {
	if opts.Labels == nil {
		opts.Labels = similarity.NewLabels(src.View(), similarity.QGram, false)
	}
	b := &bottomUp{src: src, dst: dst, m: m, opts: opts}
	if opts.LeafCountPrecomputation {
		b.leafCounts = countLeaves(src)
	}
	if opts.TypeGrouping {
		b.dstByType = groupByType(dst)
	}
	return b.run()
}

func (b *bottomUp) run() BottomUpStats {
	var stats BottomUpStats
	srcRoot, dstRoot := b.src.Root(), b.dst.Root()

	for _, a := range pendingNodes(b.src, b.m.IsSrc) {
		if a == srcRoot || b.m.IsSrc(a) || b.src.IsLeaf(a) {
			continue
		}
		if b.opts.StatementLevel && !isStatement(b.src, a) {
			continue
		}
		seeds := b.seeds(a)
		if len(seeds) == 0 {
			continue
		}

		best, bestSim := -1, -1.0
		for _, c := range b.candidates(a, seeds) {
			sim := similarity.Score(b.opts.Metric, b.src, b.dst, b.m, a, c, b.opts.RangedSimilarity)
			if sim > bestSim {
				best, bestSim = c, sim
			}
		}
		if best < 0 || bestSim < b.threshold(a) {
			continue
		}
		b.m.Link(a, best)
		stats.Containers++
		stats.LastChance += b.lastChance(a, best)
	}

	if !b.m.Has(srcRoot, dstRoot) {
		if !b.m.IsSrc(srcRoot) && !b.m.IsDst(dstRoot) {
			stats.Containers++
		}
		b.m.Link(srcRoot, dstRoot)
	}
	stats.LastChance += b.lastChance(srcRoot, dstRoot)
	return stats
}

func (b *bottomUp) threshold(a int) float64 {
	if b.leafCount(a) > b.opts.MaxLeaves {
		return b.opts.SimThresholdLarge
	}
	return b.opts.SimThresholdSmall
}

func (b *bottomUp) leafCount(a int) int {
	if b.leafCounts != nil {
		return b.leafCounts[a]
	}
	n := 0
	for i := b.src.FirstDescendant(a); i <= a; i++ {
		if b.src.IsLeaf(i) {
			n++
		}
	}
	return n
}

// seeds returns the sorted partners of a's mapped descendants.
func (b *bottomUp) seeds(a int) []int {
	var out []int
	for s := b.src.FirstDescendant(a); s < a; s++ {
		if d, ok := b.m.Dst(s); ok {
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

// candidates returns, ascending, the unmapped non-root destination nodes
// of a's type that contain at least one seed.
func (b *bottomUp) candidates(a int, seeds []int) []int {
	typ := b.src.Type(a)
	root := b.dst.Root()
	var out []int

	if b.dstByType != nil {
		for _, c := range b.dstByType[typ] {
			if c == root || b.m.IsDst(c) {
				continue
			}
			lo := b.dst.FirstDescendant(c)
			k := sort.SearchInts(seeds, lo)
			if k < len(seeds) && seeds[k] < c {
				out = append(out, c)
			}
		}
		return out
	}

	seen := make(map[int]bool)
	for _, d := range seeds {
		for p, ok := b.dst.Parent(d); ok && p != root; p, ok = b.dst.Parent(p) {
			if seen[p] {
				break
			}
			seen[p] = true
			if b.dst.Type(p) == typ && !b.m.IsDst(p) {
				out = append(out, p)
			}
		}
	}
	sort.Ints(out)
	return out
}

func (b *bottomUp) lastChance(a, d int) int {
	if b.opts.SizeThreshold <= 0 {
		return 0
	}
	sa := b.src.DescendantsCount(a) + 1
	sd := b.dst.DescendantsCount(d) + 1
	if sa >= b.opts.SizeThreshold && sd >= b.opts.SizeThreshold {
		return 0
	}
	return LastChance(b.src, b.dst, b.m, a, d, b.opts.Labels)
}

func countLeaves(t decompress.Tree) []int {
	counts := make([]int, t.Len())
	for i := 0; i < t.Len(); i++ {
		if t.IsLeaf(i) {
			counts[i] = 1
		}
		if p, ok := t.Parent(i); ok {
			counts[p] += counts[i]
		}
	}
	return counts
}

func groupByType(t decompress.Tree) map[graph.Type][]int {
	out := make(map[graph.Type][]int)
	for i := 0; i < t.Len(); i++ {
		if !t.IsLeaf(i) {
			typ := t.Type(i)
			out[typ] = append(out[typ], i)
		}
	}
	return out
}
