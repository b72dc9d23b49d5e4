package matchers

import (
	"sort"
	"strings"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
	"hyperdiff/similarity"
)

// LeafOptions configures Leaves.
type LeafOptions struct {
	// Threshold is the minimum label similarity for a link.
	Threshold float64
	Labels    *similarity.Labels
	// StatementLevel also compares unmapped statement nodes by the text
	// of their labelled leaves.
	StatementLevel bool
}

type scored struct {
	src, dst int
	score    float64
}

// Leaves links unmapped labelled leaves of equal type whose labels are
// similar enough. Pairs are committed by decreasing score, then by
// index, each only if both nodes are still free. Hidden types and
// unlabelled leaves are never considered. It returns the number of pairs
// linked.
func Leaves(src, dst decompress.Tree, m *mapping.Store, opts LeafOptions) int {
	if opts.Labels == nil {
		opts.Labels = similarity.NewLabels(src.View(), similarity.QGram, false)
	}
	srcs := leafCandidates(src, m.IsSrc, opts.StatementLevel)
	byType := make(map[graph.Type][]int)
	for _, d := range leafCandidates(dst, m.IsDst, opts.StatementLevel) {
		byType[dst.Type(d)] = append(byType[dst.Type(d)], d)
	}

	texts := make(map[int]string)
	text := func(t decompress.Tree, i int, off int) string {
		if s, ok := texts[off+i]; ok {
			return s
		}
		s := leafText(t, i)
		texts[off+i] = s
		return s
	}

	var pairs []scored
	for _, s := range srcs {
		for _, d := range byType[src.Type(s)] {
			var sim float64
			if src.IsLeaf(s) && dst.IsLeaf(d) {
				sim = opts.Labels.Similarity(src.Label(s), dst.Label(d))
			} else {
				sim = opts.Labels.Text(text(src, s, 0), text(dst, d, src.Len()))
			}
			if sim >= opts.Threshold {
				pairs = append(pairs, scored{src: s, dst: d, score: sim})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.src != b.src {
			return a.src < b.src
		}
		return a.dst < b.dst
	})
	linked := 0
	for _, p := range pairs {
		if m.LinkIfBothUnmapped(p.src, p.dst) {
			linked++
		}
	}
	return linked
}

func leafCandidates(t decompress.Tree, mapped func(int) bool, statements bool) []int {
	var out []int
	for _, i := range pendingNodes(t, mapped) {
		if mapped(i) || isHidden(t, i) {
			continue
		}
		if t.IsLeaf(i) {
			if t.Label(i) != graph.NoLabel {
				out = append(out, i)
			}
			continue
		}
		if statements && i != t.Root() && flags(t, i).Has(graph.FlagStatement) {
			out = append(out, i)
		}
	}
	return out
}

// leafText joins the labels of the labelled leaves under i.
func leafText(t decompress.Tree, i int) string {
	if t.IsLeaf(i) {
		return t.View().LabelText(t.Label(i))
	}
	var parts []string
	for k := t.FirstDescendant(i); k < i; k++ {
		if t.IsLeaf(k) && t.Label(k) != graph.NoLabel {
			parts = append(parts, t.View().LabelText(t.Label(k)))
		}
	}
	return strings.Join(parts, " ")
}
