package matchers

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
	"hyperdiff/similarity"
)

// Policy decides how top-down matching resolves a group of isomorphic
// subtrees with several candidates on each side.
type Policy int

const (
	// Greedy pairs each source, in index order, with the candidate at
	// the nearest relative position.
	Greedy Policy = iota
	// Stable scores every ambiguous pair by parent similarity and
	// commits them in a total order, so the result never depends on
	// hash iteration order.
	Stable
)

func (p Policy) String() string {
	if p == Stable {
		return "stable"
	}
	return "greedy"
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "greedy", "":
		return Greedy, nil
	case "stable":
		return Stable, nil
	default:
		return Greedy, fmt.Errorf("unknown top-down policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// TopDownOptions configures TopDown.
type TopDownOptions struct {
	// MinHeight excludes subtrees whose height is not above it.
	MinHeight int
	Policy    Policy
	// Metric scores parents when Policy is Stable.
	Metric similarity.Metric
}

type group struct {
	id         graph.NodeID
	srcs, dsts []int
}

type candidate struct {
	src, dst int
	score    float64
	dist     float64
}

// TopDown links maximal isomorphic subtrees of equal height, tallest
// first. It returns the number of node pairs linked.
func TopDown(src, dst decompress.Tree, m *mapping.Store, opts TopDownOptions) int {
	srcQ := newHeightQueue(src, opts.MinHeight)
	dstQ := newHeightQueue(dst, opts.MinHeight)
	linked := 0

	for !srcQ.empty() && !dstQ.empty() {
		hs, hd := srcQ.peekHeight(), dstQ.peekHeight()
		if hs > hd {
			for _, i := range srcQ.pop(hs) {
				srcQ.open(i)
			}
			continue
		}
		if hd > hs {
			for _, j := range dstQ.pop(hd) {
				dstQ.open(j)
			}
			continue
		}

		srcs, dsts := srcQ.pop(hs), dstQ.pop(hd)

		var ambiguous []*group
		for _, g := range groupIsomorphic(src, dst, srcs, dsts) {
			switch {
			case len(g.srcs) == 0 || len(g.dsts) == 0:
			case len(g.srcs) == 1 && len(g.dsts) == 1:
				linked += linkSubtree(src, dst, m, g.srcs[0], g.dsts[0])
			default:
				ambiguous = append(ambiguous, g)
			}
		}
		// Ambiguous groups are resolved once every unique pair at this
		// height is linked, so parent scores see the same mapping.
		if opts.Policy == Stable {
			var cands []candidate
			for _, g := range ambiguous {
				cands = append(cands, stableCandidates(src, dst, m, g, opts.Metric)...)
			}
			linked += commitStable(src, dst, m, cands)
		} else {
			for _, g := range ambiguous {
				linked += resolveGreedy(src, dst, m, g)
			}
		}

		for _, i := range srcs {
			if !m.IsSrc(i) {
				srcQ.open(i)
			}
		}
		for _, j := range dsts {
			if !m.IsDst(j) {
				dstQ.open(j)
			}
		}
	}
	return linked
}

// groupIsomorphic buckets both sides by subtree hash. Shared nodes are
// hash-consed, so within a bucket equal NodeIDs are exactly the
// isomorphic subtrees and colliding hashes split into separate groups.
// Groups are returned in order of first appearance among the sources.
func groupIsomorphic(src, dst decompress.Tree, srcs, dsts []int) []*group {
	buckets := make(map[uint64][]*group)
	var order []*group
	find := func(t decompress.Tree, i int, create bool) *group {
		id := t.Original(i)
		h := t.View().Resolve(id).Hash
		for _, g := range buckets[h] {
			if g.id == id {
				return g
			}
		}
		if !create {
			return nil
		}
		g := &group{id: id}
		buckets[h] = append(buckets[h], g)
		order = append(order, g)
		return g
	}
	for _, i := range srcs {
		g := find(src, i, true)
		g.srcs = append(g.srcs, i)
	}
	for _, j := range dsts {
		if g := find(dst, j, false); g != nil {
			g.dsts = append(g.dsts, j)
		}
	}
	return order
}

func relativePosition(t decompress.Tree, i int) float64 {
	return float64(i) / float64(t.Len())
}

// resolveGreedy pairs sources in ascending index order with the unused
// destination nearest in relative position; ties go to the smaller
// destination index.
func resolveGreedy(src, dst decompress.Tree, m *mapping.Store, g *group) int {
	used := make([]bool, len(g.dsts))
	linked := 0
	for _, s := range g.srcs {
		best, bestDist := -1, math.Inf(1)
		ps := relativePosition(src, s)
		for k, d := range g.dsts {
			if used[k] {
				continue
			}
			if dist := math.Abs(ps - relativePosition(dst, d)); dist < bestDist {
				best, bestDist = k, dist
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		linked += linkSubtree(src, dst, m, s, g.dsts[best])
	}
	return linked
}

func stableCandidates(src, dst decompress.Tree, m *mapping.Store, g *group, metric similarity.Metric) []candidate {
	out := make([]candidate, 0, len(g.srcs)*len(g.dsts))
	for _, s := range g.srcs {
		for _, d := range g.dsts {
			c := candidate{
				src:  s,
				dst:  d,
				dist: math.Abs(relativePosition(src, s) - relativePosition(dst, d)),
			}
			ps, okS := src.Parent(s)
			pd, okD := dst.Parent(d)
			if okS && okD {
				c.score = similarity.Score(metric, src, dst, m, ps, pd, true)
			}
			out = append(out, c)
		}
	}
	return out
}

// commitStable sorts candidates by parent score, then position distance,
// then index pair, and links every pair whose roots are still free.
func commitStable(src, dst decompress.Tree, m *mapping.Store, cands []candidate) int {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.src != b.src {
			return a.src < b.src
		}
		return a.dst < b.dst
	})
	linked := 0
	for _, c := range cands {
		if m.IsSrc(c.src) || m.IsDst(c.dst) {
			continue
		}
		linked += linkSubtree(src, dst, m, c.src, c.dst)
	}
	return linked
}
