package matchers

import (
	"math"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
	"hyperdiff/similarity"
)

const (
	zsEpsilon  = 1e-9
	zsMismatch = 1e9
)

// zsTree is a 1-based view of a Complete arena as Zhang-Shasha expects
// it: node k is arena index k-1.
type zsTree struct {
	n        int
	lld      []int
	types    []graph.Type
	labels   []graph.Label
	keyRoots []int
}

func newZsTree(c *decompress.Complete) zsTree {
	n := c.Len()
	z := zsTree{
		n:      n,
		lld:    make([]int, n+1),
		types:  make([]graph.Type, n+1),
		labels: make([]graph.Label, n+1),
	}
	for i := 0; i < n; i++ {
		z.lld[i+1] = c.FirstDescendant(i) + 1
		z.types[i+1] = c.Type(i)
		z.labels[i+1] = c.Label(i)
	}
	for _, k := range c.KeyRoots() {
		z.keyRoots = append(z.keyRoots, k+1)
	}
	return z
}

// zs computes the Zhang-Shasha edit distance of two trees and recovers a
// mapping from it. Tables are stored flat, row-major.
type zs struct {
	src, dst zsTree
	labels   *similarity.Labels
	stride   int
	tree     []float64
	forest   []float64
}

func newZs(src, dst zsTree, labels *similarity.Labels) *zs {
	stride := dst.n + 1
	return &zs{
		src:    src,
		dst:    dst,
		labels: labels,
		stride: stride,
		tree:   make([]float64, (src.n+1)*stride),
		forest: make([]float64, (src.n+1)*stride),
	}
}

func (z *zs) at(i, j int) int { return i*z.stride + j }

func (z *zs) updateCost(i, j int) float64 {
	if z.src.types[i] != z.dst.types[j] {
		return zsMismatch
	}
	a, b := z.src.labels[i], z.dst.labels[j]
	if a == graph.NoLabel && b == graph.NoLabel {
		return 0
	}
	if a == graph.NoLabel || b == graph.NoLabel {
		return 1
	}
	return 1 - z.labels.Similarity(a, b)
}

func (z *zs) distances() {
	for _, i := range z.src.keyRoots {
		for _, j := range z.dst.keyRoots {
			z.forestDist(i, j)
		}
	}
}

func (z *zs) forestDist(i, j int) {
	li, lj := z.src.lld[i], z.dst.lld[j]
	fd, td := z.forest, z.tree
	fd[z.at(li-1, lj-1)] = 0
	for di := li; di <= i; di++ {
		fd[z.at(di, lj-1)] = fd[z.at(di-1, lj-1)] + 1
		for dj := lj; dj <= j; dj++ {
			fd[z.at(li-1, dj)] = fd[z.at(li-1, dj-1)] + 1
			del := fd[z.at(di-1, dj)] + 1
			ins := fd[z.at(di, dj-1)] + 1
			if z.src.lld[di] == li && z.dst.lld[dj] == lj {
				upd := fd[z.at(di-1, dj-1)] + z.updateCost(di, dj)
				fd[z.at(di, dj)] = math.Min(math.Min(del, ins), upd)
				td[z.at(di, dj)] = fd[z.at(di, dj)]
			} else {
				sub := fd[z.at(z.src.lld[di]-1, z.dst.lld[dj]-1)] + td[z.at(di, dj)]
				fd[z.at(di, dj)] = math.Min(math.Min(del, ins), sub)
			}
		}
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < zsEpsilon
}

// match backtracks through the forest tables and returns 0-based pairs of
// same-typed nodes.
func (z *zs) match() []mapping.Pair {
	z.distances()

	var pairs []mapping.Pair
	stack := [][2]int{{z.src.n, z.dst.n}}
	root := true
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		lastRow, lastCol := top[0], top[1]
		if !root {
			z.forestDist(lastRow, lastCol)
		}
		root = false

		firstRow := z.src.lld[lastRow] - 1
		firstCol := z.dst.lld[lastCol] - 1
		row, col := lastRow, lastCol
		for row > firstRow || col > firstCol {
			cur := z.forest[z.at(row, col)]
			switch {
			case row > firstRow && near(z.forest[z.at(row-1, col)]+1, cur):
				row--
			case col > firstCol && near(z.forest[z.at(row, col-1)]+1, cur):
				col--
			case z.src.lld[row]-1 == firstRow && z.dst.lld[col]-1 == firstCol:
				if z.src.types[row] == z.dst.types[col] {
					pairs = append(pairs, mapping.Pair{Src: row - 1, Dst: col - 1})
				}
				row--
				col--
			default:
				stack = append(stack, [2]int{row, col})
				row = z.src.lld[row] - 1
				col = z.dst.lld[col] - 1
			}
		}
	}
	return pairs
}

// Distance returns the Zhang-Shasha edit distance between two trees with
// unit insert and delete costs and label-similarity update costs.
func Distance(src, dst *decompress.Complete, labels *similarity.Labels) float64 {
	z := newZs(newZsTree(src), newZsTree(dst), labels)
	z.distances()
	return z.tree[z.at(z.src.n, z.dst.n)]
}

// subtree returns a Complete for the subtree at i together with the
// arena index its index 0 corresponds to.
func subtree(t decompress.Tree, i int) (*decompress.Complete, int) {
	lld := t.FirstDescendant(i)
	if c, ok := t.(*decompress.Complete); ok {
		return c.Slice(i), lld
	}
	return decompress.NewComplete(t.View(), t.Original(i)), lld
}

// LastChance runs Zhang-Shasha on the subtrees at a and b and links the
// recovered pairs whose nodes are both still unmapped. It returns the
// number of pairs linked.
func LastChance(src, dst decompress.Tree, m *mapping.Store, a, b int, labels *similarity.Labels) int {
	sa, offA := subtree(src, a)
	sb, offB := subtree(dst, b)
	z := newZs(newZsTree(sa), newZsTree(sb), labels)
	linked := 0
	for _, p := range z.match() {
		if m.LinkIfBothUnmapped(offA+p.Src, offB+p.Dst) {
			linked++
		}
	}
	return linked
}
