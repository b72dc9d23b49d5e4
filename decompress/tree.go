// Package decompress turns a shared, hash-consed subtree into a private
// post-order arena that matchers can index.
//
// Index i of an arena is one occurrence of a graph.NodeID. Descendants of
// i occupy exactly [FirstDescendant(i), i) and the root is Len()-1. Two
// variants implement Tree: Complete expands everything up front, Lazy
// expands a node's children only when navigation needs them.
package decompress

import (
	"fmt"

	"hyperdiff/graph"
)

// Tree is a decompressed post-order arena.
type Tree interface {
	View() graph.View
	Len() int
	Root() int
	Original(i int) graph.NodeID
	Children(i int) []int
	Descendants(i int) []int
	DescendantsCount(i int) int
	Parent(i int) (int, bool)
	PositionInParent(i int) (int, bool)
	// Path returns the child positions leading from from down to to.
	Path(from, to int) []int
	FirstDescendant(i int) int
	IsLeaf(i int) bool
	Type(i int) graph.Type
	Label(i int) graph.Label
	// Height is 1 for leaves.
	Height(i int) int
}

// New returns a Lazy arena when lazy is set and a Complete one otherwise.
func New(v graph.View, root graph.NodeID, lazy bool) Tree {
	if lazy {
		return NewLazy(v, root)
	}
	return NewComplete(v, root)
}

// arena holds the state shared by both variants. An index whose id is
// graph.InvalidNode has not been materialized yet.
type arena struct {
	view     graph.View
	ids      []graph.NodeID
	llds     []int
	parents  []int
	expanded []bool
}

func newArena(v graph.View, root graph.NodeID) arena {
	n := int(v.Resolve(root).Size)
	a := arena{
		view:     v,
		ids:      make([]graph.NodeID, n),
		llds:     make([]int, n),
		parents:  make([]int, n),
		expanded: make([]bool, n),
	}
	a.ids[n-1] = root
	a.llds[n-1] = 0
	a.parents[n-1] = -1
	return a
}

func (a *arena) View() graph.View { return a.view }

func (a *arena) Len() int { return len(a.ids) }

func (a *arena) Root() int { return len(a.ids) - 1 }

// expand materializes the children of i, whose id must be known. Child
// indices follow from subtree sizes: the first child starts at lld(i).
func (a *arena) expand(i int) {
	if a.expanded[i] {
		return
	}
	n := a.view.Resolve(a.ids[i])
	start := a.llds[i]
	for _, c := range n.Children {
		size := int(a.view.Resolve(c).Size)
		idx := start + size - 1
		a.ids[idx] = c
		a.llds[idx] = start
		a.parents[idx] = i
		start += size
	}
	if start != i {
		panic(fmt.Sprintf("decompress: children of %d end at %d, broken contiguity", i, start))
	}
	a.expanded[i] = true
}

// ensure materializes index j by descending from the root.
func (a *arena) ensure(j int) {
	if j < 0 || j >= len(a.ids) {
		panic(fmt.Sprintf("decompress: index %d out of range [0,%d)", j, len(a.ids)))
	}
	if a.ids[j] != graph.InvalidNode {
		return
	}
	r := len(a.ids) - 1
	for r != j {
		a.expand(r)
		next := -1
		for _, c := range a.childrenOf(r) {
			if a.llds[c] <= j && j <= c {
				next = c
				break
			}
		}
		if next < 0 {
			panic(fmt.Sprintf("decompress: index %d not under %d", j, r))
		}
		r = next
	}
}

// childrenOf lists the children of an expanded node by walking back from
// i-1 and skipping each child's subtree.
func (a *arena) childrenOf(i int) []int {
	lld := a.llds[i]
	var rev []int
	for c := i - 1; c >= lld; c = a.llds[c] - 1 {
		rev = append(rev, c)
	}
	out := make([]int, len(rev))
	for k, c := range rev {
		out[len(rev)-1-k] = c
	}
	return out
}

func (a *arena) Original(i int) graph.NodeID {
	a.ensure(i)
	return a.ids[i]
}

func (a *arena) Children(i int) []int {
	a.ensure(i)
	a.expand(i)
	return a.childrenOf(i)
}

func (a *arena) FirstDescendant(i int) int {
	a.ensure(i)
	return a.llds[i]
}

func (a *arena) Descendants(i int) []int {
	lld := a.FirstDescendant(i)
	out := make([]int, 0, i-lld)
	for d := lld; d < i; d++ {
		out = append(out, d)
	}
	return out
}

func (a *arena) DescendantsCount(i int) int {
	return i - a.FirstDescendant(i)
}

func (a *arena) IsLeaf(i int) bool {
	return a.FirstDescendant(i) == i
}

func (a *arena) Parent(i int) (int, bool) {
	a.ensure(i)
	p := a.parents[i]
	return p, p >= 0
}

func (a *arena) PositionInParent(i int) (int, bool) {
	p, ok := a.Parent(i)
	if !ok {
		return 0, false
	}
	return a.countSiblingsBefore(i, p), true
}

// countSiblingsBefore counts the siblings left of i under p.
func (a *arena) countSiblingsBefore(i, p int) int {
	lld := a.llds[p]
	n := 0
	for c := a.llds[i] - 1; c >= lld; c = a.llds[c] - 1 {
		n++
	}
	return n
}

func (a *arena) Path(from, to int) []int {
	a.ensure(to)
	var rev []int
	for cur := to; cur != from; {
		p, ok := a.Parent(cur)
		if !ok {
			panic(fmt.Sprintf("decompress: %d is not a descendant of %d", to, from))
		}
		rev = append(rev, a.countSiblingsBefore(cur, p))
		cur = p
	}
	out := make([]int, len(rev))
	for k, v := range rev {
		out[len(rev)-1-k] = v
	}
	return out
}

func (a *arena) Type(i int) graph.Type {
	return a.view.Resolve(a.Original(i)).Type
}

func (a *arena) Label(i int) graph.Label {
	return a.view.Resolve(a.Original(i)).Label
}

func (a *arena) Height(i int) int {
	return int(a.view.Resolve(a.Original(i)).Height)
}

// CheckContiguity re-derives the post-order numbering of t by an
// independent walk over Children and verifies every index and first
// descendant. It is meant for tests and debugging.
func CheckContiguity(t Tree) error {
	type frame struct {
		idx      int
		children []int
		next     int
		start    int
	}
	counter := 0
	stack := []frame{{idx: t.Root(), children: t.Children(t.Root()), start: 0}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.children) {
			c := top.children[top.next]
			top.next++
			stack = append(stack, frame{idx: c, children: t.Children(c), start: counter})
			continue
		}
		if top.idx != counter {
			return fmt.Errorf("node visited at post-order %d has index %d", counter, top.idx)
		}
		if lld := t.FirstDescendant(top.idx); lld != top.start {
			return fmt.Errorf("index %d: first descendant %d, walk says %d", top.idx, lld, top.start)
		}
		if n := t.DescendantsCount(top.idx); n != counter-top.start {
			return fmt.Errorf("index %d: %d descendants, walk says %d", top.idx, n, counter-top.start)
		}
		counter++
		stack = stack[:len(stack)-1]
	}
	if counter != t.Len() {
		return fmt.Errorf("walk visited %d nodes, arena has %d", counter, t.Len())
	}
	return nil
}
