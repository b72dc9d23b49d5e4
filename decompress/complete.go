package decompress

import (
	"hyperdiff/graph"
)

// Complete is an eagerly decompressed arena. It costs O(size) up front
// and provides key roots for exact tree edit distance.
type Complete struct {
	arena
	keyRoots []int
}

var _ Tree = (*Complete)(nil)

// NewComplete decompresses the whole subtree rooted at root.
func NewComplete(v graph.View, root graph.NodeID) *Complete {
	c := &Complete{arena: newArena(v, root)}
	stack := []int{c.Root()}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.expand(i)
		for cur := i - 1; cur >= c.llds[i]; cur = c.llds[cur] - 1 {
			stack = append(stack, cur)
		}
	}
	return c
}

// KeyRoots returns, for every distinct first-descendant value, the
// highest index having it, in ascending order. The root is always the
// last key root.
func (c *Complete) KeyRoots() []int {
	if c.keyRoots != nil {
		return c.keyRoots
	}
	highest := make(map[int]int, len(c.ids))
	for i := range c.ids {
		highest[c.llds[i]] = i
	}
	marked := make([]bool, len(c.ids))
	for _, i := range highest {
		marked[i] = true
	}
	out := make([]int, 0, len(highest))
	for i, ok := range marked {
		if ok {
			out = append(out, i)
		}
	}
	c.keyRoots = out
	return out
}

// Slice returns a Complete for the subtree rooted at i. Index k of the
// slice corresponds to index FirstDescendant(i)+k of c.
func (c *Complete) Slice(i int) *Complete {
	lld := c.llds[i]
	n := i - lld + 1
	s := &Complete{arena: arena{
		view:     c.view,
		ids:      make([]graph.NodeID, n),
		llds:     make([]int, n),
		parents:  make([]int, n),
		expanded: make([]bool, n),
	}}
	for k := 0; k < n; k++ {
		s.ids[k] = c.ids[lld+k]
		s.llds[k] = c.llds[lld+k] - lld
		s.parents[k] = c.parents[lld+k] - lld
		s.expanded[k] = true
	}
	s.parents[n-1] = -1
	return s
}
