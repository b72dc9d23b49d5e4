package decompress

import (
	"hyperdiff/graph"
)

// Lazy is an arena that materializes nodes on demand. Index ranges are
// allocated from precomputed subtree sizes, so an untouched subtree costs
// nothing beyond its root's slot.
//
// Navigation memoizes into the arena: a Lazy must not be shared between
// goroutines without external synchronization.
type Lazy struct {
	arena
}

var _ Tree = (*Lazy)(nil)

// NewLazy creates a lazy arena for the subtree rooted at root. Only the
// root is materialized.
func NewLazy(v graph.View, root graph.NodeID) *Lazy {
	return &Lazy{arena: newArena(v, root)}
}

// IsDecompressed reports whether index i has been materialized.
func (l *Lazy) IsDecompressed(i int) bool {
	return l.ids[i] != graph.InvalidNode
}

// DecompressedCount returns the number of materialized indices.
func (l *Lazy) DecompressedCount() int {
	n := 0
	for _, id := range l.ids {
		if id != graph.InvalidNode {
			n++
		}
	}
	return n
}

// DecompressDescendants materializes the whole subtree of i.
func (l *Lazy) DecompressDescendants(i int) {
	l.ensure(i)
	stack := []int{i}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		l.expand(cur)
		for c := cur - 1; c >= l.llds[cur]; c = l.llds[c] - 1 {
			stack = append(stack, c)
		}
	}
}
