// Package matchers implements the node matching stages of a diff:
// top-down isomorphism matching, bottom-up similarity matching with a
// bounded Zhang-Shasha last chance, and label matching of leaves.
//
// Every matcher reads two decompressed arenas and extends a shared
// mapping.Store. Matchers must run in pipeline order; none of them is
// safe for concurrent use on the same arenas.
package matchers

import (
	"sort"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
)

func flags(t decompress.Tree, i int) graph.TypeFlags {
	return t.View().TypeFlags(t.Type(i))
}

func isStatement(t decompress.Tree, i int) bool {
	return i == t.Root() || flags(t, i).Has(graph.FlagStatement)
}

func isHidden(t decompress.Tree, i int) bool {
	return flags(t, i).Has(graph.FlagHidden)
}

// linkSubtree links two isomorphic subtrees node by node. Post-order
// ranges line up exactly, so descendant lld(a)+k pairs with lld(b)+k.
func linkSubtree(src, dst decompress.Tree, m *mapping.Store, a, b int) int {
	la, lb := src.FirstDescendant(a), dst.FirstDescendant(b)
	n := a - la + 1
	if b-lb+1 != n {
		panic("matchers: linking subtrees of different sizes")
	}
	for k := 0; k < n; k++ {
		m.Link(la+k, lb+k)
	}
	return n
}

// pendingNodes returns, in ascending post-order, the indices of t that
// are not inside a fully mapped subtree. Fully mapped subtrees are
// skipped without being navigated, which keeps lazy arenas small.
func pendingNodes(t decompress.Tree, mapped func(int) bool) []int {
	// prefix[i] counts mapped indices in [0, i)
	prefix := make([]int, t.Len()+1)
	for i := 0; i < t.Len(); i++ {
		prefix[i+1] = prefix[i]
		if mapped(i) {
			prefix[i+1]++
		}
	}
	full := func(i int) bool {
		lld := t.FirstDescendant(i)
		return prefix[i+1]-prefix[lld] == i-lld+1
	}

	var out []int
	stack := []int{t.Root()}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if full(i) {
			continue
		}
		out = append(out, i)
		stack = append(stack, t.Children(i)...)
	}
	sort.Ints(out)
	return out
}
