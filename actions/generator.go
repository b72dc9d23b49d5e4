package actions

import (
	"fmt"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
)

// wnode is a node of the working copy of the source tree. Nodes taken
// from the source keep their arena index in src; inserted nodes have
// src -1. Children are materialized from the source on first use.
type wnode struct {
	typ      graph.Type
	label    graph.Label
	src      int
	dst      int
	parent   int
	children []int
	expanded bool
}

// Generator computes an edit script that turns the source tree into the
// destination tree under a fixed mapping. A Generator is single use.
type Generator struct {
	src, dst decompress.Tree
	m        *mapping.Store

	nodes      []wnode
	root       int
	srcToWork  []int32
	dstToWork  []int32
	dstInOrder []bool
	// dstMapped[i] counts mapped destination indices in [0, i)
	dstMapped []int32

	script []Action
}

// NewGenerator prepares a generator. The roots must be mapped to each
// other.
func NewGenerator(src, dst decompress.Tree, m *mapping.Store) (*Generator, error) {
	if !m.Has(src.Root(), dst.Root()) {
		return nil, ErrRootsUnmapped
	}
	g := &Generator{
		src:        src,
		dst:        dst,
		m:          m,
		srcToWork:  make([]int32, src.Len()),
		dstToWork:  make([]int32, dst.Len()),
		dstInOrder: make([]bool, dst.Len()),
		dstMapped:  make([]int32, dst.Len()+1),
	}
	for i := range g.srcToWork {
		g.srcToWork[i] = -1
	}
	for i := range g.dstToWork {
		g.dstToWork[i] = -1
	}
	for i := 0; i < dst.Len(); i++ {
		g.dstMapped[i+1] = g.dstMapped[i]
		if m.IsDst(i) {
			g.dstMapped[i+1]++
		}
	}
	g.root = g.fromSrc(src.Root(), -1)
	return g, nil
}

// Generate computes the edit script for m.
func Generate(src, dst decompress.Tree, m *mapping.Store) ([]Action, error) {
	g, err := NewGenerator(src, dst, m)
	if err != nil {
		return nil, err
	}
	return g.Run()
}

// Run walks the destination breadth first, emitting inserts, updates and
// moves, then deletes what is left unmapped.
func (g *Generator) Run() ([]Action, error) {
	queue := []int{g.dst.Root()}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]

		descend, err := g.visit(x)
		if err != nil {
			return nil, err
		}
		if descend {
			queue = append(queue, g.dst.Children(x)...)
		}
	}
	g.deleteUnmapped()
	return g.script, nil
}

func (g *Generator) visit(x int) (bool, error) {
	w := g.partner(x)
	if w < 0 {
		return g.insert(x)
	}
	if x != g.dst.Root() {
		if err := g.place(w, x); err != nil {
			return false, err
		}
	} else if lbl := g.dst.Label(x); lbl != g.nodes[w].label {
		g.update(w, lbl)
	}
	g.dstInOrder[x] = true

	if g.pristine(w, x) {
		return false, nil
	}
	g.alignChildren(w, x)
	return true, nil
}

// insert adds a node for the unmapped destination node x. A subtree with
// no mapped descendant is inserted whole and not visited further.
func (g *Generator) insert(x int) (bool, error) {
	y, _ := g.dst.Parent(x)
	z := g.partner(y)
	g.expand(z)
	k := g.findPos(x)
	path := childPath(g.path(z), k)

	whole := g.dstMapped[x]-g.dstMapped[g.dst.FirstDescendant(x)] == 0
	w := g.add(wnode{
		typ:      g.dst.Type(x),
		label:    g.dst.Label(x),
		src:      -1,
		dst:      x,
		parent:   -1,
		expanded: true,
	})
	g.dstToWork[x] = int32(w)
	g.attach(z, w, k)
	g.dstInOrder[x] = true

	if whole {
		g.emit(Action{Kind: Insert, Path: path, Node: g.dst.Original(x)})
		return false, nil
	}
	g.emit(Action{Kind: Insert, Path: path, Type: g.nodes[w].typ, Label: g.nodes[w].label})
	return true, nil
}

// place updates the label of w and moves it under the partner of x's
// parent when it sits elsewhere.
func (g *Generator) place(w, x int) error {
	if lbl := g.dst.Label(x); lbl != g.nodes[w].label {
		g.update(w, lbl)
	}
	y, _ := g.dst.Parent(x)
	z := g.partner(y)
	if g.nodes[w].parent == z {
		return nil
	}
	for a := z; a >= 0; a = g.nodes[a].parent {
		if a == w {
			return fmt.Errorf("moving node under its own descendant: %w", ErrUnresolvedAlignment)
		}
	}
	g.move(w, z, x)
	return nil
}

func (g *Generator) update(w int, lbl graph.Label) {
	g.emit(Action{
		Kind:     Update,
		Path:     g.path(w),
		Type:     g.nodes[w].typ,
		Label:    lbl,
		OldLabel: g.nodes[w].label,
	})
	g.nodes[w].label = lbl
}

// move detaches w and reattaches it under z at the position x occupies
// among its in-order siblings.
func (g *Generator) move(w, z, x int) {
	from := g.path(w)
	g.detach(w)
	g.expand(z)
	k := g.findPos(x)
	g.attach(z, w, k)
	g.emit(Action{Kind: Move, From: from, Path: childPath(g.path(z), k), Type: g.nodes[w].typ})
}

// pristine reports whether the untouched source subtree at w is
// identical to the destination subtree at x and mapped position by
// position, in which case nothing below x needs an action.
func (g *Generator) pristine(w, x int) bool {
	n := &g.nodes[w]
	if n.src < 0 || n.expanded {
		return false
	}
	if g.src.Original(n.src) != g.dst.Original(x) {
		return false
	}
	ls, lx := g.src.FirstDescendant(n.src), g.dst.FirstDescendant(x)
	for k := 0; k < n.src-ls; k++ {
		if !g.m.Has(ls+k, lx+k) {
			return false
		}
	}
	return true
}

// alignChildren reorders the children of w that are mapped to children
// of x, keeping a longest common subsequence in place and moving the
// rest.
func (g *Generator) alignChildren(w, x int) {
	g.expand(w)
	dstChildren := g.dst.Children(x)
	isChild := make(map[int]bool, len(dstChildren))
	for _, c := range dstChildren {
		isChild[c] = true
		g.dstInOrder[c] = false
	}
	var s1, s2 []int
	for _, c := range g.nodes[w].children {
		if d := g.nodes[c].dst; d >= 0 && isChild[d] {
			s1 = append(s1, c)
		}
	}
	for _, c := range dstChildren {
		if p := g.lookup(c); p >= 0 && g.nodes[p].parent == w {
			s2 = append(s2, c)
		}
	}

	kept := make(map[int]bool)
	for _, p := range lcs(s1, s2, func(a, b int) bool { return g.nodes[a].dst == b }) {
		kept[s1[p[0]]] = true
		g.dstInOrder[s2[p[1]]] = true
	}
	for _, b := range s2 {
		a := g.lookup(b)
		if kept[a] {
			continue
		}
		g.move(a, w, b)
		g.dstInOrder[b] = true
	}
}

// findPos returns the position under the partner of x's parent right
// after the partner of the nearest in-order left sibling of x.
func (g *Generator) findPos(x int) int {
	y, ok := g.dst.Parent(x)
	if !ok {
		return 0
	}
	siblings := g.dst.Children(y)
	for _, c := range siblings {
		if g.dstInOrder[c] {
			if c == x {
				return 0
			}
			break
		}
	}
	v := -1
	for _, c := range siblings {
		if c == x {
			break
		}
		if g.dstInOrder[c] {
			v = c
		}
	}
	if v < 0 {
		return 0
	}
	u := g.lookup(v)
	return g.position(u) + 1
}

// deleteUnmapped removes every maximal unmapped subtree, visiting the
// working tree in post-order.
func (g *Generator) deleteUnmapped() {
	type frame struct {
		w    int
		next int
	}
	stack := []frame{{w: g.root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := g.nodes[top.w].children
		if top.next < len(children) {
			c := children[top.next]
			if g.nodes[c].dst < 0 {
				g.emit(Action{Kind: Delete, Path: g.path(c), Type: g.nodes[c].typ, Label: g.nodes[c].label})
				g.detach(c)
				continue
			}
			top.next++
			stack = append(stack, frame{w: c})
			continue
		}
		stack = stack[:len(stack)-1]
	}
}

func (g *Generator) emit(a Action) {
	g.script = append(g.script, a)
}

func (g *Generator) add(n wnode) int {
	g.nodes = append(g.nodes, n)
	return len(g.nodes) - 1
}

func (g *Generator) fromSrc(s, parent int) int {
	w := g.add(wnode{
		typ:    g.src.Type(s),
		label:  g.src.Label(s),
		src:    s,
		dst:    -1,
		parent: parent,
	})
	if d, ok := g.m.Dst(s); ok {
		g.nodes[w].dst = d
	}
	g.srcToWork[s] = int32(w)
	return w
}

// expand materializes the source children of w.
func (g *Generator) expand(w int) {
	if g.nodes[w].expanded {
		return
	}
	g.nodes[w].expanded = true
	s := g.nodes[w].src
	if s < 0 {
		return
	}
	children := g.src.Children(s)
	out := make([]int, len(children))
	for k, c := range children {
		out[k] = g.fromSrc(c, w)
	}
	g.nodes[w].children = out
}

// lookup returns the working partner of destination x, or -1 when it is
// unmapped or its partner has not been materialized.
func (g *Generator) lookup(x int) int {
	if w := g.dstToWork[x]; w >= 0 {
		return int(w)
	}
	if s, ok := g.m.Src(x); ok {
		return int(g.srcToWork[s])
	}
	return -1
}

// partner returns the working partner of destination x, materializing
// the source ancestors of a mapped partner as needed.
func (g *Generator) partner(x int) int {
	if w := g.lookup(x); w >= 0 {
		return w
	}
	s, ok := g.m.Src(x)
	if !ok {
		return -1
	}
	var chain []int
	for cur := s; g.srcToWork[cur] < 0; {
		chain = append(chain, cur)
		p, _ := g.src.Parent(cur)
		cur = p
	}
	for i := len(chain) - 1; i >= 0; i-- {
		p, _ := g.src.Parent(chain[i])
		g.expand(int(g.srcToWork[p]))
	}
	return int(g.srcToWork[s])
}

func (g *Generator) attach(parent, w, k int) {
	ch := g.nodes[parent].children
	ch = append(ch, 0)
	copy(ch[k+1:], ch[k:])
	ch[k] = w
	g.nodes[parent].children = ch
	g.nodes[w].parent = parent
}

func (g *Generator) detach(w int) {
	p := g.nodes[w].parent
	k := g.position(w)
	ch := g.nodes[p].children
	g.nodes[p].children = append(ch[:k], ch[k+1:]...)
	g.nodes[w].parent = -1
}

func (g *Generator) position(w int) int {
	p := g.nodes[w].parent
	for k, c := range g.nodes[p].children {
		if c == w {
			return k
		}
	}
	panic(fmt.Sprintf("actions: working node %d missing from its parent", w))
}

func (g *Generator) path(w int) []int {
	var rev []int
	for cur := w; g.nodes[cur].parent >= 0; cur = g.nodes[cur].parent {
		rev = append(rev, g.position(cur))
	}
	out := make([]int, len(rev))
	for k, v := range rev {
		out[len(rev)-1-k] = v
	}
	return out
}
