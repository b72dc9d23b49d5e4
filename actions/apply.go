package actions

import (
	"fmt"

	"hyperdiff/graph"
)

// tnode is a mutable copy of a shared subtree.
type tnode struct {
	typ      graph.Type
	label    graph.Label
	children []*tnode
}

func unshare(v graph.View, root graph.NodeID) *tnode {
	type item struct {
		id graph.NodeID
		n  *tnode
	}
	out := &tnode{}
	stack := []item{{root, out}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := v.Resolve(it.id)
		it.n.typ, it.n.label = node.Type, node.Label
		it.n.children = make([]*tnode, len(node.Children))
		for k, c := range node.Children {
			it.n.children[k] = &tnode{}
			stack = append(stack, item{c, it.n.children[k]})
		}
	}
	return out
}

// share interns a mutable tree bottom-up.
func share(s *graph.Store, root *tnode) graph.NodeID {
	var order []*tnode
	stack := []*tnode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, n)
		stack = append(stack, n.children...)
	}
	ids := make(map[*tnode]graph.NodeID, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		children := make([]graph.NodeID, len(n.children))
		for k, c := range n.children {
			children[k] = ids[c]
		}
		ids[n] = s.Intern(n.typ, n.label, children)
	}
	return ids[root]
}

func resolve(root *tnode, path []int) (*tnode, error) {
	n := root
	for _, k := range path {
		if k < 0 || k >= len(n.children) {
			return nil, fmt.Errorf("%v: %w", path, ErrBadPath)
		}
		n = n.children[k]
	}
	return n, nil
}

func detachAt(root *tnode, path []int) (*tnode, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("cannot detach the root: %w", ErrBadPath)
	}
	p, err := resolve(root, path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	k := path[len(path)-1]
	if k < 0 || k >= len(p.children) {
		return nil, fmt.Errorf("%v: %w", path, ErrBadPath)
	}
	n := p.children[k]
	p.children = append(p.children[:k], p.children[k+1:]...)
	return n, nil
}

func attachAt(root *tnode, path []int, n *tnode) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot attach at the root: %w", ErrBadPath)
	}
	p, err := resolve(root, path[:len(path)-1])
	if err != nil {
		return err
	}
	k := path[len(path)-1]
	if k < 0 || k > len(p.children) {
		return fmt.Errorf("%v: %w", path, ErrBadPath)
	}
	p.children = append(p.children, nil)
	copy(p.children[k+1:], p.children[k:])
	p.children[k] = n
	return nil
}

// Apply replays script on the tree rooted at root and interns the
// result into s.
func Apply(s *graph.Store, root graph.NodeID, script []Action) (graph.NodeID, error) {
	t := unshare(s, root)
	for i, a := range script {
		if err := apply(s, t, a); err != nil {
			return graph.InvalidNode, fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
	}
	return share(s, t), nil
}

func apply(s *graph.Store, t *tnode, a Action) error {
	switch a.Kind {
	case Insert:
		n := &tnode{typ: a.Type, label: a.Label}
		if a.IsSubtreeInsert() {
			n = unshare(s, a.Node)
		}
		return attachAt(t, a.Path, n)
	case Delete:
		_, err := detachAt(t, a.Path)
		return err
	case Update:
		n, err := resolve(t, a.Path)
		if err != nil {
			return err
		}
		n.label = a.Label
		return nil
	case Move:
		n, err := detachAt(t, a.From)
		if err != nil {
			return err
		}
		return attachAt(t, a.Path, n)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}
