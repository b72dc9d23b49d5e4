package graph

import (
	"strconv"
	"strings"
)

// Sprint renders the subtree rooted at id as an s-expression, e.g.
// (call (identifier "f") (arguments)).
func Sprint(v View, id NodeID) string {
	var sb strings.Builder

	type frame struct {
		id   NodeID
		next int
	}
	stack := []frame{{id: id}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n := v.Resolve(top.id)
		if top.next == 0 {
			sb.WriteByte('(')
			sb.WriteString(v.TypeName(n.Type))
			if n.HasLabel() {
				sb.WriteByte(' ')
				sb.WriteString(strconv.Quote(v.LabelText(n.Label)))
			}
		}
		if top.next < len(n.Children) {
			c := n.Children[top.next]
			top.next++
			sb.WriteByte(' ')
			stack = append(stack, frame{id: c})
			continue
		}
		sb.WriteByte(')')
		stack = stack[:len(stack)-1]
	}
	return sb.String()
}

// Equal reports whether two nodes, possibly from different stores, are
// structurally equal. Digests are content addresses, so this never walks
// the trees.
func Equal(va View, a NodeID, vb View, b NodeID) bool {
	return va.Resolve(a).Digest == vb.Resolve(b).Digest
}
