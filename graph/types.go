// Package graph provides the shared, hash-consed syntax node store.
//
// Every syntax subtree of every revision is interned once: structurally
// identical subtrees (same types, labels and children) resolve to the same
// NodeID. The resulting graph is a DAG, a node may be the child of many
// parents across revisions. Diff computations only read from the store.
package graph

import "hyperdiff/cas"

// NodeID is an opaque handle to an interned node. The zero value is
// never a valid node.
type NodeID uint32

// InvalidNode is the zero NodeID.
const InvalidNode NodeID = 0

// Type is an interned node type tag.
type Type uint16

// Label is an interned label. NoLabel marks nodes without a label.
type Label uint32

// NoLabel is the absent label.
const NoLabel Label = 0

// TypeFlags describe grammar-level properties of a node type.
type TypeFlags uint8

const (
	// FlagHidden marks structural wrapper or punctuation types that are
	// skipped by label matching and statement-level iteration.
	FlagHidden TypeFlags = 1 << iota
	// FlagStatement marks statement-granularity types (statements,
	// declarations, the file root).
	FlagStatement
)

// Has reports whether all bits of f are set.
func (t TypeFlags) Has(f TypeFlags) bool {
	return t&f == f
}

// Node is the resolved content of a NodeID.
type Node struct {
	Type     Type
	Label    Label
	Children []NodeID
	// Size is the number of nodes in the subtree, the node included.
	Size uint32
	// Height is 1 for leaves.
	Height  uint32
	// Hash is an xxh3 hash of types, shape and labels. Isomorphic
	// subtrees share it; distinct subtrees may collide.
	Hash    uint64
	ByteLen uint32
	Digest  cas.Digest
}

// HasLabel reports whether the node carries a label.
func (n Node) HasLabel() bool {
	return n.Label != NoLabel
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// View is the read-only capability interface the diff core depends on.
// Language adapters only need to fill a Store; matchers never see a
// grammar-specific node representation.
type View interface {
	// Resolve returns the node for id. The Children slice must not be
	// modified. Resolving an invalid id panics.
	Resolve(id NodeID) Node
	TypeName(t Type) string
	TypeFlags(t Type) TypeFlags
	LabelText(l Label) string
}
