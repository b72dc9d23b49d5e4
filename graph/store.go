package graph

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"

	"hyperdiff/cas"
)

type typeInfo struct {
	name  string
	flags TypeFlags
}

// Store is an append-only, process-scoped node store. Interning is
// synchronized; resolved nodes never change, so concurrent diffs may read
// from the store while other goroutines intern new revisions.
type Store struct {
	mu sync.RWMutex

	nodes    []Node
	byDigest map[cas.Digest]NodeID

	types      []typeInfo
	typeByName map[string]Type

	labels      []string
	labelByText map[string]Label
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		nodes:       make([]Node, 1),
		byDigest:    make(map[cas.Digest]NodeID),
		typeByName:  make(map[string]Type),
		labels:      make([]string, 1),
		labelByText: make(map[string]Label),
	}
}

// InternType returns the Type for name, registering it with flags on
// first use. Flags of an already registered type are extended, never
// cleared.
func (s *Store) InternType(name string, flags TypeFlags) Type {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.typeByName[name]; ok {
		s.types[t].flags |= flags
		return t
	}
	if len(s.types) > int(^Type(0)) {
		panic("graph: too many node types")
	}
	t := Type(len(s.types))
	s.types = append(s.types, typeInfo{name: name, flags: flags})
	s.typeByName[name] = t
	return t
}

// LookupType returns the Type registered under name.
func (s *Store) LookupType(name string) (Type, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.typeByName[name]
	return t, ok
}

// InternLabel returns the Label for text. The empty string is a valid
// label distinct from NoLabel.
func (s *Store) InternLabel(text string) Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.internLabelLocked(text)
}

func (s *Store) internLabelLocked(text string) Label {
	if l, ok := s.labelByText[text]; ok {
		return l
	}
	l := Label(len(s.labels))
	s.labels = append(s.labels, text)
	s.labelByText[text] = l
	return l
}

// Intern returns the NodeID of the node with the given type, label and
// children, creating it if needed. Children must already be interned.
func (s *Store) Intern(t Type, l Label, children []NodeID) NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(t) >= len(s.types) {
		panic(fmt.Sprintf("graph: unknown type %d", t))
	}
	if int(l) >= len(s.labels) {
		panic(fmt.Sprintf("graph: unknown label %d", l))
	}

	childDigests := make([]cas.Digest, len(children))
	for i, c := range children {
		childDigests[i] = s.nodeLocked(c).Digest
	}
	typeName := s.types[t].name
	digest := cas.NodeDigest(typeName, s.labels[l], l != NoLabel, childDigests)
	if id, ok := s.byDigest[digest]; ok {
		return id
	}

	n := Node{
		Type:     t,
		Label:    l,
		Children: append([]NodeID(nil), children...),
		Size:     1,
		Height:   1,
		Digest:   digest,
	}

	h := xxh3.New()
	h.WriteString(typeName)
	if l != NoLabel {
		h.WriteString("\x00")
		h.WriteString(s.labels[l])
	}

	var buf [8]byte
	for _, c := range children {
		cn := s.nodeLocked(c)
		n.Size += cn.Size
		if cn.Height+1 > n.Height {
			n.Height = cn.Height + 1
		}
		n.ByteLen += cn.ByteLen
		binary.LittleEndian.PutUint64(buf[:], cn.Hash)
		h.Write(buf[:])
	}
	switch {
	case l != NoLabel:
		n.ByteLen = uint32(len(s.labels[l]))
	case len(children) == 0:
		n.ByteLen = uint32(len(typeName))
	}
	n.Hash = h.Sum64()

	id := NodeID(len(s.nodes))
	s.nodes = append(s.nodes, n)
	s.byDigest[digest] = id
	return id
}

// Lookup finds an interned node by digest.
func (s *Store) Lookup(d cas.Digest) (NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDigest[d]
	return id, ok
}

// Len returns the number of interned nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes) - 1
}

// Resolve implements View.
func (s *Store) Resolve(id NodeID) Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeLocked(id)
}

func (s *Store) nodeLocked(id NodeID) Node {
	if id == InvalidNode || int(id) >= len(s.nodes) {
		panic(fmt.Sprintf("graph: invalid node id %d", id))
	}
	return s.nodes[id]
}

// TypeName implements View.
func (s *Store) TypeName(t Type) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[t].name
}

// TypeFlags implements View.
func (s *Store) TypeFlags(t Type) TypeFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[t].flags
}

// LabelText implements View. NoLabel resolves to "".
func (s *Store) LabelText(l Label) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels[l]
}

// Each calls fn for every interned node in insertion order, which is a
// valid topological order (children before parents).
func (s *Store) Each(fn func(id NodeID, n Node) error) error {
	s.mu.RLock()
	count := len(s.nodes)
	s.mu.RUnlock()

	for i := 1; i < count; i++ {
		id := NodeID(i)
		if err := fn(id, s.Resolve(id)); err != nil {
			return err
		}
	}
	return nil
}
