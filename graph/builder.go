package graph

// Builder interns trees written out programmatically. Types are
// registered on first use with the flags given to Flag, if any.
type Builder struct {
	s     *Store
	flags map[string]TypeFlags
}

// NewBuilder returns a Builder interning into s.
func NewBuilder(s *Store) *Builder {
	return &Builder{s: s, flags: make(map[string]TypeFlags)}
}

// Store returns the underlying store.
func (b *Builder) Store() *Store {
	return b.s
}

// Flag sets the flags used when typ is first registered.
func (b *Builder) Flag(typ string, flags TypeFlags) *Builder {
	b.flags[typ] |= flags
	b.s.InternType(typ, flags)
	return b
}

func (b *Builder) typ(name string) Type {
	return b.s.InternType(name, b.flags[name])
}

// Leaf interns a labelled leaf.
func (b *Builder) Leaf(typ, label string) NodeID {
	return b.s.Intern(b.typ(typ), b.s.InternLabel(label), nil)
}

// Token interns an unlabelled leaf such as punctuation or a keyword.
func (b *Builder) Token(typ string) NodeID {
	return b.s.Intern(b.typ(typ), NoLabel, nil)
}

// Node interns an unlabelled inner node.
func (b *Builder) Node(typ string, children ...NodeID) NodeID {
	return b.s.Intern(b.typ(typ), NoLabel, children)
}

// Labeled interns an inner node carrying a label.
func (b *Builder) Labeled(typ, label string, children ...NodeID) NodeID {
	return b.s.Intern(b.typ(typ), b.s.InternLabel(label), children)
}
