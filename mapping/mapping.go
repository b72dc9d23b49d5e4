// Package mapping provides the partial bijection between the indices of
// a source arena and a destination arena.
package mapping

import "fmt"

const unmapped int32 = -1

// Store holds the source→destination and destination→source links.
// Every committed pair (s, d) satisfies Dst(s) == d and Src(d) == s.
type Store struct {
	src []int32 // src index -> dst index
	dst []int32 // dst index -> src index
	n   int
}

// New creates an empty mapping for arenas of the given sizes.
func New(srcLen, dstLen int) *Store {
	m := &Store{
		src: make([]int32, srcLen),
		dst: make([]int32, dstLen),
	}
	for i := range m.src {
		m.src[i] = unmapped
	}
	for i := range m.dst {
		m.dst[i] = unmapped
	}
	return m
}

// SrcLen returns the size of the source index space.
func (m *Store) SrcLen() int { return len(m.src) }

// DstLen returns the size of the destination index space.
func (m *Store) DstLen() int { return len(m.dst) }

// Len returns the number of linked pairs.
func (m *Store) Len() int { return m.n }

// Link links s and d. If either side is already linked, the previous
// partner is unlinked first, so overwriting never breaks the bijection.
func (m *Store) Link(s, d int) {
	m.check(s, d)
	if old := m.src[s]; old != unmapped {
		if int(old) == d {
			return
		}
		m.dst[old] = unmapped
		m.n--
	}
	if old := m.dst[d]; old != unmapped {
		m.src[old] = unmapped
		m.n--
	}
	m.src[s] = int32(d)
	m.dst[d] = int32(s)
	m.n++
}

// LinkIfBothUnmapped links s and d only when neither is linked yet and
// reports whether it did.
func (m *Store) LinkIfBothUnmapped(s, d int) bool {
	m.check(s, d)
	if m.src[s] != unmapped || m.dst[d] != unmapped {
		return false
	}
	m.src[s] = int32(d)
	m.dst[d] = int32(s)
	m.n++
	return true
}

// Unlink removes the link of source index s, if any.
func (m *Store) Unlink(s int) {
	if d := m.src[s]; d != unmapped {
		m.dst[d] = unmapped
		m.src[s] = unmapped
		m.n--
	}
}

// IsSrc reports whether source index s is linked.
func (m *Store) IsSrc(s int) bool { return m.src[s] != unmapped }

// IsDst reports whether destination index d is linked.
func (m *Store) IsDst(d int) bool { return m.dst[d] != unmapped }

// Dst returns the partner of source index s.
func (m *Store) Dst(s int) (int, bool) {
	d := m.src[s]
	return int(d), d != unmapped
}

// Src returns the partner of destination index d.
func (m *Store) Src(d int) (int, bool) {
	s := m.dst[d]
	return int(s), s != unmapped
}

// Has reports whether s and d are linked to each other.
func (m *Store) Has(s, d int) bool {
	return m.src[s] == int32(d)
}

// Pair is a linked (source, destination) pair.
type Pair struct {
	Src, Dst int
}

// Pairs returns all linked pairs in ascending source order.
func (m *Store) Pairs() []Pair {
	out := make([]Pair, 0, m.n)
	for s, d := range m.src {
		if d != unmapped {
			out = append(out, Pair{Src: s, Dst: int(d)})
		}
	}
	return out
}

// Clone returns an independent copy.
func (m *Store) Clone() *Store {
	return &Store{
		src: append([]int32(nil), m.src...),
		dst: append([]int32(nil), m.dst...),
		n:   m.n,
	}
}

// Equal reports whether two mappings contain exactly the same pairs.
func (m *Store) Equal(o *Store) bool {
	if len(m.src) != len(o.src) || len(m.dst) != len(o.dst) || m.n != o.n {
		return false
	}
	for i := range m.src {
		if m.src[i] != o.src[i] {
			return false
		}
	}
	return true
}

// Verify checks the bijection invariant. It is meant for tests.
func (m *Store) Verify() error {
	n := 0
	for s, d := range m.src {
		if d == unmapped {
			continue
		}
		n++
		if back := m.dst[d]; int(back) != s {
			return fmt.Errorf("src %d -> dst %d, but dst %d -> src %d", s, d, d, back)
		}
	}
	for d, s := range m.dst {
		if s != unmapped && int(m.src[s]) != d {
			return fmt.Errorf("dst %d -> src %d is not mirrored", d, s)
		}
	}
	if n != m.n {
		return fmt.Errorf("count %d, found %d pairs", m.n, n)
	}
	return nil
}

func (m *Store) check(s, d int) {
	if s < 0 || s >= len(m.src) || d < 0 || d >= len(m.dst) {
		panic(fmt.Sprintf("mapping: link (%d,%d) out of range (%d,%d)", s, d, len(m.src), len(m.dst)))
	}
}
