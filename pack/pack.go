// Package pack exports interned syntax trees to a self-contained,
// zstd-compressed file and imports them into another store.
package pack

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"hyperdiff/cas"
	"hyperdiff/graph"
)

// Pack format (before compression):
// [4 bytes: header length (big-endian)]
// [header JSON: Header]
// [node records...]
//
// Records are unique nodes in post-order, children before parents. Each
// record is a run of uvarints: type index, label index + 1 (0 for no
// label), child count, then the record index of every child.

const (
	HeaderLengthSize = 4
	MaxHeaderSize    = 64 * 1024 * 1024
	Version          = 1
)

var (
	ErrChecksum = errors.New("pack checksum mismatch")
	ErrCorrupt  = errors.New("corrupt pack")
)

// TypeEntry describes a node type used by the pack.
type TypeEntry struct {
	Name  string          `json:"name"`
	Flags graph.TypeFlags `json:"flags"`
}

// RootEntry names one exported tree.
type RootEntry struct {
	Name   string `json:"name"`
	Record int    `json:"record"`
	Digest string `json:"digest"`
}

// Header describes the records of a pack.
type Header struct {
	Version  int         `json:"version"`
	Types    []TypeEntry `json:"types"`
	Labels   []string    `json:"labels"`
	Records  int         `json:"records"`
	Roots    []RootEntry `json:"roots"`
	Checksum string      `json:"checksum"`
}

// Root is a named tree of a store.
type Root struct {
	Name   string
	ID     graph.NodeID
	Digest cas.Digest
}

type encoder struct {
	v       graph.View
	records map[graph.NodeID]int
	types   map[graph.Type]int
	labels  map[graph.Label]int
	header  Header
	data    bytes.Buffer
	scratch [binary.MaxVarintLen64]byte
}

func (e *encoder) uvarint(x int) {
	n := binary.PutUvarint(e.scratch[:], uint64(x))
	e.data.Write(e.scratch[:n])
}

func (e *encoder) typeIndex(t graph.Type) int {
	if i, ok := e.types[t]; ok {
		return i
	}
	i := len(e.header.Types)
	e.header.Types = append(e.header.Types, TypeEntry{Name: e.v.TypeName(t), Flags: e.v.TypeFlags(t)})
	e.types[t] = i
	return i
}

func (e *encoder) labelIndex(l graph.Label) int {
	if l == graph.NoLabel {
		return 0
	}
	if i, ok := e.labels[l]; ok {
		return i + 1
	}
	i := len(e.header.Labels)
	e.header.Labels = append(e.header.Labels, e.v.LabelText(l))
	e.labels[l] = i
	return i + 1
}

// add writes the records of the subtree under root that are not written yet.
func (e *encoder) add(root graph.NodeID) int {
	type frame struct {
		id   graph.NodeID
		node graph.Node
		next int
	}
	stack := []frame{{id: root, node: e.v.Resolve(root)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if _, done := e.records[top.id]; done {
			stack = stack[:len(stack)-1]
			continue
		}
		if top.next < len(top.node.Children) {
			c := top.node.Children[top.next]
			top.next++
			if _, done := e.records[c]; !done {
				stack = append(stack, frame{id: c, node: e.v.Resolve(c)})
			}
			continue
		}
		n := top.node
		e.uvarint(e.typeIndex(n.Type))
		e.uvarint(e.labelIndex(n.Label))
		e.uvarint(len(n.Children))
		for _, c := range n.Children {
			e.uvarint(e.records[c])
		}
		e.records[top.id] = e.header.Records
		e.header.Records++
		stack = stack[:len(stack)-1]
	}
	return e.records[root]
}

// Write exports the trees under roots to w. Subtrees shared between roots
// are written once.
func Write(w io.Writer, v graph.View, roots []Root) error {
	e := &encoder{
		v:       v,
		records: make(map[graph.NodeID]int),
		types:   make(map[graph.Type]int),
		labels:  make(map[graph.Label]int),
		header:  Header{Version: Version, Labels: []string{}, Roots: []RootEntry{}},
	}
	for _, r := range roots {
		rec := e.add(r.ID)
		e.header.Roots = append(e.header.Roots, RootEntry{
			Name:   r.Name,
			Record: rec,
			Digest: v.Resolve(r.ID).Digest.String(),
		})
	}
	e.header.Checksum = cas.Blake3HashHex(e.data.Bytes())

	headerJSON, err := json.Marshal(e.header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	headerLen := make([]byte, HeaderLengthSize)
	binary.BigEndian.PutUint32(headerLen, uint32(len(headerJSON)))
	for _, part := range [][]byte{headerLen, headerJSON, e.data.Bytes()} {
		if _, err := enc.Write(part); err != nil {
			enc.Close()
			return fmt.Errorf("compressing: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}
	return nil
}

// ReadHeader decompresses a pack and returns its header and record data.
func ReadHeader(r io.Reader) (*Header, []byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	decompressed, err := io.ReadAll(dec)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing: %w", err)
	}
	if len(decompressed) < HeaderLengthSize {
		return nil, nil, fmt.Errorf("%w: pack too small: %d bytes", ErrCorrupt, len(decompressed))
	}

	headerLen := binary.BigEndian.Uint32(decompressed[:HeaderLengthSize])
	if headerLen > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: header too large: %d bytes", ErrCorrupt, headerLen)
	}
	if int(HeaderLengthSize+headerLen) > len(decompressed) {
		return nil, nil, fmt.Errorf("%w: header length exceeds pack size", ErrCorrupt)
	}

	var header Header
	if err := json.Unmarshal(decompressed[HeaderLengthSize:HeaderLengthSize+headerLen], &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != Version {
		return nil, nil, fmt.Errorf("unsupported pack version %d", header.Version)
	}

	data := decompressed[HeaderLengthSize+headerLen:]
	// Every record is at least three uvarints of one byte each.
	if header.Records < 0 || header.Records > len(data)/3 {
		return nil, nil, fmt.Errorf("%w: %d records in %d bytes", ErrCorrupt, header.Records, len(data))
	}
	if sum := cas.Blake3HashHex(data); sum != header.Checksum {
		return nil, nil, fmt.Errorf("%w: got %s, header says %s", ErrChecksum, sum, header.Checksum)
	}
	return &header, data, nil
}

// Read imports a pack into s and returns its roots in export order.
func Read(r io.Reader, s *graph.Store) ([]Root, error) {
	header, data, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	types := make([]graph.Type, len(header.Types))
	for i, t := range header.Types {
		types[i] = s.InternType(t.Name, t.Flags)
	}
	labels := make([]graph.Label, len(header.Labels))
	for i, l := range header.Labels {
		labels[i] = s.InternLabel(l)
	}

	rd := bytes.NewReader(data)
	next := func(limit int, what string) (int, error) {
		x, err := binary.ReadUvarint(rd)
		if err != nil {
			return 0, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, what, err)
		}
		if x >= uint64(limit) {
			return 0, fmt.Errorf("%w: %s %d out of range", ErrCorrupt, what, x)
		}
		return int(x), nil
	}

	ids := make([]graph.NodeID, header.Records)
	for rec := range ids {
		t, err := next(len(types), "type")
		if err != nil {
			return nil, err
		}
		l, err := next(len(labels)+1, "label")
		if err != nil {
			return nil, err
		}
		count, err := next(rd.Len()+1, "child count")
		if err != nil {
			return nil, err
		}
		children := make([]graph.NodeID, count)
		for i := range children {
			c, err := next(rec, "child")
			if err != nil {
				return nil, err
			}
			children[i] = ids[c]
		}
		label := graph.NoLabel
		if l > 0 {
			label = labels[l-1]
		}
		ids[rec] = s.Intern(types[t], label, children)
	}
	if rd.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, rd.Len())
	}

	roots := make([]Root, len(header.Roots))
	for i, re := range header.Roots {
		if re.Record < 0 || re.Record >= len(ids) {
			return nil, fmt.Errorf("%w: root %q record %d out of range", ErrCorrupt, re.Name, re.Record)
		}
		want, err := cas.ParseDigest(re.Digest)
		if err != nil {
			return nil, fmt.Errorf("%w: root %q: %v", ErrCorrupt, re.Name, err)
		}
		id := ids[re.Record]
		d := s.Resolve(id).Digest
		if d != want {
			return nil, fmt.Errorf("%w: root %q digest %s, header says %s", ErrCorrupt, re.Name, d.Short(), want.Short())
		}
		roots[i] = Root{Name: re.Name, ID: id, Digest: d}
	}
	return roots, nil
}
