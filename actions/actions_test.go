package actions

import (
	"errors"
	"strings"
	"testing"

	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
)

type fixture struct {
	s        *graph.Store
	b        *graph.Builder
	src, dst graph.NodeID
	links    [][2]int
}

func (f fixture) run(t *testing.T, lazy bool) []Action {
	t.Helper()
	src := decompress.New(f.s, f.src, lazy)
	dst := decompress.New(f.s, f.dst, lazy)
	m := mapping.New(src.Len(), dst.Len())
	for _, l := range f.links {
		m.Link(l[0], l[1])
	}
	script, err := Generate(src, dst, m)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := Apply(f.s, f.src, script)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != f.dst {
		t.Fatalf("replayed script gives %s, want %s", graph.Sprint(f.s, got), graph.Sprint(f.s, f.dst))
	}
	return script
}

// identity links every index of two identically shaped arenas.
func identity(n int) [][2]int {
	out := make([][2]int, n)
	for i := range out {
		out[i] = [2]int{i, i}
	}
	return out
}

func method(b *graph.Builder, name string) graph.NodeID {
	return b.Node("method",
		b.Leaf("identifier", name),
		b.Node("block", b.Node("call", b.Leaf("identifier", "log"))),
	)
}

func TestGenerate_Scenarios(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)

	tests := []struct {
		name string
		fix  fixture
		want Counts
	}{
		{
			name: "rename",
			fix: fixture{
				src:   b.Node("R", b.Node("M", b.Leaf("id", "foo"))),
				dst:   b.Node("R", b.Node("M", b.Leaf("id", "bar"))),
				links: identity(3),
			},
			want: Counts{Updates: 1},
		},
		{
			// src: method run is 0..4, class 5
			// dst: method run is 0..4, method stop 5..9, class 10
			name: "appended method",
			fix: fixture{
				src:   b.Node("class", method(b, "run")),
				dst:   b.Node("class", method(b, "run"), method(b, "stop")),
				links: append(identity(5), [2]int{5, 10}),
			},
			want: Counts{Inserts: 1},
		},
		{
			// src: 0:x 1:p 2:A 3:q 4:B 5:R
			// dst: 0:p 1:A 2:q 3:x 4:B 5:R
			name: "relocated identifier",
			fix: fixture{
				src:   b.Node("R", b.Node("A", b.Leaf("id", "x"), b.Leaf("id", "p")), b.Node("B", b.Leaf("id", "q"))),
				dst:   b.Node("R", b.Node("A", b.Leaf("id", "p")), b.Node("B", b.Leaf("id", "q"), b.Leaf("id", "x"))),
				links: [][2]int{{0, 3}, {1, 0}, {2, 1}, {3, 2}, {4, 4}, {5, 5}},
			},
			want: Counts{Moves: 1},
		},
		{
			name: "removed method",
			fix: fixture{
				src:   b.Node("class", method(b, "run"), method(b, "stop")),
				dst:   b.Node("class", method(b, "run")),
				links: append(identity(5), [2]int{10, 5}),
			},
			want: Counts{Deletes: 1},
		},
		{
			// src: 0:x 1:y 2:A 3:z 4:B 5:w 6:C 7:R
			// dst: 0:z 1:y2 2:B 3:x 4:A 5:k 6:D 7:R
			name: "mixed",
			fix: fixture{
				src: b.Node("R",
					b.Node("A", b.Leaf("id", "x"), b.Leaf("id", "y")),
					b.Node("B", b.Leaf("id", "z")),
					b.Node("C", b.Leaf("id", "w"))),
				dst: b.Node("R",
					b.Node("B", b.Leaf("id", "z"), b.Leaf("id", "y2")),
					b.Node("A", b.Leaf("id", "x")),
					b.Node("D", b.Leaf("id", "k"))),
				links: [][2]int{{7, 7}, {2, 4}, {0, 3}, {4, 2}, {3, 0}, {1, 1}},
			},
			want: Counts{Inserts: 1, Deletes: 1, Updates: 1, Moves: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fix.s, tt.fix.b = s, b
			script := tt.fix.run(t, false)
			if got := Count(script); got != tt.want {
				t.Fatalf("counts = %+v, want %+v\n%s", got, tt.want, render(s, script))
			}
			lazy := tt.fix.run(t, true)
			if render(s, lazy) != render(s, script) {
				t.Errorf("lazy arenas changed the script:\n%s\nvs\n%s", render(s, lazy), render(s, script))
			}
		})
	}
}

func render(v graph.View, script []Action) string {
	var sb strings.Builder
	if err := Write(&sb, v, script); err != nil {
		panic(err)
	}
	return sb.String()
}

func TestGenerate_Paths(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	f := fixture{
		s:     s,
		b:     b,
		src:   b.Node("R", b.Node("A", b.Leaf("id", "x"), b.Leaf("id", "p")), b.Node("B", b.Leaf("id", "q"))),
		dst:   b.Node("R", b.Node("A", b.Leaf("id", "p")), b.Node("B", b.Leaf("id", "q"), b.Leaf("id", "x"))),
		links: [][2]int{{0, 3}, {1, 0}, {2, 1}, {3, 2}, {4, 4}, {5, 5}},
	}
	script := f.run(t, false)
	if len(script) != 1 {
		t.Fatalf("script:\n%s", render(s, script))
	}
	mv := script[0]
	if PathString(mv.From) != "/0/0" || PathString(mv.Path) != "/1/1" {
		t.Errorf("move %s -> %s, want /0/0 -> /1/1", PathString(mv.From), PathString(mv.Path))
	}
}

func TestGenerate_IdenticalTreesNeedNoActions(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	root := b.Node("class", method(b, "run"), method(b, "stop"))
	f := fixture{s: s, b: b, src: root, dst: root, links: identity(11)}
	if script := f.run(t, true); len(script) != 0 {
		t.Errorf("script:\n%s", render(s, script))
	}
}

func TestGenerate_RootsUnmapped(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	src := decompress.NewComplete(s, b.Node("R", b.Leaf("id", "a")))
	dst := decompress.NewComplete(s, b.Node("Q", b.Leaf("id", "a")))
	m := mapping.New(src.Len(), dst.Len())
	m.Link(0, 0)

	if _, err := Generate(src, dst, m); !errors.Is(err, ErrRootsUnmapped) {
		t.Fatalf("err = %v, want ErrRootsUnmapped", err)
	}
}

func TestGenerate_UnmappedInnerNodeInsertedAlone(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	// src: 0:a 1:b 2:R
	// dst: 0:a 1:b 2:W 3:R
	f := fixture{
		s:     s,
		b:     b,
		src:   b.Node("R", b.Leaf("id", "a"), b.Leaf("id", "b")),
		dst:   b.Node("R", b.Node("W", b.Leaf("id", "a"), b.Leaf("id", "b"))),
		links: [][2]int{{0, 0}, {1, 1}, {2, 3}},
	}
	script := f.run(t, false)
	c := Count(script)
	if c.Inserts != 1 || c.Moves != 2 || c.Total() != 3 {
		t.Fatalf("counts = %+v\n%s", c, render(s, script))
	}
	if script[0].Kind != Insert || script[0].IsSubtreeInsert() {
		t.Errorf("first action should insert W alone: %s", Format(s, script[0]))
	}
}

func TestApply_BadPath(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	root := b.Node("R", b.Leaf("id", "a"))
	tests := []Action{
		{Kind: Delete, Path: []int{3}},
		{Kind: Delete, Path: nil},
		{Kind: Move, From: []int{0}, Path: []int{0, 5}},
		{Kind: Update, Path: []int{0, 0}},
	}
	for _, a := range tests {
		if _, err := Apply(s, root, []Action{a}); !errors.Is(err, ErrBadPath) {
			t.Errorf("%s: err = %v, want ErrBadPath", a.Kind, err)
		}
	}
}

func TestLCS(t *testing.T) {
	eq := func(a, b byte) bool { return a == b }
	got := lcs([]byte("ABCBDAB"), []byte("BDCABA"), eq)
	if len(got) != 4 {
		t.Fatalf("lcs length = %d, want 4", len(got))
	}
	for k := 1; k < len(got); k++ {
		if got[k][0] <= got[k-1][0] || got[k][1] <= got[k-1][1] {
			t.Fatalf("pairs not increasing: %v", got)
		}
	}
	if lcs([]byte{}, []byte("x"), eq) != nil {
		t.Error("empty input should give no pairs")
	}
}

func TestFormat(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	id := s.InternType("identifier", 0)
	leaf := b.Leaf("identifier", "run")
	tests := []struct {
		a    Action
		want string
	}{
		{Action{Kind: Insert, Path: []int{1}, Node: leaf}, `insert (identifier "run") at /1`},
		{Action{Kind: Delete, Path: []int{0, 2}, Type: id, Label: s.InternLabel("x")}, `delete identifier "x" at /0/2`},
		{Action{Kind: Update, Path: []int{0}, Type: id, OldLabel: s.InternLabel("getName"), Label: s.InternLabel("getNames")}, `update identifier getName{+s+} at /0`},
		{Action{Kind: Move, From: []int{0, 0}, Path: []int{1}, Type: id}, `move identifier /0/0 -> /1`},
	}
	for _, tt := range tests {
		if got := Format(s, tt.a); got != tt.want {
			t.Errorf("Format(%s) = %q, want %q", tt.a.Kind, got, tt.want)
		}
	}
}

func TestKind_Text(t *testing.T) {
	for _, k := range []Kind{Insert, Delete, Update, Move} {
		var got Kind
		if err := got.UnmarshalText([]byte(k.String())); err != nil || got != k {
			t.Errorf("round trip of %s = %v, %v", k, got, err)
		}
	}
}
