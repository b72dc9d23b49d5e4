package decompress

import (
	"fmt"
	"reflect"
	"testing"

	"hyperdiff/graph"
)

// sample builds R(A(x, y), B(z), x); the leaf x is shared, so the store
// holds a DAG that decompresses into seven indices:
//
//	0:x 1:y 2:A 3:z 4:B 5:x 6:R
func sample(t *testing.T) (*graph.Store, graph.NodeID) {
	t.Helper()
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	x := b.Leaf("id", "x")
	root := b.Node("R",
		b.Node("A", x, b.Leaf("id", "y")),
		b.Node("B", b.Leaf("id", "z")),
		x,
	)
	return s, root
}

// deep builds a chain of the given depth with two leaves at each level.
func deep(b *graph.Builder, depth int) graph.NodeID {
	cur := b.Leaf("id", "bottom")
	for i := 0; i < depth; i++ {
		cur = b.Node("block", b.Leaf("id", fmt.Sprint(i)), cur, b.Token(";"))
	}
	return cur
}

func variants(s *graph.Store, root graph.NodeID) map[string]func() Tree {
	return map[string]func() Tree{
		"complete": func() Tree { return NewComplete(s, root) },
		"lazy":     func() Tree { return NewLazy(s, root) },
	}
}

func TestTree_Navigation(t *testing.T) {
	s, root := sample(t)

	for name, mk := range variants(s, root) {
		t.Run(name, func(t *testing.T) {
			tr := mk()
			if tr.Len() != 7 || tr.Root() != 6 {
				t.Fatalf("Len=%d Root=%d, want 7 and 6", tr.Len(), tr.Root())
			}
			if got := tr.Children(6); !reflect.DeepEqual(got, []int{2, 4, 5}) {
				t.Errorf("Children(root) = %v", got)
			}
			if got := tr.Children(2); !reflect.DeepEqual(got, []int{0, 1}) {
				t.Errorf("Children(2) = %v", got)
			}
			if got := tr.Children(5); len(got) != 0 {
				t.Errorf("Children(leaf) = %v", got)
			}
			if tr.Original(0) != tr.Original(5) {
				t.Error("shared leaf should decompress to the same original twice")
			}
			if p, ok := tr.Parent(3); !ok || p != 4 {
				t.Errorf("Parent(3) = %d, %v", p, ok)
			}
			if _, ok := tr.Parent(6); ok {
				t.Error("root has a parent")
			}
			if pos, ok := tr.PositionInParent(5); !ok || pos != 2 {
				t.Errorf("PositionInParent(5) = %d, %v", pos, ok)
			}
			if got := tr.Path(6, 1); !reflect.DeepEqual(got, []int{0, 1}) {
				t.Errorf("Path(6,1) = %v", got)
			}
			if got := tr.Path(6, 3); !reflect.DeepEqual(got, []int{1, 0}) {
				t.Errorf("Path(6,3) = %v", got)
			}
			if got := tr.Path(4, 4); len(got) != 0 {
				t.Errorf("Path(4,4) = %v", got)
			}
			if got := tr.Descendants(4); !reflect.DeepEqual(got, []int{3}) {
				t.Errorf("Descendants(4) = %v", got)
			}
			if tr.DescendantsCount(6) != 6 || tr.FirstDescendant(4) != 3 {
				t.Error("descendant range of root or B is wrong")
			}
			if !tr.IsLeaf(1) || tr.IsLeaf(2) {
				t.Error("IsLeaf mismatch")
			}
			if s.TypeName(tr.Type(4)) != "B" || s.LabelText(tr.Label(3)) != "z" {
				t.Error("Type/Label lookups failed")
			}
		})
	}
}

func TestTree_Contiguity(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	root := b.Node("file", deep(b, 50), deep(b, 3), b.Node("empty"))

	for name, mk := range variants(s, root) {
		t.Run(name, func(t *testing.T) {
			if err := CheckContiguity(mk()); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestTree_DeepChainNoRecursion(t *testing.T) {
	s := graph.NewStore()
	root := deep(graph.NewBuilder(s), 20000)

	c := NewComplete(s, root)
	if c.Len() != 3*20000+1 {
		t.Fatalf("Len = %d", c.Len())
	}
	if err := CheckContiguity(c); err != nil {
		t.Fatal(err)
	}
}

func TestComplete_KeyRoots(t *testing.T) {
	s, root := sample(t)
	c := NewComplete(s, root)

	if got := c.KeyRoots(); !reflect.DeepEqual(got, []int{1, 4, 5, 6}) {
		t.Errorf("KeyRoots = %v, want [1 4 5 6]", got)
	}
}

func TestComplete_Slice(t *testing.T) {
	s, root := sample(t)
	c := NewComplete(s, root)

	sl := c.Slice(4)
	if sl.Len() != 2 || sl.Original(1) != c.Original(4) || sl.Original(0) != c.Original(3) {
		t.Fatalf("Slice(4) has wrong content")
	}
	if err := CheckContiguity(sl); err != nil {
		t.Fatal(err)
	}
	fresh := NewComplete(s, c.Original(2))
	sl2 := c.Slice(2)
	for k := 0; k < fresh.Len(); k++ {
		if fresh.Original(k) != sl2.Original(k) || fresh.FirstDescendant(k) != sl2.FirstDescendant(k) {
			t.Errorf("slice differs from fresh decompression at %d", k)
		}
	}
}

func TestLazy_OnlyMaterializesNavigatedNodes(t *testing.T) {
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	big := deep(b, 1000)
	root := b.Node("file", big, b.Leaf("id", "tail"))

	l := NewLazy(s, root)
	if l.DecompressedCount() != 1 {
		t.Fatalf("fresh lazy arena has %d nodes", l.DecompressedCount())
	}

	children := l.Children(l.Root())
	if len(children) != 2 {
		t.Fatalf("root children = %v", children)
	}
	if got := l.DecompressedCount(); got != 3 {
		t.Errorf("after root expansion %d nodes materialized, want 3", got)
	}
	if l.IsDecompressed(0) {
		t.Error("first leaf materialized too early")
	}

	// Reaching an arbitrary index walks down from the root.
	if s.LabelText(l.Label(0)) != "999" {
		t.Errorf("label at 0 = %q", s.LabelText(l.Label(0)))
	}
	if !l.IsDecompressed(0) {
		t.Error("index 0 should be materialized after access")
	}

	l.DecompressDescendants(l.Root())
	if l.DecompressedCount() != l.Len() {
		t.Errorf("full decompression left %d of %d", l.DecompressedCount(), l.Len())
	}

	c := NewComplete(s, root)
	for i := 0; i < c.Len(); i++ {
		if c.Original(i) != l.Original(i) || c.FirstDescendant(i) != l.FirstDescendant(i) {
			t.Fatalf("lazy and complete disagree at %d", i)
		}
	}
}

func TestTree_OutOfRangePanics(t *testing.T) {
	s, root := sample(t)
	for name, mk := range variants(s, root) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			mk().Original(99)
		})
	}
}
