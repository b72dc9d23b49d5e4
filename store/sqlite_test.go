package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hyperdiff/cas"
	"hyperdiff/diff"
	"hyperdiff/graph"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDir(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sample(b *graph.Builder, name string) graph.NodeID {
	shared := b.Node("block", b.Node("return_statement", b.Leaf("identifier", "x")))
	return b.Node("class",
		b.Node("method", b.Leaf("identifier", name), shared),
		b.Node("method", b.Leaf("identifier", "other"), shared),
		b.Leaf("comment", ""),
	)
}

func TestOpenDir(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenDir(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Join(dir, "nested", "hyperdiff.db")); err != nil {
		t.Errorf("expected database file: %v", err)
	}
}

func TestSaveLoadTree(t *testing.T) {
	db := openTestDB(t)

	src := graph.NewStore()
	b := graph.NewBuilder(src)
	b.Flag("return_statement", graph.FlagStatement)
	root := sample(b, "run")

	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	written, err := db.SaveTree(tx, src, root)
	if err != nil {
		t.Fatalf("SaveTree failed: %v", err)
	}
	digest := src.Resolve(root).Digest
	if err := db.SetRoot(tx, "a.js@v1", digest); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// class, 2 methods, 2 names, comment, and the shared block chain.
	if written != 9 {
		t.Errorf("written = %d, want 9", written)
	}
	if n, _ := db.CountNodes(); n != 9 {
		t.Errorf("CountNodes = %d", n)
	}

	dst := graph.NewStore()
	id, err := db.LoadTree(dst, digest)
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}
	if !graph.Equal(src, root, dst, id) {
		t.Errorf("loaded %s\nwant %s", graph.Sprint(dst, id), graph.Sprint(src, root))
	}
	if dst.Resolve(id).Digest != digest {
		t.Error("digest changed")
	}
	ret, _ := dst.LookupType("return_statement")
	if !dst.TypeFlags(ret).Has(graph.FlagStatement) {
		t.Error("type flags not restored")
	}
	comment := dst.Resolve(dst.Resolve(id).Children[2])
	if !comment.HasLabel() || dst.LabelText(comment.Label) != "" {
		t.Error("empty label not restored")
	}
}

func TestSaveTree_Incremental(t *testing.T) {
	db := openTestDB(t)
	s := graph.NewStore()
	b := graph.NewBuilder(s)

	save := func(root graph.NodeID) int {
		tx, err := db.BeginTx()
		if err != nil {
			t.Fatal(err)
		}
		n, err := db.SaveTree(tx, s, root)
		if err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
		return n
	}

	save(sample(b, "run"))
	// A renamed method adds the new name, its method and the class.
	if n := save(sample(b, "start")); n != 3 {
		t.Errorf("second save wrote %d nodes, want 3", n)
	}
	if n := save(sample(b, "run")); n != 0 {
		t.Errorf("resave wrote %d nodes", n)
	}
}

func TestLoadTree_Missing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LoadTree(graph.NewStore(), cas.Digest{1})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestRoots(t *testing.T) {
	db := openTestDB(t)
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	v1, v2 := sample(b, "a"), sample(b, "b")

	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	for _, root := range []graph.NodeID{v1, v2} {
		if _, err := db.SaveTree(tx, s, root); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.SetRoot(tx, "src/a.js", s.Resolve(v1).Digest); err != nil {
		t.Fatal(err)
	}
	if err := db.SetRoot(tx, "src/a.js", s.Resolve(v2).Digest); err != nil {
		t.Fatal(err)
	}
	if err := db.SetRoot(tx, "src_b.js", s.Resolve(v1).Digest); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	r, err := db.GetRoot("src/a.js")
	if err != nil {
		t.Fatal(err)
	}
	if r.Digest != s.Resolve(v2).Digest {
		t.Error("SetRoot did not replace the target")
	}
	if _, err := db.GetRoot("nope"); !errors.Is(err, ErrRootNotFound) {
		t.Errorf("err = %v", err)
	}

	roots, err := db.ListRoots("src/")
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 || roots[0].Name != "src/a.js" {
		t.Errorf("ListRoots(src/) = %v", roots)
	}
	all, _ := db.ListRoots("")
	if len(all) != 2 {
		t.Errorf("ListRoots() returned %d roots", len(all))
	}
}

func TestRuns(t *testing.T) {
	db := openTestDB(t)
	s := graph.NewStore()
	b := graph.NewBuilder(s)
	src, dst := sample(b, "run"), sample(b, "start")

	cfg := diff.DefaultConfig()
	r := diff.Diff(s, src, dst, cfg)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := NewRun("a.js@1", "a.js@2", r, cfg)
		if err != nil {
			t.Fatal(err)
		}
		tx, err := db.BeginTx()
		if err != nil {
			t.Fatal(err)
		}
		if err := db.RecordRun(tx, run); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID)
	}

	got, err := db.GetRun(ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != r.Summary() {
		t.Errorf("summary = %+v, want %+v", got.Summary, r.Summary())
	}
	if got.Summary.Actions.Updates != 1 {
		t.Errorf("updates = %d", got.Summary.Actions.Updates)
	}
	if got.Src != s.Resolve(src).Digest || got.Dst != s.Resolve(dst).Digest {
		t.Error("digests not stored")
	}
	if got.Config == "" || got.Error != "" {
		t.Errorf("config = %q, error = %q", got.Config, got.Error)
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] {
		t.Errorf("ListRuns(2) = %d runs, first %v", len(runs), runs)
	}
	all, _ := db.ListRuns(0)
	if len(all) != 3 {
		t.Errorf("ListRuns(0) = %d runs", len(all))
	}

	if _, err := db.GetRun("00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestRecordRun_BadID(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := db.RecordRun(tx, &Run{ID: "run-1"}); err == nil {
		t.Error("expected error")
	}
}

func TestShortDigests(t *testing.T) {
	db := openTestDB(t)
	s := graph.NewStore()
	cfg := diff.DefaultConfig()
	root := sample(graph.NewBuilder(s), "run")
	run, err := NewRun("a", "b", diff.Diff(s, root, root, cfg), cfg)
	if err != nil {
		t.Fatal(err)
	}
	tx, err := db.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.RecordRun(tx, run); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// The roots table references nodes, so the bad row goes in on one
	// connection with foreign keys off.
	ctx := context.Background()
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{
		`PRAGMA foreign_keys = OFF`,
		`INSERT INTO roots (name, digest, updated_at) VALUES ('short', x'0102', 0)`,
		`UPDATE runs SET dst_digest = x'0102'`,
		`PRAGMA foreign_keys = ON`,
	} {
		if _, err := conn.ExecContext(ctx, q); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}
	conn.Close()

	if _, err := db.GetRoot("short"); !errors.Is(err, ErrBadDigest) {
		t.Errorf("GetRoot: err = %v, want ErrBadDigest", err)
	}
	if _, err := db.ListRoots(""); !errors.Is(err, ErrBadDigest) {
		t.Errorf("ListRoots: err = %v, want ErrBadDigest", err)
	}
	if _, err := db.GetRun(run.ID); !errors.Is(err, ErrBadDigest) {
		t.Errorf("GetRun: err = %v, want ErrBadDigest", err)
	}
	if _, err := db.ListRuns(0); !errors.Is(err, ErrBadDigest) {
		t.Errorf("ListRuns: err = %v, want ErrBadDigest", err)
	}
}
