package gitio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type fixture struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{t: t, dir: dir, repo: repo, wt: wt}
}

func (f *fixture) write(path, content string) {
	f.t.Helper()
	full := filepath.Join(f.dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		f.t.Fatal(err)
	}
	if _, err := f.wt.Add(path); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) remove(path string) {
	f.t.Helper()
	if _, err := f.wt.Remove(path); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) commit(msg string) plumbing.Hash {
	f.t.Helper()
	h, err := f.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return h
}

func TestResolveAndGetFile(t *testing.T) {
	f := newFixture(t)
	f.write("src/app.js", "function a() {}\n")
	first := f.commit("first")
	if _, err := f.repo.CreateTag("v1", first, nil); err != nil {
		t.Fatal(err)
	}
	f.write("src/app.js", "function b() {}\n")
	f.commit("second")

	r, err := Open(f.dir, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	tests := []struct {
		ref  string
		want string
	}{
		{"v1", "function a() {}\n"},
		{first.String(), "function a() {}\n"},
		{"HEAD~1", "function a() {}\n"},
		{"HEAD", "function b() {}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.ref, func(t *testing.T) {
			c, err := r.ResolveRef(tc.ref)
			if err != nil {
				t.Fatalf("ResolveRef(%q): %v", tc.ref, err)
			}
			fi, err := r.GetFile(c, "src/app.js")
			if err != nil {
				t.Fatal(err)
			}
			if string(fi.Content) != tc.want {
				t.Errorf("content = %q, want %q", fi.Content, tc.want)
			}
			if fi.Lang != "javascript" {
				t.Errorf("lang = %q", fi.Lang)
			}
		})
	}

	if _, err := r.ResolveRef("no-such-branch"); err == nil {
		t.Error("expected error for unknown ref")
	}
	head, _ := r.ResolveRef("HEAD")
	if _, err := r.GetFile(head, "missing.js"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestChangedFiles(t *testing.T) {
	f := newFixture(t)
	f.write("a.go", "package a\n")
	f.write("b.py", "x = 1\n")
	f.write("README.md", "hello\n")
	f.commit("base")
	f.write("a.go", "package a\n\nfunc A() {}\n")
	f.write("c.js", "let c;\n")
	f.write("README.md", "changed\n")
	f.remove("b.py")
	f.commit("head")

	r, err := Open(f.dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	base, err := r.ResolveRef("HEAD~1")
	if err != nil {
		t.Fatal(err)
	}
	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatal(err)
	}

	changes, err := r.ChangedFiles(base, head)
	if err != nil {
		t.Fatal(err)
	}
	want := []Change{
		{From: "a.go", To: "a.go", Lang: "go"},
		{From: "b.py", Lang: "python"},
		{To: "c.js", Lang: "javascript"},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v", changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, changes[i], want[i])
		}
	}
}
