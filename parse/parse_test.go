package parse

import (
	"context"
	"strings"
	"testing"

	"hyperdiff/actions"
	"hyperdiff/diff"
	"hyperdiff/graph"
)

func TestNormalizeLang(t *testing.T) {
	tests := map[string]string{
		"js":         JavaScript,
		"TypeScript": JavaScript,
		"py":         Python,
		"golang":     Go,
		"go":         Go,
		"rust":       "",
	}
	for in, want := range tests {
		if got := NormalizeLang(in); got != want {
			t.Errorf("NormalizeLang(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParser_JavaScript(t *testing.T) {
	s := graph.NewStore()
	p := NewParser(s)

	code := []byte("function hello(name) {\n  return name + 1;\n}\n")
	f, err := p.Parse(context.Background(), code, "js")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.HasErrors {
		t.Error("unexpected syntax errors")
	}
	root := s.Resolve(f.Root)
	if got := s.TypeName(root.Type); got != "program" {
		t.Errorf("root type = %q, want program", got)
	}
	out := graph.Sprint(s, f.Root)
	for _, want := range []string{`(identifier "hello")`, `(identifier "name")`, "(return_statement", `(number "1")`} {
		if !strings.Contains(out, want) {
			t.Errorf("tree lacks %s:\n%s", want, out)
		}
	}

	ret, ok := s.LookupType("return_statement")
	if !ok || !s.TypeFlags(ret).Has(graph.FlagStatement) {
		t.Error("return_statement should be a statement type")
	}
	paren, ok := s.LookupType("(")
	if !ok || !s.TypeFlags(paren).Has(graph.FlagHidden) {
		t.Error("( should be a hidden type")
	}
	if !s.TypeFlags(root.Type).Has(graph.FlagStatement) {
		t.Error("root type should be a statement type")
	}
}

func TestParser_SharesIdenticalTrees(t *testing.T) {
	s := graph.NewStore()
	p := NewParser(s)
	ctx := context.Background()

	a, err := p.Parse(ctx, []byte("x = 1\ny = 2\n"), "python")
	if err != nil {
		t.Fatal(err)
	}
	before := s.Len()
	b, err := p.Parse(ctx, []byte("x = 1\ny = 2\n"), "py")
	if err != nil {
		t.Fatal(err)
	}
	if a.Root != b.Root {
		t.Error("identical sources should intern to the same root")
	}
	if s.Len() != before {
		t.Errorf("reparse added %d nodes", s.Len()-before)
	}

	c, err := p.Parse(ctx, []byte("x = 1\ny = 3\n"), "py")
	if err != nil {
		t.Fatal(err)
	}
	if c.Root == a.Root {
		t.Error("different sources share a root")
	}
	if added := s.Len() - before; added == 0 || added > 8 {
		t.Errorf("a one-token change added %d nodes", added)
	}
}

func TestParser_Go(t *testing.T) {
	s := graph.NewStore()
	f, err := NewParser(s).Parse(context.Background(), []byte("package main\n\nfunc main() {}\n"), "go")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.TypeName(s.Resolve(f.Root).Type); got != "source_file" {
		t.Errorf("root type = %q", got)
	}
	if !strings.Contains(graph.Sprint(s, f.Root), "(function_declaration") {
		t.Error("missing function_declaration")
	}
}

func TestParser_SyntaxErrors(t *testing.T) {
	s := graph.NewStore()
	f, err := NewParser(s).Parse(context.Background(), []byte("function (\n"), "js")
	if err != nil {
		t.Fatal(err)
	}
	if !f.HasErrors {
		t.Error("expected HasErrors")
	}
}

func TestParser_UnknownLanguage(t *testing.T) {
	if _, err := NewParser(graph.NewStore()).Parse(context.Background(), nil, "cobol"); err == nil {
		t.Error("expected error")
	}
}

func TestParser_DiffRenamedFunction(t *testing.T) {
	s := graph.NewStore()
	p := NewParser(s)
	ctx := context.Background()

	before, err := p.Parse(ctx, []byte("function greet(name) {\n  return \"hi \" + name;\n}\nfunction other() { return 1; }\n"), "js")
	if err != nil {
		t.Fatal(err)
	}
	after, err := p.Parse(ctx, []byte("function welcome(name) {\n  return \"hi \" + name;\n}\nfunction other() { return 1; }\n"), "js")
	if err != nil {
		t.Fatal(err)
	}

	r := diff.Diff(s, before.Root, after.Root, diff.DefaultConfig())
	if r.ScriptErr != nil {
		t.Fatal(r.ScriptErr)
	}
	if c := actions.Count(r.Actions); c != (actions.Counts{Updates: 1}) {
		t.Fatalf("counts = %+v\n%s", c, r.FormatText())
	}
	rec := actions.Resolve(s, r.Actions[0])
	if rec.OldLabel != "greet" || rec.Label != "welcome" {
		t.Errorf("update %q -> %q", rec.OldLabel, rec.Label)
	}

	got, err := actions.Apply(s, before.Root, r.Actions)
	if err != nil {
		t.Fatal(err)
	}
	if got != after.Root {
		t.Error("replayed script does not give the new tree")
	}
}
