package filematch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLang(t *testing.T) {
	m := Default()
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"internal/gitio/gitio.go", "go"},
		{"src/app.js", "javascript"},
		{"web/components/button.tsx", "javascript"},
		{"scripts/build.py", "python"},
		{"dist/bundle.min.js", ""},
		{"node_modules/left-pad/index.js", ""},
		{"vendor/github.com/x/y.go", ""},
		{"README.md", ""},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := m.Lang(tc.path); got != tc.want {
				t.Errorf("Lang(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestFirstRuleWins(t *testing.T) {
	m := NewMatcher([]Rule{
		{Lang: "python", Paths: []string{"tools/**"}},
		{Lang: "go", Paths: []string{"**/*.go"}},
	})
	if got := m.Lang("tools/gen.go"); got != "python" {
		t.Errorf("Lang = %q, want python", got)
	}
	if got := m.Lang("cmd/main.go"); got != "go" {
		t.Errorf("Lang = %q, want go", got)
	}
}

func TestMatchPaths(t *testing.T) {
	result := Default().MatchPaths([]string{"b.go", "a.go", "x.py", "notes.txt"})
	if len(result) != 2 {
		t.Fatalf("groups = %v", result)
	}
	if g := result["go"]; len(g) != 2 || g[0] != "a.go" || g[1] != "b.go" {
		t.Errorf("go group = %v", g)
	}
	if g := result["python"]; len(g) != 1 {
		t.Errorf("python group = %v", g)
	}
}

func TestAddRemoveRule(t *testing.T) {
	m := NewMatcher(nil)
	m.AddRule(Rule{Lang: "go", Paths: []string{"*.go"}})
	m.AddRule(Rule{Lang: "go", Paths: []string{"**/*.go"}})
	if len(m.Rules()) != 1 || m.Rules()[0].Paths[0] != "**/*.go" {
		t.Fatalf("rules = %+v", m.Rules())
	}
	if !m.RemoveRule("go") {
		t.Error("RemoveRule returned false")
	}
	if m.RemoveRule("go") {
		t.Error("second RemoveRule returned true")
	}
}

func TestSaveLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "languages.yaml")
	if err := Default().SaveRules(path); err != nil {
		t.Fatalf("SaveRules failed: %v", err)
	}
	m, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if len(m.Rules()) != len(DefaultRules()) {
		t.Fatalf("rules = %+v", m.Rules())
	}
	if got := m.Lang("pkg/x.go"); got != "go" {
		t.Errorf("Lang = %q", got)
	}
}

func TestLoadRulesOrDefault(t *testing.T) {
	m, err := LoadRulesOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Lang("a.py") != "python" {
		t.Error("expected default rules")
	}
}

func TestLoadRules_InvalidPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - lang: go\n    paths: [\"src/[a\"]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
