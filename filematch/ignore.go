package filematch

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFiles are read from the root of a scanned directory.
var IgnoreFiles = []string{".gitignore", ".hyperdiffignore"}

type ignorePattern struct {
	glob    string
	negated bool
	dirOnly bool
}

// Ignore evaluates gitignore-style patterns. Later patterns override
// earlier ones, and "!" re-includes.
type Ignore struct {
	patterns []ignorePattern
}

// NewIgnore compiles lines of gitignore syntax.
func NewIgnore(lines ...string) *Ignore {
	ig := &Ignore{}
	for _, line := range lines {
		ig.Add(line)
	}
	return ig
}

// LoadIgnore reads IgnoreFiles from dir. Missing files are skipped.
// Version control directories are always ignored.
func LoadIgnore(dir string) (*Ignore, error) {
	ig := NewIgnore(".git/", ".hg/", ".svn/")
	for _, name := range IgnoreFiles {
		if err := ig.loadFile(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return ig, nil
}

func (ig *Ignore) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ig.Add(sc.Text())
	}
	return sc.Err()
}

// Add compiles one line. Blank lines and comments are skipped.
func (ig *Ignore) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	var p ignorePattern
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	anchored := strings.HasPrefix(line, "/")
	line = strings.TrimPrefix(line, "/")
	// Unanchored names without a slash match at any depth.
	if !anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}
	p.glob = line
	ig.patterns = append(ig.patterns, p)
}

// Match reports whether the slash-separated relative path is ignored.
func (ig *Ignore) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	ignored := false
	for _, p := range ig.patterns {
		var hit bool
		if p.dirOnly && !isDir {
			hit = matchParent(p.glob, path)
		} else {
			hit = matchGlob(p.glob, path)
		}
		if hit {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchGlob also matches paths below a matching directory.
func matchGlob(glob, path string) bool {
	if ok, _ := doublestar.Match(glob, path); ok {
		return true
	}
	ok, _ := doublestar.Match(glob+"/**", path)
	return ok
}

func matchParent(glob, path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(glob, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}
