// Package gitio reads source files at Git revisions using go-git.
package gitio

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"hyperdiff/filematch"
)

// FileInfo contains a file read from a commit.
type FileInfo struct {
	Path    string
	Content []byte
	Lang    string
}

// Change is a file that differs between two commits. From is empty for
// added files and To for deleted ones.
type Change struct {
	From, To string
	Lang     string
}

// Path returns the path of the file on whichever side has it.
func (c Change) Path() string {
	if c.To != "" {
		return c.To
	}
	return c.From
}

// Repository wraps a go-git repository.
type Repository struct {
	repo    *git.Repository
	path    string
	matcher *filematch.Matcher
}

// Open opens an existing Git repository. Languages are detected with m,
// or with filematch.Default when m is nil.
func Open(repoPath string, m *filematch.Matcher) (*Repository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	if m == nil {
		m = filematch.Default()
	}
	return &Repository{repo: repo, path: repoPath, matcher: m}, nil
}

// ResolveRef resolves a branch, tag, revision expression (HEAD~1) or
// commit hash to a commit.
func (r *Repository) ResolveRef(refName string) (*object.Commit, error) {
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(refName),
		plumbing.NewTagReferenceName(refName),
	} {
		ref, err := r.repo.Reference(name, true)
		if err != nil {
			continue
		}
		commit, err := r.commitOf(ref.Hash())
		if err != nil {
			return nil, fmt.Errorf("getting commit: %w", err)
		}
		return commit, nil
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(refName))
	if err != nil {
		return nil, fmt.Errorf("resolving ref %q: not a branch, tag, revision or commit hash", refName)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("getting commit: %w", err)
	}
	return commit, nil
}

// commitOf peels annotated tags.
func (r *Repository) commitOf(h plumbing.Hash) (*object.Commit, error) {
	if tag, err := r.repo.TagObject(h); err == nil {
		return tag.Commit()
	}
	return r.repo.CommitObject(h)
}

// GetFile returns a file from a commit.
func (r *Repository) GetFile(commit *object.Commit, path string) (*FileInfo, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}

	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("getting file %s: %w", path, err)
	}

	reader, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	return &FileInfo{
		Path:    path,
		Content: content,
		Lang:    r.matcher.Lang(path),
	}, nil
}

// ChangedFiles lists the files in a supported language that differ
// between two commits, ordered by path.
func (r *Repository) ChangedFiles(base, head *object.Commit) ([]Change, error) {
	baseTree, err := base.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting base tree: %w", err)
	}
	headTree, err := head.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting head tree: %w", err)
	}

	changes, err := baseTree.Diff(headTree)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}

	var out []Change
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		var c Change
		switch action {
		case merkletrie.Insert:
			c.To = change.To.Name
		case merkletrie.Delete:
			c.From = change.From.Name
		case merkletrie.Modify:
			c.From, c.To = change.From.Name, change.To.Name
		}
		if c.Lang = r.matcher.Lang(c.Path()); c.Lang != "" {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out, nil
}

// GetCommitHash returns the hash of a commit as a string.
func GetCommitHash(commit *object.Commit) string {
	return commit.Hash.String()
}
