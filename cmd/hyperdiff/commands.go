package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"

	"hyperdiff/config"
	"hyperdiff/diff"
	"hyperdiff/filematch"
	"hyperdiff/graph"
	"hyperdiff/internal/gitio"
	"hyperdiff/pack"
	"hyperdiff/parse"
	"hyperdiff/store"
)

type outputFlags struct {
	json bool
	db   string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&o.db, "db", "", "Record trees and run summaries in this SQLite database")
}

// source is one side of a file pair.
type source struct {
	name    string
	content []byte
}

// filePair is a file to diff; a nil side means added or deleted.
type filePair struct {
	path     string
	lang     string
	src, dst *source
}

func (a *app) diffCmd() *cobra.Command {
	var (
		out  outputFlags
		lang string
	)
	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Diff two source files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			after, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			if lang == "" {
				lang = a.matcher.Lang(filepath.ToSlash(args[1]))
			}
			if lang == "" {
				return fmt.Errorf("cannot detect the language of %s, use --lang", args[1])
			}
			return a.run(cmd, out, []filePair{{
				path: args[1],
				lang: lang,
				src:  &source{name: args[0], content: before},
				dst:  &source{name: args[1], content: after},
			}}, 1)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Language of both files (javascript, python, go)")
	out.register(cmd)
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		out  outputFlags
		jobs int
	)
	cmd := &cobra.Command{
		Use:   "batch <base-dir> <head-dir>",
		Short: "Diff every changed source file between two directory trees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := a.scanDir(args[0])
			if err != nil {
				return err
			}
			head, err := a.scanDir(args[1])
			if err != nil {
				return err
			}

			var pairs []filePair
			for path, lang := range base {
				if _, ok := head[path]; !ok {
					pairs = append(pairs, filePair{path: path, lang: lang, src: &source{name: filepath.Join(args[0], path)}})
				}
			}
			for path, lang := range head {
				if _, ok := base[path]; !ok {
					pairs = append(pairs, filePair{path: path, lang: lang, dst: &source{name: filepath.Join(args[1], path)}})
					continue
				}
				before, err := os.ReadFile(filepath.Join(args[0], path))
				if err != nil {
					return err
				}
				after, err := os.ReadFile(filepath.Join(args[1], path))
				if err != nil {
					return err
				}
				if bytes.Equal(before, after) {
					continue
				}
				pairs = append(pairs, filePair{
					path: path,
					lang: lang,
					src:  &source{name: filepath.Join(args[0], path), content: before},
					dst:  &source{name: filepath.Join(args[1], path), content: after},
				})
			}
			return a.run(cmd, out, pairs, jobs)
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Number of concurrent diffs (0 for unlimited)")
	out.register(cmd)
	return cmd
}

// scanDir maps slash-separated relative paths of supported files to their
// language, honoring the ignore files at root.
func (a *app) scanDir(root string) (map[string]string, error) {
	ig, err := filematch.LoadIgnore(root)
	if err != nil {
		return nil, fmt.Errorf("reading ignore files: %w", err)
	}
	files := make(map[string]string)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ig.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if lang := a.matcher.Lang(rel); lang != "" {
			files[rel] = lang
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

func (a *app) gitCmd() *cobra.Command {
	var (
		out      outputFlags
		repoPath string
		jobs     int
	)
	cmd := &cobra.Command{
		Use:   "git <base-ref> <head-ref> [path...]",
		Short: "Diff source files between two Git revisions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := gitio.Open(repoPath, a.matcher)
			if err != nil {
				return err
			}
			base, err := repo.ResolveRef(args[0])
			if err != nil {
				return err
			}
			head, err := repo.ResolveRef(args[1])
			if err != nil {
				return err
			}
			a.log.Debug("resolved revisions", "base", gitio.GetCommitHash(base), "head", gitio.GetCommitHash(head))

			var changes []gitio.Change
			explicit := len(args) > 2
			if explicit {
				seen := make(map[string]bool)
				for _, path := range args[2:] {
					if seen[path] {
						continue
					}
					seen[path] = true
					changes = append(changes, gitio.Change{From: path, To: path, Lang: a.matcher.Lang(path)})
				}
			} else if changes, err = repo.ChangedFiles(base, head); err != nil {
				return err
			}

			// An explicit path missing on one side is an added or
			// deleted file.
			load := func(commit *object.Commit, ref, path string) (*source, error) {
				if path == "" {
					return nil, nil
				}
				fi, err := repo.GetFile(commit, path)
				if explicit && errors.Is(err, object.ErrFileNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return &source{name: ref + ":" + path, content: fi.Content}, nil
			}

			var pairs []filePair
			for _, c := range changes {
				if c.Lang == "" {
					return fmt.Errorf("cannot detect the language of %s", c.Path())
				}
				p := filePair{path: c.Path(), lang: c.Lang}
				if p.src, err = load(base, args[0], c.From); err != nil {
					return err
				}
				if p.dst, err = load(head, args[1], c.To); err != nil {
					return err
				}
				if p.src == nil && p.dst == nil {
					return fmt.Errorf("%s exists in neither %s nor %s", c.Path(), args[0], args[1])
				}
				pairs = append(pairs, p)
			}
			return a.run(cmd, out, pairs, jobs)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "Path to the Git repository")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Number of concurrent diffs (0 for unlimited)")
	out.register(cmd)
	return cmd
}

// fileResult is the outcome of one filePair. Result is nil for added and
// deleted files.
type fileResult struct {
	filePair
	result *diff.Result
}

// run parses pairs into one store, diffs the modified ones concurrently
// and prints the outcome.
func (a *app) run(cmd *cobra.Command, out outputFlags, pairs []filePair, jobs int) error {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].path < pairs[j].path })

	s := graph.NewStore()
	parser := parse.NewParser(s)
	ctx := cmd.Context()

	var (
		batch []diff.Pair
		slots []int
	)
	for i, p := range pairs {
		if p.src == nil || p.dst == nil {
			continue
		}
		src, err := a.parseSource(ctx, parser, p.src, p.lang)
		if err != nil {
			return err
		}
		dst, err := a.parseSource(ctx, parser, p.dst, p.lang)
		if err != nil {
			return err
		}
		slots = append(slots, i)
		batch = append(batch, diff.Pair{Name: p.path, Src: src, Dst: dst})
	}

	results := make([]fileResult, len(pairs))
	for i, p := range pairs {
		results[i].filePair = p
	}
	outcomes, err := diff.New(s, a.cfg).Batch(ctx, batch, jobs)
	if err != nil {
		return err
	}
	for k, o := range outcomes {
		results[slots[k]].result = o.Result
	}

	if out.db != "" {
		if err := a.record(out.db, s, results); err != nil {
			return err
		}
	}
	if out.json {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	writeText(cmd.OutOrStdout(), results)
	return nil
}

func (a *app) parseSource(ctx context.Context, p *parse.Parser, src *source, lang string) (graph.NodeID, error) {
	f, err := p.Parse(ctx, src.content, lang)
	if err != nil {
		return graph.InvalidNode, fmt.Errorf("parsing %s: %w", src.name, err)
	}
	if f.HasErrors {
		a.log.Warn("syntax errors, diffing the recovered tree", "file", src.name)
	}
	return f.Root, nil
}

func (a *app) record(dbPath string, s *graph.Store, results []fileResult) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, fr := range results {
		r := fr.result
		if r == nil {
			continue
		}
		for _, side := range []struct {
			name string
			id   graph.NodeID
		}{
			{fr.src.name, r.Src.Original(r.Src.Root())},
			{fr.dst.name, r.Dst.Original(r.Dst.Root())},
		} {
			written, err := db.SaveTree(tx, s, side.id)
			if err != nil {
				return err
			}
			if err := db.SetRoot(tx, side.name, s.Resolve(side.id).Digest); err != nil {
				return err
			}
			a.log.Debug("saved tree", "name", side.name, "new_nodes", written)
		}
		run, err := store.NewRun(fr.src.name, fr.dst.name, r, a.cfg)
		if err != nil {
			return err
		}
		if err := db.RecordRun(tx, run); err != nil {
			return err
		}
		a.log.Info("recorded run", "id", run.ID, "file", fr.path)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func writeText(w io.Writer, results []fileResult) {
	for i, fr := range results {
		switch {
		case fr.src == nil:
			fmt.Fprintf(w, "A %s\n", fr.path)
		case fr.dst == nil:
			fmt.Fprintf(w, "D %s\n", fr.path)
		default:
			if len(results) > 1 {
				fmt.Fprintf(w, "M %s\n", fr.path)
			}
			fmt.Fprint(w, fr.result.FormatText())
			if i < len(results)-1 {
				fmt.Fprintln(w)
			}
		}
	}
}

type fileReport struct {
	Path   string       `json:"path"`
	Status string       `json:"status"`
	Diff   *diff.Report `json:"diff,omitempty"`
}

func writeJSON(w io.Writer, results []fileResult) error {
	reports := make([]fileReport, len(results))
	for i, fr := range results {
		rep := fileReport{Path: fr.path, Status: "modified"}
		switch {
		case fr.src == nil:
			rep.Status = "added"
		case fr.dst == nil:
			rep.Status = "deleted"
		default:
			d := fr.result.Report()
			d.Name = fr.path
			rep.Diff = &d
		}
		reports[i] = rep
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func (a *app) exportCmd() *cobra.Command {
	var (
		output string
		lang   string
	)
	cmd := &cobra.Command{
		Use:   "export <file>...",
		Short: "Parse files and export their trees as a pack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := graph.NewStore()
			parser := parse.NewParser(s)
			var roots []pack.Root
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				l := lang
				if l == "" {
					l = a.matcher.Lang(filepath.ToSlash(path))
				}
				id, err := a.parseSource(cmd.Context(), parser, &source{name: path, content: content}, l)
				if err != nil {
					return err
				}
				roots = append(roots, pack.Root{Name: path, ID: id})
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating pack: %w", err)
			}
			if err := pack.Write(f, s, roots); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d trees (%d nodes) to %s\n", len(roots), s.Len(), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "trees.hdpack", "Pack file to write")
	cmd.Flags().StringVar(&lang, "lang", "", "Language of all files (default: detect from path)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var (
		out    outputFlags
		doDiff bool
	)
	cmd := &cobra.Command{
		Use:   "import <pack>",
		Short: "List the trees of a pack, or diff its first two trees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening pack: %w", err)
			}
			defer f.Close()

			s := graph.NewStore()
			roots, err := pack.Read(f, s)
			if err != nil {
				return err
			}

			if !doDiff {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%-16s  %8s  %s\n", "DIGEST", "NODES", "NAME")
				for _, r := range roots {
					fmt.Fprintf(w, "%-16s  %8d  %s\n", r.Digest.Short(), s.Resolve(r.ID).Size, r.Name)
				}
				return nil
			}
			if len(roots) < 2 {
				return fmt.Errorf("pack holds %d trees, need 2 to diff", len(roots))
			}
			r := diff.New(s, a.cfg).Diff(roots[0].ID, roots[1].ID)
			results := []fileResult{{
				filePair: filePair{path: roots[1].Name, src: &source{name: roots[0].Name}, dst: &source{name: roots[1].Name}},
				result:   r,
			}}
			if out.db != "" {
				if err := a.record(out.db, s, results); err != nil {
					return err
				}
			}
			if out.json {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			writeText(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&doDiff, "diff", false, "Diff the first tree against the second")
	out.register(cmd)
	return cmd
}

func (a *app) runsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded diff runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s  %7s  %7s  %s\n", "ID", "MAPPED", "ACTIONS", "FILES")
			for _, r := range runs {
				fmt.Fprintf(w, "%-36s  %7d  %7d  %s -> %s\n",
					r.ID, r.Summary.Mapped, r.Summary.Actions.Total(), r.SrcName, r.DstName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "hyperdiff.db", "SQLite database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Write(cmd.OutOrStdout(), a.cfg)
		},
	}
}
