// Package main provides the hyperdiff CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hyperdiff/config"
	"hyperdiff/diff"
	"hyperdiff/filematch"
	"hyperdiff/matchers"
	"hyperdiff/similarity"
)

// app holds the state shared by all commands.
type app struct {
	configPath string
	rulesPath  string
	verbose    bool

	// flags receives command-line values; only flags the user set are
	// copied over the loaded configuration.
	flags    diff.Config
	policy   string
	metric   string
	labelMet string

	cfg     diff.Config
	log     *slog.Logger
	matcher *filematch.Matcher
}

// configFlag binds one pipeline knob to a command-line flag.
type configFlag struct {
	name  string
	apply func(a *app) error
}

func (a *app) configFlags(fs *pflag.FlagSet) []configFlag {
	d := diff.DefaultConfig()
	f := &a.flags
	fs.IntVar(&f.TopDown.MinHeight, "min-height", d.TopDown.MinHeight, "Minimum height of isomorphic subtrees matched top-down")
	fs.StringVar(&a.policy, "policy", d.TopDown.Policy.String(), "Ambiguity policy for top-down matching (greedy, stable)")
	fs.IntVar(&f.BottomUp.MaxLeaves, "max-leaves", d.BottomUp.MaxLeaves, "Leaf count above which the large similarity threshold applies")
	fs.Float64Var(&f.BottomUp.SimThresholdLarge, "sim-threshold-large", d.BottomUp.SimThresholdLarge, "Container similarity threshold for large subtrees")
	fs.Float64Var(&f.BottomUp.SimThresholdSmall, "sim-threshold-small", d.BottomUp.SimThresholdSmall, "Container similarity threshold for small subtrees")
	fs.IntVar(&f.BottomUp.SizeThreshold, "size-threshold", d.BottomUp.SizeThreshold, "Subtree size below which the exact last-chance matcher runs (0 disables)")
	fs.StringVar(&a.metric, "metric", d.BottomUp.Metric.String(), "Container similarity metric (dice, chawathe, jaccard)")
	fs.Float64Var(&f.Leaf.LabelSimThreshold, "label-threshold", d.Leaf.LabelSimThreshold, "Minimum label similarity for leaf matching")
	fs.StringVar(&a.labelMet, "label-metric", d.Leaf.LabelMetric.String(), "Label similarity metric (qgram, levenshtein)")
	p, dp := &f.Performance, d.Performance
	fs.BoolVar(&p.UseLazyDecompression, "lazy", dp.UseLazyDecompression, "Expand trees lazily")
	fs.BoolVar(&p.UseRangedSimilarity, "ranged-similarity", dp.UseRangedSimilarity, "Count common descendants with range queries")
	fs.BoolVar(&p.CalculateScript, "script", dp.CalculateScript, "Compute the edit script")
	fs.BoolVar(&p.EnableLabelCaching, "label-cache", dp.EnableLabelCaching, "Cache label profiles")
	fs.BoolVar(&p.EnableTypeGrouping, "type-grouping", dp.EnableTypeGrouping, "Index container candidates by type")
	fs.BoolVar(&p.StatementLevelIteration, "statement-level", dp.StatementLevelIteration, "Match at statement granularity")
	fs.BoolVar(&p.EnableLeafCountPrecomputation, "leaf-counts", dp.EnableLeafCountPrecomputation, "Precompute leaf counts")

	set := func(fn func(c *diff.Config)) func(a *app) error {
		return func(a *app) error { fn(&a.cfg); return nil }
	}
	return []configFlag{
		{"min-height", set(func(c *diff.Config) { c.TopDown.MinHeight = f.TopDown.MinHeight })},
		{"policy", func(a *app) error {
			v, err := matchers.ParsePolicy(a.policy)
			a.cfg.TopDown.Policy = v
			return err
		}},
		{"max-leaves", set(func(c *diff.Config) { c.BottomUp.MaxLeaves = f.BottomUp.MaxLeaves })},
		{"sim-threshold-large", set(func(c *diff.Config) { c.BottomUp.SimThresholdLarge = f.BottomUp.SimThresholdLarge })},
		{"sim-threshold-small", set(func(c *diff.Config) { c.BottomUp.SimThresholdSmall = f.BottomUp.SimThresholdSmall })},
		{"size-threshold", set(func(c *diff.Config) { c.BottomUp.SizeThreshold = f.BottomUp.SizeThreshold })},
		{"metric", func(a *app) error {
			v, err := similarity.ParseMetric(a.metric)
			a.cfg.BottomUp.Metric = v
			return err
		}},
		{"label-threshold", set(func(c *diff.Config) { c.Leaf.LabelSimThreshold = f.Leaf.LabelSimThreshold })},
		{"label-metric", func(a *app) error {
			v, err := similarity.ParseLabelMetric(a.labelMet)
			a.cfg.Leaf.LabelMetric = v
			return err
		}},
		{"lazy", set(func(c *diff.Config) { c.Performance.UseLazyDecompression = p.UseLazyDecompression })},
		{"ranged-similarity", set(func(c *diff.Config) { c.Performance.UseRangedSimilarity = p.UseRangedSimilarity })},
		{"script", set(func(c *diff.Config) { c.Performance.CalculateScript = p.CalculateScript })},
		{"label-cache", set(func(c *diff.Config) { c.Performance.EnableLabelCaching = p.EnableLabelCaching })},
		{"type-grouping", set(func(c *diff.Config) { c.Performance.EnableTypeGrouping = p.EnableTypeGrouping })},
		{"statement-level", set(func(c *diff.Config) { c.Performance.StatementLevelIteration = p.StatementLevelIteration })},
		{"leaf-counts", set(func(c *diff.Config) { c.Performance.EnableLeafCountPrecomputation = p.EnableLeafCountPrecomputation })},
	}
}

// setup resolves the configuration: file, then environment, then flags.
func (a *app) setup(cmd *cobra.Command, bindings []configFlag) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadOrEnv(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	for _, b := range bindings {
		if !cmd.Flags().Changed(b.name) {
			continue
		}
		if err := b.apply(a); err != nil {
			return fmt.Errorf("--%s: %w", b.name, err)
		}
	}
	a.cfg.Logger = a.log

	if a.rulesPath != "" {
		a.matcher, err = filematch.LoadRules(a.rulesPath)
	} else {
		a.matcher = filematch.Default()
	}
	if err != nil {
		return err
	}
	a.log.Debug("configuration resolved", "config", a.configPath, "rules", a.rulesPath)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "hyperdiff",
		Short: "Structural diffs of syntax trees",
		Long: `hyperdiff parses source files with Tree-sitter into a shared, hash-consed
node store and computes a mapping and an edit script (insert, delete,
update, move) between two versions.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.rulesPath, "rules", "", "YAML rules mapping path globs to languages")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Log pipeline details to stderr")
	bindings := a.configFlags(pf)
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.setup(cmd, bindings)
	}

	root.AddCommand(
		a.diffCmd(),
		a.batchCmd(),
		a.gitCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.runsCmd(),
		a.configCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
