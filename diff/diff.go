// Package diff runs the structural diff pipeline over two trees of a
// shared node store: decompression, top-down matching, bottom-up
// matching, leaf matching and edit-script generation.
package diff

import (
	"log/slog"
	"time"

	"hyperdiff/actions"
	"hyperdiff/decompress"
	"hyperdiff/graph"
	"hyperdiff/mapping"
	"hyperdiff/matchers"
	"hyperdiff/similarity"
)

// Timings records the wall time of each pipeline stage.
type Timings struct {
	Decompression     time.Duration `json:"decompression"`
	TopDown           time.Duration `json:"top_down"`
	BottomUp          time.Duration `json:"bottom_up"`
	Leaf              time.Duration `json:"leaf"`
	ScriptPreparation time.Duration `json:"script_preparation"`
	ScriptGeneration  time.Duration `json:"script_generation"`
}

// Total sums all stages.
func (t Timings) Total() time.Duration {
	return t.Decompression + t.TopDown + t.BottomUp + t.Leaf + t.ScriptPreparation + t.ScriptGeneration
}

// Stats counts the pairs each matcher linked.
type Stats struct {
	TopDown    int `json:"top_down"`
	BottomUp   int `json:"bottom_up"`
	LastChance int `json:"last_chance"`
	Leaf       int `json:"leaf"`
}

// Result is the outcome of one diff.
type Result struct {
	View         graph.View
	Src, Dst     decompress.Tree
	Mapping      *mapping.Store
	MappingCount int

	// Actions is nil when the script was not requested or failed, in
	// which case ScriptErr tells which.
	Actions   []actions.Action
	ScriptErr error

	Timings Timings
	Stats   Stats
}

// Differ runs diffs over one store. It is safe for concurrent use as
// long as the store is.
type Differ struct {
	view   graph.View
	cfg    Config
	labels *similarity.Labels
	log    *slog.Logger
}

// New creates a Differ reading from v.
func New(v graph.View, cfg Config) *Differ {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Differ{
		view:   v,
		cfg:    cfg,
		labels: similarity.NewLabels(v, cfg.Leaf.LabelMetric, cfg.Performance.EnableLabelCaching),
		log:    log,
	}
}

// Config returns the configuration of d.
func (d *Differ) Config() Config {
	return d.cfg
}

// Diff computes the mapping and, if configured, the edit script from src
// to dst.
func (d *Differ) Diff(src, dst graph.NodeID) *Result {
	cfg := d.cfg
	r := &Result{View: d.view}

	start := time.Now()
	lazy := cfg.Performance.UseLazyDecompression
	r.Src = decompress.New(d.view, src, lazy)
	r.Dst = decompress.New(d.view, dst, lazy)
	r.Mapping = mapping.New(r.Src.Len(), r.Dst.Len())
	r.Timings.Decompression = time.Since(start)

	start = time.Now()
	r.Stats.TopDown = matchers.TopDown(r.Src, r.Dst, r.Mapping, cfg.topDown())
	r.Timings.TopDown = time.Since(start)

	start = time.Now()
	bu := matchers.BottomUp(r.Src, r.Dst, r.Mapping, cfg.bottomUp(d.labels))
	r.Stats.BottomUp, r.Stats.LastChance = bu.Containers, bu.LastChance
	r.Timings.BottomUp = time.Since(start)

	start = time.Now()
	r.Stats.Leaf = matchers.Leaves(r.Src, r.Dst, r.Mapping, cfg.leaf(d.labels))
	r.Timings.Leaf = time.Since(start)

	r.MappingCount = r.Mapping.Len()

	if cfg.Performance.CalculateScript {
		d.script(r)
	}

	d.log.Debug("diff complete",
		"src_nodes", r.Src.Len(),
		"dst_nodes", r.Dst.Len(),
		"mapped", r.MappingCount,
		"actions", len(r.Actions),
		"decompression", r.Timings.Decompression,
		"top_down", r.Timings.TopDown,
		"bottom_up", r.Timings.BottomUp,
		"leaf", r.Timings.Leaf,
		"script", r.Timings.ScriptPreparation+r.Timings.ScriptGeneration,
	)
	return r
}

func (d *Differ) script(r *Result) {
	start := time.Now()
	g, err := actions.NewGenerator(r.Src, r.Dst, r.Mapping)
	r.Timings.ScriptPreparation = time.Since(start)
	if err != nil {
		r.ScriptErr = err
		d.log.Warn("edit script preparation failed", "error", err)
		return
	}

	start = time.Now()
	script, err := g.Run()
	r.Timings.ScriptGeneration = time.Since(start)
	if err != nil {
		r.ScriptErr = err
		d.log.Warn("edit script generation failed", "error", err)
		return
	}
	if script == nil {
		script = []actions.Action{}
	}
	r.Actions = script
}

// Diff runs a single diff with cfg.
func Diff(v graph.View, src, dst graph.NodeID, cfg Config) *Result {
	return New(v, cfg).Diff(src, dst)
}
