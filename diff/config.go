package diff

import (
	"log/slog"

	"hyperdiff/matchers"
	"hyperdiff/similarity"
)

// TopDownConfig configures isomorphic subtree matching.
type TopDownConfig struct {
	MinHeight int             `yaml:"min_height"`
	Policy    matchers.Policy `yaml:"policy"`
}

// BottomUpConfig configures container matching.
type BottomUpConfig struct {
	MaxLeaves         int               `yaml:"max_leaves"`
	SimThresholdLarge float64           `yaml:"sim_threshold_large"`
	SimThresholdSmall float64           `yaml:"sim_threshold_small"`
	SizeThreshold     int               `yaml:"size_threshold"`
	Metric            similarity.Metric `yaml:"metric"`
}

// LeafConfig configures label matching of leftover leaves.
type LeafConfig struct {
	LabelSimThreshold float64                `yaml:"label_sim_threshold"`
	LabelMetric       similarity.LabelMetric `yaml:"label_metric"`
}

// PerformanceConfig toggles optimizations. None of them changes what a
// correct mapping is, only how it is computed.
type PerformanceConfig struct {
	UseLazyDecompression          bool `yaml:"use_lazy_decompression"`
	UseRangedSimilarity           bool `yaml:"use_ranged_similarity"`
	CalculateScript               bool `yaml:"calculate_script"`
	EnableLabelCaching            bool `yaml:"enable_label_caching"`
	EnableTypeGrouping            bool `yaml:"enable_type_grouping"`
	StatementLevelIteration       bool `yaml:"statement_level_iteration"`
	EnableLeafCountPrecomputation bool `yaml:"enable_leaf_count_precomputation"`
}

// Config holds every knob of the pipeline.
type Config struct {
	TopDown     TopDownConfig     `yaml:"top_down"`
	BottomUp    BottomUpConfig    `yaml:"bottom_up"`
	Leaf        LeafConfig        `yaml:"leaf"`
	Performance PerformanceConfig `yaml:"performance"`

	// Logger receives stage timings at debug level. Nil discards.
	Logger *slog.Logger `yaml:"-" json:"-"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		TopDown: TopDownConfig{
			MinHeight: 1,
			Policy:    matchers.Greedy,
		},
		BottomUp: BottomUpConfig{
			MaxLeaves:         4,
			SimThresholdLarge: 0.6,
			SimThresholdSmall: 0.4,
			SizeThreshold:     1000,
			Metric:            similarity.Dice,
		},
		Leaf: LeafConfig{
			LabelSimThreshold: 0.5,
			LabelMetric:       similarity.QGram,
		},
		Performance: PerformanceConfig{
			UseLazyDecompression: true,
			UseRangedSimilarity:  true,
			CalculateScript:      true,
			EnableLabelCaching:   true,
		},
	}
}

func (c Config) topDown() matchers.TopDownOptions {
	return matchers.TopDownOptions{
		MinHeight: c.TopDown.MinHeight,
		Policy:    c.TopDown.Policy,
		Metric:    c.BottomUp.Metric,
	}
}

func (c Config) bottomUp(labels *similarity.Labels) matchers.BottomUpOptions {
	return matchers.BottomUpOptions{
		MaxLeaves:               c.BottomUp.MaxLeaves,
		SimThresholdLarge:       c.BottomUp.SimThresholdLarge,
		SimThresholdSmall:       c.BottomUp.SimThresholdSmall,
		SizeThreshold:           c.BottomUp.SizeThreshold,
		Metric:                  c.BottomUp.Metric,
		Labels:                  labels,
		RangedSimilarity:        c.Performance.UseRangedSimilarity,
		TypeGrouping:            c.Performance.EnableTypeGrouping,
		LeafCountPrecomputation: c.Performance.EnableLeafCountPrecomputation,
		StatementLevel:          c.Performance.StatementLevelIteration,
	}
}

func (c Config) leaf(labels *similarity.Labels) matchers.LeafOptions {
	return matchers.LeafOptions{
		Threshold:      c.Leaf.LabelSimThreshold,
		Labels:         labels,
		StatementLevel: c.Performance.StatementLevelIteration,
	}
}
