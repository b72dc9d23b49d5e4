// Package config loads pipeline configuration from YAML files and
// HYPERDIFF_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"hyperdiff/diff"
	"hyperdiff/matchers"
	"hyperdiff/similarity"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HYPERDIFF_"

// Load reads a YAML file on top of diff.DefaultConfig. Keys absent from
// the file keep their defaults; unknown keys are an error.
func Load(path string) (diff.Config, error) {
	cfg := diff.DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Decode decodes YAML into cfg, leaving fields the document omits as they are.
func Decode(data []byte, cfg *diff.Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes cfg as YAML.
func Save(path string, cfg diff.Config) error {
	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Write encodes cfg as YAML to w.
func Write(w io.Writer, cfg diff.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return enc.Close()
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (diff.Config, error) {
	cfg := diff.DefaultConfig()
	err := ApplyEnv(&cfg)
	return cfg, err
}

// LoadOrEnv loads path when it is non-empty, then applies environment
// overrides.
func LoadOrEnv(path string) (diff.Config, error) {
	cfg := diff.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	err := ApplyEnv(&cfg)
	return cfg, err
}

// ApplyEnv overrides cfg from HYPERDIFF_* variables. Malformed numbers
// and booleans are ignored; unknown enum names are an error.
func ApplyEnv(cfg *diff.Config) error {
	cfg.TopDown.MinHeight = getEnvInt("TOP_DOWN_MIN_HEIGHT", cfg.TopDown.MinHeight)
	if v := getEnv("TOP_DOWN_POLICY", ""); v != "" {
		p, err := matchers.ParsePolicy(v)
		if err != nil {
			return fmt.Errorf("%sTOP_DOWN_POLICY: %w", EnvPrefix, err)
		}
		cfg.TopDown.Policy = p
	}

	b := &cfg.BottomUp
	b.MaxLeaves = getEnvInt("MAX_LEAVES", b.MaxLeaves)
	b.SimThresholdLarge = getEnvFloat("SIM_THRESHOLD_LARGE", b.SimThresholdLarge)
	b.SimThresholdSmall = getEnvFloat("SIM_THRESHOLD_SMALL", b.SimThresholdSmall)
	b.SizeThreshold = getEnvInt("SIZE_THRESHOLD", b.SizeThreshold)
	if v := getEnv("METRIC", ""); v != "" {
		m, err := similarity.ParseMetric(v)
		if err != nil {
			return fmt.Errorf("%sMETRIC: %w", EnvPrefix, err)
		}
		b.Metric = m
	}

	cfg.Leaf.LabelSimThreshold = getEnvFloat("LABEL_SIM_THRESHOLD", cfg.Leaf.LabelSimThreshold)
	if v := getEnv("LABEL_METRIC", ""); v != "" {
		m, err := similarity.ParseLabelMetric(v)
		if err != nil {
			return fmt.Errorf("%sLABEL_METRIC: %w", EnvPrefix, err)
		}
		cfg.Leaf.LabelMetric = m
	}

	p := &cfg.Performance
	p.UseLazyDecompression = getEnvBool("LAZY_DECOMPRESSION", p.UseLazyDecompression)
	p.UseRangedSimilarity = getEnvBool("RANGED_SIMILARITY", p.UseRangedSimilarity)
	p.CalculateScript = getEnvBool("CALCULATE_SCRIPT", p.CalculateScript)
	p.EnableLabelCaching = getEnvBool("LABEL_CACHING", p.EnableLabelCaching)
	p.EnableTypeGrouping = getEnvBool("TYPE_GROUPING", p.EnableTypeGrouping)
	p.StatementLevelIteration = getEnvBool("STATEMENT_LEVEL", p.StatementLevelIteration)
	p.EnableLeafCountPrecomputation = getEnvBool("LEAF_COUNT_PRECOMPUTATION", p.EnableLeafCountPrecomputation)
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := getEnv(key, ""); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := getEnv(key, ""); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := getEnv(key, ""); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
