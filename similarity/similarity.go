// Package similarity scores candidate node pairs. Structural metrics
// measure the overlap of already-mapped descendants, label metrics
// compare the text of two labels.
package similarity

import (
	"fmt"
	"strings"

	"hyperdiff/decompress"
	"hyperdiff/mapping"
)

// Metric selects a descendant-overlap coefficient.
type Metric int

const (
	// Dice is 2·common / (|desc(a)| + |desc(b)|).
	Dice Metric = iota
	// Chawathe is common / max(|desc(a)|, |desc(b)|).
	Chawathe
	// Jaccard is common / |desc(a) ∪ desc(b)|.
	Jaccard
)

func (m Metric) String() string {
	switch m {
	case Dice:
		return "dice"
	case Chawathe:
		return "chawathe"
	case Jaccard:
		return "jaccard"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric parses a metric name as produced by String.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "dice", "":
		return Dice, nil
	case "chawathe":
		return Chawathe, nil
	case "jaccard":
		return Jaccard, nil
	default:
		return Dice, fmt.Errorf("unknown similarity metric %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(b []byte) error {
	v, err := ParseMetric(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// CommonDescendants counts descendants of a whose partner is a
// descendant of b. Descendants of b are a contiguous range, so the test
// is a bounds check and b's subtree is never materialized.
func CommonDescendants(src, dst decompress.Tree, m *mapping.Store, a, b int) int {
	lo, hi := dst.FirstDescendant(b), b
	common := 0
	for s := src.FirstDescendant(a); s < a; s++ {
		if d, ok := m.Dst(s); ok && d >= lo && d < hi {
			common++
		}
	}
	return common
}

// CommonDescendantsSet is CommonDescendants computed by collecting the
// descendants of b into a set first.
func CommonDescendantsSet(src, dst decompress.Tree, m *mapping.Store, a, b int) int {
	inB := make(map[int]struct{}, dst.DescendantsCount(b))
	for _, d := range dst.Descendants(b) {
		inB[d] = struct{}{}
	}
	common := 0
	for _, s := range src.Descendants(a) {
		if d, ok := m.Dst(s); ok {
			if _, hit := inB[d]; hit {
				common++
			}
		}
	}
	return common
}

// Coefficient applies metric to a common-descendant count and the two
// descendant counts. It is 0 when both nodes are leaves.
func Coefficient(metric Metric, common, na, nb int) float64 {
	switch metric {
	case Chawathe:
		max := na
		if nb > max {
			max = nb
		}
		if max == 0 {
			return 0
		}
		return float64(common) / float64(max)
	case Jaccard:
		union := na + nb - common
		if union == 0 {
			return 0
		}
		return float64(common) / float64(union)
	default:
		if na+nb == 0 {
			return 0
		}
		return 2 * float64(common) / float64(na+nb)
	}
}

// Score computes metric for the pair (a, b). ranged selects the
// range-check implementation of the common-descendant count.
func Score(metric Metric, src, dst decompress.Tree, m *mapping.Store, a, b int, ranged bool) float64 {
	var common int
	if ranged {
		common = CommonDescendants(src, dst, m, a, b)
	} else {
		common = CommonDescendantsSet(src, dst, m, a, b)
	}
	return Coefficient(metric, common, src.DescendantsCount(a), dst.DescendantsCount(b))
}
