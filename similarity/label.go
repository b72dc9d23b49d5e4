package similarity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agext/levenshtein"

	"hyperdiff/graph"
)

// LabelMetric selects a normalized string similarity.
type LabelMetric int

const (
	// QGram compares padded trigram profiles.
	QGram LabelMetric = iota
	// Levenshtein uses normalized edit distance.
	Levenshtein
)

func (m LabelMetric) String() string {
	if m == Levenshtein {
		return "levenshtein"
	}
	return "qgram"
}

// ParseLabelMetric parses a label metric name.
func ParseLabelMetric(s string) (LabelMetric, error) {
	switch strings.ToLower(s) {
	case "qgram", "":
		return QGram, nil
	case "levenshtein":
		return Levenshtein, nil
	default:
		return QGram, fmt.Errorf("unknown label metric %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m LabelMetric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LabelMetric) UnmarshalText(b []byte) error {
	v, err := ParseLabelMetric(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

const qgramSize = 3

// Profile is the trigram multiset of a string padded with q-1 '#' on
// each side.
type Profile struct {
	grams map[string]int
	total int
}

// NewProfile builds the trigram profile of s.
func NewProfile(s string) Profile {
	pad := strings.Repeat("#", qgramSize-1)
	r := []rune(pad + s + pad)
	p := Profile{grams: make(map[string]int, len(r))}
	for i := 0; i+qgramSize <= len(r); i++ {
		p.grams[string(r[i:i+qgramSize])]++
		p.total++
	}
	return p
}

// Similarity returns 1 - (q-gram distance / maximal distance).
func (p Profile) Similarity(o Profile) float64 {
	if p.total+o.total == 0 {
		return 1
	}
	dist := 0
	for g, n := range p.grams {
		m := o.grams[g]
		if n > m {
			dist += n - m
		} else {
			dist += m - n
		}
	}
	for g, m := range o.grams {
		if _, ok := p.grams[g]; !ok {
			dist += m
		}
	}
	return 1 - float64(dist)/float64(p.total+o.total)
}

// QGramSimilarity compares two strings by trigram profile.
func QGramSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return NewProfile(a).Similarity(NewProfile(b))
}

// LevenshteinSimilarity returns the normalized edit-distance similarity.
func LevenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}

// Labels compares interned labels of one store, optionally memoizing
// trigram profiles per label. It is safe for concurrent use.
type Labels struct {
	view   graph.View
	metric LabelMetric
	cache  bool

	mu       sync.Mutex
	profiles map[graph.Label]Profile
}

// NewLabels creates a label comparer.
func NewLabels(v graph.View, metric LabelMetric, cache bool) *Labels {
	return &Labels{
		view:     v,
		metric:   metric,
		cache:    cache,
		profiles: make(map[graph.Label]Profile),
	}
}

// Similarity compares two labels. Equal labels score 1, a labelled node
// against an unlabelled one scores 0.
func (l *Labels) Similarity(a, b graph.Label) float64 {
	if a == b {
		return 1
	}
	if a == graph.NoLabel || b == graph.NoLabel {
		return 0
	}
	if l.metric == Levenshtein {
		return LevenshteinSimilarity(l.view.LabelText(a), l.view.LabelText(b))
	}
	return l.profile(a).Similarity(l.profile(b))
}

// Text compares two raw strings with the configured metric.
func (l *Labels) Text(a, b string) float64 {
	if l.metric == Levenshtein {
		return LevenshteinSimilarity(a, b)
	}
	return QGramSimilarity(a, b)
}

func (l *Labels) profile(label graph.Label) Profile {
	if !l.cache {
		return NewProfile(l.view.LabelText(label))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.profiles[label]; ok {
		return p
	}
	p := NewProfile(l.view.LabelText(label))
	l.profiles[label] = p
	return p
}

// CachedProfiles returns the number of memoized profiles.
func (l *Labels) CachedProfiles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.profiles)
}
