// Package filematch decides which parser handles a file via path glob rules.
package filematch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Rule maps path patterns to a language. Exclude patterns win over Paths.
type Rule struct {
	Lang    string   `yaml:"lang"`
	Paths   []string `yaml:"paths"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// RulesConfig is the YAML layout of a rules file.
type RulesConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Matcher matches file paths to languages. The first matching rule wins.
type Matcher struct {
	rules []Rule
}

// DefaultRules covers the languages the parse package supports.
func DefaultRules() []Rule {
	vendored := []string{"**/node_modules/**", "**/vendor/**", "**/.git/**"}
	return []Rule{
		{Lang: "javascript", Paths: []string{"**/*.{js,jsx,mjs,cjs,ts,tsx}"}, Exclude: append([]string{"**/*.min.js"}, vendored...)},
		{Lang: "python", Paths: []string{"**/*.py"}, Exclude: vendored},
		{Lang: "go", Paths: []string{"**/*.go"}, Exclude: vendored},
	}
}

// NewMatcher creates a matcher from rules.
func NewMatcher(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Default returns a matcher over DefaultRules.
func Default() *Matcher {
	return NewMatcher(DefaultRules())
}

// LoadRules loads rules from a YAML file.
func LoadRules(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

// LoadRulesOrDefault loads rules from path, or returns Default if the
// file doesn't exist.
func LoadRulesOrDefault(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) (*Matcher, error) {
	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	for _, r := range config.Rules {
		for _, p := range append(r.Paths, r.Exclude...) {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("rule %s: invalid pattern %q", r.Lang, p)
			}
		}
	}
	return &Matcher{rules: config.Rules}, nil
}

// SaveRules writes the rules to a YAML file, creating its directory.
func (m *Matcher) SaveRules(path string) error {
	data, err := yaml.Marshal(&RulesConfig{Rules: m.rules})
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing rules file: %w", err)
	}
	return nil
}

// Rules returns the rules in priority order.
func (m *Matcher) Rules() []Rule {
	return m.rules
}

// Lang returns the language of path, or "" when no rule matches.
// path uses forward slashes.
func (m *Matcher) Lang(path string) string {
	for _, r := range m.rules {
		if anyMatch(r.Exclude, path) {
			continue
		}
		if anyMatch(r.Paths, path) {
			return r.Lang
		}
	}
	return ""
}

// MatchPaths groups paths by language, dropping unmatched ones. Each
// group is sorted.
func (m *Matcher) MatchPaths(paths []string) map[string][]string {
	result := make(map[string][]string)
	for _, path := range paths {
		if lang := m.Lang(path); lang != "" {
			result[lang] = append(result[lang], path)
		}
	}
	for _, group := range result {
		sort.Strings(group)
	}
	return result
}

// AddRule adds or replaces the rule for lang.
func (m *Matcher) AddRule(r Rule) {
	for i := range m.rules {
		if m.rules[i].Lang == r.Lang {
			m.rules[i] = r
			return
		}
	}
	m.rules = append(m.rules, r)
}

// RemoveRule removes the rule for lang.
func (m *Matcher) RemoveRule(lang string) bool {
	for i := range m.rules {
		if m.rules[i].Lang == lang {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return true
		}
	}
	return false
}

func anyMatch(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
