// Package parse interns Tree-sitter syntax trees for JavaScript, Python
// and Go into a shared graph.Store.
package parse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"hyperdiff/graph"
)

// Language names accepted by Parse.
const (
	JavaScript = "javascript"
	Python     = "python"
	Go         = "go"
)

// NormalizeLang maps aliases to a language name. Unknown names return "".
func NormalizeLang(lang string) string {
	switch strings.ToLower(lang) {
	case "js", "jsx", "ts", "tsx", "mjs", "cjs", "javascript", "typescript":
		return JavaScript
	case "py", "python":
		return Python
	case "go", "golang":
		return Go
	default:
		return ""
	}
}

// File describes an interned syntax tree.
type File struct {
	Root graph.NodeID
	Lang string
	// HasErrors is set when Tree-sitter recovered from syntax errors; the
	// tree then contains ERROR nodes.
	HasErrors bool
}

// Parser wraps one Tree-sitter parser per language. Tree-sitter parsers
// are not reentrant, so Parse calls are serialized.
type Parser struct {
	store *graph.Store

	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

// NewParser creates a parser interning into s.
func NewParser(s *graph.Store) *Parser {
	langs := map[string]*sitter.Language{
		JavaScript: javascript.GetLanguage(),
		Python:     python.GetLanguage(),
		Go:         golang.GetLanguage(),
	}
	p := &Parser{store: s, parsers: make(map[string]*sitter.Parser, len(langs))}
	for name, lang := range langs {
		sp := sitter.NewParser()
		sp.SetLanguage(lang)
		p.parsers[name] = sp
	}
	return p
}

// Store returns the store trees are interned into.
func (p *Parser) Store() *graph.Store {
	return p.store
}

// Parse parses content as lang and interns the syntax tree.
func (p *Parser) Parse(ctx context.Context, content []byte, lang string) (*File, error) {
	name := NormalizeLang(lang)
	if name == "" {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}

	p.mu.Lock()
	tree, err := p.parsers[name].ParseCtx(ctx, nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	return &File{
		Root:      p.intern(root, content),
		Lang:      name,
		HasErrors: root.HasError(),
	}, nil
}

// isStatement tells which node types count as statements for
// statement-level matching.
func isStatement(typ string) bool {
	return strings.HasSuffix(typ, "_statement") ||
		strings.HasSuffix(typ, "_declaration") ||
		strings.HasSuffix(typ, "_definition")
}

func (p *Parser) typeOf(n *sitter.Node, root bool) graph.Type {
	typ := n.Type()
	var flags graph.TypeFlags
	if !n.IsNamed() {
		flags |= graph.FlagHidden
	}
	if root || isStatement(typ) {
		flags |= graph.FlagStatement
	}
	return p.store.InternType(typ, flags)
}

// intern walks the syntax tree in post-order with an explicit stack.
// Named leaves carry their source text as label; anonymous tokens are
// identified by their type alone.
func (p *Parser) intern(root *sitter.Node, content []byte) graph.NodeID {
	type frame struct {
		node     *sitter.Node
		next     int
		count    int
		children []graph.NodeID
	}
	var result graph.NodeID
	stack := []*frame{{node: root, count: int(root.ChildCount())}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < top.count {
			c := top.node.Child(top.next)
			top.next++
			if c == nil {
				continue
			}
			stack = append(stack, &frame{node: c, count: int(c.ChildCount())})
			continue
		}
		stack = stack[:len(stack)-1]

		n := top.node
		typ := p.typeOf(n, len(stack) == 0)
		label := graph.NoLabel
		if top.count == 0 && n.IsNamed() {
			label = p.store.InternLabel(n.Content(content))
		}
		id := p.store.Intern(typ, label, top.children)
		if len(stack) == 0 {
			result = id
		} else {
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, id)
		}
	}
	return result
}
