package actions

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"hyperdiff/graph"
)

// Record is the resolved, serializable form of an Action.
type Record struct {
	Kind     Kind   `json:"kind"`
	Path     []int  `json:"path"`
	From     []int  `json:"from,omitempty"`
	Type     string `json:"type,omitempty"`
	Label    string `json:"label,omitempty"`
	OldLabel string `json:"old_label,omitempty"`
	Tree     string `json:"tree,omitempty"`
}

// Resolve turns a into a Record using the names in v.
func Resolve(v graph.View, a Action) Record {
	r := Record{Kind: a.Kind, Path: a.Path, From: a.From}
	if a.IsSubtreeInsert() {
		n := v.Resolve(a.Node)
		r.Type = v.TypeName(n.Type)
		r.Label = labelText(v, n.Label)
		r.Tree = graph.Sprint(v, a.Node)
		return r
	}
	r.Type = v.TypeName(a.Type)
	r.Label = labelText(v, a.Label)
	if a.Kind == Update {
		r.OldLabel = labelText(v, a.OldLabel)
	}
	return r
}

// Records resolves a whole script.
func Records(v graph.View, script []Action) []Record {
	out := make([]Record, len(script))
	for i, a := range script {
		out[i] = Resolve(v, a)
	}
	return out
}

func labelText(v graph.View, l graph.Label) string {
	if l == graph.NoLabel {
		return ""
	}
	return v.LabelText(l)
}

// PathString renders a path as /0/2/1. The root is /.
func PathString(p []int) string {
	if len(p) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, k := range p {
		sb.WriteByte('/')
		sb.WriteString(strconv.Itoa(k))
	}
	return sb.String()
}

// LabelDiff renders the character difference between two labels with
// [-removed-] and {+added+} markers.
func LabelDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		default:
			sb.WriteString(d.Text)
		}
	}
	return sb.String()
}

// Format renders a single action on one line.
func Format(v graph.View, a Action) string {
	r := Resolve(v, a)
	switch a.Kind {
	case Insert:
		if r.Tree != "" {
			return fmt.Sprintf("insert %s at %s", r.Tree, PathString(r.Path))
		}
		return fmt.Sprintf("insert-node %s%s at %s", r.Type, quoted(r.Label), PathString(r.Path))
	case Delete:
		return fmt.Sprintf("delete %s%s at %s", r.Type, quoted(r.Label), PathString(r.Path))
	case Update:
		return fmt.Sprintf("update %s %s at %s", r.Type, LabelDiff(r.OldLabel, r.Label), PathString(r.Path))
	case Move:
		return fmt.Sprintf("move %s %s -> %s", r.Type, PathString(r.From), PathString(r.Path))
	default:
		return a.Kind.String()
	}
}

func quoted(label string) string {
	if label == "" {
		return ""
	}
	return " " + strconv.Quote(label)
}

// Write renders script one action per line.
func Write(w io.Writer, v graph.View, script []Action) error {
	for _, a := range script {
		if _, err := fmt.Fprintln(w, Format(v, a)); err != nil {
			return err
		}
	}
	return nil
}
