// Package actions derives an edit script from a mapping between two
// decompressed trees and replays scripts on shared trees.
//
// A path is the sequence of child positions leading from the root to a
// node in the tree as it stands when the action is applied; the root has
// the empty path.
package actions

import (
	"errors"
	"fmt"

	"hyperdiff/graph"
)

var (
	// ErrRootsUnmapped is returned when the two roots are not mapped to
	// each other.
	ErrRootsUnmapped = errors.New("roots are not mapped to each other")

	// ErrUnresolvedAlignment is returned when a move would place a node
	// inside its own subtree.
	ErrUnresolvedAlignment = errors.New("unresolved child alignment")

	// ErrBadPath is returned by Apply for a path that does not exist.
	ErrBadPath = errors.New("path does not exist")
)

// Kind identifies an edit operation.
type Kind uint8

const (
	Insert Kind = iota + 1
	Delete
	Update
	Move
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Update:
		return "update"
	case Move:
		return "move"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{Insert, Delete, Update, Move} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown action kind %q", b)
}

// Action is one edit.
//
// Insert places either a whole shared subtree (Node is set) or a single
// childless node of Type and Label at Path. Delete removes the subtree
// at Path. Update replaces the label at Path with Label. Move detaches
// the subtree at From and reattaches it at Path, where Path is resolved
// after the detach.
type Action struct {
	Kind     Kind
	Path     []int
	From     []int
	Node     graph.NodeID
	Type     graph.Type
	Label    graph.Label
	OldLabel graph.Label
}

// IsSubtreeInsert reports whether a is an Insert of a whole subtree.
func (a Action) IsSubtreeInsert() bool {
	return a.Kind == Insert && a.Node != graph.InvalidNode
}

// Counts tallies a script by kind.
type Counts struct {
	Inserts int `json:"inserts"`
	Deletes int `json:"deletes"`
	Updates int `json:"updates"`
	Moves   int `json:"moves"`
}

// Total returns the number of actions.
func (c Counts) Total() int {
	return c.Inserts + c.Deletes + c.Updates + c.Moves
}

// Count tallies script.
func Count(script []Action) Counts {
	var c Counts
	for _, a := range script {
		switch a.Kind {
		case Insert:
			c.Inserts++
		case Delete:
			c.Deletes++
		case Update:
			c.Updates++
		case Move:
			c.Moves++
		}
	}
	return c
}

func childPath(parent []int, k int) []int {
	out := make([]int, len(parent)+1)
	copy(out, parent)
	out[len(parent)] = k
	return out
}
