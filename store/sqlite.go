// Package store persists interned syntax trees and diff runs in SQLite.
//
// Nodes are keyed by their BLAKE3 digest, so saving a revision only
// writes the subtrees no earlier revision already stored.
package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"hyperdiff/cas"
	"hyperdiff/graph"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrRootNotFound   = errors.New("root not found")
	ErrRunNotFound    = errors.New("run not found")
	ErrCorruptNode    = errors.New("stored node does not match its digest")
	ErrMalformedChild = errors.New("malformed child digest list")
	ErrBadDigest      = errors.New("stored digest has the wrong length")
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
	path string
}

// OpenDir opens or creates hyperdiff.db inside dir.
func OpenDir(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}
	return Open(filepath.Join(dir, "hyperdiff.db"))
}

// Open opens a database at the given path.
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	db := &DB{conn: conn, path: dbPath}

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// BeginTx starts a new transaction.
func (db *DB) BeginTx() (*sql.Tx, error) {
	return db.conn.Begin()
}

// ----- Nodes -----

// SaveTree stores the subtree under root and returns how many nodes were
// new to the database. Shared subtrees are visited once.
func (db *DB) SaveTree(tx *sql.Tx, v graph.View, root graph.NodeID) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ts := cas.NowMs()
	seen := make(map[graph.NodeID]bool)
	types := make(map[graph.Type]bool)
	written := 0

	stack := []graph.NodeID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		n := v.Resolve(id)
		if !types[n.Type] {
			types[n.Type] = true
			if _, err := tx.Exec(
				`INSERT INTO node_types (name, flags) VALUES (?, ?)
				 ON CONFLICT(name) DO UPDATE SET flags = flags | excluded.flags`,
				v.TypeName(n.Type), int(v.TypeFlags(n.Type)),
			); err != nil {
				return written, fmt.Errorf("inserting node type: %w", err)
			}
		}

		children := make([]byte, 0, len(n.Children)*cas.DigestSize)
		for _, c := range n.Children {
			d := v.Resolve(c).Digest
			children = append(children, d[:]...)
			stack = append(stack, c)
		}

		hasLabel := 0
		if n.HasLabel() {
			hasLabel = 1
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO nodes (digest, type, has_label, label, children, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			n.Digest[:], v.TypeName(n.Type), hasLabel, v.LabelText(n.Label), children, ts,
		)
		if err != nil {
			return written, fmt.Errorf("inserting node: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			written++
		}
	}
	return written, nil
}

// HasNode reports whether a node with digest d is stored.
func (db *DB) HasNode(d cas.Digest) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM nodes WHERE digest = ?`, d[:]).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying node: %w", err)
	}
	return true, nil
}

// CountNodes returns the number of stored nodes.
func (db *DB) CountNodes() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting nodes: %w", err)
	}
	return n, nil
}

type storedNode struct {
	typ      string
	flags    graph.TypeFlags
	hasLabel bool
	label    string
	children []cas.Digest
}

func (db *DB) getNode(d cas.Digest) (*storedNode, error) {
	var (
		sn       storedNode
		flags    int
		children []byte
	)
	err := db.conn.QueryRow(
		`SELECT n.type, t.flags, n.has_label, n.label, n.children
		 FROM nodes n JOIN node_types t ON t.name = n.type
		 WHERE n.digest = ?`, d[:],
	).Scan(&sn.typ, &flags, &sn.hasLabel, &sn.label, &children)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, d.Short())
	}
	if err != nil {
		return nil, fmt.Errorf("querying node: %w", err)
	}
	if len(children)%cas.DigestSize != 0 {
		return nil, fmt.Errorf("%w: node %s", ErrMalformedChild, d.Short())
	}
	sn.flags = graph.TypeFlags(flags)
	for off := 0; off < len(children); off += cas.DigestSize {
		c, _ := cas.DigestFromBytes(children[off : off+cas.DigestSize]) // length checked above
		sn.children = append(sn.children, c)
	}
	return &sn, nil
}

// LoadTree interns the stored subtree with digest root into s. Nodes s
// already holds are not read again. The interned digest of every loaded
// node is checked against its key.
func (db *DB) LoadTree(s *graph.Store, root cas.Digest) (graph.NodeID, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	type frame struct {
		digest   cas.Digest
		node     *storedNode
		next     int
		children []graph.NodeID
	}
	var result graph.NodeID
	stack := []*frame{{digest: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.node == nil {
			if id, ok := s.Lookup(top.digest); ok {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					return id, nil
				}
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, id)
				continue
			}
			sn, err := db.getNode(top.digest)
			if err != nil {
				return graph.InvalidNode, err
			}
			top.node = sn
		}
		if top.next < len(top.node.children) {
			stack = append(stack, &frame{digest: top.node.children[top.next]})
			top.next++
			continue
		}
		stack = stack[:len(stack)-1]

		sn := top.node
		label := graph.NoLabel
		if sn.hasLabel {
			label = s.InternLabel(sn.label)
		}
		id := s.Intern(s.InternType(sn.typ, sn.flags), label, top.children)
		if got := s.Resolve(id).Digest; got != top.digest {
			return graph.InvalidNode, fmt.Errorf("%w: %s interned as %s", ErrCorruptNode, top.digest.Short(), got.Short())
		}
		if len(stack) == 0 {
			result = id
		} else {
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, id)
		}
	}
	return result, nil
}

// ----- Roots -----

// Root is a named tree, e.g. a file at a revision.
type Root struct {
	Name      string
	Digest    cas.Digest
	UpdatedAt int64
}

// SetRoot points name at digest, replacing any previous target.
func (db *DB) SetRoot(tx *sql.Tx, name string, d cas.Digest) error {
	_, err := tx.Exec(
		`INSERT INTO roots (name, digest, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET digest = excluded.digest, updated_at = excluded.updated_at`,
		name, d[:], cas.NowMs(),
	)
	if err != nil {
		return fmt.Errorf("setting root: %w", err)
	}
	return nil
}

// GetRoot returns the root called name.
func (db *DB) GetRoot(name string) (*Root, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	r := &Root{Name: name}
	var digest []byte
	err := db.conn.QueryRow(
		`SELECT digest, updated_at FROM roots WHERE name = ?`, name,
	).Scan(&digest, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRootNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying root: %w", err)
	}
	if r.Digest, err = scanDigest(digest); err != nil {
		return nil, fmt.Errorf("root %q: %w", name, err)
	}
	return r, nil
}

// ListRoots returns roots whose name starts with prefix, ordered by name.
func (db *DB) ListRoots(prefix string) ([]*Root, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(
		`SELECT name, digest, updated_at FROM roots WHERE name LIKE ? ESCAPE '\' ORDER BY name`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("querying roots: %w", err)
	}
	defer rows.Close()

	var roots []*Root
	for rows.Next() {
		r := &Root{}
		var digest []byte
		if err := rows.Scan(&r.Name, &digest, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning root: %w", err)
		}
		d, err := scanDigest(digest)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", r.Name, err)
		}
		r.Digest = d
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanDigest(b []byte) (cas.Digest, error) {
	d, ok := cas.DigestFromBytes(b)
	if !ok {
		return cas.Digest{}, fmt.Errorf("%w: %d bytes", ErrBadDigest, len(b))
	}
	return d, nil
}
