package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hyperdiff/cas"
	"hyperdiff/diff"
)

// Run is the persisted summary of one diff.
type Run struct {
	ID        string
	CreatedAt int64
	SrcName   string
	DstName   string
	Src, Dst  cas.Digest
	// Config is the canonical JSON of the diff configuration.
	Config  string
	Summary diff.Summary
	Total   time.Duration
	Error   string
}

// NewRun summarizes r under a fresh run id.
func NewRun(srcName, dstName string, r *diff.Result, cfg diff.Config) (*Run, error) {
	config, err := cas.CanonicalJSON(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	run := &Run{
		ID:        uuid.NewString(),
		CreatedAt: cas.NowMs(),
		SrcName:   srcName,
		DstName:   dstName,
		Src:       r.View.Resolve(r.Src.Original(r.Src.Root())).Digest,
		Dst:       r.View.Resolve(r.Dst.Original(r.Dst.Root())).Digest,
		Config:    string(config),
		Summary:   r.Summary(),
		Total:     r.Timings.Total(),
	}
	if r.ScriptErr != nil {
		run.Error = r.ScriptErr.Error()
	}
	return run, nil
}

// RecordRun inserts run.
func (db *DB) RecordRun(tx *sql.Tx, run *Run) error {
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	s := run.Summary
	_, err := tx.Exec(
		`INSERT INTO runs (id, created_at, src_name, dst_name, src_digest, dst_digest, config,
		   src_nodes, dst_nodes, mapped, inserts, deletes, updates, moves, total_ns, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.SrcName, run.DstName, run.Src[:], run.Dst[:], run.Config,
		s.SrcNodes, s.DstNodes, s.Mapped,
		s.Actions.Inserts, s.Actions.Deletes, s.Actions.Updates, s.Actions.Moves,
		int64(run.Total), run.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

const runColumns = `id, created_at, src_name, dst_name, src_digest, dst_digest, config,
	src_nodes, dst_nodes, mapped, inserts, deletes, updates, moves, total_ns, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		src, dst []byte
		total    int64
	)
	s := &run.Summary
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.SrcName, &run.DstName, &src, &dst, &run.Config,
		&s.SrcNodes, &s.DstNodes, &s.Mapped,
		&s.Actions.Inserts, &s.Actions.Deletes, &s.Actions.Updates, &s.Actions.Moves,
		&total, &run.Error); err != nil {
		return nil, err
	}
	var err error
	if run.Src, err = scanDigest(src); err != nil {
		return nil, fmt.Errorf("run %s source: %w", run.ID, err)
	}
	if run.Dst, err = scanDigest(dst); err != nil {
		return nil, fmt.Errorf("run %s destination: %w", run.ID, err)
	}
	run.Total = time.Duration(total)
	return &run, nil
}

// GetRun returns the run with the given id.
func (db *DB) GetRun(id string) (*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	run, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, at most limit of them
// (all when limit <= 0).
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
