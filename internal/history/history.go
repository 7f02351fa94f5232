// Package history records merged coverage runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

//go:embed schema.sql
var schemaSQL string

// ErrNoRuns is returned by Latest when nothing has been recorded.
var ErrNoRuns = errors.New("history: no runs recorded")

// Run is one recorded merge.
type Run struct {
	ID           string
	CreatedAt    time.Time
	Environments []string
	Files        int
	Statements   float64
	Branches     float64
	Functions    float64
	Lines        float64
	Passed       bool
}

// NewRun builds a run from a project summary.
func NewRun(envs []string, files int, s coverage.Summary, passed bool) Run {
	return Run{
		Environments: envs,
		Files:        files,
		Statements:   s.Statements.Pct,
		Branches:     s.Branches.Pct,
		Functions:    s.Functions.Pct,
		Lines:        s.Lines.Pct,
		Passed:       passed,
	}
}

// Pct returns the recorded percentage of category c.
func (r Run) Pct(c coverage.Category) float64 {
	switch c {
	case coverage.CategoryStatements:
		return r.Statements
	case coverage.CategoryBranches:
		return r.Branches
	case coverage.CategoryFunctions:
		return r.Functions
	default:
		return r.Lines
	}
}

// Store manages the run history database.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// New opens (and creates) the database at dsn. ":memory:" keeps it in memory.
func New(dsn string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	inMemory := dsn == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, clock: clk}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run, assigning its ID and timestamp.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	now := s.clock.Now().UTC()
	run.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	run.CreatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, environments, files, statements, branches, functions, lines, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		now.Format(time.RFC3339Nano),
		strings.Join(run.Environments, ","),
		run.Files,
		run.Statements,
		run.Branches,
		run.Functions,
		run.Lines,
		run.Passed,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, created_at, environments, files, statements, branches, functions, lines, passed
		FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run.
func (s *Store) Latest(ctx context.Context) (Run, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run       Run
		createdAt string
		envs      string
	)
	err := rows.Scan(&run.ID, &createdAt, &envs, &run.Files,
		&run.Statements, &run.Branches, &run.Functions, &run.Lines, &run.Passed)
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s has a bad timestamp: %w", run.ID, err)
	}
	if envs != "" {
		run.Environments = strings.Split(envs, ",")
	}
	return run, nil
}
