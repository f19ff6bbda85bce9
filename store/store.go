// Package store persists merged tables, board yield and skip reports in
// Postgres or SQLite so reports can be produced without re-reading the raw
// result directories.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/nonsonwune/tofhir_db/merger"
	"github.com/nonsonwune/tofhir_db/migrations"
	"github.com/nonsonwune/tofhir_db/models"
)

// ErrNotFound is returned when a board or column has no stored rows
var ErrNotFound = errors.New("not found")

type Store struct {
	db     *sql.DB
	driver string
}

// Run is one pipeline execution recorded in the runs table
type Run struct {
	ID           string
	StartedAt    time.Time
	BaseDir      string
	Directories  int
	Boards       int
	Skipped      int
	OverallYield float64
}

// BoardStatus is the stored state of one test for one board
type BoardStatus struct {
	Test string
	Pass bool
	Rows int
}

// Open connects to the database and makes sure the schema exists
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.InitSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveMerged replaces the stored rows of one merged table
func (s *Store) SaveMerged(ctx context.Context, t *models.Table) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM test_results WHERE test = $1`, t.Test); err != nil {
			return fmt.Errorf("failed to clear %s: %w", t.Test, err)
		}
		return insertTable(ctx, tx, t)
	})
}

// SaveYield replaces the stored board yield
func (s *Store) SaveYield(ctx context.Context, yt *models.YieldTable) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceYield(ctx, tx, yt)
	})
}

// SaveSkips replaces the stored skip report
func (s *Store) SaveSkips(ctx context.Context, skips []models.Skip) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return replaceSkips(ctx, tx, skips)
	})
}

func (s *Store) RecordRun(ctx context.Context, run Run) error {
	return insertRun(ctx, s.db, run)
}

// SaveRun replaces every merged table, the yield and the skip report with the results of one
// run and records the run, all in one transaction. Tables of tests absent from the run are removed.
func (s *Store) SaveRun(ctx context.Context, tables []*models.Table, yt *models.YieldTable, skips []models.Skip, run Run) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM test_results`); err != nil {
			return fmt.Errorf("failed to clear test results: %w", err)
		}
		for _, t := range tables {
			if err := insertTable(ctx, tx, t); err != nil {
				return err
			}
		}
		if err := replaceYield(ctx, tx, yt); err != nil {
			return err
		}
		if err := replaceSkips(ctx, tx, skips); err != nil {
			return err
		}
		return insertRun(ctx, tx, run)
	})
}

func insertTable(ctx context.Context, tx *sql.Tx, t *models.Table) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO test_results (test, sn, row_index, tester_id, source_dir, fields, pass)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	rowIndex := make(map[int]int)
	for _, rec := range t.Records {
		fields, err := encodeFields(t.Columns, rec)
		if err != nil {
			return err
		}
		pass := sql.NullBool{Bool: rec.Pass, Valid: t.Evaluated}
		idx := rowIndex[rec.SN]
		rowIndex[rec.SN]++

		if _, err := stmt.ExecContext(ctx, t.Test, rec.SN, idx, rec.TesterID, rec.SourceDir, fields, pass); err != nil {
			return fmt.Errorf("failed to insert %s row for SN %d: %w", t.Test, rec.SN, err)
		}
	}

	logrus.WithFields(logrus.Fields{"test": t.Test, "rows": len(t.Records)}).Debug("Stored merged table")
	return nil
}

// Values are stored as strings so NaN fit statistics survive the JSON encoding
func encodeFields(columns []string, rec models.TestRecord) (string, error) {
	fields := make(map[string]string, len(columns))
	for _, col := range columns {
		if v, ok := rec.Values[col]; ok {
			fields[col] = merger.FormatFloat(v)
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(data), nil
}

func replaceYield(ctx context.Context, tx *sql.Tx, yt *models.YieldTable) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM board_yield`); err != nil {
		return fmt.Errorf("failed to clear board yield: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO board_yield (sn, test, position, pass) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range yt.Boards {
		for pos, test := range yt.Tests {
			pass, measured := b.Passed(test)
			if !measured {
				continue
			}
			if _, err := stmt.ExecContext(ctx, b.SN, test, pos, pass); err != nil {
				return fmt.Errorf("failed to insert yield for SN %d: %w", b.SN, err)
			}
		}
	}
	return nil
}

func replaceSkips(ctx context.Context, tx *sql.Tx, skips []models.Skip) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM skipped_entries`); err != nil {
		return fmt.Errorf("failed to clear skipped entries: %w", err)
	}
	for _, sk := range skips {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO skipped_entries (dir, test, kind, reason) VALUES ($1, $2, $3, $4)`,
			sk.Dir, sk.Test, sk.Kind, sk.Reason); err != nil {
			return fmt.Errorf("failed to insert skipped entry: %w", err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRun(ctx context.Context, db execer, run Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, base_dir, directories, boards, skipped, overall_yield)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339), run.BaseDir,
		run.Directories, run.Boards, run.Skipped, run.OverallYield)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs first
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, base_dir, directories, boards, skipped, overall_yield
		FROM runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		if err := rows.Scan(&run.ID, &started, &run.BaseDir, &run.Directories, &run.Boards, &run.Skipped, &run.OverallYield); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("invalid start time for run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) LoadYield(ctx context.Context) (*models.YieldTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sn, test, position, pass FROM board_yield ORDER BY sn, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to load yield: %w", err)
	}
	defer rows.Close()

	yt := &models.YieldTable{}
	positions := make(map[string]int)
	for rows.Next() {
		var sn, pos int
		var test string
		var pass bool
		if err := rows.Scan(&sn, &test, &pos, &pass); err != nil {
			return nil, err
		}
		positions[test] = pos
		if n := len(yt.Boards); n == 0 || yt.Boards[n-1].SN != sn {
			yt.Boards = append(yt.Boards, models.BoardYield{SN: sn, Pass: make(map[string]bool)})
		}
		yt.Boards[len(yt.Boards)-1].Pass[test] = pass
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for test := range positions {
		yt.Tests = append(yt.Tests, test)
	}
	sort.Slice(yt.Tests, func(i, j int) bool {
		return positions[yt.Tests[i]] < positions[yt.Tests[j]]
	})
	return yt, nil
}

// LoadBoard returns the stored status of every measured test of one board
func (s *Store) LoadBoard(ctx context.Context, sn int) ([]BoardStatus, error) {
	counts := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `SELECT test, COUNT(*) FROM test_results WHERE sn = $1 GROUP BY test`, sn)
	if err != nil {
		return nil, fmt.Errorf("failed to load board %d: %w", sn, err)
	}
	for rows.Next() {
		var test string
		var n int
		if err := rows.Scan(&test, &n); err != nil {
			rows.Close()
			return nil, err
		}
		counts[test] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT test, pass FROM board_yield WHERE sn = $1 ORDER BY position`, sn)
	if err != nil {
		return nil, fmt.Errorf("failed to load board %d: %w", sn, err)
	}
	defer rows.Close()

	var statuses []BoardStatus
	for rows.Next() {
		var st BoardStatus
		if err := rows.Scan(&st.Test, &st.Pass); err != nil {
			return nil, err
		}
		st.Rows = counts[st.Test]
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("board %d: %w", sn, ErrNotFound)
	}
	return statuses, nil
}

func (s *Store) LoadSkips(ctx context.Context) ([]models.Skip, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dir, test, kind, reason FROM skipped_entries ORDER BY dir, test`)
	if err != nil {
		return nil, fmt.Errorf("failed to load skipped entries: %w", err)
	}
	defer rows.Close()

	var skips []models.Skip
	for rows.Next() {
		var sk models.Skip
		if err := rows.Scan(&sk.Dir, &sk.Test, &sk.Kind, &sk.Reason); err != nil {
			return nil, err
		}
		skips = append(skips, sk)
	}
	return skips, rows.Err()
}

// LoadColumn returns every stored value of one column of a test, ordered by SN
func (s *Store) LoadColumn(ctx context.Context, test, column string) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT fields FROM test_results WHERE test = $1 ORDER BY sn, row_index`, test)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", test, err)
	}
	defer rows.Close()

	var values []float64
	found := false
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("invalid stored fields for %s: %w", test, err)
		}
		str, ok := fields[column]
		if !ok {
			continue
		}
		found = true
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stored value %q for %s.%s: %w", str, test, column, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("column %s of %s: %w", column, test, ErrNotFound)
	}
	return values, nil
}
