// Package history keeps a SQLite ledger of training runs and their
// Selection Reports, so successive runs can be compared after the fact.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/examscore/core/model"
	"github.com/YuminosukeSato/examscore/pkg/errors"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

// Run outcomes.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// fixed width so that started_at sorts chronologically as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("history: run not found")

// Entry is one candidate's line of a recorded Selection Report.
type Entry struct {
	Name      string
	TestScore float64
	CVScore   float64
	RMSE      float64
	MAE       float64
	// Params round-trips through JSON, so numbers come back as float64.
	Params model.Params
}

// Run is one recorded training run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DataPath   string
	Status     string
	Winner     string
	TestScore  float64
	Threshold  float64
	TrainRows  int
	TestRows   int
	Entries    []Entry
}

// Store is the SQLite-backed run ledger
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (creating if needed) the ledger at path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "history: create directory for %s", path)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "history: open database")
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "history: connect to database")
	}

	s := &Store{db: db, logger: log.GetLoggerWithName("history")}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "history: initialize schema")
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		data_path TEXT NOT NULL,
		status TEXT NOT NULL,
		winner TEXT,
		test_score REAL,
		threshold REAL NOT NULL,
		train_rows INTEGER NOT NULL,
		test_rows INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS report_entries (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		test_score REAL,
		cv_score REAL,
		rmse REAL,
		mae REAL,
		params TEXT NOT NULL,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores run and its report entries in one transaction
func (s *Store) Record(ctx context.Context, run *Run) (err error) {
	if run == nil || run.ID == "" {
		return errors.NewValidationError("run.id", "must not be empty", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "history: begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, data_path, status, winner, test_score, threshold, train_rows, test_rows)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.DataPath,
		run.Status,
		run.Winner,
		nullable(run.TestScore),
		run.Threshold,
		run.TrainRows,
		run.TestRows,
	)
	if err != nil {
		return errors.Wrapf(err, "history: insert run %s", run.ID)
	}

	for i, e := range run.Entries {
		params, merr := json.Marshal(e.Params)
		if merr != nil {
			return errors.Wrapf(merr, "history: marshal params of %s", e.Name)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_entries (run_id, position, name, test_score, cv_score, rmse, mae, params)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, e.Name,
			nullable(e.TestScore), nullable(e.CVScore), nullable(e.RMSE), nullable(e.MAE),
			string(params),
		)
		if err != nil {
			return errors.Wrapf(err, "history: insert entry %s of run %s", e.Name, run.ID)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "history: commit")
	}
	s.logger.Debug("Run recorded",
		log.RunIDKey, run.ID,
		log.ModelNameKey, run.Winner,
		"status", run.Status,
	)
	return nil
}

// Get returns one run with its entries
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrRunNotFound, "id %s", id)
		}
		return nil, errors.Wrapf(err, "history: get run %s", id)
	}
	if run.Entries, err = s.entries(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// List returns up to limit runs, most recent first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + ` ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "history: list runs")
	}
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "history: scan run")
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "history: iterate runs")
	}
	rows.Close()

	// the single connection must be free before the entry queries
	for i := range runs {
		if runs[i].Entries, err = s.entries(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

const selectRuns = `SELECT id, started_at, finished_at, data_path, status, winner, test_score, threshold, train_rows, test_rows FROM runs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run               Run
		started, finished string
		winner            sql.NullString
		testScore         sql.NullFloat64
	)
	if err := sc.Scan(&run.ID, &started, &finished, &run.DataPath, &run.Status, &winner,
		&testScore, &run.Threshold, &run.TrainRows, &run.TestRows); err != nil {
		return nil, err
	}
	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, errors.Wrapf(err, "parse started_at of run %s", run.ID)
	}
	if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, errors.Wrapf(err, "parse finished_at of run %s", run.ID)
	}
	run.Winner = winner.String
	run.TestScore = fromNull(testScore)
	return &run, nil
}

func (s *Store) entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, test_score, cv_score, rmse, mae, params
		FROM report_entries WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "history: query entries of run %s", runID)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			test, cv, rmse, mae sql.NullFloat64
			params              string
		)
		if err := rows.Scan(&e.Name, &test, &cv, &rmse, &mae, &params); err != nil {
			return nil, errors.Wrapf(err, "history: scan entry of run %s", runID)
		}
		e.TestScore, e.CVScore, e.RMSE, e.MAE = fromNull(test), fromNull(cv), fromNull(rmse), fromNull(mae)
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, errors.Wrapf(err, "history: decode params of %s", e.Name)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "history: iterate entries of run %s", runID)
	}
	return out, nil
}

// SQLite has no NaN; non-finite scores are stored as NULL.
func nullable(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func fromNull(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
