// Package store persists the run artifacts (run row, augmented dataset,
// segment inventory) into an embedded sqlite file for the downstream viewer.
package store

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"nh3flux/domain/core"
	"nh3flux/domain/observation"
	"nh3flux/domain/segment"
	"nh3flux/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	created_at      TIMESTAMP NOT NULL,
	fraction        REAL NOT NULL,
	seed            INTEGER NOT NULL,
	records_total   INTEGER NOT NULL,
	records_kept    INTEGER NOT NULL,
	sample_size     INTEGER NOT NULL,
	deviance        REAL NOT NULL,
	diag_status     TEXT NOT NULL,
	diag_statistic  REAL,
	diag_pvalue     REAL
);

CREATE TABLE IF NOT EXISTS observations (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	ts          TIMESTAMP NOT NULL,
	day_index   INTEGER NOT NULL,
	hour        REAL NOT NULL,
	temperature REAL NOT NULL,
	wind_speed  REAL NOT NULL,
	rain_event  TEXT NOT NULL,
	post_event  TEXT NOT NULL,
	nh3         REAL NOT NULL,
	predicted   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	name    TEXT NOT NULL,
	axis    TEXT NOT NULL,
	n       INTEGER NOT NULL,
	empty   INTEGER NOT NULL
);
`

// RunRow summarizes one pipeline run
type RunRow struct {
	ID            string     `db:"id"`
	CreatedAt     time.Time  `db:"created_at"`
	Fraction      float64    `db:"fraction"`
	Seed          int64      `db:"seed"`
	RecordsTotal  int        `db:"records_total"`
	RecordsKept   int        `db:"records_kept"`
	SampleSize    int        `db:"sample_size"`
	Deviance      float64    `db:"deviance"`
	DiagStatus    string     `db:"diag_status"`
	DiagStatistic *float64   `db:"diag_statistic"`
	DiagPValue    *float64   `db:"diag_pvalue"`
}

// Store wraps the sqlite connection
type Store struct {
	db *sqlx.DB
}

// Open connects to (or creates) the sqlite file and applies the schema
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, errors.StoreError("failed to open sqlite store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StoreError("failed to apply store schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run summary row
func (s *Store) SaveRun(row RunRow) error {
	_, err := s.db.NamedExec(`
		INSERT INTO runs (id, created_at, fraction, seed, records_total, records_kept,
			sample_size, deviance, diag_status, diag_statistic, diag_pvalue)
		VALUES (:id, :created_at, :fraction, :seed, :records_total, :records_kept,
			:sample_size, :deviance, :diag_status, :diag_statistic, :diag_pvalue)`, row)
	if err != nil {
		return errors.StoreError("failed to save run", err)
	}
	return nil
}

// SaveObservations writes the augmented dataset for the run
func (s *Store) SaveObservations(runID core.RunID, ds observation.Dataset) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return errors.StoreError("failed to begin transaction", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO observations (run_id, ts, day_index, hour, temperature,
			wind_speed, rain_event, post_event, nh3, predicted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.StoreError("failed to prepare observation insert", err)
	}
	for _, r := range ds {
		if _, err := stmt.Exec(runID.String(), r.Timestamp, r.DayIndex, r.HourOfDay,
			r.Temperature, r.WindSpeed, string(r.EventID), string(r.PhaseID),
			r.NH3, r.Predicted); err != nil {
			tx.Rollback()
			return errors.StoreError("failed to insert observation", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError("failed to commit observations", err)
	}
	return nil
}

// SaveSegments writes the segment inventory for the run
func (s *Store) SaveSegments(runID core.RunID, segs []segment.Segment) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return errors.StoreError("failed to begin transaction", err)
	}
	for _, seg := range segs {
		empty := 0
		if seg.Empty() {
			empty = 1
		}
		if _, err := tx.Exec(`INSERT INTO segments (run_id, name, axis, n, empty) VALUES (?, ?, ?, ?, ?)`,
			runID.String(), seg.Name, string(seg.Axis), len(seg.Points), empty); err != nil {
			tx.Rollback()
			return errors.StoreError("failed to insert segment", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError("failed to commit segments", err)
	}
	return nil
}

// CountObservations returns the number of stored observations for a run
func (s *Store) CountObservations(runID core.RunID) (int, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM observations WHERE run_id = ?`, runID.String()); err != nil {
		return 0, errors.StoreError("failed to count observations", err)
	}
	return n, nil
}
