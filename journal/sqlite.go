package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         INTEGER NOT NULL,
	symbol     TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT,
	intent_key TEXT,
	units      REAL,
	price      REAL
);
CREATE INDEX IF NOT EXISTS idx_transitions_symbol ON transitions(symbol, ts);

CREATE TABLE IF NOT EXISTS actions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         INTEGER NOT NULL,
	symbol     TEXT NOT NULL,
	action     TEXT NOT NULL,
	origin     TEXT,
	intent_key TEXT,
	units      REAL,
	price      REAL,
	protective INTEGER NOT NULL DEFAULT 0,
	degraded   INTEGER NOT NULL DEFAULT 0,
	outcome    TEXT,
	detail     TEXT
);
CREATE INDEX IF NOT EXISTS idx_actions_symbol ON actions(symbol, ts);

CREATE TABLE IF NOT EXISTS drift (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         INTEGER NOT NULL,
	symbol     TEXT NOT NULL,
	field      TEXT NOT NULL,
	local      REAL,
	remote     REAL,
	resolution TEXT
);
CREATE INDEX IF NOT EXISTS idx_drift_ts ON drift(ts);

CREATE TABLE IF NOT EXISTS modes (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts     INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	mode   TEXT NOT NULL,
	reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_modes_symbol ON modes(symbol, ts);
`

// SQLite journals into a single database file. Timestamps are stored as
// unix milliseconds.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	// The ledger executor and the reconciler both write; a single
	// connection serializes them instead of tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) Transition(r TransitionRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO transitions (ts, symbol, from_state, to_state, reason, intent_key, units, price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UnixMilli(), r.Symbol, r.From, r.To, r.Reason, r.IntentKey, r.Units, r.Price)
	return err
}

func (j *SQLite) Action(r ActionRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO actions (ts, symbol, action, origin, intent_key, units, price, protective, degraded, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UnixMilli(), r.Symbol, r.Action, r.Origin, r.IntentKey,
		r.Units, r.Price, boolInt(r.Protective), boolInt(r.Degraded), r.Outcome, r.Detail)
	return err
}

func (j *SQLite) Drift(r DriftRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO drift (ts, symbol, field, local, remote, resolution)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Time.UnixMilli(), r.Symbol, r.Field, r.Local, r.Remote, r.Resolution)
	return err
}

func (j *SQLite) Mode(r ModeRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO modes (ts, symbol, mode, reason) VALUES (?, ?, ?, ?)`,
		r.Time.UnixMilli(), r.Symbol, r.Mode, r.Reason)
	return err
}

func (j *SQLite) Close() error { return j.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millisTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
