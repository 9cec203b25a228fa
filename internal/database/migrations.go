package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT DEFAULT (datetime('now')),
    source TEXT,
    method TEXT NOT NULL,
    grouping_mode TEXT,
    n_analyses INTEGER DEFAULT 0,
    n_sessions INTEGER DEFAULT 0,
    n_samples INTEGER DEFAULT 0,
    dof INTEGER DEFAULT 0,
    t95 REAL,
    chisq REAL,
    red_chisq REAL,
    rd13c REAL,
    rd18o REAL,
    rd47a REAL,
    rd47u REAL,
    rd47 REAL,
    sigma47 REAL
);

CREATE TABLE IF NOT EXISTS analyses (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    uid TEXT NOT NULL,
    session TEXT NOT NULL,
    sample TEXT NOT NULL,
    d13c_vpdb REAL,
    d18o_vsmow REAL,
    d47_raw REAL,
    d48_raw REAL,
    d49_raw REAL,
    d47 REAL,
    PRIMARY KEY (run_id, uid)
);

CREATE TABLE IF NOT EXISTS sessions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    na INTEGER DEFAULT 0,
    nu INTEGER DEFAULT 0,
    d13c_wg REAL,
    d18o_wg REAL,
    a REAL,
    b REAL,
    c REAL,
    a2 REAL,
    b2 REAL,
    c2 REAL,
    se_a REAL,
    se_b REAL,
    se_c REAL,
    rd13c REAL,
    rd18o REAL,
    rd47 REAL,
    cov_aa REAL,
    cov_ab REAL,
    cov_ac REAL,
    cov_bb REAL,
    cov_bc REAL,
    cov_cc REAL,
    PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS samples (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    anchor INTEGER DEFAULT 0,
    n INTEGER DEFAULT 0,
    d13c_vpdb REAL,
    d18o_vsmow REAL,
    d47 REAL,
    se REAL,
    sd REAL,
    p_levene REAL,
    PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS covariances (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    sample1 TEXT NOT NULL,
    sample2 TEXT NOT NULL,
    covariance REAL,
    correlation REAL,
    PRIMARY KEY (run_id, sample1, sample2)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "run diagnostics",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    uid TEXT,
    kind TEXT NOT NULL,
    message TEXT,
    value REAL
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
