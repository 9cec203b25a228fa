package database

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const runColumns = `id, created_at, source, method, grouping_mode, n_analyses, n_sessions, n_samples,
	dof, t95, chisq, red_chisq, rd13c, rd18o, rd47a, rd47u, rd47, sigma47`

// nullable maps NaN and infinities to NULL.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// nanFloat scans a nullable REAL column, NULL becoming NaN.
type nanFloat struct{ dst *float64 }

func (n nanFloat) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n.dst = math.NaN()
	case float64:
		*n.dst = v
	case int64:
		*n.dst = float64(v)
	default:
		return fmt.Errorf("cannot scan %T into float64", src)
	}
	return nil
}

func nf(dst *float64) nanFloat { return nanFloat{dst} }

// SaveRun stores a run and all its tables in one transaction and returns
// the new run ID.
func (db *DB) SaveRun(rec *RunRecord) (string, error) {
	id := uuid.NewString()

	tx, err := db.conn.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	r := rec.Run
	if _, err := tx.Exec(
		`INSERT INTO runs
		(id, source, method, grouping_mode, n_analyses, n_sessions, n_samples,
		dof, t95, chisq, red_chisq, rd13c, rd18o, rd47a, rd47u, rd47, sigma47)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Source, r.Method, r.Grouping, r.NAnalyses, r.NSessions, r.NSamples,
		r.DoF, nullable(r.T95), nullable(r.ChiSq), nullable(r.RedChiSq),
		nullable(r.RD13C), nullable(r.RD18O), nullable(r.RD47a), nullable(r.RD47u),
		nullable(r.RD47), nullable(r.Sigma47),
	); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	if err := insertAll(tx,
		`INSERT INTO analyses
		(run_id, uid, session, sample, d13c_vpdb, d18o_vsmow, d47_raw, d48_raw, d49_raw, d47)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rec.Analyses), func(i int) []any {
			a := rec.Analyses[i]
			return []any{id, a.UID, a.Session, a.Sample,
				nullable(a.D13CVPDB), nullable(a.D18OVSMOW),
				nullable(a.D47Raw), nullable(a.D48Raw), nullable(a.D49Raw), nullable(a.D47)}
		}); err != nil {
		return "", fmt.Errorf("inserting analyses: %w", err)
	}

	if err := insertAll(tx,
		`INSERT INTO sessions
		(run_id, name, na, nu, d13c_wg, d18o_wg, a, b, c, a2, b2, c2, se_a, se_b, se_c,
		rd13c, rd18o, rd47, cov_aa, cov_ab, cov_ac, cov_bb, cov_bc, cov_cc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rec.Sessions), func(i int) []any {
			s := rec.Sessions[i]
			return []any{id, s.Name, s.Na, s.Nu, nullable(s.D13CWG), nullable(s.D18OWG),
				nullable(s.A), nullable(s.B), nullable(s.C),
				nullable(s.A2), nullable(s.B2), nullable(s.C2),
				nullable(s.SEA), nullable(s.SEB), nullable(s.SEC),
				nullable(s.RD13C), nullable(s.RD18O), nullable(s.RD47),
				nullable(s.CovAA), nullable(s.CovAB), nullable(s.CovAC),
				nullable(s.CovBB), nullable(s.CovBC), nullable(s.CovCC)}
		}); err != nil {
		return "", fmt.Errorf("inserting sessions: %w", err)
	}

	if err := insertAll(tx,
		`INSERT INTO samples
		(run_id, name, anchor, n, d13c_vpdb, d18o_vsmow, d47, se, sd, p_levene)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rec.Samples), func(i int) []any {
			s := rec.Samples[i]
			return []any{id, s.Name, s.Anchor, s.N,
				nullable(s.D13CVPDB), nullable(s.D18OVSMOW), nullable(s.D47),
				nullable(s.SE), nullable(s.SD), nullable(s.PLevene)}
		}); err != nil {
		return "", fmt.Errorf("inserting samples: %w", err)
	}

	if err := insertAll(tx,
		`INSERT INTO covariances (run_id, sample1, sample2, covariance, correlation)
		VALUES (?, ?, ?, ?, ?)`,
		len(rec.Covariances), func(i int) []any {
			c := rec.Covariances[i]
			return []any{id, c.Sample1, c.Sample2, nullable(c.Covariance), nullable(c.Correlation)}
		}); err != nil {
		return "", fmt.Errorf("inserting covariances: %w", err)
	}

	if err := insertAll(tx,
		`INSERT INTO diagnostics (run_id, uid, kind, message, value) VALUES (?, ?, ?, ?, ?)`,
		len(rec.Diagnostics), func(i int) []any {
			d := rec.Diagnostics[i]
			return []any{id, d.UID, d.Kind, d.Message, nullable(d.Value)}
		}); err != nil {
		return "", fmt.Errorf("inserting diagnostics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	db.logger.Info("run saved",
		zap.String("run_id", id),
		zap.Int("analyses", len(rec.Analyses)),
		zap.Int("samples", len(rec.Samples)),
	)
	return id, nil
}

func insertAll(tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.Exec(args(i)...); err != nil {
			return err
		}
	}
	return nil
}

func scanRun(s interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	var source, grouping sql.NullString
	if err := s.Scan(&r.ID, &r.CreatedAt, &source, &r.Method, &grouping,
		&r.NAnalyses, &r.NSessions, &r.NSamples, &r.DoF,
		nf(&r.T95), nf(&r.ChiSq), nf(&r.RedChiSq),
		nf(&r.RD13C), nf(&r.RD18O), nf(&r.RD47a), nf(&r.RD47u), nf(&r.RD47), nf(&r.Sigma47)); err != nil {
		return nil, err
	}
	r.Source = source.String
	r.Grouping = grouping.String
	return &r, nil
}

// GetRun returns the run with the given ID, or nil if there is none.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// ListRuns returns the stored runs, most recent first. A positive limit
// caps the number returned.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and everything stored with it. It reports whether
// the run existed.
func (db *DB) DeleteRun(id string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, table := range []string{"diagnostics", "covariances", "samples", "sessions", "analyses"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
			return false, fmt.Errorf("deleting %s: %w", table, err)
		}
	}
	result, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}
