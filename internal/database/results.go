package database

import "database/sql"

// GetAnalyses returns the reduced analyses of a run in UID order.
func (db *DB) GetAnalyses(runID string) ([]Analysis, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, uid, session, sample, d13c_vpdb, d18o_vsmow, d47_raw, d48_raw, d49_raw, d47
		FROM analyses WHERE run_id = ? ORDER BY uid`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(&a.RunID, &a.UID, &a.Session, &a.Sample,
			nf(&a.D13CVPDB), nf(&a.D18OVSMOW),
			nf(&a.D47Raw), nf(&a.D48Raw), nf(&a.D49Raw), nf(&a.D47)); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetSessions returns the sessions of a run in name order.
func (db *DB) GetSessions(runID string) ([]Session, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, name, na, nu, d13c_wg, d18o_wg, a, b, c, a2, b2, c2, se_a, se_b, se_c,
		rd13c, rd18o, rd47, cov_aa, cov_ab, cov_ac, cov_bb, cov_bc, cov_cc
		FROM sessions WHERE run_id = ? ORDER BY name`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.RunID, &s.Name, &s.Na, &s.Nu, nf(&s.D13CWG), nf(&s.D18OWG),
			nf(&s.A), nf(&s.B), nf(&s.C), nf(&s.A2), nf(&s.B2), nf(&s.C2),
			nf(&s.SEA), nf(&s.SEB), nf(&s.SEC), nf(&s.RD13C), nf(&s.RD18O), nf(&s.RD47),
			nf(&s.CovAA), nf(&s.CovAB), nf(&s.CovAC), nf(&s.CovBB), nf(&s.CovBC), nf(&s.CovCC)); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSamples returns the samples of a run, anchors first, each group in
// name order.
func (db *DB) GetSamples(runID string) ([]Sample, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, name, anchor, n, d13c_vpdb, d18o_vsmow, d47, se, sd, p_levene
		FROM samples WHERE run_id = ? ORDER BY anchor DESC, name`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.RunID, &s.Name, &s.Anchor, &s.N,
			nf(&s.D13CVPDB), nf(&s.D18OVSMOW), nf(&s.D47),
			nf(&s.SE), nf(&s.SD), nf(&s.PLevene)); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetCovariances returns the Δ47 covariances between the unknowns of a run.
func (db *DB) GetCovariances(runID string) ([]Covariance, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, sample1, sample2, covariance, correlation
		FROM covariances WHERE run_id = ? ORDER BY sample1, sample2`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Covariance
	for rows.Next() {
		var c Covariance
		if err := rows.Scan(&c.RunID, &c.Sample1, &c.Sample2,
			nf(&c.Covariance), nf(&c.Correlation)); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetDiagnostics returns the diagnostics of a run in the order recorded.
func (db *DB) GetDiagnostics(runID string) ([]Diagnostic, error) {
	rows, err := db.conn.Query(
		`SELECT run_id, uid, kind, message, value
		FROM diagnostics WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Diagnostic
	for rows.Next() {
		var d Diagnostic
		var uid, msg sql.NullString
		if err := rows.Scan(&d.RunID, &uid, &d.Kind, &msg, nf(&d.Value)); err != nil {
			return nil, err
		}
		d.UID = uid.String
		d.Message = msg.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetRunRecord loads a run with all its tables, or nil if there is none.
func (db *DB) GetRunRecord(id string) (*RunRecord, error) {
	run, err := db.GetRun(id)
	if err != nil || run == nil {
		return nil, err
	}
	rec := &RunRecord{Run: *run}
	if rec.Analyses, err = db.GetAnalyses(id); err != nil {
		return nil, err
	}
	if rec.Sessions, err = db.GetSessions(id); err != nil {
		return nil, err
	}
	if rec.Samples, err = db.GetSamples(id); err != nil {
		return nil, err
	}
	if rec.Covariances, err = db.GetCovariances(id); err != nil {
		return nil, err
	}
	if rec.Diagnostics, err = db.GetDiagnostics(id); err != nil {
		return nil, err
	}
	return rec, nil
}
