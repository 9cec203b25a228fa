package database

import (
	"math"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord() *RunRecord {
	return &RunRecord{
		Run: Run{
			Source:    "flask.csv",
			Method:    "joint",
			NAnalyses: 2,
			NSessions: 1,
			NSamples:  2,
			DoF:       12,
			T95:       2.179,
			ChiSq:     0.01,
			RedChiSq:  61.8,
			RD13C:     0.01,
			RD18O:     0.02,
			RD47a:     0.015,
			RD47u:     0.012,
			RD47:      0.014,
			Sigma47:   math.NaN(),
		},
		Analyses: []Analysis{
			{UID: "A02", Session: "Session1", Sample: "IAEA-C1", D13CVPDB: 2.4, D18OVSMOW: 36.9, D47Raw: -0.6, D47: 0.36},
			{UID: "A01", Session: "Session1", Sample: "ETH-1", D13CVPDB: 2.0, D18OVSMOW: 37.0, D47Raw: -0.7, D47: 0.258},
		},
		Sessions: []Session{
			{Name: "Session1", Na: 6, Nu: 4, A: 0.9, B: 0.01, C: -0.9, SEA: 0.01, RD47: 0.015,
				CovAA: 1e-4, CovAB: 1e-6, CovCC: 4e-5},
		},
		Samples: []Sample{
			{Name: "IAEA-C1", N: 2, D47: 0.36, SE: 0.01, SD: 0.02, PLevene: math.NaN()},
			{Name: "ETH-1", Anchor: true, N: 2, D47: 0.258, SE: 0, SD: 0.01, PLevene: math.NaN()},
		},
		Covariances: []Covariance{
			{Sample1: "IAEA-C1", Sample2: "IAEA-C1", Covariance: 1e-4, Correlation: 1},
		},
		Diagnostics: []Diagnostic{
			{UID: "A02", Kind: "r46_deviation", Message: "R46 deviates", Value: 3.2},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	id, err := db.SaveRun(testRecord())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("expected a UUID run id, got %q", id)
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("expected run, got nil")
	}
	if run.Method != "joint" || run.Source != "flask.csv" {
		t.Errorf("unexpected run header: %+v", run)
	}
	if run.DoF != 12 || run.RedChiSq != 61.8 {
		t.Errorf("expected dof 12 and red chisq 61.8, got %d and %v", run.DoF, run.RedChiSq)
	}
	if !math.IsNaN(run.Sigma47) {
		t.Errorf("expected NaN sigma47 to round-trip, got %v", run.Sigma47)
	}
	if run.CreatedAt == "" {
		t.Error("expected created_at to be set")
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("expected nil for missing run")
	}
}

func TestRunTables(t *testing.T) {
	db := openTestDB(t)
	id, err := db.SaveRun(testRecord())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	analyses, err := db.GetAnalyses(id)
	if err != nil {
		t.Fatalf("GetAnalyses: %v", err)
	}
	if len(analyses) != 2 || analyses[0].UID != "A01" {
		t.Fatalf("expected 2 analyses ordered by UID, got %+v", analyses)
	}
	if analyses[1].D47 != 0.36 {
		t.Errorf("expected D47 0.36, got %v", analyses[1].D47)
	}

	sessions, err := db.GetSessions(id)
	if err != nil {
		t.Fatalf("GetSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].CovAA != 1e-4 || sessions[0].CovCC != 4e-5 {
		t.Errorf("covariance block did not round-trip: %+v", sessions[0])
	}

	samples, err := db.GetSamples(id)
	if err != nil {
		t.Fatalf("GetSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Name != "ETH-1" || !samples[0].Anchor {
		t.Errorf("expected anchors first, got %+v", samples[0])
	}
	if !math.IsNaN(samples[1].PLevene) {
		t.Errorf("expected NaN p_levene, got %v", samples[1].PLevene)
	}

	covs, err := db.GetCovariances(id)
	if err != nil {
		t.Fatalf("GetCovariances: %v", err)
	}
	if len(covs) != 1 || covs[0].Correlation != 1 {
		t.Errorf("unexpected covariances: %+v", covs)
	}

	diags, err := db.GetDiagnostics(id)
	if err != nil {
		t.Fatalf("GetDiagnostics: %v", err)
	}
	if len(diags) != 1 || diags[0].Kind != "r46_deviation" || diags[0].UID != "A02" {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
}

func TestGetRunRecord(t *testing.T) {
	db := openTestDB(t)
	id, err := db.SaveRun(testRecord())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	rec, err := db.GetRunRecord(id)
	if err != nil {
		t.Fatalf("GetRunRecord: %v", err)
	}
	if rec == nil || rec.Run.ID != id {
		t.Fatalf("expected record for %s, got %+v", id, rec)
	}
	if len(rec.Analyses) != 2 || len(rec.Sessions) != 1 || len(rec.Samples) != 2 {
		t.Errorf("incomplete record: %d analyses, %d sessions, %d samples",
			len(rec.Analyses), len(rec.Sessions), len(rec.Samples))
	}

	missing, err := db.GetRunRecord("missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil record for missing run")
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)
	first, _ := db.SaveRun(testRecord())
	second, _ := db.SaveRun(testRecord())

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("expected most recent first, got %s, %s", runs[0].ID, runs[1].ID)
	}

	limited, err := db.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}
}

func TestDeleteRun(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.SaveRun(testRecord())
	keep, _ := db.SaveRun(testRecord())

	ok, err := db.DeleteRun(id)
	if err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if !ok {
		t.Error("expected DeleteRun to report an existing run")
	}

	run, _ := db.GetRun(id)
	if run != nil {
		t.Error("expected run to be gone")
	}
	samples, _ := db.GetSamples(id)
	if len(samples) != 0 {
		t.Errorf("expected samples to be deleted, got %d", len(samples))
	}
	kept, _ := db.GetSamples(keep)
	if len(kept) != 2 {
		t.Errorf("expected other run untouched, got %d samples", len(kept))
	}

	ok, err = db.DeleteRun(id)
	if err != nil {
		t.Fatalf("second DeleteRun: %v", err)
	}
	if ok {
		t.Error("expected false for an already deleted run")
	}
}
