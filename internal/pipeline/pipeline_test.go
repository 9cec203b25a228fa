package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/d47crunch/internal/config"
	"github.com/TobiSchelling/d47crunch/internal/database"
	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/ingest"
	"github.com/TobiSchelling/d47crunch/internal/metrics"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

const flask = `UID,Session,Sample,d45,d46,d47,d48,d49
A01,Session1,ETH-1,5.79502,11.62767,16.89351,24.56708,0.79486
A02,Session1,IAEA-C1,6.21907,11.49107,17.27749,24.58270,1.56318
A03,Session1,ETH-2,-6.05868,-4.81718,-11.63506,-10.32578,0.61352
A04,Session1,IAEA-C2,-3.86184,4.94184,0.60612,10.52732,0.57118
A05,Session1,ETH-3,5.54365,12.05228,17.40555,25.96919,0.74608
A06,Session1,ETH-2,-6.06706,-4.87710,-11.69927,-10.64421,1.61234
A07,Session1,ETH-1,5.78821,11.55910,16.80191,24.56423,1.47963
A08,Session1,IAEA-C2,-3.87692,4.86889,0.52185,10.40390,1.07032
A09,Session1,ETH-3,5.53984,12.01344,17.36863,25.77145,0.53264
A10,Session1,IAEA-C1,6.21905,11.44785,17.23428,24.30975,1.05702
A11,Session2,ETH-1,5.79958,11.63130,16.91766,25.12232,1.25904
A12,Session2,IAEA-C1,6.22514,11.51264,17.33588,24.92770,2.54331
A13,Session2,ETH-2,-6.03042,-4.74644,-11.52551,-10.55907,0.04024
A14,Session2,IAEA-C2,-3.83702,4.99278,0.67529,10.73885,0.70929
A15,Session2,ETH-3,5.53700,12.04892,17.42023,26.21793,2.16400
A16,Session2,ETH-2,-6.06820,-4.84004,-11.68630,-10.72563,0.04653
A17,Session2,ETH-1,5.78263,11.57182,16.83519,25.09964,1.26283
A18,Session2,IAEA-C2,-3.85355,4.91943,0.58463,10.56221,0.71245
A19,Session2,ETH-3,5.52227,12.01174,17.36841,26.19829,1.03740
A20,Session2,IAEA-C1,6.21937,11.44701,17.26426,24.84678,0.76866
`

func stepNames(r *Result) []string {
	var names []string
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	return names
}

func sampleD47(t *testing.T, r *Result, name string) standardize.Sample {
	t.Helper()
	s, ok := r.Standardization.Sample(name)
	if !ok {
		t.Fatalf("sample %s missing", name)
	}
	return s
}

func TestRun(t *testing.T) {
	p := New(config.Default(), nil, nil, nil)
	r := p.Run(context.Background(), strings.NewReader(flask), Options{})
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := strings.Join(stepNames(r), ",")
	if got != "Ingest,WorkingGas,Crunch,Normalize" {
		t.Errorf("unexpected steps: %s", got)
	}
	for _, s := range r.Steps {
		if s.Summary == "" {
			t.Errorf("step %s has no summary", s.Name)
		}
	}
	if r.Standardization.Method != standardize.Joint {
		t.Errorf("expected joint method, got %s", r.Standardization.Method)
	}
	if c1 := sampleD47(t, r, "IAEA-C1"); math.Abs(c1.D47-0.3624) > 1e-3 {
		t.Errorf("expected IAEA-C1 near 0.3624, got %.4f", c1.D47)
	}
}

func TestRunMethodOverride(t *testing.T) {
	p := New(config.Default(), nil, nil, nil)
	r := p.Run(context.Background(), strings.NewReader(flask), Options{Method: standardize.IndependentSessions})
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Standardization.Method != standardize.IndependentSessions {
		t.Errorf("expected independent sessions, got %s", r.Standardization.Method)
	}
	if r.Standardization.Params != nil {
		t.Error("expected no joint parameters for independent sessions")
	}
}

func TestRunSave(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	p := New(config.Default(), db, nil, nil)
	r := p.Run(context.Background(), strings.NewReader(flask), Options{Source: "flask.csv", Save: true})
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.RunID == "" {
		t.Fatal("expected a run id")
	}

	rec, err := db.GetRunRecord(r.RunID)
	if err != nil {
		t.Fatalf("GetRunRecord: %v", err)
	}
	if rec == nil {
		t.Fatal("expected stored run")
	}
	if rec.Run.Source != "flask.csv" || rec.Run.NAnalyses != 20 || rec.Run.DoF != 12 {
		t.Errorf("unexpected run header: %+v", rec.Run)
	}
	if len(rec.Analyses) != 20 || len(rec.Sessions) != 2 || len(rec.Samples) != 5 {
		t.Errorf("unexpected record sizes: %d analyses, %d sessions, %d samples",
			len(rec.Analyses), len(rec.Sessions), len(rec.Samples))
	}
	// two unknowns: two variances and one covariance
	if len(rec.Covariances) != 3 {
		t.Errorf("expected 3 covariance rows, got %d", len(rec.Covariances))
	}

	c1 := sampleD47(t, r, "IAEA-C1")
	for _, s := range rec.Samples {
		if s.Name == "IAEA-C1" && (s.D47 != c1.D47 || s.SE != c1.SE) {
			t.Errorf("stored IAEA-C1 %v ± %v, want %v ± %v", s.D47, s.SE, c1.D47, c1.SE)
		}
	}
}

func TestRunSaveWithoutDatabase(t *testing.T) {
	p := New(config.Default(), nil, nil, nil)
	r := p.Run(context.Background(), strings.NewReader(flask), Options{Save: true})
	if !errors.Is(r.Err(), ErrNoDatabase) {
		t.Errorf("expected ErrNoDatabase, got %v", r.Err())
	}
	if r.Standardization == nil {
		t.Error("expected the standardization to be kept")
	}
}

func TestRunSplit(t *testing.T) {
	ctx := context.Background()
	p := New(config.Default(), nil, nil, nil)
	plain := p.Run(ctx, strings.NewReader(flask), Options{})
	if err := plain.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := p.Run(ctx, strings.NewReader(flask), Options{Split: dataset.BySession})
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(stepNames(r), ",")
	if got != "Ingest,WorkingGas,Crunch,Split,Normalize,Unsplit" {
		t.Errorf("unexpected steps: %s", got)
	}
	if u := r.Dataset.Unknowns(); len(u) != 2 {
		t.Fatalf("expected 2 unknowns after unsplit, got %v", u)
	}
	if r.Dataset.Grouping() != dataset.NotSplit {
		t.Errorf("expected labels restored, got grouping %q", r.Dataset.Grouping())
	}
	for _, name := range []string{"IAEA-C1", "IAEA-C2"} {
		want := sampleD47(t, plain, name)
		split := sampleD47(t, r, name)
		if math.Abs(split.D47-want.D47) > 0.5*want.SE {
			t.Errorf("%s: split D47 %.5f, unsplit %.5f ± %.5f", name, split.D47, want.D47, want.SE)
		}
		if split.N != 4 {
			t.Errorf("%s: expected 4 replicates, got %d", name, split.N)
		}
	}
}

func TestRunSplitRequiresJointFit(t *testing.T) {
	p := New(config.Default(), nil, nil, nil)
	r := p.Run(context.Background(), strings.NewReader(flask), Options{
		Method: standardize.IndependentSessions,
		Split:  dataset.ByUID,
	})
	if !errors.Is(r.Err(), standardize.ErrMethod) {
		t.Errorf("expected ErrMethod, got %v", r.Err())
	}
	if last := r.Steps[len(r.Steps)-1].Name; last != "Split" {
		t.Errorf("expected failure at Split, got %s", last)
	}
}

func TestRunInvalidInput(t *testing.T) {
	p := New(config.Default(), nil, nil, nil)
	in := "UID,Session,Sample,d45,d46,d47\nA01,S1,ETH-1,5.8,,16.9\n"
	r := p.Run(context.Background(), strings.NewReader(in), Options{})

	err := r.Err()
	if !errors.Is(err, ingest.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	var verr *dataset.ValidationError
	if !errors.As(err, &verr) || verr.UID != "A01" {
		t.Errorf("expected validation error for A01, got %v", err)
	}
	if len(r.Steps) != 1 {
		t.Errorf("expected the run to stop after ingestion, got %d steps", len(r.Steps))
	}
}

func TestRunNoWorkingGasSample(t *testing.T) {
	cfg := config.Default()
	cfg.WorkingGas.Sample = "NBS-19"
	p := New(cfg, nil, nil, nil)
	r := p.Run(context.Background(), strings.NewReader(flask), Options{})
	if !errors.Is(r.Err(), dataset.ErrNoWorkingGasSample) {
		t.Errorf("expected ErrNoWorkingGasSample, got %v", r.Err())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(config.Default(), nil, nil, nil)
	r := p.Run(ctx, strings.NewReader(flask), Options{})
	if !errors.Is(r.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", r.Err())
	}
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flask.tsv")
	tsv := strings.ReplaceAll(flask, ",", "\t")
	if err := os.WriteFile(path, []byte(tsv), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	p := New(config.Default(), nil, nil, nil)
	r := p.RunFile(context.Background(), path, Options{})
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Dataset.Len() != 20 {
		t.Errorf("expected 20 analyses, got %d", r.Dataset.Len())
	}

	missing := p.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	if missing.Err() == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunMetrics(t *testing.T) {
	m := metrics.New()
	p := New(config.Default(), nil, m, nil)
	p.Run(context.Background(), strings.NewReader(flask), Options{})
	p.Run(context.Background(), strings.NewReader("UID,Sample\n"), Options{})

	path := filepath.Join(t.TempDir(), "d47crunch.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"d47crunch_analyses_reduced_total 20",
		`d47crunch_runs_total{method="joint",status="ok"} 1`,
		`d47crunch_runs_total{method="joint",status="failed"} 1`,
		`d47crunch_step_duration_seconds_count{step="Normalize"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
