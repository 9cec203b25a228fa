package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/d47crunch/internal/config"
	"github.com/TobiSchelling/d47crunch/internal/database"
	"github.com/TobiSchelling/d47crunch/internal/metrics"
	"github.com/TobiSchelling/d47crunch/internal/pipeline"
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

type fixture struct {
	db  *database.DB
	p   *pipeline.Pipeline
	srv *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	p := pipeline.New(config.Default(), db, m, nil)
	srv, err := New(db, p, m, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return &fixture{db: db, p: p, srv: srv}
}

func (f *fixture) savedRun(t *testing.T) string {
	t.Helper()
	r := f.p.Run(context.Background(), strings.NewReader(flask), pipeline.Options{Source: "flask.csv", Save: true})
	if err := r.Err(); err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return r.RunID
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "No stored runs") {
		t.Error("expected empty run list")
	}
	if !strings.Contains(body, `name="rawdata"`) {
		t.Error("expected the reduce form")
	}
}

func TestIndexListsRuns(t *testing.T) {
	f := newFixture(t)
	id := f.savedRun(t)

	rec := f.do(httptest.NewRequest("GET", "/", nil))
	if !strings.Contains(rec.Body.String(), "/runs/"+id) {
		t.Error("expected a link to the stored run")
	}
}

func TestUnknownPath(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest("GET", "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReduceRoute(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"rawdata": {flask}, "method": {"joint"}, "save": {"1"}}
	req := httptest.NewRequest("POST", "/reduce", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Normalize", "<table>", "IAEA-C2", "Stored run"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response", want)
		}
	}

	runs, err := f.db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Source != "web form" {
		t.Errorf("expected one saved web form run, got %+v", runs)
	}
}

func TestReduceInvalidData(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"rawdata": {"UID,Session,Sample,d45,d46,d47\nA01,S1,ETH-1,x,1,2\n"}}
	req := httptest.NewRequest("POST", "/reduce", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "A01") {
		t.Error("expected the failing UID in the response")
	}
}

func TestReduceGetRedirects(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest("GET", "/reduce", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
}

func TestRunRoute(t *testing.T) {
	f := newFixture(t)
	id := f.savedRun(t)

	rec := f.do(httptest.NewRequest("GET", "/runs/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "IAEA-C1") || !strings.Contains(body, "samples.csv") {
		t.Error("expected the stored report with an export link")
	}

	missing := f.do(httptest.NewRequest("GET", "/runs/missing", nil))
	if missing.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing run, got %d", missing.Code)
	}
}

func TestExportSamples(t *testing.T) {
	f := newFixture(t)
	id := f.savedRun(t)

	rec := f.do(httptest.NewRequest("GET", "/runs/"+id+"/samples.csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("expected CSV content type, got %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected header and 5 samples, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "Sample,N,") {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestDeleteRunRoute(t *testing.T) {
	f := newFixture(t)
	id := f.savedRun(t)

	rec := f.do(httptest.NewRequest("POST", "/runs/"+id+"/delete", nil))
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	run, _ := f.db.GetRun(id)
	if run != nil {
		t.Error("expected run to be deleted")
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	f.savedRun(t)

	rec := f.do(httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "d47crunch_analyses_reduced_total 20") {
		t.Error("expected reduced analyses counter")
	}
}

func TestStaticRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
