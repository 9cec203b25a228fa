package report

import (
	"strconv"
	"strings"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

// Summary lists the fit statistics and dataset-wide reproducibilities.
func Summary(r *standardize.Result) Table {
	ds := r.Dataset()
	rows := [][]string{
		{"Method", string(r.Method)},
		{"Analyses", strconv.Itoa(ds.Len())},
		{"Sessions", strconv.Itoa(len(ds.Sessions()))},
		{"Anchors", strconv.Itoa(len(ds.Anchors()))},
		{"Unknowns", strconv.Itoa(len(ds.Unknowns()))},
		{"Degrees of freedom", strconv.Itoa(r.DoF)},
		{"Student's t (95%)", f(r.T95, 4)},
		{"χ²", e(r.ChiSq)},
		{"Reduced χ²", f(r.RedChiSq, 3)},
		{"Repeatability of δ13C_VPDB (anchors)", ppm(r.Repro.RD13C)},
		{"Repeatability of δ18O_VSMOW (anchors)", ppm(r.Repro.RD18O)},
		{"Repeatability of Δ47 (anchors)", ppm(r.Repro.RD47a)},
		{"Repeatability of Δ47 (unknowns)", ppm(r.Repro.RD47u)},
		{"Repeatability of Δ47 (all)", ppm(r.Repro.RD47)},
	}
	if r.Method == standardize.Joint {
		rows = append(rows, []string{"Iterations", strconv.Itoa(r.Iterations)})
	} else {
		rows = append(rows, []string{"Model Δ47 repeatability (σ47)", ppm(r.Repro.Sigma47)})
	}
	return Table{Title: "Summary", Header: []string{"Statistic", "Value"}, Rows: rows}
}

// ppm formats a reproducibility given in ‰.
func ppm(v float64) string {
	if s := f(1000*v, 1); s != "" {
		return s + " ppm"
	}
	return ""
}

// Sessions lists the working gas, reproducibility and transfer function of
// every session. Drift columns appear only when some session fits them.
func Sessions(r *standardize.Result) Table {
	var drift standardize.Drift
	for _, s := range r.Sessions {
		drift.Scrambling = drift.Scrambling || s.Drift.Scrambling
		drift.Slope = drift.Slope || s.Drift.Slope
		drift.WG = drift.WG || s.Drift.WG
	}

	header := []string{"Session", "Na", "Nu", "d13Cwg_VPDB", "d18Owg_VSMOW",
		"r_d13C", "r_d18O", "r_D47", "a ± SE", "1e3 x b ± SE", "c ± SE"}
	if drift.Scrambling {
		header = append(header, "a2 ± SE")
	}
	if drift.Slope {
		header = append(header, "b2 ± SE")
	}
	if drift.WG {
		header = append(header, "c2 ± SE")
	}

	t := Table{Title: "Sessions", Header: header}
	for _, s := range r.Sessions {
		row := []string{
			s.Name,
			strconv.Itoa(s.Na),
			strconv.Itoa(s.Nu),
			f(s.WorkingGas.D13CVPDB, 3),
			f(s.WorkingGas.D18OVSMOW, 3),
			f(s.RD13C, 4),
			f(s.RD18O, 4),
			f(s.RD47, 4),
			pm(s.A, s.SEA, 3),
			pm(1000*s.B, 1000*s.SEB, 3),
			pm(s.C, s.SEC, 3),
		}
		if drift.Scrambling {
			row = append(row, pm(s.A2, s.SEA2, 1))
		}
		if drift.Slope {
			row = append(row, pm(1000*s.B2, 1000*s.SEB2, 1))
		}
		if drift.WG {
			row = append(row, pm(s.C2, s.SEC2, 1))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SessionCovariances lists the (a, b, c) covariance block of every session.
func SessionCovariances(r *standardize.Result) Table {
	t := Table{
		Title:  "Session covariances",
		Header: []string{"Session", "Var(a)", "Cov(a,b)", "Cov(a,c)", "Var(b)", "Cov(b,c)", "Var(c)"},
	}
	for _, s := range r.Sessions {
		if s.CM == nil {
			t.Rows = append(t.Rows, []string{s.Name})
			continue
		}
		t.Rows = append(t.Rows, []string{
			s.Name,
			e(s.CM.At(0, 0)),
			e(s.CM.At(0, 1)),
			e(s.CM.At(0, 2)),
			e(s.CM.At(1, 1)),
			e(s.CM.At(1, 2)),
			e(s.CM.At(2, 2)),
		})
	}
	return t
}

// Samples lists the averaged composition and standardized Δ47 of every
// sample. Anchors carry no standard error.
func Samples(r *standardize.Result) Table {
	t := Table{
		Title:  "Samples",
		Header: []string{"Sample", "N", "d13C_VPDB", "d18O_VSMOW", "D47", "SE", "95% CL", "SD", "p_Levene"},
	}
	for _, s := range r.Samples {
		se, cl := "", ""
		if !s.Anchor {
			se = f(s.SE, 4)
			cl = "± " + f(r.CL95(s.SE), 4)
		}
		t.Rows = append(t.Rows, []string{
			s.Name,
			strconv.Itoa(s.N),
			f(s.D13CVPDB, 2),
			f(s.D18OVSMOW, 2),
			f(s.D47, 4),
			se,
			cl,
			f(s.SD, 4),
			f(s.PLevene, 3),
		})
	}
	return t
}

// Analyses lists every analysis with its raw and reduced values.
func Analyses(r *standardize.Result) Table {
	t := Table{
		Title: "Analyses",
		Header: []string{"UID", "Session", "Sample", "d13Cwg_VPDB", "d18Owg_VSMOW",
			"d45", "d46", "d47", "d48", "d49", "d13C_VPDB", "d18O_VSMOW",
			"D47raw", "D48raw", "D49raw", "D47"},
	}
	for _, a := range r.Dataset().Analyses() {
		t.Rows = append(t.Rows, []string{
			a.UID,
			a.Session,
			a.Sample,
			f(a.WorkingGas.D13CVPDB, 3),
			f(a.WorkingGas.D18OVSMOW, 3),
			f(a.Delta45, 6),
			f(a.Delta46, 6),
			f(a.Delta47, 6),
			f(a.Delta48, 6),
			f(a.Delta49, 6),
			f(a.Bulk.D13CVPDB, 6),
			f(a.Bulk.D18OVSMOW, 6),
			f(a.D47Raw, 6),
			f(a.D48Raw, 6),
			f(a.D49Raw, 6),
			f(a.D47, 6),
		})
	}
	return t
}

// Covariances returns the Δ47 covariance and correlation matrices of the
// unknowns.
func Covariances(r *standardize.Result) (cov, cor Table, err error) {
	unknowns := r.Dataset().Unknowns()
	cov = Table{Title: "Covariance of unknowns", Header: append([]string{"Sample"}, unknowns...)}
	cor = Table{Title: "Correlation of unknowns", Header: append([]string{"Sample"}, unknowns...)}
	if len(unknowns) == 0 {
		return cov, cor, nil
	}
	cm, err := r.CovarianceMatrix(unknowns)
	if err != nil {
		return cov, cor, err
	}
	for i, u := range unknowns {
		crow := []string{u}
		rrow := []string{u}
		for j := range unknowns {
			crow = append(crow, e(cm.At(i, j)))
			rrow = append(rrow, f(correlation(cm.At(i, j), cm.At(i, i), cm.At(j, j)), 4))
		}
		cov.Rows = append(cov.Rows, crow)
		cor.Rows = append(cor.Rows, rrow)
	}
	return cov, cor, nil
}

// Diagnostics lists the non-fatal observations made during the run.
func Diagnostics(ds *dataset.Dataset) Table {
	t := Table{Title: "Diagnostics", Header: []string{"UID", "Kind", "Message"}}
	for _, d := range ds.Diagnostics() {
		t.Rows = append(t.Rows, []string{d.UID, d.Kind, d.Message})
	}
	return t
}

// Markdown assembles the full report of a run.
func Markdown(r *standardize.Result) (string, error) {
	cov, cor, err := Covariances(r)
	if err != nil {
		return "", err
	}
	tables := []Table{Summary(r), Sessions(r), SessionCovariances(r), Samples(r)}
	if len(cov.Rows) > 0 {
		tables = append(tables, cov, cor)
	}
	if diag := Diagnostics(r.Dataset()); len(diag.Rows) > 0 {
		tables = append(tables, diag)
	}
	tables = append(tables, Analyses(r))
	return document("Δ47 standardization report", tables), nil
}

func document(title string, tables []Table) string {
	var b strings.Builder
	b.WriteString("## " + title + "\n\n")
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Markdown())
	}
	return b.String()
}
