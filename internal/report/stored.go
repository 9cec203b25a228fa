package report

import (
	"strconv"

	"github.com/TobiSchelling/d47crunch/internal/database"
)

// Runs lists stored runs.
func Runs(runs []database.Run) Table {
	t := Table{
		Title:  "Runs",
		Header: []string{"ID", "Created", "Source", "Method", "Split", "Analyses", "Sessions", "Samples", "r_D47"},
	}
	for _, r := range runs {
		t.Rows = append(t.Rows, []string{
			r.ID,
			r.CreatedAt,
			r.Source,
			r.Method,
			r.Grouping,
			strconv.Itoa(r.NAnalyses),
			strconv.Itoa(r.NSessions),
			strconv.Itoa(r.NSamples),
			f(r.RD47, 4),
		})
	}
	return t
}

// StoredSamples lists the samples saved with a run.
func StoredSamples(samples []database.Sample, t95 float64) Table {
	t := Table{
		Title:  "Samples",
		Header: []string{"Sample", "N", "d13C_VPDB", "d18O_VSMOW", "D47", "SE", "95% CL", "SD", "p_Levene"},
	}
	for _, s := range samples {
		se, cl := "", ""
		if !s.Anchor {
			se = f(s.SE, 4)
			cl = "± " + f(t95*s.SE, 4)
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

// StoredSessions lists the session coefficients saved with a run.
func StoredSessions(sessions []database.Session) Table {
	t := Table{
		Title: "Sessions",
		Header: []string{"Session", "Na", "Nu", "d13Cwg_VPDB", "d18Owg_VSMOW",
			"r_d13C", "r_d18O", "r_D47", "a ± SE", "1e3 x b ± SE", "c ± SE"},
	}
	for _, s := range sessions {
		t.Rows = append(t.Rows, []string{
			s.Name,
			strconv.Itoa(s.Na),
			strconv.Itoa(s.Nu),
			f(s.D13CWG, 3),
			f(s.D18OWG, 3),
			f(s.RD13C, 4),
			f(s.RD18O, 4),
			f(s.RD47, 4),
			pm(s.A, s.SEA, 3),
			pm(1000*s.B, 1000*s.SEB, 3),
			pm(s.C, s.SEC, 3),
		})
	}
	return t
}

// StoredCovariances lists the saved covariances between unknowns.
func StoredCovariances(covs []database.Covariance) Table {
	t := Table{Title: "Covariance of unknowns", Header: []string{"Sample 1", "Sample 2", "Covariance", "Correlation"}}
	for _, c := range covs {
		t.Rows = append(t.Rows, []string{c.Sample1, c.Sample2, e(c.Covariance), f(c.Correlation, 4)})
	}
	return t
}

// StoredMarkdown assembles the report of a stored run.
func StoredMarkdown(rec *database.RunRecord) string {
	r := rec.Run
	summary := Table{
		Title:  "Summary",
		Header: []string{"Statistic", "Value"},
		Rows: [][]string{
			{"Run", r.ID},
			{"Created", r.CreatedAt},
			{"Source", r.Source},
			{"Method", r.Method},
			{"Split", r.Grouping},
			{"Analyses", strconv.Itoa(r.NAnalyses)},
			{"Degrees of freedom", strconv.Itoa(r.DoF)},
			{"Student's t (95%)", f(r.T95, 4)},
			{"Reduced χ²", f(r.RedChiSq, 3)},
			{"Repeatability of Δ47 (anchors)", ppm(r.RD47a)},
			{"Repeatability of Δ47 (unknowns)", ppm(r.RD47u)},
			{"Repeatability of Δ47 (all)", ppm(r.RD47)},
		},
	}
	tables := []Table{summary, StoredSessions(rec.Sessions), StoredSamples(rec.Samples, r.T95)}
	if len(rec.Covariances) > 0 {
		tables = append(tables, StoredCovariances(rec.Covariances))
	}
	if len(rec.Diagnostics) > 0 {
		diag := Table{Title: "Diagnostics", Header: []string{"UID", "Kind", "Message"}}
		for _, d := range rec.Diagnostics {
			diag.Rows = append(diag.Rows, []string{d.UID, d.Kind, d.Message})
		}
		tables = append(tables, diag)
	}
	return document("Stored run "+r.ID, tables)
}
