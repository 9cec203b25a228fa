package database

import (
	"math"

	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

// Snapshot copies a standardization result into a record ready to be saved.
// The run ID is left empty for SaveRun to assign.
func Snapshot(res *standardize.Result, source string) (*RunRecord, error) {
	ds := res.Dataset()
	rec := &RunRecord{
		Run: Run{
			Source:    source,
			Method:    string(res.Method),
			Grouping:  string(ds.Grouping()),
			NAnalyses: ds.Len(),
			NSessions: len(res.Sessions),
			NSamples:  len(res.Samples),
			DoF:       res.DoF,
			T95:       res.T95,
			ChiSq:     res.ChiSq,
			RedChiSq:  res.RedChiSq,
			RD13C:     res.Repro.RD13C,
			RD18O:     res.Repro.RD18O,
			RD47a:     res.Repro.RD47a,
			RD47u:     res.Repro.RD47u,
			RD47:      res.Repro.RD47,
			Sigma47:   res.Repro.Sigma47,
		},
	}

	for _, a := range ds.Analyses() {
		rec.Analyses = append(rec.Analyses, Analysis{
			UID:       a.UID,
			Session:   a.Session,
			Sample:    a.Sample,
			D13CVPDB:  a.Bulk.D13CVPDB,
			D18OVSMOW: a.Bulk.D18OVSMOW,
			D47Raw:    a.D47Raw,
			D48Raw:    a.D48Raw,
			D49Raw:    a.D49Raw,
			D47:       a.D47,
		})
	}

	for _, s := range res.Sessions {
		row := Session{
			Name:   s.Name,
			Na:     s.Na,
			Nu:     s.Nu,
			D13CWG: s.WorkingGas.D13CVPDB,
			D18OWG: s.WorkingGas.D18OVSMOW,
			A:      s.A,
			B:      s.B,
			C:      s.C,
			A2:     s.A2,
			B2:     s.B2,
			C2:     s.C2,
			SEA:    s.SEA,
			SEB:    s.SEB,
			SEC:    s.SEC,
			RD13C:  s.RD13C,
			RD18O:  s.RD18O,
			RD47:   s.RD47,
		}
		if s.CM != nil {
			row.CovAA = s.CM.At(0, 0)
			row.CovAB = s.CM.At(0, 1)
			row.CovAC = s.CM.At(0, 2)
			row.CovBB = s.CM.At(1, 1)
			row.CovBC = s.CM.At(1, 2)
			row.CovCC = s.CM.At(2, 2)
		}
		rec.Sessions = append(rec.Sessions, row)
	}

	var unknowns []string
	for _, s := range res.Samples {
		rec.Samples = append(rec.Samples, Sample{
			Name:      s.Name,
			Anchor:    s.Anchor,
			N:         s.N,
			D13CVPDB:  s.D13CVPDB,
			D18OVSMOW: s.D18OVSMOW,
			D47:       s.D47,
			SE:        s.SE,
			SD:        s.SD,
			PLevene:   s.PLevene,
		})
		if !s.Anchor {
			unknowns = append(unknowns, s.Name)
		}
	}

	if len(unknowns) > 0 {
		cm, err := res.CovarianceMatrix(unknowns)
		if err != nil {
			return nil, err
		}
		for i, s1 := range unknowns {
			for j := i; j < len(unknowns); j++ {
				c := cm.At(i, j)
				rec.Covariances = append(rec.Covariances, Covariance{
					Sample1:     s1,
					Sample2:     unknowns[j],
					Covariance:  c,
					Correlation: correlation(c, cm.At(i, i), cm.At(j, j)),
				})
			}
		}
	}

	for _, d := range ds.Diagnostics() {
		rec.Diagnostics = append(rec.Diagnostics, Diagnostic{
			UID:     d.UID,
			Kind:    d.Kind,
			Message: d.Message,
			Value:   d.Value,
		})
	}
	return rec, nil
}

func correlation(c, v1, v2 float64) float64 {
	if v1 <= 0 || v2 <= 0 {
		return math.NaN()
	}
	return c / math.Sqrt(v1*v2)
}
