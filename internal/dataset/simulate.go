package dataset

import (
	"fmt"

	"github.com/TobiSchelling/d47crunch/internal/isotope"
)

// SessionModel is the instrumental response of a session: the working gas
// and the transfer function D47raw = a·Δ47 + b·δ47 + c + t·(a2·Δ47 + b2·δ47 + c2).
type SessionModel struct {
	Name       string
	WorkingGas BulkComposition

	A, B, C    float64
	A2, B2, C2 float64
}

// CarbonateSample is a carbonate of known composition and clumped anomaly.
type CarbonateSample struct {
	Name     string
	D13CVPDB float64
	D18OVPDB float64
	D47      float64
}

// Simulate produces the working-gas deltas an instrument described by m
// would report for sample s at time t. noise is added to the raw Δ47. The
// returned analysis carries t as its TimeTag and the sample composition as
// its nominal bulk composition.
func Simulate(c isotope.Constants, m SessionModel, s CarbonateSample, uid string, t, noise float64) (Analysis, error) {
	wg, err := c.IsobarRatios(c.R13(m.WorkingGas.D13CVPDB), c.R18(m.WorkingGas.D18OVSMOW), isotope.Anomalies{})
	if err != nil {
		return Analysis{}, err
	}
	if !(c.Alpha18OAcid > 0) {
		return Analysis{}, fmt.Errorf("%w: got %g", isotope.ErrAcidFractionation, c.Alpha18OAcid)
	}
	r13 := c.R13(s.D13CVPDB)
	r18 := c.R18VPDB() * (1 + s.D18OVPDB/1000) * c.Alpha18OAcid

	// D47raw depends on δ47, which depends weakly on D47raw; a few fixed-point
	// iterations converge well below 1e-12.
	var r isotope.Ratios
	d47 := 0.0
	for k := 0; k < 8; k++ {
		raw := m.A*s.D47 + m.B*d47 + m.C + t*(m.A2*s.D47+m.B2*d47+m.C2) + noise
		r, err = c.IsobarRatios(r13, r18, isotope.Anomalies{D47: raw})
		if err != nil {
			return Analysis{}, err
		}
		d47 = 1000 * (r.R47/wg.R47 - 1)
	}

	d13C, d18O := s.D13CVPDB, s.D18OVPDB
	tt := t
	return Analysis{
		UID:         uid,
		Session:     m.Name,
		Sample:      s.Name,
		Delta45:     1000 * (r.R45/wg.R45 - 1),
		Delta46:     1000 * (r.R46/wg.R46 - 1),
		Delta47:     d47,
		Delta48:     1000 * (r.R48/wg.R48 - 1),
		Delta49:     1000 * (r.R49/wg.R49 - 1),
		TimeTag:     &tt,
		NominalD13C: &d13C,
		NominalD18O: &d18O,
	}, nil
}
