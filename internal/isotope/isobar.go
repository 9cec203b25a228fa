package isotope

import (
	"fmt"
	"math"
)

// Ratios holds the five CO2 isobar ratios, each relative to mass 44.
type Ratios struct {
	R45, R46, R47, R48, R49 float64
}

// Anomalies are the optional departures, in permil, from a mass-dependent and
// stochastic isotope distribution.
type Anomalies struct {
	D17O float64
	D47  float64
	D48  float64
	D49  float64
}

// IsobarRatios computes the isobar ratios of CO2 with bulk ratios r13 and r18,
// assuming a stochastic distribution of isotopes among isotopologues, then
// applies the optional clumped-isotope anomalies in an.
func (c Constants) IsobarRatios(r13, r18 float64, an Anomalies) (Ratios, error) {
	if !validRatio(r13) || !validRatio(r18) {
		return Ratios{}, fmt.Errorf("%w: R13=%g R18=%g", ErrInvalidRatio, r13, r18)
	}

	r17 := c.R17VSMOW * math.Exp(an.D17O/1000) * math.Pow(r18/c.R18VSMOW, c.Lambda17)

	c12 := 1 / (1 + r13)
	c13 := c12 * r13
	c16 := 1 / (1 + r17 + r18)
	c17 := c16 * r17
	c18 := c16 * r18

	c626 := c16 * c12 * c16
	c627 := c16 * c12 * c17 * 2
	c628 := c16 * c12 * c18 * 2
	c636 := c16 * c13 * c16
	c637 := c16 * c13 * c17 * 2
	c638 := c16 * c13 * c18 * 2
	c727 := c17 * c12 * c17
	c728 := c17 * c12 * c18 * 2
	c737 := c17 * c13 * c17
	c738 := c17 * c13 * c18 * 2
	c828 := c18 * c12 * c18
	c838 := c18 * c13 * c18

	r := Ratios{
		R45: (c636 + c627) / c626,
		R46: (c628 + c637 + c727) / c626,
		R47: (c638 + c728 + c737) / c626,
		R48: (c738 + c828) / c626,
		R49: c838 / c626,
	}
	r.R47 *= 1 + an.D47/1000
	r.R48 *= 1 + an.D48/1000
	r.R49 *= 1 + an.D49/1000

	if math.IsNaN(r.R49) || math.IsInf(r.R45, 0) {
		return Ratios{}, fmt.Errorf("%w: non-finite isobar ratios", ErrInvalidRatio)
	}
	return r, nil
}

// CarbonateRatios returns the isobar ratios of CO2 evolved by acid digestion
// of a carbonate with the given δ13C_VPDB and δ18O_VPDB.
func (c Constants) CarbonateRatios(d13CVPDB, d18OVPDB float64) (Ratios, error) {
	if !(c.Alpha18OAcid > 0) {
		return Ratios{}, fmt.Errorf("%w: got %g", ErrAcidFractionation, c.Alpha18OAcid)
	}
	r13 := c.R13(d13CVPDB)
	r18 := c.R18VPDB() * (1 + d18OVPDB/1000) * c.Alpha18OAcid
	return c.IsobarRatios(r13, r18, Anomalies{})
}

func validRatio(r float64) bool {
	return r > 0 && !math.IsInf(r, 0)
}
