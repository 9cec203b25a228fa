// Package isotope holds the physical constants of the 17O correction and the
// pure functions relating bulk isotope ratios to CO2 isobar ratios.
package isotope

import (
	"errors"
	"math"
	"sort"
)

var (
	// ErrNegativeDiscriminant is returned when the bulk-composition quadratic
	// has no real root, i.e. the R45/R46 pair is unphysical.
	ErrNegativeDiscriminant = errors.New("negative discriminant in bulk composition")
	// ErrInvalidRatio is returned for negative, zero or non-finite isotope ratios.
	ErrInvalidRatio = errors.New("invalid isotope ratio")
	// ErrAcidFractionation is returned when the acid fractionation factor is not positive.
	ErrAcidFractionation = errors.New("acid fractionation factor must be positive")
)

// VPDB/VSMOW 18O scale conversion factor.
const vpdbToVSMOW = 1.03092

// Constants is the immutable set of reference ratios used for a reduction run.
// Build one with Default and derive variants with the With* methods; a
// Constants value is never modified in place.
type Constants struct {
	R13VPDB      float64 // 13C/12C of VPDB (Chang & Li, 1990)
	R18VSMOW     float64 // 18O/16O of VSMOW (Baertschi, 1976)
	R17VSMOW     float64 // 17O/16O of VSMOW (Assonov & Brenninkmeijer, 2003, rescaled)
	Lambda17     float64 // triple oxygen mass-dependent exponent (Barkan & Luz, 2005)
	Alpha18OAcid float64 // 18O/16O fractionation of the acid reaction

	anchors map[string]float64
}

// DefaultAlpha18OAcid is the calcite acid fractionation at 90 °C (Kim et al., 2007).
var DefaultAlpha18OAcid = math.Exp(3.59/(90+273.15) - 1.79e-3)

// DefaultAnchors are the ETH standards nominal Δ47 values (Bernasconi et al., 2018).
func DefaultAnchors() map[string]float64 {
	return map[string]float64{
		"ETH-1": 0.258,
		"ETH-2": 0.256,
		"ETH-3": 0.691,
	}
}

// Default returns the reference constants.
func Default() Constants {
	return Constants{
		R13VPDB:      0.01118,
		R18VSMOW:     0.0020052,
		R17VSMOW:     0.00038475,
		Lambda17:     0.528,
		Alpha18OAcid: DefaultAlpha18OAcid,
		anchors:      DefaultAnchors(),
	}
}

// WithAnchors returns a copy of c using the given nominal Δ47 values.
func (c Constants) WithAnchors(nominal map[string]float64) Constants {
	m := make(map[string]float64, len(nominal))
	for k, v := range nominal {
		m[k] = v
	}
	c.anchors = m
	return c
}

// Nominal returns the nominal Δ47 of an anchor sample.
func (c Constants) Nominal(sample string) (float64, bool) {
	v, ok := c.anchors[sample]
	return v, ok
}

// IsAnchor reports whether sample has a nominal Δ47.
func (c Constants) IsAnchor(sample string) bool {
	_, ok := c.anchors[sample]
	return ok
}

// AnchorNames returns the anchor names in sorted order.
func (c Constants) AnchorNames() []string {
	names := make([]string, 0, len(c.anchors))
	for k := range c.anchors {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// R18VPDB is the 18O/16O ratio of VPDB.
func (c Constants) R18VPDB() float64 {
	return c.R18VSMOW * vpdbToVSMOW
}

// R17VPDB is the 17O/16O ratio of VPDB.
func (c Constants) R17VPDB() float64 {
	return c.R17VSMOW * math.Pow(vpdbToVSMOW, c.Lambda17)
}

// R13 converts δ13C_VPDB (‰) to an absolute 13C/12C ratio.
func (c Constants) R13(d13CVPDB float64) float64 {
	return c.R13VPDB * (1 + d13CVPDB/1000)
}

// R18 converts δ18O_VSMOW (‰) to an absolute 18O/16O ratio.
func (c Constants) R18(d18OVSMOW float64) float64 {
	return c.R18VSMOW * (1 + d18OVSMOW/1000)
}
