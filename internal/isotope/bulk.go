package isotope

import (
	"fmt"
	"math"
)

// BulkDeltas inverts the R45 and R46 isobar ratios into δ13C_VPDB and
// δ18O_VSMOW (‰), for a given Δ17O (‰).
//
// It solves the generalized form of equation 17 of Brand et al. (2010) with a
// second-order Taylor expansion of R17 around VSMOW (Daëron et al., 2016,
// appendix A). The result is accurate for δ18O_VSMOW within about ±50 ‰.
func (c Constants) BulkDeltas(r45, r46, d17O float64) (d13CVPDB, d18OVSMOW float64, err error) {
	if !validRatio(r45) || !validRatio(r46) {
		return 0, 0, fmt.Errorf("%w: R45=%g R46=%g", ErrInvalidRatio, r45, r46)
	}
	lambda := c.Lambda17
	k := math.Exp(d17O/1000) * c.R17VSMOW * math.Pow(c.R18VSMOW, -lambda)

	A := -3 * k * k * math.Pow(c.R18VSMOW, 2*lambda)
	B := 2 * k * r45 * math.Pow(c.R18VSMOW, lambda)
	C := 2 * c.R18VSMOW
	D := -r46

	aa := A*lambda*(2*lambda-1) + B*lambda*(lambda-1)/2
	bb := 2*A*lambda + B*lambda + C
	cc := A + B + C + D

	disc := bb*bb - 4*aa*cc
	if disc < 0 {
		return 0, 0, fmt.Errorf("%w: R45=%g R46=%g", ErrNegativeDiscriminant, r45, r46)
	}
	d18OVSMOW = 1000 * (-bb + math.Sqrt(disc)) / (2 * aa)

	r18 := c.R18(d18OVSMOW)
	r17 := k * math.Pow(r18, lambda)
	r13 := r45 - 2*r17
	d13CVPDB = 1000 * (r13/c.R13VPDB - 1)
	return d13CVPDB, d18OVSMOW, nil
}
