// Package stats implements the summary statistics used to report clumped
// isotope results: pooled reproducibility, Levene's test, inverse-variance
// averaging and covariance-aware linear combinations.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDimension is returned when inputs of a combination have inconsistent sizes.
var ErrDimension = errors.New("dimension mismatch")

// T95 returns the two-sided 95 % Student's t critical value for dof degrees
// of freedom.
func T95(dof int) float64 {
	if dof <= 0 {
		return math.NaN()
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}.Quantile(1 - 0.05/2)
}

// PooledSD returns the pooled standard deviation of replicate groups: the
// within-group sum of squares divided by Σ(n−1). Groups with a single
// member do not contribute; the result is 0 if no group has replicates.
func PooledSD(groups [][]float64) float64 {
	chisq, nf := 0.0, 0
	for _, g := range groups {
		if len(g) < 2 {
			continue
		}
		m := stat.Mean(g, nil)
		for _, x := range g {
			chisq += (x - m) * (x - m)
		}
		nf += len(g) - 1
	}
	if nf == 0 {
		return 0
	}
	return math.Sqrt(chisq / float64(nf))
}

// SD is the sample standard deviation, NaN for fewer than two values.
func SD(x []float64) float64 {
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.StdDev(x, nil)
}

// Levene performs the median-centred (Brown-Forsythe) Levene test of equal
// variances between populations, returning the W statistic and its p-value.
// Both are NaN when the test is undefined, e.g. fewer than two values in a
// population or no spread at all.
func Levene(pops ...[]float64) (w, p float64) {
	k := len(pops)
	if k < 2 {
		return math.NaN(), math.NaN()
	}
	z := make([][]float64, k)
	zbar := make([]float64, k)
	total := 0
	for i, pop := range pops {
		if len(pop) == 0 {
			return math.NaN(), math.NaN()
		}
		med := median(pop)
		z[i] = make([]float64, len(pop))
		for j, x := range pop {
			z[i][j] = math.Abs(x - med)
		}
		zbar[i] = stat.Mean(z[i], nil)
		total += len(pop)
	}
	if total-k <= 0 {
		return math.NaN(), math.NaN()
	}

	grand := 0.0
	for i := range z {
		grand += floats.Sum(z[i])
	}
	grand /= float64(total)

	between, within := 0.0, 0.0
	for i := range z {
		between += float64(len(z[i])) * (zbar[i] - grand) * (zbar[i] - grand)
		for _, v := range z[i] {
			within += (v - zbar[i]) * (v - zbar[i])
		}
	}
	if within == 0 {
		return math.NaN(), math.NaN()
	}
	w = float64(total-k) / float64(k-1) * between / within
	f := distuv.F{D1: float64(k - 1), D2: float64(total - k)}
	return w, f.Survival(w)
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// WeightedAverage returns the inverse-variance weighted mean of x and its
// standard error, treating the estimates as independent.
func WeightedAverage(x, sx []float64) (avg, se float64, err error) {
	w, err := InverseVarianceWeights(sx)
	if err != nil {
		return 0, 0, err
	}
	if len(x) != len(sx) {
		return 0, 0, fmt.Errorf("%w: %d values for %d errors", ErrDimension, len(x), len(sx))
	}
	v := 0.0
	for i := range x {
		avg += w[i] * x[i]
		v += w[i] * w[i] * sx[i] * sx[i]
	}
	return avg, math.Sqrt(v), nil
}

// InverseVarianceWeights returns weights proportional to sx⁻², summing to 1.
func InverseVarianceWeights(sx []float64) ([]float64, error) {
	if len(sx) == 0 {
		return nil, fmt.Errorf("%w: no estimates to average", ErrDimension)
	}
	w := make([]float64, len(sx))
	for i, s := range sx {
		if !(s > 0) {
			return nil, fmt.Errorf("standard error must be positive, got %g", s)
		}
		w[i] = 1 / (s * s)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w, nil
}

// CorrelatedSum returns f·x and its standard error √(f·C·f) for the
// covariance matrix c of x. A nil f sums with unit weights.
func CorrelatedSum(x []float64, c mat.Symmetric, f []float64) (value, se float64, err error) {
	n := len(x)
	if f == nil {
		f = make([]float64, n)
		for i := range f {
			f[i] = 1
		}
	}
	if len(f) != n || c.SymmetricDim() != n {
		return 0, 0, fmt.Errorf("%w: %d values, %d weights, %d×%d covariance", ErrDimension, n, len(f), c.SymmetricDim(), c.SymmetricDim())
	}
	fv := mat.NewVecDense(n, append([]float64(nil), f...))
	v := mat.Inner(fv, c, fv)
	if v < 0 {
		// Round-off on a positive semi-definite matrix.
		v = 0
	}
	return floats.Dot(f, x), math.Sqrt(v), nil
}
