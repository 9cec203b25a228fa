package standardize

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/TobiSchelling/d47crunch/internal/stats"
)

// SampleCovariance returns the covariance between the Δ47 values of two
// samples, or the variance when s1 == s2. Anchors have no uncertainty.
func (r *Result) SampleCovariance(s1, s2 string) (float64, error) {
	a, ok := r.Sample(s1)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSample, s1)
	}
	b, ok := r.Sample(s2)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSample, s2)
	}
	if a.Anchor || b.Anchor {
		return 0, nil
	}

	if r.Method == Joint {
		return r.Params.Covariance(prefixD47+s1, prefixD47+s2)
	}

	if s1 == s2 {
		return a.SE * a.SE, nil
	}
	c := 0.0
	for _, x := range r.unknownSessions[s1] {
		for _, y := range r.unknownSessions[s2] {
			if x.session != y.session {
				continue
			}
			co := r.coefficients[x.session]
			u := mat.NewVecDense(3, []float64{x.D47, x.d47, 1})
			v := mat.NewVecDense(3, []float64{y.D47, y.d47, 1})
			c += x.weight * y.weight * mat.Inner(u, co.CM, v) / (co.A * co.A)
		}
	}
	return c, nil
}

// CovarianceMatrix returns the Δ47 covariance matrix of the given samples.
func (r *Result) CovarianceMatrix(samples []string) (*mat.SymDense, error) {
	n := len(samples)
	if n == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrUnknownSample)
	}
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v, err := r.SampleCovariance(samples[i], samples[j])
			if err != nil {
				return nil, err
			}
			c.SetSym(i, j, v)
		}
	}
	return c, nil
}

// SampleAverage returns a weighted combination of the Δ47 values of samples
// and its standard error, accounting for their covariance. Nil weights give
// equal weights. With normalize, weights are rescaled to sum to one, so
// weights {1, -1} with normalize false yield the difference of two samples.
func (r *Result) SampleAverage(samples []string, weights []float64, normalize bool) (value, se float64, err error) {
	if weights == nil {
		weights = make([]float64, len(samples))
		for i := range weights {
			weights[i] = 1 / float64(len(samples))
		}
	} else {
		weights = append([]float64(nil), weights...)
	}
	if len(weights) != len(samples) {
		return 0, 0, fmt.Errorf("%w: %d weights for %d samples", stats.ErrDimension, len(weights), len(samples))
	}
	if normalize {
		sum := floats.Sum(weights)
		if sum == 0 {
			return 0, 0, errors.New("weights sum to zero")
		}
		floats.Scale(1/sum, weights)
	}

	x := make([]float64, len(samples))
	for i, s := range samples {
		smp, ok := r.Sample(s)
		if !ok {
			return 0, 0, fmt.Errorf("%w: %s", ErrUnknownSample, s)
		}
		x[i] = smp.D47
	}
	c, err := r.CovarianceMatrix(samples)
	if err != nil {
		return 0, 0, err
	}
	return stats.CorrelatedSum(x, c, weights)
}
