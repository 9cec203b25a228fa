package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func exponentialProblem(xs, ys []float64) Problem {
	return Problem{
		NumResiduals: len(xs),
		Residuals: func(dst, p []float64) {
			for i, x := range xs {
				dst[i] = ys[i] - p[0]*math.Exp(p[1]*x)
			}
		},
		Jacobian: func(jac *mat.Dense, p []float64) {
			for i, x := range xs {
				e := math.Exp(p[1] * x)
				jac.Set(i, 0, -e)
				jac.Set(i, 1, -p[0]*x*e)
			}
		},
	}
}

func linearProblem(xs, ys []float64) Problem {
	return Problem{
		NumResiduals: len(xs),
		Residuals: func(dst, p []float64) {
			for i, x := range xs {
				dst[i] = ys[i] - (p[0]*x + p[1])
			}
		},
		Jacobian: func(jac *mat.Dense, p []float64) {
			for i, x := range xs {
				jac.Set(i, 0, -x)
				jac.Set(i, 1, -1)
			}
		},
	}
}

func TestLevenbergMarquardtExactRecovery(t *testing.T) {
	var xs, ys []float64
	for i := 0; i < 10; i++ {
		x := float64(i)
		xs = append(xs, x)
		ys = append(ys, 2*math.Exp(-0.3*x))
	}

	res, err := LevenbergMarquardt(exponentialProblem(xs, ys), []float64{1, -0.1}, DefaultSettings())
	require.NoError(t, err)
	assert.InDelta(t, 2, res.X[0], 1e-9)
	assert.InDelta(t, -0.3, res.X[1], 1e-9)
	assert.Less(t, res.ChiSq, 1e-20)
	assert.Equal(t, 8, res.DoF)
}

func TestLevenbergMarquardtMatchesOLS(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	noise := []float64{0.1, -0.2, 0.05, 0.12, -0.07, -0.15, 0.2, -0.05}
	ys := make([]float64, len(xs))
	a := mat.NewDense(len(xs), 2, nil)
	for i, x := range xs {
		ys[i] = 1.5*x - 0.7 + noise[i]
		a.Set(i, 0, x)
		a.Set(i, 1, 1)
	}

	nl, err := LevenbergMarquardt(linearProblem(xs, ys), []float64{0, 0}, DefaultSettings())
	require.NoError(t, err)
	lin, err := OrdinaryLeastSquares(a, ys)
	require.NoError(t, err)

	assert.InDelta(t, lin.Beta[0], nl.X[0], 1e-10)
	assert.InDelta(t, lin.Beta[1], nl.X[1], 1e-10)
	assert.InDelta(t, lin.ChiSq, nl.ChiSq, 1e-12)

	scale := lin.ChiSq / float64(len(xs)-2)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, lin.Unscaled.At(i, j)*scale, nl.Covariance.At(i, j), 1e-12)
		}
	}
}

func TestLevenbergMarquardtNotConverged(t *testing.T) {
	var xs, ys []float64
	for i := 0; i < 10; i++ {
		xs = append(xs, float64(i))
		ys = append(ys, 2*math.Exp(-0.3*float64(i)))
	}
	s := DefaultSettings()
	s.MaxIterations = 1
	_, err := LevenbergMarquardt(exponentialProblem(xs, ys), []float64{1, -0.1}, s)
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestLevenbergMarquardtNoDegreesOfFreedom(t *testing.T) {
	_, err := LevenbergMarquardt(linearProblem([]float64{0, 1}, []float64{1, 2}), []float64{0, 0}, DefaultSettings())
	assert.ErrorIs(t, err, ErrNoDegreesOfFreedom)
}

func TestLevenbergMarquardtSingular(t *testing.T) {
	// Two parameters that only ever appear as their sum.
	p := Problem{
		NumResiduals: 4,
		Residuals: func(dst, x []float64) {
			for i := range dst {
				dst[i] = float64(i) - (x[0] + x[1])
			}
		},
		Jacobian: func(jac *mat.Dense, x []float64) {
			for i := 0; i < 4; i++ {
				jac.Set(i, 0, -1)
				jac.Set(i, 1, -1)
			}
		},
	}
	_, err := LevenbergMarquardt(p, []float64{0, 0}, DefaultSettings())
	assert.ErrorIs(t, err, ErrSingular)
}

func TestOrdinaryLeastSquaresSingular(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		1, 2, 1,
		2, 4, 1,
		3, 6, 1,
	})
	_, err := OrdinaryLeastSquares(a, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrSingular)

	_, err = OrdinaryLeastSquares(mat.NewDense(2, 3, nil), []float64{1, 2})
	assert.ErrorIs(t, err, ErrSingular)
}

func TestParamsLookup(t *testing.T) {
	p, err := NewParams([]string{"a", "b", "X"}, []float64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, p.SetCovariance(mat.NewSymDense(3, []float64{
		4, 1, 0.5,
		1, 9, 0,
		0.5, 0, 16,
	})))

	i, ok := p.Index("X")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	v, ok := p.Value("b")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, 4.0, p.SE("X"))
	assert.Equal(t, 0.0, p.SE("missing"))

	c, err := p.Covariance("a", "X")
	require.NoError(t, err)
	assert.Equal(t, 0.5, c)
	_, err = p.Covariance("a", "nope")
	assert.ErrorIs(t, err, ErrUnknownParam)

	sub, err := p.SubCovariance("X", "a")
	require.NoError(t, err)
	assert.Equal(t, 16.0, sub.At(0, 0))
	assert.Equal(t, 0.5, sub.At(0, 1))
	assert.Equal(t, 4.0, sub.At(1, 1))

	_, err = NewParams([]string{"a", "a"}, []float64{1, 2})
	assert.Error(t, err)
}

func TestApplyLinearTransformSplitMergeIdentity(t *testing.T) {
	p, err := NewParams([]string{"a", "X"}, []float64{0.9, 0.6})
	require.NoError(t, err)
	require.NoError(t, p.SetCovariance(mat.NewSymDense(2, []float64{
		0.01, 0.002,
		0.002, 0.0004,
	})))

	split := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		0, 1,
	})
	require.NoError(t, p.ApplyLinearTransform(split, []string{"a", "X__1", "X__2"}))
	assert.Equal(t, []float64{0.9, 0.6, 0.6}, p.Values())
	c, _ := p.Covariance("X__1", "X__2")
	assert.InDelta(t, 0.0004, c, 1e-15)

	merge := mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 0.5, 0.5,
	})
	require.NoError(t, p.ApplyLinearTransform(merge, []string{"a", "X"}))
	assert.InDelta(t, 0.6, p.Values()[1], 1e-15)
	assert.InDelta(t, 0.02, p.SE("X"), 1e-15)
	c, _ = p.Covariance("a", "X")
	assert.InDelta(t, 0.002, c, 1e-15)
}

func TestApplyLinearTransformDimensions(t *testing.T) {
	p, err := NewParams([]string{"a", "b"}, []float64{1, 2})
	require.NoError(t, err)
	assert.ErrorIs(t, p.ApplyLinearTransform(mat.NewDense(1, 3, nil), []string{"x"}), ErrDimension)
	assert.ErrorIs(t, p.ApplyLinearTransform(mat.NewDense(1, 2, nil), []string{"x", "y"}), ErrDimension)
}
