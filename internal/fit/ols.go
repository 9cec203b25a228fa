package fit

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearResult is the outcome of an ordinary least-squares fit.
type LinearResult struct {
	Beta []float64
	// Unscaled is (AᵗA)⁻¹; multiply by the residual variance to obtain the
	// parameter covariance.
	Unscaled  *mat.SymDense
	Residuals []float64
	ChiSq     float64
}

// OrdinaryLeastSquares solves min |A·β − y|² through the normal equations.
func OrdinaryLeastSquares(a *mat.Dense, y []float64) (*LinearResult, error) {
	rows, cols := a.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("%w: %d rows for %d observations", ErrDimension, rows, len(y))
	}
	if rows < cols {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", ErrSingular, rows, cols)
	}

	ata := mat.NewSymDense(cols, nil)
	ata.SymOuterK(1, a.T())
	inv, err := invertSym(ata, DefaultSettings().MaxCondition)
	if err != nil {
		return nil, err
	}

	yv := mat.NewVecDense(rows, append([]float64(nil), y...))
	var aty, beta mat.VecDense
	aty.MulVec(a.T(), yv)
	beta.MulVec(inv, &aty)

	var fitted mat.VecDense
	fitted.MulVec(a, &beta)
	res := make([]float64, rows)
	chi := 0.0
	for i := range res {
		res[i] = y[i] - fitted.AtVec(i)
		chi += res[i] * res[i]
	}

	return &LinearResult{
		Beta:      append([]float64(nil), beta.RawVector().Data...),
		Unscaled:  inv,
		Residuals: res,
		ChiSq:     chi,
	}, nil
}
