package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Problem describes a nonlinear least-squares problem: minimize the sum of
// squared residuals over the parameter vector x.
type Problem struct {
	// NumResiduals is the number of residuals, i.e. observations.
	NumResiduals int
	// Residuals writes the weighted residuals at x into dst.
	Residuals func(dst, x []float64)
	// Jacobian writes d(residual_i)/d(x_j) at x into jac.
	Jacobian func(jac *mat.Dense, x []float64)
}

// Settings tunes the Levenberg-Marquardt iterations.
type Settings struct {
	MaxIterations  int
	FTol           float64 // relative reduction of χ² below which the fit stops
	XTol           float64 // relative step size below which the fit stops
	GTol           float64 // cosine between residuals and Jacobian columns
	InitialDamping float64
	// MaxCondition is the largest acceptable condition number of JᵗJ at the
	// solution.
	MaxCondition float64
}

// DefaultSettings returns the solver settings used for standardization.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:  1000,
		FTol:           1e-12,
		XTol:           1e-12,
		GTol:           1e-14,
		InitialDamping: 1e-3,
		MaxCondition:   1e14,
	}
}

// Result is the outcome of a least-squares fit.
type Result struct {
	X          []float64
	Residuals  []float64
	ChiSq      float64
	DoF        int
	RedChiSq   float64
	Iterations int
	// Covariance is (JᵗJ)⁻¹ scaled by the reduced χ².
	Covariance *mat.SymDense
}

const maxDamping = 1e32

// LevenbergMarquardt minimizes the problem starting from x0.
func LevenbergMarquardt(p Problem, x0 []float64, s Settings) (*Result, error) {
	n, np := p.NumResiduals, len(x0)
	if np == 0 {
		return nil, fmt.Errorf("%w: no free parameters", ErrDimension)
	}
	dof := n - np
	if dof <= 0 {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrNoDegreesOfFreedom, n, np)
	}

	x := append([]float64(nil), x0...)
	trial := make([]float64, np)
	r := make([]float64, n)
	rTrial := make([]float64, n)
	jac := mat.NewDense(n, np, nil)
	jtj := mat.NewSymDense(np, nil)
	damped := mat.NewSymDense(np, nil)
	var grad, step mat.VecDense

	p.Residuals(r, x)
	chi := floats.Dot(r, r)
	lambda := s.InitialDamping

	iter := 0
	converged := false
	for ; iter < s.MaxIterations && !converged; iter++ {
		if chi == 0 {
			converged = true
			break
		}
		p.Jacobian(jac, x)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(n, r))

		if gradientConverged(jac, &grad, chi, s.GTol) {
			converged = true
			break
		}

		for {
			damped.CopySym(jtj)
			for j := 0; j < np; j++ {
				d := jtj.At(j, j)
				if d == 0 {
					d = 1
				}
				damped.SetSym(j, j, jtj.At(j, j)+lambda*d)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				if lambda > maxDamping {
					return nil, fmt.Errorf("%w: damped normal matrix is not positive definite", ErrNotConverged)
				}
				continue
			}
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSingular, err)
			}
			for j := range trial {
				trial[j] = x[j] - step.AtVec(j)
			}
			p.Residuals(rTrial, trial)
			chiTrial := floats.Dot(rTrial, rTrial)

			small := mat.Norm(&step, 2) <= s.XTol*(floats.Norm(x, 2)+s.XTol)
			if chiTrial < chi && !math.IsNaN(chiTrial) {
				reduction := (chi - chiTrial) / chi
				copy(x, trial)
				copy(r, rTrial)
				chi = chiTrial
				lambda = math.Max(lambda/10, 1e-12)
				converged = reduction <= s.FTol || small
				break
			}
			if small {
				converged = true
				break
			}
			lambda *= 10
			if lambda > maxDamping {
				return nil, fmt.Errorf("%w: no downhill step found (χ²=%g)", ErrNotConverged, chi)
			}
		}
	}
	if !converged {
		return nil, fmt.Errorf("%w after %d iterations (χ²=%g)", ErrNotConverged, iter, chi)
	}

	p.Jacobian(jac, x)
	jtj.SymOuterK(1, jac.T())
	inv, err := invertSym(jtj, s.MaxCondition)
	if err != nil {
		return nil, err
	}
	red := chi / float64(dof)
	inv.ScaleSym(red, inv)

	return &Result{
		X:          x,
		Residuals:  r,
		ChiSq:      chi,
		DoF:        dof,
		RedChiSq:   red,
		Iterations: iter,
		Covariance: inv,
	}, nil
}

// gradientConverged reports whether the residual vector is orthogonal, to
// within gtol, to every column of the Jacobian.
func gradientConverged(jac *mat.Dense, grad *mat.VecDense, chi, gtol float64) bool {
	if gtol <= 0 {
		return false
	}
	_, np := jac.Dims()
	rnorm := math.Sqrt(chi)
	for j := 0; j < np; j++ {
		cn := mat.Norm(jac.ColView(j), 2)
		if cn == 0 {
			continue
		}
		if math.Abs(grad.AtVec(j))/(cn*rnorm) > gtol {
			return false
		}
	}
	return true
}

// invertSym inverts a symmetric positive-definite matrix, refusing matrices
// whose condition number exceeds maxCond.
func invertSym(a *mat.SymDense, maxCond float64) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, fmt.Errorf("%w: matrix is not positive definite", ErrSingular)
	}
	if maxCond > 0 && chol.Cond() > maxCond {
		return nil, fmt.Errorf("%w: condition number %.3g", ErrSingular, chol.Cond())
	}
	n := a.SymmetricDim()
	inv := mat.NewSymDense(n, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return inv, nil
}
