// Package fit provides the weighted least-squares machinery used to
// standardize clumped-isotope data: an ordered parameter vector with its
// covariance matrix, a Levenberg-Marquardt solver and ordinary least squares.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned when a normal matrix cannot be inverted.
	ErrSingular = errors.New("singular or near-singular normal matrix")
	// ErrNoDegreesOfFreedom is returned when there are no more observations than parameters.
	ErrNoDegreesOfFreedom = errors.New("no degrees of freedom left")
	// ErrNotConverged is returned when the nonlinear solver gives up.
	ErrNotConverged = errors.New("least-squares fit did not converge")
	// ErrUnknownParam is returned when a parameter name is not part of the vector.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrDimension is returned when a transform does not match the vector size.
	ErrDimension = errors.New("dimension mismatch")
)

// Params is an ordered parameter vector together with its covariance matrix.
// The name order is fixed at construction and every index used to read the
// covariance matrix resolves through it.
type Params struct {
	names  []string
	index  map[string]int
	values []float64
	cov    *mat.SymDense
}

// NewParams creates a parameter vector with a zero covariance matrix.
func NewParams(names []string, values []float64) (*Params, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: %d names for %d values", ErrDimension, len(names), len(values))
	}
	p := &Params{
		names:  append([]string(nil), names...),
		index:  make(map[string]int, len(names)),
		values: append([]float64(nil), values...),
	}
	for i, n := range names {
		if _, dup := p.index[n]; dup {
			return nil, fmt.Errorf("duplicate parameter name %q", n)
		}
		p.index[n] = i
	}
	if len(names) > 0 {
		p.cov = mat.NewSymDense(len(names), nil)
	}
	return p, nil
}

// Len returns the number of parameters.
func (p *Params) Len() int { return len(p.names) }

// Names returns a copy of the ordered parameter names.
func (p *Params) Names() []string { return append([]string(nil), p.names...) }

// Values returns a copy of the parameter values.
func (p *Params) Values() []float64 { return append([]float64(nil), p.values...) }

// Index resolves a parameter name to its position in the vector.
func (p *Params) Index(name string) (int, bool) {
	i, ok := p.index[name]
	return i, ok
}

// Has reports whether name is part of the vector.
func (p *Params) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Value returns the value of a named parameter.
func (p *Params) Value(name string) (float64, bool) {
	i, ok := p.index[name]
	if !ok {
		return 0, false
	}
	return p.values[i], true
}

// Covariance returns the covariance between two named parameters.
func (p *Params) Covariance(a, b string) (float64, error) {
	i, ok := p.index[a]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParam, a)
	}
	j, ok := p.index[b]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParam, b)
	}
	return p.cov.At(i, j), nil
}

// SE returns the standard error of a named parameter, or 0 if it is unknown.
func (p *Params) SE(name string) float64 {
	i, ok := p.index[name]
	if !ok {
		return 0
	}
	v := p.cov.At(i, i)
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// CovarianceMatrix returns a copy of the full covariance matrix.
func (p *Params) CovarianceMatrix() *mat.SymDense {
	if p.cov == nil {
		return nil
	}
	c := mat.NewSymDense(p.Len(), nil)
	c.CopySym(p.cov)
	return c
}

// SubCovariance extracts the covariance block of the named parameters, in
// the order given.
func (p *Params) SubCovariance(names ...string) (*mat.SymDense, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty parameter selection", ErrDimension)
	}
	idx := make([]int, len(names))
	for k, n := range names {
		i, ok := p.index[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParam, n)
		}
		idx[k] = i
	}
	sub := mat.NewSymDense(len(names), nil)
	for a, i := range idx {
		for b := a; b < len(idx); b++ {
			sub.SetSym(a, b, p.cov.At(i, idx[b]))
		}
	}
	return sub, nil
}

// SetCovariance replaces the covariance matrix.
func (p *Params) SetCovariance(c mat.Symmetric) error {
	if c.SymmetricDim() != p.Len() {
		return fmt.Errorf("%w: covariance is %d×%d for %d parameters", ErrDimension, c.SymmetricDim(), c.SymmetricDim(), p.Len())
	}
	p.cov = mat.NewSymDense(p.Len(), nil)
	p.cov.CopySym(c)
	return nil
}

// ApplyLinearTransform maps the vector through w, an m×n matrix where n is
// the current length: values become w·v and the covariance w·C·wᵗ. names
// labels the m rows of the new vector.
func (p *Params) ApplyLinearTransform(w mat.Matrix, names []string) error {
	m, n := w.Dims()
	if n != p.Len() {
		return fmt.Errorf("%w: transform has %d columns for %d parameters", ErrDimension, n, p.Len())
	}
	if m != len(names) {
		return fmt.Errorf("%w: transform has %d rows for %d names", ErrDimension, m, len(names))
	}

	var v mat.VecDense
	v.MulVec(w, mat.NewVecDense(n, p.Values()))

	var wc, wcw mat.Dense
	wc.Mul(w, p.cov)
	wcw.Mul(&wc, w.T())

	next, err := NewParams(names, v.RawVector().Data)
	if err != nil {
		return err
	}
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			next.cov.SetSym(i, j, (wcw.At(i, j)+wcw.At(j, i))/2)
		}
	}
	*p = *next
	return nil
}
