package standardize

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/fit"
	"github.com/TobiSchelling/d47crunch/internal/stats"
)

// normalizeIndependent standardizes each session on its own anchors with an
// ordinary least-squares fit of D47raw against (nominal Δ47, δ47, 1).
func normalizeIndependent(ctx context.Context, ds *dataset.Dataset, opts Options) (*Result, error) {
	r := newResult(ds, opts)
	c := ds.Constants()
	unscaled := make(map[string]*mat.SymDense)

	for _, s := range ds.Sessions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rows []float64
		var y []float64
		for _, i := range ds.SessionIndices(s) {
			a := ds.At(i)
			if nominal, ok := c.Nominal(a.Sample); ok {
				rows = append(rows, nominal, a.Delta47, 1)
				y = append(y, a.D47Raw)
			}
		}
		if len(y) == 0 {
			return nil, fmt.Errorf("session %s: %w: no anchor analyses", s, fit.ErrSingular)
		}
		lr, err := fit.OrdinaryLeastSquares(mat.NewDense(len(y), 3, rows), y)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s, err)
		}
		a, b, cc := lr.Beta[0], lr.Beta[1], lr.Beta[2]
		if a == 0 {
			return nil, fmt.Errorf("session %s: %w", s, ErrZeroScale)
		}
		r.coefficients[s] = Coefficients{A: a, B: b, C: cc}
		unscaled[s] = lr.Unscaled

		for _, i := range ds.SessionIndices(s) {
			an := ds.At(i)
			an.D47 = (an.D47Raw - b*an.Delta47 - cc) / a
		}
		ds.Logger().Debug("session standardized",
			zap.String("session", s),
			zap.Float64("a", a),
			zap.Float64("b", b),
			zap.Float64("c", cc),
		)
	}

	nss := len(ds.Sessions())
	nu := len(ds.Unknowns())
	dof := ds.Len() - nu - 3*nss
	if dof <= 0 {
		return nil, fmt.Errorf("%w: %d analyses, %d unknowns, %d sessions", fit.ErrNoDegreesOfFreedom, ds.Len(), nu, nss)
	}
	chi := 0.0
	for _, sample := range ds.Samples() {
		x := ds.Values(dataset.FieldD47, ds.SampleIndices(sample))
		m := stat.Mean(x, nil)
		for _, v := range x {
			chi += (v - m) * (v - m)
		}
	}
	sigma47 := math.Sqrt(chi / float64(dof))
	r.Repro.Sigma47 = sigma47
	r.ChiSq = chi
	r.DoF = dof
	r.RedChiSq = chi / float64(dof)

	for _, s := range ds.Sessions() {
		co := r.coefficients[s]
		cm := mat.NewSymDense(3, nil)
		cm.ScaleSym(co.A*co.A*sigma47*sigma47, unscaled[s])
		co.CM = cm
		co.SEA = math.Sqrt(cm.At(0, 0))
		co.SEB = math.Sqrt(cm.At(1, 1))
		co.SEC = math.Sqrt(cm.At(2, 2))
		r.coefficients[s] = co
	}

	r.unknownSessions = make(map[string][]sessionAverage)
	for _, u := range ds.Unknowns() {
		var avgs []sessionAverage
		for _, s := range ds.Sessions() {
			idx := ds.SessionSampleIndices(s, u)
			if len(idx) == 0 {
				continue
			}
			sa := sessionAverage{
				session: s,
				n:       len(idx),
				D47:     stat.Mean(ds.Values(dataset.FieldD47, idx), nil),
				d47:     stat.Mean(ds.Values(dataset.FieldDelta47, idx), nil),
			}
			sigmaNorm, err := r.NormalizationError(s, sa.d47, sa.D47)
			if err != nil {
				return nil, err
			}
			sa.se = math.Hypot(sigma47/math.Sqrt(float64(sa.n)), sigmaNorm)
			avgs = append(avgs, sa)
		}
		r.unknownSessions[u] = avgs
	}
	if err := r.assignSessionWeights(); err != nil {
		return nil, err
	}
	return r, nil
}

// assignSessionWeights stores, for each unknown, the normalized inverse-variance
// weight of every session in its weighted average.
func (r *Result) assignSessionWeights() error {
	for u, avgs := range r.unknownSessions {
		sx := make([]float64, len(avgs))
		for k, a := range avgs {
			sx[k] = a.se
		}
		w, err := stats.InverseVarianceWeights(sx)
		if err != nil {
			return fmt.Errorf("sample %s: %w", u, err)
		}
		for k := range avgs {
			avgs[k].weight = w[k]
		}
	}
	return nil
}

// NormalizationError is the standard error contributed by the standardization
// of a session to a Δ47 value with the given δ47: √(V·CM·Vᵗ), with V the
// gradient of Δ47 with respect to (a, b, c).
func (r *Result) NormalizationError(session string, d47, D47 float64) (float64, error) {
	co, ok := r.coefficients[session]
	if !ok || co.CM == nil {
		return 0, fmt.Errorf("unknown session %q", session)
	}
	v := mat.NewVecDense(3, []float64{-D47 / co.A, -d47 / co.A, -1 / co.A})
	q := mat.Inner(v, co.CM, v)
	if q < 0 {
		q = 0
	}
	return math.Sqrt(q), nil
}
