package standardize

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/fit"
)

// Parameter name prefixes of the joint fit.
const (
	prefixA   = "a_"
	prefixB   = "b_"
	prefixC   = "c_"
	prefixA2  = "a2_"
	prefixB2  = "b2_"
	prefixC2  = "c2_"
	prefixD47 = "D47_"
)

// jointRow is one residual of the joint fit. Parameter indices are -1 when
// the corresponding term is not fitted.
type jointRow struct {
	ia, ib, ic    int
	ia2, ib2, ic2 int
	iu            int

	nominal float64
	raw     float64
	d47     float64
	t       float64
	w       float64
}

type jointModel struct {
	names []string
	x0    []float64
	rows  []jointRow
	// nSession is the number of session coefficients, which precede the
	// sample Δ47 values in the parameter vector.
	nSession int
}

func buildJointModel(ds *dataset.Dataset, opts Options) *jointModel {
	m := &jointModel{}
	add := func(name string, v float64) int {
		m.names = append(m.names, name)
		m.x0 = append(m.x0, v)
		return len(m.names) - 1
	}

	type sessionIdx struct{ a, b, c, a2, b2, c2 int }
	sidx := make(map[string]sessionIdx)
	for _, s := range ds.Sessions() {
		d := opts.Drift[s]
		si := sessionIdx{a2: -1, b2: -1, c2: -1}
		si.a = add(prefixA+s, 0.9)
		si.b = add(prefixB+s, 0)
		si.c = add(prefixC+s, -0.9)
		if d.Scrambling {
			si.a2 = add(prefixA2+s, 0)
		}
		if d.Slope {
			si.b2 = add(prefixB2+s, 0)
		}
		if d.WG {
			si.c2 = add(prefixC2+s, 0)
		}
		sidx[s] = si
	}
	m.nSession = len(m.names)

	uidx := make(map[string]int)
	for _, u := range ds.Unknowns() {
		uidx[u] = add(prefixD47+u, 0.6)
	}

	c := ds.Constants()
	for _, a := range ds.Analyses() {
		si := sidx[a.Session]
		row := jointRow{
			ia:  si.a,
			ib:  si.b,
			ic:  si.c,
			ia2: si.a2,
			ib2: si.b2,
			ic2: si.c2,
			iu:  -1,
			raw: a.D47Raw,
			d47: a.Delta47,
			t:   a.T,
			w:   a.Weight,
		}
		if nominal, ok := c.Nominal(a.Sample); ok {
			row.nominal = nominal
		} else {
			row.iu = uidx[a.Sample]
		}
		m.rows = append(m.rows, row)
	}
	return m
}

func at(x []float64, i int) float64 {
	if i < 0 {
		return 0
	}
	return x[i]
}

func (m *jointModel) problem() fit.Problem {
	return fit.Problem{
		NumResiduals: len(m.rows),
		Residuals: func(dst, x []float64) {
			for k, r := range m.rows {
				X := r.nominal
				if r.iu >= 0 {
					X = x[r.iu]
				}
				model := x[r.ia]*X + x[r.ib]*r.d47 + x[r.ic] +
					r.t*(at(x, r.ia2)*X+at(x, r.ib2)*r.d47+at(x, r.ic2))
				dst[k] = (r.raw - model) / r.w
			}
		},
		Jacobian: func(jac *mat.Dense, x []float64) {
			jac.Zero()
			for k, r := range m.rows {
				X := r.nominal
				if r.iu >= 0 {
					X = x[r.iu]
				}
				jac.Set(k, r.ia, -X/r.w)
				jac.Set(k, r.ib, -r.d47/r.w)
				jac.Set(k, r.ic, -1/r.w)
				if r.ia2 >= 0 {
					jac.Set(k, r.ia2, -r.t*X/r.w)
				}
				if r.ib2 >= 0 {
					jac.Set(k, r.ib2, -r.t*r.d47/r.w)
				}
				if r.ic2 >= 0 {
					jac.Set(k, r.ic2, -r.t/r.w)
				}
				if r.iu >= 0 {
					jac.Set(k, r.iu, -(x[r.ia]+r.t*at(x, r.ia2))/r.w)
				}
			}
		},
	}
}

// jointFit runs the joint regression on ds with the current analysis weights.
func jointFit(ds *dataset.Dataset, opts Options) (*jointModel, *fit.Result, error) {
	m := buildJointModel(ds, opts)
	res, err := fit.LevenbergMarquardt(m.problem(), m.x0, opts.Settings)
	if err != nil {
		return nil, nil, err
	}
	return m, res, nil
}

func resetWeights(ds *dataset.Dataset, w float64) {
	for i := 0; i < ds.Len(); i++ {
		ds.At(i).Weight = w
	}
}

func validateGroups(ds *dataset.Dataset, groups [][]string) error {
	seen := make(map[string]bool)
	for _, g := range groups {
		if len(g) == 0 {
			return fmt.Errorf("%w: empty group", ErrSessionGroups)
		}
		for _, s := range g {
			if len(ds.SessionIndices(s)) == 0 {
				return fmt.Errorf("%w: unknown session %q", ErrSessionGroups, s)
			}
			if seen[s] {
				return fmt.Errorf("%w: session %q in several groups", ErrSessionGroups, s)
			}
			seen[s] = true
		}
	}
	return nil
}

// weightSessions fits each session group on its own and scales the weights of
// its analyses by the square root of the group's reduced χ².
func weightSessions(ctx context.Context, ds *dataset.Dataset, opts Options) error {
	if err := validateGroups(ds, opts.WeightedSessions); err != nil {
		return err
	}
	sub := opts
	sub.WeightedSessions = nil

	type group struct {
		data   *dataset.Dataset
		origin []int
	}
	groups := make([]group, len(opts.WeightedSessions))
	for k, sessions := range opts.WeightedSessions {
		groups[k].data, groups[k].origin = ds.Subset(sessions)
	}

	scale := make([]float64, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	for k := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, res, err := jointFit(groups[k].data, sub)
			if err != nil {
				return fmt.Errorf("session group %v: %w", opts.WeightedSessions[k], err)
			}
			scale[k] = math.Sqrt(res.RedChiSq)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for k, gr := range groups {
		for _, i := range gr.origin {
			ds.At(i).Weight *= scale[k]
		}
		ds.Logger().Info("session group weighted",
			zap.Strings("sessions", opts.WeightedSessions[k]),
			zap.Float64("mrswd", scale[k]),
		)
	}
	return nil
}

func normalizeJoint(ctx context.Context, ds *dataset.Dataset, opts Options) (*Result, error) {
	resetWeights(ds, opts.Weight)
	if len(opts.WeightedSessions) > 0 {
		if err := weightSessions(ctx, ds, opts); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, res, err := jointFit(ds, opts)
	if err != nil {
		return nil, err
	}
	params, err := fit.NewParams(m.names, res.X)
	if err != nil {
		return nil, err
	}
	if err := params.SetCovariance(res.Covariance); err != nil {
		return nil, err
	}

	r := newResult(ds, opts)
	r.Params = params
	r.DoF = res.DoF
	r.ChiSq = res.ChiSq
	r.RedChiSq = res.RedChiSq
	r.Iterations = res.Iterations
	r.nSession = m.nSession

	for _, s := range ds.Sessions() {
		co := r.jointCoefficients(s)
		if co.A == 0 {
			return nil, fmt.Errorf("session %s: %w", s, ErrZeroScale)
		}
		r.coefficients[s] = co
	}
	for i := 0; i < ds.Len(); i++ {
		a := ds.At(i)
		co := r.coefficients[a.Session]
		scale := co.A + co.A2*a.T
		if scale == 0 {
			return nil, fmt.Errorf("analysis %s: %w", a.UID, ErrZeroScale)
		}
		a.D47 = (a.D47Raw - co.C - co.B*a.Delta47 - co.C2*a.T - co.B2*a.T*a.Delta47) / scale
	}

	ds.Logger().Info("joint fit",
		zap.Int("parameters", params.Len()),
		zap.Int("dof", res.DoF),
		zap.Float64("redchisq", res.RedChiSq),
		zap.Int("iterations", res.Iterations),
	)
	return r, nil
}

// jointCoefficients reads the coefficients of a session and their standard
// errors from the parameter vector.
func (r *Result) jointCoefficients(session string) Coefficients {
	p := r.Params
	get := func(prefix string) (float64, float64) {
		name := prefix + session
		v, ok := p.Value(name)
		if !ok {
			return 0, 0
		}
		return v, p.SE(name)
	}
	var co Coefficients
	co.A, co.SEA = get(prefixA)
	co.B, co.SEB = get(prefixB)
	co.C, co.SEC = get(prefixC)
	co.A2, co.SEA2 = get(prefixA2)
	co.B2, co.SEB2 = get(prefixB2)
	co.C2, co.SEC2 = get(prefixC2)
	co.CM, _ = p.SubCovariance(prefixA+session, prefixB+session, prefixC+session)
	return co
}
