package standardize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/fit"
	"github.com/TobiSchelling/d47crunch/internal/stats"
)

// Coefficients of a session transfer function with their standard errors.
// Drift terms that are not fitted are zero with a zero standard error.
type Coefficients struct {
	A, B, C    float64
	A2, B2, C2 float64

	SEA, SEB, SEC    float64
	SEA2, SEB2, SEC2 float64

	// CM is the covariance matrix of (a, b, c).
	CM *mat.SymDense
}

// Session summarizes a standardized session.
type Session struct {
	Name       string
	Na, Nu, Np int
	Drift      Drift
	WorkingGas dataset.BulkComposition
	Coefficients

	RD13C float64
	RD18O float64
	RD47  float64
}

// Sample summarizes a standardized sample. SD and PLevene are NaN when
// undefined.
type Sample struct {
	Name      string
	Anchor    bool
	N         int
	D13CVPDB  float64
	D18OVSMOW float64
	D47       float64
	SE        float64
	SD        float64
	PLevene   float64
}

// Repro holds the dataset-wide external reproducibilities.
type Repro struct {
	RD13C   float64 // anchors
	RD18O   float64 // anchors
	RD47a   float64 // anchors, corrected for the session parameters
	RD47u   float64 // unknowns
	RD47    float64 // all samples, corrected for all parameters
	Sigma47 float64 // independent sessions only
}

// Result is the outcome of Normalize.
type Result struct {
	Method Method
	// Params is the joint-fit parameter vector with its covariance. It is nil
	// for independent sessions.
	Params     *fit.Params
	DoF        int
	T95        float64
	ChiSq      float64
	RedChiSq   float64
	Iterations int

	Sessions []Session
	Samples  []Sample
	Repro    Repro

	ds           *dataset.Dataset
	opts         Options
	nSession     int
	coefficients map[string]Coefficients
	// per-session averages of each unknown, independent sessions only
	unknownSessions map[string][]sessionAverage
}

// sessionAverage is the contribution of one session to an unknown's Δ47.
type sessionAverage struct {
	session string
	n       int
	d47     float64
	D47     float64
	se      float64
	weight  float64
}

func newResult(ds *dataset.Dataset, opts Options) *Result {
	return &Result{
		Method:       opts.Method,
		ds:           ds,
		opts:         opts,
		coefficients: make(map[string]Coefficients),
	}
}

// Dataset returns the standardized dataset.
func (r *Result) Dataset() *dataset.Dataset { return r.ds }

// Session returns the summary of a session.
func (r *Result) Session(name string) (Session, bool) {
	for _, s := range r.Sessions {
		if s.Name == name {
			return s, true
		}
	}
	return Session{}, false
}

// Sample returns the summary of a sample.
func (r *Result) Sample(name string) (Sample, bool) {
	for _, s := range r.Samples {
		if s.Name == name {
			return s, true
		}
	}
	return Sample{}, false
}

// CL95 is the 95 % confidence half-width for a standard error.
func (r *Result) CL95(se float64) float64 { return r.T95 * se }

func (r *Result) sessionParameterCount() int {
	np := 0
	for _, s := range r.ds.Sessions() {
		np += r.np(s)
	}
	return np
}

func (r *Result) np(session string) int {
	if r.Method == IndependentSessions {
		return 3
	}
	return 3 + r.opts.Drift[session].Terms()
}

// consolidate fills in the session, sample and reproducibility summaries.
func (r *Result) consolidate() error {
	r.T95 = stats.T95(r.DoF)
	r.consolidateSessions()
	if err := r.consolidateSamples(); err != nil {
		return err
	}
	r.consolidateRepro()
	return nil
}

func (r *Result) consolidateSessions() {
	ds := r.ds
	anchors := ds.Anchors()
	r.Sessions = r.Sessions[:0]
	for _, s := range ds.Sessions() {
		na, nu := ds.CountAnalyses(ds.SessionIndices(s))
		wg, _ := ds.SessionWorkingGas(s)
		only := []string{s}
		r.Sessions = append(r.Sessions, Session{
			Name:         s,
			Na:           na,
			Nu:           nu,
			Np:           r.np(s),
			Drift:        r.opts.Drift[s],
			WorkingGas:   wg,
			Coefficients: r.coefficients[s],
			RD13C:        ds.Reproducibility(dataset.FieldD13C, anchors, only),
			RD18O:        ds.Reproducibility(dataset.FieldD18O, anchors, only),
			RD47:         ds.Reproducibility(dataset.FieldD47, ds.Samples(), only),
		})
	}
}

func (r *Result) consolidateSamples() error {
	ds := r.ds
	c := ds.Constants()
	ref := ds.Values(dataset.FieldD47, ds.SampleIndices(r.opts.LeveneReference))

	r.Samples = r.Samples[:0]
	for _, name := range ds.Samples() {
		idx := ds.SampleIndices(name)
		d47 := ds.Values(dataset.FieldD47, idx)
		s := Sample{
			Name:      name,
			N:         len(idx),
			D13CVPDB:  stat.Mean(ds.Values(dataset.FieldD13C, idx), nil),
			D18OVSMOW: stat.Mean(ds.Values(dataset.FieldD18O, idx), nil),
			SD:        stats.SD(d47),
			PLevene:   math.NaN(),
		}
		if len(idx) > 1 && len(ref) > 0 {
			_, s.PLevene = stats.Levene(ref, d47)
		}

		if nominal, ok := c.Nominal(name); ok {
			s.Anchor = true
			s.D47 = nominal
		} else {
			var err error
			if s.D47, s.SE, err = r.unknownD47(name); err != nil {
				return fmt.Errorf("sample %s: %w", name, err)
			}
		}
		r.Samples = append(r.Samples, s)
	}
	return nil
}

func (r *Result) unknownD47(sample string) (d47, se float64, err error) {
	if r.Method == IndependentSessions {
		avgs := r.unknownSessions[sample]
		x := make([]float64, len(avgs))
		sx := make([]float64, len(avgs))
		for k, a := range avgs {
			x[k], sx[k] = a.D47, a.se
		}
		return stats.WeightedAverage(x, sx)
	}
	name := prefixD47 + sample
	v, ok := r.Params.Value(name)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", fit.ErrUnknownParam, name)
	}
	return v, r.Params.SE(name), nil
}

// rescale divides a pooled standard deviation by √(num/den), the ratio of
// the degrees of freedom left by the fit to those of the pooled estimate.
func rescale(r float64, num, den int) float64 {
	if num <= 0 || den <= 0 {
		return math.NaN()
	}
	return r / math.Sqrt(float64(num)/float64(den))
}

func (r *Result) consolidateRepro() {
	ds := r.ds
	anchors, unknowns := ds.Anchors(), ds.Unknowns()
	na, _ := ds.CountAnalyses(allIndices(ds))
	np := r.sessionParameterCount()

	r.Repro.RD13C = ds.Reproducibility(dataset.FieldD13C, anchors, nil)
	r.Repro.RD18O = ds.Reproducibility(dataset.FieldD18O, anchors, nil)
	r.Repro.RD47a = rescale(ds.Reproducibility(dataset.FieldD47, anchors, nil), na-np, na-len(anchors))
	r.Repro.RD47u = ds.Reproducibility(dataset.FieldD47, unknowns, nil)
	r.Repro.RD47 = rescale(
		ds.Reproducibility(dataset.FieldD47, ds.Samples(), nil),
		ds.Len()-len(unknowns)-np,
		ds.Len()-len(ds.Samples()),
	)
}

func allIndices(ds *dataset.Dataset) []int {
	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	return idx
}
