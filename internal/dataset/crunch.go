package dataset

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/TobiSchelling/d47crunch/internal/isotope"
)

// Relative deviation of R45 or R46 from their stochastic values above which
// an analysis is flagged.
const stochasticTolerance = 2e-8

// Diagnostic kinds.
const (
	DiagnosticR45Deviation    = "r45_deviation"
	DiagnosticR46Deviation    = "r46_deviation"
	DiagnosticSingleReplicate = "single_replicate"
)

// Diagnostic is a non-fatal observation made while reducing the dataset.
type Diagnostic struct {
	UID     string
	Kind    string
	Message string
	Value   float64
}

// Diagnostics returns the observations collected so far.
func (d *Dataset) Diagnostics() []Diagnostic { return d.diagnostics }

// Diagnose records a non-fatal observation and logs it.
func (d *Dataset) Diagnose(uid, kind, msg string, value float64) {
	d.diagnostics = append(d.diagnostics, Diagnostic{UID: uid, Kind: kind, Message: msg, Value: value})
	d.logger.Warn(msg,
		zap.String("uid", uid),
		zap.String("kind", kind),
		zap.Float64("value", value),
	)
}

// Crunch computes the bulk composition and raw Δ47, Δ48, Δ49 of every
// analysis. WorkingGas must have been called first.
func (d *Dataset) Crunch() error {
	for _, s := range d.sessions {
		if _, ok := d.workingGas[s]; !ok {
			return &ValidationError{Session: s, Err: ErrWorkingGasUnset}
		}
	}
	for i := range d.analyses {
		if err := d.crunchOne(&d.analyses[i]); err != nil {
			return fmt.Errorf("analysis %s: %w", d.analyses[i].UID, err)
		}
	}
	d.logger.Info("reduced analyses", zap.Int("analyses", len(d.analyses)))
	return nil
}

func (d *Dataset) crunchOne(a *Analysis) error {
	c := d.constants
	wg, err := c.IsobarRatios(c.R13(a.WorkingGas.D13CVPDB), c.R18(a.WorkingGas.D18OVSMOW), isotope.Anomalies{})
	if err != nil {
		return err
	}

	r45 := (1 + a.Delta45/1000) * wg.R45
	r46 := (1 + a.Delta46/1000) * wg.R46
	r47 := (1 + a.Delta47/1000) * wg.R47
	r48 := (1 + a.Delta48/1000) * wg.R48
	r49 := (1 + a.Delta49/1000) * wg.R49

	d13C, d18O, err := c.BulkDeltas(r45, r46, a.D17O)
	if err != nil {
		return err
	}
	a.Bulk = BulkComposition{D13CVPDB: d13C, D18OVSMOW: d18O}

	st, err := c.IsobarRatios(c.R13(d13C), c.R18(d18O), isotope.Anomalies{D17O: a.D17O})
	if err != nil {
		return err
	}

	if dev := r45/st.R45 - 1; math.Abs(dev) > stochasticTolerance {
		d.Diagnose(a.UID, DiagnosticR45Deviation, "R45 departs from its stochastic value", dev*1e6)
	}
	if dev := r46/st.R46 - 1; math.Abs(dev) > stochasticTolerance {
		d.Diagnose(a.UID, DiagnosticR46Deviation, "R46 departs from its stochastic value", dev*1e6)
	}

	a.D47Raw = 1000 * (r47/st.R47 - 1)
	a.D48Raw = 1000 * (r48/st.R48 - 1)
	a.D49Raw = 1000 * (r49/st.R49 - 1)
	return nil
}
