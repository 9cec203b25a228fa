package dataset

import (
	"fmt"

	"go.uber.org/zap"
)

// WorkingGasMode selects how the working gas composition of each session is
// determined.
type WorkingGasMode string

const (
	// WorkingGasFromSample uses the replicates of one sample of known bulk
	// composition.
	WorkingGasFromSample WorkingGasMode = "sample"
	// WorkingGasFromNominal uses every analysis carrying a nominal bulk
	// composition.
	WorkingGasFromNominal WorkingGasMode = "nominal"
	// WorkingGasExplicit takes the composition given with the records.
	WorkingGasExplicit WorkingGasMode = "explicit"
)

// WorkingGasOptions configures Dataset.WorkingGas.
type WorkingGasOptions struct {
	Mode WorkingGasMode
	// Sample and its carbonate composition, for WorkingGasFromSample.
	Sample   string
	D13CVPDB float64
	D18OVPDB float64
}

// DefaultWorkingGasOptions constrains the working gas with ETH-3.
func DefaultWorkingGasOptions() WorkingGasOptions {
	return WorkingGasOptions{
		Mode:     WorkingGasFromSample,
		Sample:   "ETH-3",
		D13CVPDB: 1.71,
		D18OVPDB: -1.78,
	}
}

// WorkingGas computes the working gas composition of every session and
// assigns it to each analysis.
func (d *Dataset) WorkingGas(opts WorkingGasOptions) error {
	if opts.Mode == "" {
		opts.Mode = WorkingGasFromSample
	}
	for _, s := range d.sessions {
		var (
			wg  BulkComposition
			err error
		)
		switch opts.Mode {
		case WorkingGasFromSample:
			wg, err = d.wgFromSample(s, opts)
		case WorkingGasFromNominal:
			wg, err = d.wgFromNominal(s)
		case WorkingGasExplicit:
			wg, err = d.wgExplicit(s)
		default:
			return fmt.Errorf("unknown working gas mode %q", opts.Mode)
		}
		if err != nil {
			return err
		}
		d.workingGas[s] = wg
		for _, i := range d.bySession[s] {
			d.analyses[i].WorkingGas = wg
		}
		d.logger.Debug("working gas",
			zap.String("session", s),
			zap.String("mode", string(opts.Mode)),
			zap.Float64("d13C_VPDB", wg.D13CVPDB),
			zap.Float64("d18O_VSMOW", wg.D18OVSMOW),
		)
	}
	return nil
}

func (d *Dataset) wgFromSample(session string, opts WorkingGasOptions) (BulkComposition, error) {
	idx := d.SessionSampleIndices(session, opts.Sample)
	if len(idx) == 0 {
		return BulkComposition{}, &ValidationError{
			Session: session,
			Field:   opts.Sample,
			Err:     ErrNoWorkingGasSample,
		}
	}
	rs, err := d.constants.CarbonateRatios(opts.D13CVPDB, opts.D18OVPDB)
	if err != nil {
		return BulkComposition{}, err
	}
	var d45, d46 float64
	for _, i := range idx {
		d45 += d.analyses[i].Delta45
		d46 += d.analyses[i].Delta46
	}
	n := float64(len(idx))
	d45 /= n
	d46 /= n
	return d.invertWG(rs.R45/(1+d45/1000), rs.R46/(1+d46/1000))
}

func (d *Dataset) wgFromNominal(session string) (BulkComposition, error) {
	var r45, r46 float64
	n := 0
	for _, i := range d.bySession[session] {
		a := &d.analyses[i]
		if a.NominalD13C == nil || a.NominalD18O == nil {
			continue
		}
		rs, err := d.constants.CarbonateRatios(*a.NominalD13C, *a.NominalD18O)
		if err != nil {
			return BulkComposition{}, err
		}
		r45 += rs.R45 / (1 + a.Delta45/1000)
		r46 += rs.R46 / (1 + a.Delta46/1000)
		n++
	}
	if n == 0 {
		return BulkComposition{}, &ValidationError{
			Session: session,
			Field:   "Nominal_d13C_VPDB",
			Err:     ErrNoWorkingGasSample,
		}
	}
	return d.invertWG(r45/float64(n), r46/float64(n))
}

func (d *Dataset) wgExplicit(session string) (BulkComposition, error) {
	var wg *BulkComposition
	for _, i := range d.bySession[session] {
		a := &d.analyses[i]
		if a.ExplicitWG == nil {
			return BulkComposition{}, &ValidationError{UID: a.UID, Field: "d13Cwg_VPDB", Err: ErrMissingField}
		}
		if wg == nil {
			wg = a.ExplicitWG
			continue
		}
		if *a.ExplicitWG != *wg {
			return BulkComposition{}, &ValidationError{UID: a.UID, Session: session, Err: ErrWorkingGasMismatch}
		}
	}
	if wg == nil {
		return BulkComposition{}, &ValidationError{Session: session, Err: ErrWorkingGasUnset}
	}
	return *wg, nil
}

func (d *Dataset) invertWG(r45, r46 float64) (BulkComposition, error) {
	d13C, d18O, err := d.constants.BulkDeltas(r45, r46, 0)
	if err != nil {
		return BulkComposition{}, fmt.Errorf("working gas: %w", err)
	}
	return BulkComposition{D13CVPDB: d13C, D18OVSMOW: d18O}, nil
}
