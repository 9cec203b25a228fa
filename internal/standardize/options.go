// Package standardize converts raw Δ47 values to the absolute reference frame
// defined by the anchor samples, either with one joint fit over all sessions
// or session by session, and propagates the full parameter covariance to
// sample averages, differences and reproducibility figures.
package standardize

import (
	"errors"

	"github.com/TobiSchelling/d47crunch/internal/fit"
)

var (
	// ErrZeroScale is returned when a session's scaling factor a vanishes.
	ErrZeroScale = errors.New("session scaling factor is zero")
	// ErrUnknownMethod is returned for an unsupported standardization method.
	ErrUnknownMethod = errors.New("unknown standardization method")
	// ErrUnknownSample is returned when a sample is not part of the result.
	ErrUnknownSample = errors.New("unknown sample")
	// ErrSessionGroups is returned for invalid weighted-session groups.
	ErrSessionGroups = errors.New("invalid session groups")
	// ErrMethod is returned when an operation does not apply to the method used.
	ErrMethod = errors.New("operation not supported for this method")
)

// Method selects the standardization approach.
type Method string

const (
	// Joint fits all sessions and unknowns in a single regression.
	Joint Method = "joint"
	// IndependentSessions standardizes each session on its anchors alone.
	IndependentSessions Method = "independent-sessions"
)

// Drift toggles the time-dependent terms of a session's transfer function.
type Drift struct {
	Scrambling bool `yaml:"scrambling"` // a2
	Slope      bool `yaml:"slope"`      // b2
	WG         bool `yaml:"wg"`         // c2
}

// Terms returns the number of drift parameters enabled.
func (d Drift) Terms() int {
	n := 0
	for _, on := range []bool{d.Scrambling, d.Slope, d.WG} {
		if on {
			n++
		}
	}
	return n
}

// DefaultWeight is the raw Δ47 uncertainty (‰) scaling joint fit residuals.
const DefaultWeight = 0.001

// DefaultLeveneReference is the sample every population is tested against.
const DefaultLeveneReference = "ETH-3"

// Options configures Normalize.
type Options struct {
	Method Method
	// Drift toggles per session; sessions not listed have no drift terms.
	Drift map[string]Drift
	// WeightedSessions lists disjoint groups of sessions whose residuals are
	// rescaled by the reduced χ² of a preliminary fit of the group alone.
	WeightedSessions [][]string
	LeveneReference  string
	Weight           float64
	Settings         fit.Settings
}

// DefaultOptions returns a joint fit without drift terms.
func DefaultOptions() Options {
	return Options{
		Method:          Joint,
		LeveneReference: DefaultLeveneReference,
		Weight:          DefaultWeight,
		Settings:        fit.DefaultSettings(),
	}
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = Joint
	}
	if o.LeveneReference == "" {
		o.LeveneReference = DefaultLeveneReference
	}
	if o.Weight <= 0 {
		o.Weight = DefaultWeight
	}
	if o.Settings.MaxIterations <= 0 {
		o.Settings = fit.DefaultSettings()
	}
	return o
}
