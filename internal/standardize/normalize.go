package standardize

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
)

// Normalize standardizes the raw Δ47 values of a crunched dataset, sets the
// D47 field of every analysis and summarizes sessions, samples and
// reproducibility.
func Normalize(ctx context.Context, ds *dataset.Dataset, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	ds.AssignTimestamps()

	var (
		r   *Result
		err error
	)
	switch opts.Method {
	case Joint:
		r, err = normalizeJoint(ctx, ds, opts)
	case IndependentSessions:
		r, err = normalizeIndependent(ctx, ds, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, opts.Method)
	}
	if err != nil {
		return nil, err
	}
	if err := r.consolidate(); err != nil {
		return nil, err
	}
	for _, s := range r.Samples {
		if s.N == 1 && ds.Grouping() == dataset.NotSplit {
			ds.Diagnose("", dataset.DiagnosticSingleReplicate, "sample "+s.Name+" has a single replicate", 1)
		}
	}
	return r, nil
}
