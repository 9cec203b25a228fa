package dataset

import "github.com/TobiSchelling/d47crunch/internal/stats"

// Selector picks a set of samples.
type Selector int

const (
	AllSamples Selector = iota
	AnchorSamples
	UnknownSamples
)

// Select returns the samples matching sel.
func (d *Dataset) Select(sel Selector) []string {
	switch sel {
	case AnchorSamples:
		return d.Anchors()
	case UnknownSamples:
		return d.Unknowns()
	}
	return d.Samples()
}

// Reproducibility is the pooled standard deviation of field f among the
// replicates of each of the given samples, restricted to the given sessions.
// A nil sessions slice means all sessions. It is 0 when no sample has more
// than one replicate.
func (d *Dataset) Reproducibility(f Field, samples, sessions []string) float64 {
	if sessions == nil {
		sessions = d.sessions
	}
	keep := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		keep[s] = true
	}
	groups := make([][]float64, 0, len(samples))
	for _, sample := range samples {
		var x []float64
		for _, i := range d.bySample[sample] {
			if keep[d.analyses[i].Session] {
				x = append(x, d.analyses[i].Value(f))
			}
		}
		groups = append(groups, x)
	}
	return stats.PooledSD(groups)
}
