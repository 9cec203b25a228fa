// Package dataset holds a set of clumped-isotope analyses grouped into
// sessions and samples, and the per-analysis reduction from raw working-gas
// deltas to bulk composition and raw clumped anomalies.
package dataset

import (
	"sort"

	"go.uber.org/zap"

	"github.com/TobiSchelling/d47crunch/internal/isotope"
)

// Dataset owns an ordered sequence of analyses plus index maps by session and
// by sample. The indexes are only rebuilt by Reindex, which every structural
// mutation (construction, split, unsplit) calls explicitly.
type Dataset struct {
	analyses  []Analysis
	constants isotope.Constants
	logger    *zap.Logger

	sessions   []string
	bySession  map[string][]int
	samples    []string
	bySample   map[string][]int
	anchors    []string
	unknowns   []string
	workingGas map[string]BulkComposition

	grouping    Grouping
	diagnostics []Diagnostic
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dataset) {
		if l != nil {
			d.logger = l
		}
	}
}

// New validates the analyses and builds a dataset over a copy of them.
func New(analyses []Analysis, c isotope.Constants, opts ...Option) (*Dataset, error) {
	seen := make(map[string]bool, len(analyses))
	for _, a := range analyses {
		switch {
		case a.UID == "":
			return nil, &ValidationError{Field: "UID", Err: ErrMissingField}
		case seen[a.UID]:
			return nil, &ValidationError{UID: a.UID, Field: "UID", Err: ErrDuplicateUID}
		case a.Session == "":
			return nil, &ValidationError{UID: a.UID, Field: "Session", Err: ErrMissingField}
		case a.Sample == "":
			return nil, &ValidationError{UID: a.UID, Field: "Sample", Err: ErrMissingField}
		}
		seen[a.UID] = true
	}

	d := &Dataset{
		analyses:   append([]Analysis(nil), analyses...),
		constants:  c,
		logger:     zap.NewNop(),
		workingGas: make(map[string]BulkComposition),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.Reindex()
	return d, nil
}

// Reindex rebuilds the session and sample indexes and the anchor/unknown
// classification from the current analysis labels.
func (d *Dataset) Reindex() {
	d.bySession = make(map[string][]int)
	d.bySample = make(map[string][]int)
	for i := range d.analyses {
		a := &d.analyses[i]
		d.bySession[a.Session] = append(d.bySession[a.Session], i)
		d.bySample[a.Sample] = append(d.bySample[a.Sample], i)
	}
	d.sessions = sortedKeys(d.bySession)
	d.samples = sortedKeys(d.bySample)
	d.anchors = d.anchors[:0]
	d.unknowns = d.unknowns[:0]
	for _, s := range d.samples {
		if d.constants.IsAnchor(s) {
			d.anchors = append(d.anchors, s)
		} else {
			d.unknowns = append(d.unknowns, s)
		}
	}
}

func sortedKeys(m map[string][]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Constants returns the constants the dataset was built with.
func (d *Dataset) Constants() isotope.Constants { return d.constants }

// Logger returns the dataset logger.
func (d *Dataset) Logger() *zap.Logger { return d.logger }

// Len returns the number of analyses.
func (d *Dataset) Len() int { return len(d.analyses) }

// At returns the i-th analysis for in-place updates.
func (d *Dataset) At(i int) *Analysis { return &d.analyses[i] }

// Analyses returns the analyses in ingestion order. The slice is shared with
// the dataset; relabelling samples through it requires a Reindex.
func (d *Dataset) Analyses() []Analysis { return d.analyses }

// Sessions returns the session names in sorted order.
func (d *Dataset) Sessions() []string { return append([]string(nil), d.sessions...) }

// Samples returns the sample names in sorted order.
func (d *Dataset) Samples() []string { return append([]string(nil), d.samples...) }

// Anchors returns the anchor samples present in the dataset.
func (d *Dataset) Anchors() []string { return append([]string(nil), d.anchors...) }

// Unknowns returns the unknown samples present in the dataset.
func (d *Dataset) Unknowns() []string { return append([]string(nil), d.unknowns...) }

// IsAnchor reports whether sample has a nominal Δ47.
func (d *Dataset) IsAnchor(sample string) bool { return d.constants.IsAnchor(sample) }

// SessionIndices returns the analysis indices of a session.
func (d *Dataset) SessionIndices(session string) []int { return d.bySession[session] }

// SampleIndices returns the analysis indices of a sample.
func (d *Dataset) SampleIndices(sample string) []int { return d.bySample[sample] }

// SessionSampleIndices returns the indices of a sample's analyses within a session.
func (d *Dataset) SessionSampleIndices(session, sample string) []int {
	var out []int
	for _, i := range d.bySession[session] {
		if d.analyses[i].Sample == sample {
			out = append(out, i)
		}
	}
	return out
}

// CountAnalyses returns the number of analyses of anchors and of unknowns
// among the given indices.
func (d *Dataset) CountAnalyses(indices []int) (anchors, unknowns int) {
	for _, i := range indices {
		if d.IsAnchor(d.analyses[i].Sample) {
			anchors++
		} else {
			unknowns++
		}
	}
	return anchors, unknowns
}

// Values returns the selected field for the given analyses.
func (d *Dataset) Values(f Field, indices []int) []float64 {
	out := make([]float64, len(indices))
	for k, i := range indices {
		out[k] = d.analyses[i].Value(f)
	}
	return out
}

// SessionWorkingGas returns the working gas assigned to a session.
func (d *Dataset) SessionWorkingGas(session string) (BulkComposition, bool) {
	wg, ok := d.workingGas[session]
	return wg, ok
}

// Subset copies the analyses of the given sessions into a new dataset with
// the same constants and working gas. It also returns, for each analysis of
// the subset, its index in d.
func (d *Dataset) Subset(sessions []string) (*Dataset, []int) {
	want := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		want[s] = true
	}
	sub := &Dataset{
		constants:  d.constants,
		logger:     d.logger,
		workingGas: make(map[string]BulkComposition),
		grouping:   d.grouping,
	}
	var origin []int
	for i, a := range d.analyses {
		if want[a.Session] {
			sub.analyses = append(sub.analyses, a)
			origin = append(origin, i)
		}
	}
	for s, wg := range d.workingGas {
		if want[s] {
			sub.workingGas[s] = wg
		}
	}
	sub.Reindex()
	return sub, origin
}

// AssignTimestamps sets the time ordinate T of every analysis. Within a
// session where every analysis has a TimeTag, T is the TimeTag minus its
// session mean; otherwise T is the position in the session minus the mean
// position.
func (d *Dataset) AssignTimestamps() {
	for _, s := range d.sessions {
		idx := d.bySession[s]
		tagged := true
		sum := 0.0
		for _, i := range idx {
			if d.analyses[i].TimeTag == nil {
				tagged = false
				break
			}
			sum += *d.analyses[i].TimeTag
		}
		if tagged {
			t0 := sum / float64(len(idx))
			for _, i := range idx {
				d.analyses[i].T = *d.analyses[i].TimeTag - t0
			}
			continue
		}
		t0 := float64(len(idx)-1) / 2
		for k, i := range idx {
			d.analyses[i].T = float64(k) - t0
		}
	}
}
