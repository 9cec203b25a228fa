package standardize

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/stats"
)

// UnsplitSamples merges the virtual samples created by
// dataset.SplitSamples back into their original samples. The parameter
// vector is mapped through a matrix W that keeps the session coefficients
// and averages the split Δ47 values, inverse-variance weighted for a split by
// session and uniformly for a split by analysis; the covariance follows as
// W·C·Wᵗ. Labels are restored and the sample summaries recomputed.
func (r *Result) UnsplitSamples() error {
	if r.Method != Joint {
		return fmt.Errorf("%w: unsplit requires a joint fit", ErrMethod)
	}
	ds := r.ds
	groups := ds.SplitGroups()
	if groups == nil {
		return dataset.ErrNotSplit
	}
	grouping := ds.Grouping()

	se := make(map[string]float64, len(r.Samples))
	for _, s := range r.Samples {
		se[s.Name] = s.SE
	}

	merged := make(map[string]bool)
	for _, u := range ds.Unknowns() {
		merged[u] = true
	}
	for orig, splits := range groups {
		for _, s := range splits {
			delete(merged, s)
		}
		merged[orig] = true
	}
	unknowns := make([]string, 0, len(merged))
	for u := range merged {
		unknowns = append(unknowns, u)
	}
	sort.Strings(unknowns)

	old := r.Params.Names()

	names := append([]string(nil), old[:r.nSession]...)
	for _, u := range unknowns {
		names = append(names, prefixD47+u)
	}
	w := mat.NewDense(len(names), len(old), nil)
	for i := 0; i < r.nSession; i++ {
		w.Set(i, i, 1)
	}
	for k, u := range unknowns {
		splits, ok := groups[u]
		if !ok {
			splits = []string{u}
		}
		weights, err := unsplitWeights(splits, grouping, se)
		if err != nil {
			return fmt.Errorf("sample %s: %w", u, err)
		}
		for j, s := range splits {
			col, ok := r.Params.Index(prefixD47 + s)
			if !ok {
				return fmt.Errorf("%w: %s", ErrUnknownSample, s)
			}
			w.Set(r.nSession+k, col, weights[j])
		}
	}

	if err := r.Params.ApplyLinearTransform(w, names); err != nil {
		return err
	}
	if err := ds.RestoreSplitLabels(); err != nil {
		return err
	}
	r.consolidateSessions()
	if err := r.consolidateSamples(); err != nil {
		return err
	}
	r.consolidateRepro()
	ds.Logger().Info("samples unsplit",
		zap.String("grouping", string(grouping)),
		zap.Int("unknowns", len(unknowns)),
	)
	return nil
}

func unsplitWeights(splits []string, g dataset.Grouping, se map[string]float64) ([]float64, error) {
	if g == dataset.BySession && len(splits) > 1 {
		sx := make([]float64, len(splits))
		for i, s := range splits {
			sx[i] = se[s]
		}
		return stats.InverseVarianceWeights(sx)
	}
	w := make([]float64, len(splits))
	for i := range w {
		w[i] = 1 / float64(len(splits))
	}
	return w, nil
}
