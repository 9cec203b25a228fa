package dataset

import (
	"fmt"
	"sort"
)

// Grouping controls how SplitSamples relabels replicates.
type Grouping string

const (
	// NotSplit marks a dataset whose sample labels are the original ones.
	NotSplit Grouping = ""
	// ByUID gives every analysis its own virtual sample.
	ByUID Grouping = "by_uid"
	// BySession groups the replicates of a sample within each session.
	BySession Grouping = "by_session"
)

// SplitSeparator joins the original sample name and the split key.
const SplitSeparator = "__"

// Grouping returns how the dataset is currently split.
func (d *Dataset) Grouping() Grouping { return d.grouping }

// SplitSamples relabels the analyses of the given unknown samples (all
// unknowns if samples is nil) into virtual samples, so that a subsequent
// normalization treats them independently. Anchors cannot be split.
func (d *Dataset) SplitSamples(samples []string, g Grouping) error {
	if d.grouping != NotSplit {
		return ErrAlreadySplit
	}
	if g != ByUID && g != BySession {
		return fmt.Errorf("unknown grouping %q", g)
	}
	if samples == nil {
		samples = d.unknowns
	}
	want := make(map[string]bool, len(samples))
	for _, s := range samples {
		if d.IsAnchor(s) {
			return fmt.Errorf("%w: %s", ErrSplitAnchor, s)
		}
		want[s] = true
	}
	for i := range d.analyses {
		a := &d.analyses[i]
		if !want[a.Sample] {
			continue
		}
		a.SampleOriginal = a.Sample
		if g == ByUID {
			a.Sample = a.Sample + SplitSeparator + a.UID
		} else {
			a.Sample = a.Sample + SplitSeparator + a.Session
		}
		a.SampleSplit = a.Sample
	}
	d.grouping = g
	d.Reindex()
	return nil
}

// SplitGroups maps each original sample name to its sorted virtual samples.
// It returns nil when the dataset is not split.
func (d *Dataset) SplitGroups() map[string][]string {
	if d.grouping == NotSplit {
		return nil
	}
	groups := make(map[string][]string)
	seen := make(map[string]bool)
	for _, a := range d.analyses {
		if a.SampleOriginal == "" || seen[a.Sample] {
			continue
		}
		seen[a.Sample] = true
		groups[a.SampleOriginal] = append(groups[a.SampleOriginal], a.Sample)
	}
	for _, v := range groups {
		sort.Strings(v)
	}
	return groups
}

// RestoreSplitLabels puts back the original sample names after a split,
// keeping the virtual name in SampleSplit, and reindexes.
func (d *Dataset) RestoreSplitLabels() error {
	if d.grouping == NotSplit {
		return ErrNotSplit
	}
	for i := range d.analyses {
		a := &d.analyses[i]
		if a.SampleOriginal == "" {
			continue
		}
		a.SampleSplit = a.Sample
		a.Sample = a.SampleOriginal
		a.SampleOriginal = ""
	}
	d.grouping = NotSplit
	d.Reindex()
	return nil
}
