// Package pipeline runs a full reduction: ingestion, working gas
// assignment, raw Δ47 computation, standardization and storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/d47crunch/internal/config"
	"github.com/TobiSchelling/d47crunch/internal/database"
	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/ingest"
	"github.com/TobiSchelling/d47crunch/internal/metrics"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

// ErrNoDatabase is returned when a run is saved without a database.
var ErrNoDatabase = errors.New("no database configured")

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID           string
	Steps           []StepResult
	Dataset         *dataset.Dataset
	Standardization *standardize.Result
}

// Err returns the error of the failing step, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Options selects what a run does beyond the configured defaults.
type Options struct {
	// Source labels the input in stored runs.
	Source string
	// Method overrides the configured standardization method.
	Method standardize.Method
	// Split, when set, standardizes every unknown split by session or by
	// analysis and merges the virtual samples back afterwards.
	Split dataset.Grouping
	// Save stores the run; it requires a database.
	Save bool
}

// Pipeline orchestrates the reduction steps.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a new pipeline. db may be nil when runs are not saved; nil
// metrics and logger are replaced by private ones.
func New(cfg *config.Config, db *database.DB, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, db: db, metrics: m, logger: logger}
}

// RunFile runs the pipeline on a delimited text file.
func (p *Pipeline) RunFile(ctx context.Context, path string, opts Options) *Result {
	f, err := os.Open(path)
	if err != nil {
		return &Result{Steps: []StepResult{{Name: "Ingest", Err: err}}}
	}
	defer f.Close()
	if opts.Source == "" {
		opts.Source = path
	}
	return p.Run(ctx, f, opts)
}

// Run executes every step in order, stopping at the first failure or when
// ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, in io.Reader, opts Options) *Result {
	r := &Result{}
	method := p.method(opts)
	status := metrics.StatusFailed
	defer func() { p.metrics.Run(string(method), status) }()

	if !p.step(ctx, r, "Ingest", func() (string, error) {
		analyses, err := ingest.Read(in, ingest.Options{Separator: p.cfg.Separator()})
		if err != nil {
			return "", err
		}
		r.Dataset, err = dataset.New(analyses, p.cfg.IsotopeConstants(), dataset.WithLogger(p.logger))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Read %d analyses from %d sessions and %d samples",
			r.Dataset.Len(), len(r.Dataset.Sessions()), len(r.Dataset.Samples())), nil
	}) {
		return r
	}
	ds := r.Dataset

	wg := p.cfg.WorkingGasOptions()
	if !p.step(ctx, r, "WorkingGas", func() (string, error) {
		if err := ds.WorkingGas(wg); err != nil {
			return "", err
		}
		return fmt.Sprintf("Working gas of %d sessions (%s)", len(ds.Sessions()), wg.Mode), nil
	}) {
		return r
	}

	if !p.step(ctx, r, "Crunch", func() (string, error) {
		if err := ds.Crunch(); err != nil {
			return "", err
		}
		p.metrics.AnalysesReduced(ds.Len())
		return fmt.Sprintf("Reduced %d analyses, %d diagnostics", ds.Len(), len(ds.Diagnostics())), nil
	}) {
		return r
	}

	if opts.Split != dataset.NotSplit {
		if !p.step(ctx, r, "Split", func() (string, error) {
			if method != standardize.Joint {
				return "", fmt.Errorf("%w: splitting requires a joint fit", standardize.ErrMethod)
			}
			n := len(ds.Unknowns())
			if err := ds.SplitSamples(nil, opts.Split); err != nil {
				return "", err
			}
			return fmt.Sprintf("Split %d unknowns into %d samples (%s)", n, len(ds.Unknowns()), opts.Split), nil
		}) {
			return r
		}
	}

	sopts := p.cfg.StandardizeOptions()
	sopts.Method = method
	if !p.step(ctx, r, "Normalize", func() (string, error) {
		res, err := standardize.Normalize(ctx, ds, sopts)
		if err != nil {
			return "", err
		}
		r.Standardization = res
		p.metrics.Fit(res.Iterations, res.RedChiSq)
		return fmt.Sprintf("Standardized %d sessions, %d degrees of freedom, reduced χ² %.3f",
			len(res.Sessions), res.DoF, res.RedChiSq), nil
	}) {
		return r
	}

	if opts.Split != dataset.NotSplit {
		if !p.step(ctx, r, "Unsplit", func() (string, error) {
			if err := r.Standardization.UnsplitSamples(); err != nil {
				return "", err
			}
			return fmt.Sprintf("Merged back into %d unknowns", len(ds.Unknowns())), nil
		}) {
			return r
		}
	}

	for _, d := range ds.Diagnostics() {
		p.metrics.Diagnostic(d.Kind)
	}

	if opts.Save {
		if !p.step(ctx, r, "Save", func() (string, error) {
			if p.db == nil {
				return "", ErrNoDatabase
			}
			rec, err := database.Snapshot(r.Standardization, opts.Source)
			if err != nil {
				return "", err
			}
			id, err := p.db.SaveRun(rec)
			if err != nil {
				return "", err
			}
			r.RunID = id
			return "Saved run " + id, nil
		}) {
			return r
		}
	}

	status = metrics.StatusOK
	return r
}

func (p *Pipeline) method(opts Options) standardize.Method {
	if opts.Method != "" {
		return opts.Method
	}
	if m := standardize.Method(p.cfg.Standardization.Method); m != "" {
		return m
	}
	return standardize.Joint
}

// step runs fn as the named step, records its outcome and duration, and
// reports whether the run may continue.
func (p *Pipeline) step(ctx context.Context, r *Result, name string, fn func() (string, error)) bool {
	if err := ctx.Err(); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: name, Err: err})
		return false
	}
	p.logger.Info("running step", zap.String("step", name))
	start := time.Now()
	summary, err := fn()
	p.metrics.ObserveStep(name, time.Since(start))
	r.Steps = append(r.Steps, StepResult{Name: name, Summary: summary, Err: err})
	if err != nil {
		p.logger.Error("step failed", zap.String("step", name), zap.Error(err))
		return false
	}
	return true
}
