// Package ingest reads delimited text tables of raw analyses.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/TobiSchelling/d47crunch/internal/dataset"
)

// Validation failures, wrapped in a *dataset.ValidationError naming the
// analysis UID.
var (
	ErrMissingField  = dataset.ErrMissingField
	ErrInvalidNumber = dataset.ErrInvalidNumber
	ErrDuplicateUID  = dataset.ErrDuplicateUID
)

// ErrNoHeader is returned for empty input.
var ErrNoHeader = errors.New("no header line")

// Column names.
const (
	ColUID         = "UID"
	ColSession     = "Session"
	ColSample      = "Sample"
	ColD45         = "d45"
	ColD46         = "d46"
	ColD47         = "d47"
	ColD48         = "d48"
	ColD49         = "d49"
	ColD17O        = "D17O"
	ColTimeTag     = "TimeTag"
	ColNominalD13C = "Nominal_d13C_VPDB"
	ColNominalD18O = "Nominal_d18O_VPDB"
	ColWGD13C      = "d13Cwg_VPDB"
	ColWGD18O      = "d18Owg_VSMOW"
)

// Options configures Read.
type Options struct {
	// Separator between fields; 0 detects ',' ';' or tab from the header.
	Separator rune
	// Session, when set, overrides the Session column of every record.
	Session string
}

// DetectSeparator picks the most frequent of tab, ';' and ',' in the header
// line, defaulting to ','.
func DetectSeparator(header string) rune {
	best, count := ',', 0
	for _, r := range []rune{',', '\t', ';'} {
		if n := strings.Count(header, string(r)); n > count {
			best, count = r, n
		}
	}
	return best
}

// ReadFile reads the analyses stored in a file.
func ReadFile(path string, opts Options) ([]dataset.Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, opts)
}

// Read parses a header line followed by one analysis per line. Blank lines
// are skipped and spaces around fields are ignored. Numeric fields left
// empty take their default value.
func Read(r io.Reader, opts Options) ([]dataset.Analysis, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	text := strings.TrimLeft(string(body), "\r\n\t ")
	if text == "" {
		return nil, ErrNoHeader
	}

	sep := opts.Separator
	if sep == 0 {
		header, _, _ := strings.Cut(text, "\n")
		sep = DetectSeparator(header)
	}
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = sep
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing input: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	cols := make(map[string]int)
	for i, name := range rows[0] {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range []string{ColUID, ColSample, ColD45, ColD46, ColD47} {
		if _, ok := cols[name]; !ok {
			return nil, &dataset.ValidationError{Field: name, Err: ErrMissingField}
		}
	}
	if _, ok := cols[ColSession]; !ok && opts.Session == "" {
		return nil, &dataset.ValidationError{Field: ColSession, Err: ErrMissingField}
	}

	seen := make(map[string]bool)
	var out []dataset.Analysis
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := record{cols: cols, row: row}
		a, err := rec.analysis(opts)
		if err != nil {
			return nil, err
		}
		if seen[a.UID] {
			return nil, &dataset.ValidationError{UID: a.UID, Field: ColUID, Err: ErrDuplicateUID}
		}
		seen[a.UID] = true
		out = append(out, a)
	}
	return out, nil
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

type record struct {
	cols map[string]int
	row  []string
	uid  string
	err  error
}

func (r *record) text(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[i])
}

func (r *record) fail(name string, err error) {
	if r.err == nil {
		r.err = &dataset.ValidationError{UID: r.uid, Field: name, Err: err}
	}
}

func (r *record) required(name string) string {
	v := r.text(name)
	if v == "" {
		r.fail(name, ErrMissingField)
	}
	return v
}

// number parses a numeric field; empty fields yield def.
func (r *record) number(name string, required bool, def float64) float64 {
	v := r.text(name)
	if v == "" {
		if required {
			r.fail(name, ErrMissingField)
		}
		return def
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(name, fmt.Errorf("%w: %q", ErrInvalidNumber, v))
		return def
	}
	return x
}

func (r *record) optional(name string) *float64 {
	if r.text(name) == "" {
		return nil
	}
	x := r.number(name, false, 0)
	return &x
}

func (r *record) analysis(opts Options) (dataset.Analysis, error) {
	r.uid = r.required(ColUID)
	a := dataset.Analysis{
		UID:     r.uid,
		Sample:  r.required(ColSample),
		Delta45: r.number(ColD45, true, 0),
		Delta46: r.number(ColD46, true, 0),
		Delta47: r.number(ColD47, true, 0),
		Delta48: r.number(ColD48, false, 0),
		Delta49: r.number(ColD49, false, 0),
		D17O:    r.number(ColD17O, false, 0),
		TimeTag: r.optional(ColTimeTag),
	}
	if opts.Session != "" {
		a.Session = opts.Session
	} else {
		a.Session = r.required(ColSession)
	}

	a.NominalD13C = r.optional(ColNominalD13C)
	a.NominalD18O = r.optional(ColNominalD18O)
	if (a.NominalD13C == nil) != (a.NominalD18O == nil) {
		r.fail(ColNominalD18O, ErrMissingField)
	}
	wg13, wg18 := r.optional(ColWGD13C), r.optional(ColWGD18O)
	switch {
	case wg13 != nil && wg18 != nil:
		a.ExplicitWG = &dataset.BulkComposition{D13CVPDB: *wg13, D18OVSMOW: *wg18}
	case wg13 != nil || wg18 != nil:
		r.fail(ColWGD18O, ErrMissingField)
	}

	if r.err != nil {
		return dataset.Analysis{}, r.err
	}
	return a, nil
}
