package dataset

// BulkComposition is a CO2 bulk isotopic composition.
type BulkComposition struct {
	D13CVPDB  float64
	D18OVSMOW float64
}

// Analysis is a single dual-inlet measurement and everything derived from it.
// Deltas are relative to the working gas; capital D fields are anomalies. All
// values are in permil.
type Analysis struct {
	UID     string
	Session string
	Sample  string

	Delta45 float64
	Delta46 float64
	Delta47 float64
	Delta48 float64
	Delta49 float64
	D17O    float64

	// TimeTag orders analyses within a session for drift corrections.
	TimeTag *float64
	// Nominal carbonate composition (δ13C_VPDB, δ18O_VPDB), when known.
	NominalD13C *float64
	NominalD18O *float64
	// ExplicitWG is the working gas composition given with the record.
	ExplicitWG *BulkComposition

	// Working gas assigned to the session.
	WorkingGas BulkComposition
	// Bulk composition of the analyte.
	Bulk BulkComposition

	D47Raw float64
	D48Raw float64
	D49Raw float64
	// D47 is the standardized anomaly.
	D47 float64

	// T is the time ordinate, centred within the session.
	T float64
	// Weight is the uncertainty used to scale the fit residual.
	Weight float64

	// SampleOriginal is the sample name before splitting.
	SampleOriginal string
	// SampleSplit is the virtual sample name the analysis had while split.
	SampleSplit string
}

// Field selects a numeric field of an analysis.
type Field int

const (
	FieldD47 Field = iota
	FieldD47Raw
	FieldD48Raw
	FieldD49Raw
	FieldD13C
	FieldD18O
	FieldDelta47
)

var fieldNames = map[Field]string{
	FieldD47:     "D47",
	FieldD47Raw:  "D47raw",
	FieldD48Raw:  "D48raw",
	FieldD49Raw:  "D49raw",
	FieldD13C:    "d13C_VPDB",
	FieldD18O:    "d18O_VSMOW",
	FieldDelta47: "d47",
}

func (f Field) String() string {
	if s, ok := fieldNames[f]; ok {
		return s
	}
	return "unknown"
}

// Value returns the selected field of a.
func (a *Analysis) Value(f Field) float64 {
	switch f {
	case FieldD47:
		return a.D47
	case FieldD47Raw:
		return a.D47Raw
	case FieldD48Raw:
		return a.D48Raw
	case FieldD49Raw:
		return a.D49Raw
	case FieldD13C:
		return a.Bulk.D13CVPDB
	case FieldD18O:
		return a.Bulk.D18OVSMOW
	case FieldDelta47:
		return a.Delta47
	}
	return 0
}
