package database

// Run is the header of a stored reduction run.
type Run struct {
	ID        string
	CreatedAt string
	Source    string
	Method    string
	Grouping  string
	NAnalyses int
	NSessions int
	NSamples  int
	DoF       int
	T95       float64
	ChiSq     float64
	RedChiSq  float64

	// Reproducibilities in ‰; NaN when undefined.
	RD13C   float64
	RD18O   float64
	RD47a   float64
	RD47u   float64
	RD47    float64
	Sigma47 float64
}

// Analysis holds one reduced analysis of a run.
type Analysis struct {
	RunID     string
	UID       string
	Session   string
	Sample    string
	D13CVPDB  float64
	D18OVSMOW float64
	D47Raw    float64
	D48Raw    float64
	D49Raw    float64
	D47       float64
}

// Session holds the transfer function of one session of a run.
type Session struct {
	RunID  string
	Name   string
	Na     int
	Nu     int
	D13CWG float64 // VPDB
	D18OWG float64 // VSMOW
	A      float64
	B      float64
	C      float64
	A2     float64
	B2     float64
	C2     float64
	SEA    float64
	SEB    float64
	SEC    float64
	RD13C  float64
	RD18O  float64
	RD47   float64

	// Upper triangle of the (a, b, c) covariance matrix.
	CovAA, CovAB, CovAC float64
	CovBB, CovBC        float64
	CovCC               float64
}

// Sample holds the standardized summary of one sample of a run.
type Sample struct {
	RunID     string
	Name      string
	Anchor    bool
	N         int
	D13CVPDB  float64
	D18OVSMOW float64
	D47       float64
	SE        float64
	SD        float64
	PLevene   float64
}

// Covariance links two unknowns of a run. Sample1 == Sample2 holds the
// variance.
type Covariance struct {
	RunID       string
	Sample1     string
	Sample2     string
	Covariance  float64
	Correlation float64
}

// Diagnostic is a non-fatal observation recorded during a run.
type Diagnostic struct {
	RunID   string
	UID     string
	Kind    string
	Message string
	Value   float64
}

// RunRecord is everything stored for one run.
type RunRecord struct {
	Run         Run
	Analyses    []Analysis
	Sessions    []Session
	Samples     []Sample
	Covariances []Covariance
	Diagnostics []Diagnostic
}
