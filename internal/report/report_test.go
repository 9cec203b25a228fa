package report

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/d47crunch/internal/database"
	"github.com/TobiSchelling/d47crunch/internal/dataset"
	"github.com/TobiSchelling/d47crunch/internal/ingest"
	"github.com/TobiSchelling/d47crunch/internal/isotope"
	"github.com/TobiSchelling/d47crunch/internal/standardize"
)

const flask = `UID,Session,Sample,d45,d46,d47,d48,d49
A01,Session1,ETH-1,5.79502,11.62767,16.89351,24.56708,0.79486
A02,Session1,IAEA-C1,6.21907,11.49107,17.27749,24.58270,1.56318
A03,Session1,ETH-2,-6.05868,-4.81718,-11.63506,-10.32578,0.61352
A04,Session1,IAEA-C2,-3.86184,4.94184,0.60612,10.52732,0.57118
A05,Session1,ETH-3,5.54365,12.05228,17.40555,25.96919,0.74608
A06,Session1,ETH-2,-6.06706,-4.87710,-11.69927,-10.64421,1.61234
A07,Session1,ETH-1,5.78821,11.55910,16.80191,24.56423,1.47963
A08,Session1,IAEA-C2,-3.87692,4.86889,0.52185,10.40390,1.07032
A09,Session1,ETH-3,5.53984,12.01344,17.36863,25.77145,0.53264
A10,Session1,IAEA-C1,6.21905,11.44785,17.23428,24.30975,1.05702
A11,Session2,ETH-1,5.79958,11.63130,16.91766,25.12232,1.25904
A12,Session2,IAEA-C1,6.22514,11.51264,17.33588,24.92770,2.54331
A13,Session2,ETH-2,-6.03042,-4.74644,-11.52551,-10.55907,0.04024
A14,Session2,IAEA-C2,-3.83702,4.99278,0.67529,10.73885,0.70929
A15,Session2,ETH-3,5.53700,12.04892,17.42023,26.21793,2.16400
A16,Session2,ETH-2,-6.06820,-4.84004,-11.68630,-10.72563,0.04653
A17,Session2,ETH-1,5.78263,11.57182,16.83519,25.09964,1.26283
A18,Session2,IAEA-C2,-3.85355,4.91943,0.58463,10.56221,0.71245
A19,Session2,ETH-3,5.52227,12.01174,17.36841,26.19829,1.03740
A20,Session2,IAEA-C1,6.21937,11.44701,17.26426,24.84678,0.76866
`

func reduce(t *testing.T, method standardize.Method) *standardize.Result {
	t.Helper()
	in, err := ingest.Read(strings.NewReader(flask), ingest.Options{})
	require.NoError(t, err)
	ds, err := dataset.New(in, isotope.Default())
	require.NoError(t, err)
	require.NoError(t, ds.WorkingGas(dataset.DefaultWorkingGasOptions()))
	require.NoError(t, ds.Crunch())
	opts := standardize.DefaultOptions()
	opts.Method = method
	r, err := standardize.Normalize(context.Background(), ds, opts)
	require.NoError(t, err)
	return r
}

func TestTableMarkdown(t *testing.T) {
	tab := Table{
		Title:  "T",
		Header: []string{"Name", "Value"},
		Rows:   [][]string{{"alpha", "1.5"}, {"b", ""}, {"gamma", "-12.25"}},
	}
	want := "### T\n\n" +
		"| Name  |  Value |\n" +
		"| ----- | -----: |\n" +
		"| alpha |    1.5 |\n" +
		"| b     |        |\n" +
		"| gamma | -12.25 |\n"
	assert.Equal(t, want, tab.Markdown())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "", f(math.NaN(), 3))
	assert.Equal(t, "0.500", f(0.5, 3))
	assert.Equal(t, "", e(math.Inf(1)))
	assert.Equal(t, "1.000e-04", e(1e-4))
	assert.Equal(t, "0.900 ± 0.010", pm(0.9, 0.01, 3))
	assert.Equal(t, "0.900", pm(0.9, math.NaN(), 3))
	assert.Equal(t, "", ppm(math.NaN()))
	assert.Equal(t, "12.5 ppm", ppm(0.0125))
}

func TestSamplesTable(t *testing.T) {
	r := reduce(t, standardize.Joint)
	tab := Samples(r)
	require.Len(t, tab.Rows, 5)

	rows := make(map[string][]string)
	for _, row := range tab.Rows {
		rows[row[0]] = row
	}
	assert.Equal(t, "0.2580", rows["ETH-1"][4])
	assert.Equal(t, "", rows["ETH-1"][5], "anchors have no SE")
	assert.True(t, strings.HasPrefix(rows["IAEA-C1"][4], "0.36"), rows["IAEA-C1"][4])
	assert.True(t, strings.HasPrefix(rows["IAEA-C1"][6], "± "))
}

func TestSessionsTable(t *testing.T) {
	r := reduce(t, standardize.Joint)
	tab := Sessions(r)
	require.Len(t, tab.Rows, 2)
	assert.Len(t, tab.Header, 11, "no drift columns without drift terms")
	assert.Equal(t, "Session1", tab.Rows[0][0])
	assert.Equal(t, "6", tab.Rows[0][1])
	assert.Equal(t, "4", tab.Rows[0][2])
	assert.Contains(t, tab.Rows[0][8], " ± ")
}

func TestCovariances(t *testing.T) {
	for _, m := range []standardize.Method{standardize.Joint, standardize.IndependentSessions} {
		t.Run(string(m), func(t *testing.T) {
			r := reduce(t, m)
			cov, cor, err := Covariances(r)
			require.NoError(t, err)
			require.Len(t, cov.Rows, 2)
			assert.Equal(t, []string{"Sample", "IAEA-C1", "IAEA-C2"}, cov.Header)
			assert.Equal(t, "1.0000", cor.Rows[0][1])
			assert.Equal(t, "1.0000", cor.Rows[1][2])
			assert.Equal(t, cor.Rows[0][2], cor.Rows[1][1])
		})
	}
}

func TestMarkdownAndHTML(t *testing.T) {
	r := reduce(t, standardize.Joint)
	text, err := Markdown(r)
	require.NoError(t, err)
	for _, title := range []string{"### Summary", "### Sessions", "### Session covariances", "### Samples",
		"### Covariance of unknowns", "### Correlation of unknowns", "### Analyses"} {
		assert.Contains(t, text, title)
	}

	html, err := HTML(r)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<table>")
	assert.Contains(t, string(html), "<td>IAEA-C1</td>")
}

func TestSummaryIndependent(t *testing.T) {
	r := reduce(t, standardize.IndependentSessions)
	tab := Summary(r)
	last := tab.Rows[len(tab.Rows)-1]
	assert.Equal(t, "Model Δ47 repeatability (σ47)", last[0])
	assert.True(t, strings.HasSuffix(last[1], " ppm"))
}

func TestStoredMarkdown(t *testing.T) {
	r := reduce(t, standardize.Joint)
	rec, err := database.Snapshot(r, "flask.csv")
	require.NoError(t, err)
	rec.Run.ID = "run-1"

	text := StoredMarkdown(rec)
	assert.Contains(t, text, "## Stored run run-1")
	assert.Contains(t, text, "| IAEA-C1")
	assert.Contains(t, text, "### Covariance of unknowns")

	runs := Runs([]database.Run{rec.Run})
	require.Len(t, runs.Rows, 1)
	assert.Equal(t, "run-1", runs.Rows[0][0])
	assert.Equal(t, "flask.csv", runs.Rows[0][2])
}
