package yield

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/tofhir_db/models"
)

func table(test string, evaluated bool, recs ...models.TestRecord) *models.Table {
	t := models.NewTable(test, []string{"chipID"}, evaluated)
	t.Records = recs
	return t
}

func rec(sn int, pass bool) models.TestRecord {
	return models.TestRecord{SN: sn, Values: map[string]float64{"chipID": 0}, Pass: pass}
}

func sampleYield() *models.YieldTable {
	return Summarize([]*models.Table{
		table("TDCCalibration", true, rec(17, true), rec(17, true), rec(18, true), rec(18, false), rec(19, true)),
		table("TestPulse", false, rec(17, false), rec(20, false)),
		table("QDCCalibration0", true, rec(17, true), rec(18, true)),
	})
}

func TestSummarizeReducesChannelsPerBoard(t *testing.T) {
	yt := sampleYield()

	want := &models.YieldTable{
		Tests: []string{"TDCCalibration", "QDCCalibration0"},
		Boards: []models.BoardYield{
			{SN: 17, Pass: map[string]bool{"TDCCalibration": true, "QDCCalibration0": true}},
			{SN: 18, Pass: map[string]bool{"TDCCalibration": false, "QDCCalibration0": true}},
			{SN: 19, Pass: map[string]bool{"TDCCalibration": true}},
		},
	}
	if diff := cmp.Diff(want, yt); diff != "" {
		t.Errorf("yield table mismatch (-want +got):\n%s", diff)
	}
}

func TestSingleFailingChannelFailsBoard(t *testing.T) {
	yt := Summarize([]*models.Table{table("TDCCalibration", true, rec(17, true), rec(17, false), rec(17, true))})
	pass, measured := yt.Boards[0].Passed("TDCCalibration")
	assert.True(t, measured)
	assert.False(t, pass)
}

func TestYieldFractions(t *testing.T) {
	yt := sampleYield()

	assert.Equal(t, models.Fraction{Passed: 2, Total: 3}, TestYield(yt, "TDCCalibration"))
	assert.Equal(t, models.Fraction{Passed: 2, Total: 2}, TestYield(yt, "QDCCalibration0"))
	assert.Equal(t, models.Fraction{Passed: 1, Total: 3}, OverallYield(yt))
	assert.InDelta(t, 1.0/3, OverallYield(yt).Ratio(), 1e-12)
	assert.Equal(t, 0.0, models.Fraction{}.Ratio())
}

func TestIncompleteAndFailing(t *testing.T) {
	yt := sampleYield()
	assert.Equal(t, []int{19}, Incomplete(yt))
	assert.Equal(t, map[int][]string{18: {"TDCCalibration"}}, Failing(yt))
}

func TestCSVRoundTrip(t *testing.T) {
	yt := sampleYield()

	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, yt))
	want := "SN,TDCCalibration_pass,QDCCalibration0_pass\n" +
		"17,true,true\n" +
		"18,false,true\n" +
		"19,true,\n"
	assert.Equal(t, want, buf.String())

	back, err := DecodeCSV(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(yt, back); diff != "" {
		t.Errorf("decoded yield mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	yt := sampleYield()

	require.NoError(t, WriteCSV(fs, "/out/yield.csv", yt))
	require.NoError(t, WriteIncomplete(fs, "/out/incomplete_boards.json", Incomplete(yt)))
	require.NoError(t, WriteSkips(fs, "/out/skipped.csv", []models.Skip{{Dir: "202401030000", Kind: models.SkipMissingData, Reason: "file aldo.tsv not found"}}))

	incomplete, err := afero.ReadFile(fs, "/out/incomplete_boards.json")
	require.NoError(t, err)
	assert.Equal(t, "[19]\n", string(incomplete))

	skips, err := afero.ReadFile(fs, "/out/skipped.csv")
	require.NoError(t, err)
	assert.Equal(t, "dir,test,kind,reason\n202401030000,,missing-data,file aldo.tsv not found\n", string(skips))

	back, err := ReadCSV(fs, "/out/yield.csv")
	require.NoError(t, err)
	assert.Len(t, back.Boards, 3)
}

func TestMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Observe(sampleYield(), []models.Skip{{Kind: models.SkipFormat}, {Kind: models.SkipFormat}})

	assert.InDelta(t, 2.0/3, testutil.ToFloat64(m.testYield.WithLabelValues("TDCCalibration")), 1e-12)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.boards))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.skipped.WithLabelValues(models.SkipFormat)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.skipped.WithLabelValues(models.SkipMissingData)))

	fs := afero.NewMemMapFs()
	require.NoError(t, m.WriteFile(fs, "/out/yield.prom"))
	text, err := afero.ReadFile(fs, "/out/yield.prom")
	require.NoError(t, err)
	assert.Contains(t, string(text), "tofhir_boards_total 3\n")
	assert.Contains(t, string(text), `tofhir_test_yield_ratio{test="QDCCalibration0"} 1`)
}
