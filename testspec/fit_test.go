package testspec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/tofhir_db/models"
)

func TestLinearFit(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 3, 5, 7}
	slope, b, err := LinearFit(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, slope, 1e-12)
	assert.InDelta(t, 1, b, 1e-12)

	_, _, err = LinearFit([]float64{1}, []float64{2})
	assert.ErrorIs(t, err, ErrDegenerateFit)

	_, _, err = LinearFit([]float64{1, 1}, []float64{2, 3})
	assert.ErrorIs(t, err, ErrDegenerateFit)

	_, _, err = LinearFit([]float64{1, 2}, []float64{2})
	assert.Error(t, err)
}

func TestMaxNormalizedResidual(t *testing.T) {
	x := []float64{0, 1, 2, 3}
	y := []float64{1, 3.2, 5, 6.9}
	assert.InDelta(t, 0.1, MaxNormalizedResidual(x, y, 2, 1), 1e-12)
	assert.True(t, math.IsNaN(MaxNormalizedResidual(nil, nil, 2, 1)))
}

// aldoScan builds one DAC scan with a small alternating ripple and a saturated tail
func aldoScan(sn, tester, gain int, slope, b float64) []models.TestRecord {
	var out []models.TestRecord
	for i := 0; i <= 30; i++ {
		dac := float64(i * 10)
		vout := slope*dac + b + 0.01*math.Pow(-1, float64(i))
		if dac >= AldoFitMaxDAC {
			vout = slope*AldoFitMaxDAC + b
		}
		out = append(out, models.TestRecord{
			SN:       sn,
			TesterID: tester,
			Values: map[string]float64{
				"tester_ID": float64(tester), "asic_id": 0, "side": 0, "gain": float64(gain),
				"DAC": dac, "Vout": vout, "current": 0,
			},
		})
	}
	return out
}

func evaluateAldo(t *testing.T, records []models.TestRecord) *models.Table {
	t.Helper()
	spec, err := Default().Lookup("Aldo")
	require.NoError(t, err)
	raw := models.NewTable("Aldo", spec.Columns, false)
	raw.Records = records
	return spec.Evaluate(raw)
}

func TestAldoFitWithinLimitsPasses(t *testing.T) {
	out := evaluateAldo(t, aldoScan(17, 1, 0, AldoGain*0.000465, 36))
	require.Len(t, out.Records, 1)
	rec := out.Records[0]

	assert.True(t, out.Evaluated)
	assert.Equal(t, 17, rec.SN)
	assert.InDelta(t, AldoGain*0.000465, rec.Value("slope"), 1e-4)
	assert.InDelta(t, 36, rec.Value("b"), 0.05)
	assert.Greater(t, rec.Value("max_inl"), 0.0)
	assert.True(t, rec.Pass)
}

func TestAldoFitSlopeOutOfBoundsFails(t *testing.T) {
	out := evaluateAldo(t, aldoScan(17, 1, 0, AldoGain*0.000465*1.2, 36))
	require.Len(t, out.Records, 1)
	assert.False(t, out.Records[0].Pass)
}

func TestAldoGainOneLimits(t *testing.T) {
	out := evaluateAldo(t, aldoScan(17, 1, 1, AldoGain*0.000925, 32))
	require.Len(t, out.Records, 1)
	assert.True(t, out.Records[0].Pass)

	// gain 1 slope is outside the gain 0 window
	out = evaluateAldo(t, aldoScan(17, 1, 0, AldoGain*0.000925, 36))
	assert.False(t, out.Records[0].Pass)
}

func TestAldoGroupsAreSortedAndIndependent(t *testing.T) {
	records := append(aldoScan(18, 2, 1, AldoGain*0.000925, 32), aldoScan(17, 1, 0, AldoGain*0.000465, 36)...)
	out := evaluateAldo(t, records)
	require.Len(t, out.Records, 2)
	assert.Equal(t, 1, out.Records[0].TesterID)
	assert.Equal(t, 2, out.Records[1].TesterID)
	assert.True(t, out.Records[0].Pass)
	assert.True(t, out.Records[1].Pass)
}

func TestAldoDegenerateGroupFails(t *testing.T) {
	records := aldoScan(17, 1, 0, AldoGain*0.000465, 36)[:1]
	out := evaluateAldo(t, records)
	require.Len(t, out.Records, 1)
	assert.True(t, math.IsNaN(out.Records[0].Value("slope")))
	assert.False(t, out.Records[0].Pass)
}

func TestAldoUnknownGainFails(t *testing.T) {
	out := evaluateAldo(t, aldoScan(17, 1, 2, AldoGain*0.000465, 36))
	assert.False(t, out.Records[0].Pass)
}
