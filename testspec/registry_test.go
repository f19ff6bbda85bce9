package testspec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/tofhir_db/models"
)

func TestDefaultRegistryNames(t *testing.T) {
	names := Default().Names()
	require.Len(t, names, 16)
	assert.Equal(t, "Aldo", names[0])
	assert.Equal(t, "TDCCalibration", names[len(names)-1])
	assert.Contains(t, names, "QDCCalibration7")
	assert.Contains(t, names, "DiscCalibration3")
}

func TestLookupUnknownTest(t *testing.T) {
	_, err := Default().Lookup("Pt_1000")
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Pt_1000", cfgErr.Test)
}

func TestResolveStopsAtUnknown(t *testing.T) {
	_, err := Default().Resolve([]string{"Aldo", "Nope"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Nope", cfgErr.Test)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(Spec{Name: "A", File: "a.tsv"}, Spec{Name: "A", File: "b.tsv"})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestIDRule(t *testing.T) {
	assert.Equal(t, 7, DirectID.TesterID(7))
	assert.Equal(t, 3, PairedChannel.TesterID(7))
	assert.Equal(t, 3, PairedChannel.TesterID(6))
	assert.Equal(t, "direct", DirectID.String())
	assert.Equal(t, "paired-channel", PairedChannel.String())
}

func record(values map[string]float64) models.TestRecord {
	return models.TestRecord{SN: 17, TesterID: 1, Values: values}
}

func TestTDCPredicate(t *testing.T) {
	spec, err := Default().Lookup("TDCCalibration")
	require.NoError(t, err)

	assert.True(t, spec.Predicate(record(map[string]float64{"sigma": 0.005, "a0": 60, "a1": 500})))
	assert.False(t, spec.Predicate(record(map[string]float64{"sigma": 0.02, "a0": 60, "a1": 500})), "sigma too large")
	assert.False(t, spec.Predicate(record(map[string]float64{"sigma": 0.005, "a0": 60, "a1": 430})), "a1 too small")
	assert.False(t, spec.Predicate(record(map[string]float64{"sigma": 0.005, "a0": 300, "a1": 500})), "1.5*a1+a0 too large")
}

func TestQDCPredicate(t *testing.T) {
	spec, err := Default().Lookup("QDCCalibration3")
	require.NoError(t, err)

	assert.True(t, spec.Predicate(record(map[string]float64{"p0": 60, "p1": 1})))
	assert.False(t, spec.Predicate(record(map[string]float64{"p0": 100, "p1": 1})))
	assert.False(t, spec.Predicate(record(map[string]float64{"p0": 60, "p1": -2})))
	assert.False(t, spec.Predicate(record(map[string]float64{"p0": 60, "p1": 15})))
}

func TestDiscPredicates(t *testing.T) {
	good := map[string]float64{
		"noise_T1": 0.4, "noise_T2": 0.2, "noise_E": 0.2,
		"zero_T1": 10, "zero_T2": 5, "zero_E": 2,
	}
	for _, name := range []string{"DiscCalibration0", "DiscCalibration1", "DiscCalibration2", "DiscCalibration3"} {
		spec, err := Default().Lookup(name)
		require.NoError(t, err)
		assert.True(t, spec.Predicate(record(good)), name)
	}

	zeroAtBound := map[string]float64{
		"noise_T1": 0.4, "noise_T2": 0.2, "noise_E": 0.2,
		"zero_T1": 0, "zero_T2": 5, "zero_E": 2,
	}
	spec, _ := Default().Lookup("DiscCalibration0")
	assert.False(t, spec.Predicate(record(zeroAtBound)), "zero_T1 must be positive")

	noisy := map[string]float64{
		"noise_T1": 1.5, "noise_T2": 0.2, "noise_E": 0.2,
		"zero_T1": 10, "zero_T2": 5, "zero_E": 2,
	}
	spec0, _ := Default().Lookup("DiscCalibration0")
	spec1, _ := Default().Lookup("DiscCalibration1")
	assert.True(t, spec0.Predicate(record(noisy)))
	assert.False(t, spec1.Predicate(record(noisy)))
}

func TestTestPulseHasNoPredicate(t *testing.T) {
	spec, err := Default().Lookup("ExtTestPulse")
	require.NoError(t, err)
	assert.False(t, spec.Evaluated())
	assert.Equal(t, "extp_tres_scan.tsv", spec.File)
}
