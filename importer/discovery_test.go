package importer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/nonsonwune/tofhir_db/models"
	"github.com/nonsonwune/tofhir_db/testspec"
)

func TestScanSortsAndSkips(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/data/202401020000/tdc_calibration.tsv", tdcHeader)
	writeFile(t, fs, "/data/202401010000/tdc_calibration.tsv", tdcHeader)
	writeFile(t, fs, "/data/202401030000/aldo.tsv", "1")
	writeFile(t, fs, "/data/notes/tdc_calibration.tsv", tdcHeader)
	writeFile(t, fs, "/data/202401040000.tsv", "x")

	specs, err := testspec.Default().Resolve([]string{"TDCCalibration"})
	require.NoError(t, err)

	dirs, skipped, err := NewDirectoryScanner(fs, nil).Scan("/data", specs)
	require.NoError(t, err)

	wantDirs := []models.ResultDirectory{
		{Name: "202401010000", Path: "/data/202401010000", Timestamp: 202401010000},
		{Name: "202401020000", Path: "/data/202401020000", Timestamp: 202401020000},
	}
	if diff := cmp.Diff(wantDirs, dirs); diff != "" {
		t.Errorf("directories mismatch (-want +got):\n%s", diff)
	}

	wantSkipped := []models.Skip{{
		Dir:    "202401030000",
		Kind:   models.SkipMissingData,
		Reason: "file tdc_calibration.tsv not found",
	}}
	if diff := cmp.Diff(wantSkipped, skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestScanMissingBaseDir(t *testing.T) {
	_, _, err := NewDirectoryScanner(afero.NewMemMapFs(), nil).Scan("/nowhere", nil)
	require.Error(t, err)
}
