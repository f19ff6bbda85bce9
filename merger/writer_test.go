package merger

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/nonsonwune/tofhir_db/models"
)

func sampleTable() *models.Table {
	t := models.NewTable("QDCCalibration0", []string{"chipID", "p0", "p1"}, true)
	t.Records = []models.TestRecord{
		{SN: 17, TesterID: 2, SourceDir: "202401010000", Values: map[string]float64{"chipID": 4, "p0": 60.25, "p1": 1}, Pass: true},
		{SN: 18, TesterID: 3, SourceDir: "202401020000", Values: map[string]float64{"chipID": 6, "p0": 120, "p1": -0.5}},
	}
	return t
}

func TestEncodeTable(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeTable(&buf, sampleTable()); err != nil {
		t.Fatalf("EncodeTable failed: %v", err)
	}
	want := "SN,tester_id,source_dir,chipID,p0,p1,pass\n" +
		"17,2,202401010000,4,60.25,1,true\n" +
		"18,3,202401020000,6,120,-0.5,false\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteAndReadTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	in := sampleTable()
	if err := WriteTable(fs, "/out/testdata/QDCCalibration0.csv", in); err != nil {
		t.Fatalf("WriteTable failed: %v", err)
	}

	out, err := ReadTable(fs, "/out/testdata/QDCCalibration0.csv", "QDCCalibration0")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatFloat(t *testing.T) {
	for v, want := range map[float64]string{17: "17", 0.004: "0.004", -2.5: "-2.5", math.NaN(): "NaN"} {
		if got := FormatFloat(v); got != want {
			t.Errorf("FormatFloat(%v) = %q, want %q", v, got, want)
		}
	}
}
