package models

import "testing"

func TestSkipString(t *testing.T) {
	tests := []struct {
		skip Skip
		want string
	}{
		{
			skip: Skip{Dir: "202401010000", Kind: SkipMissingData, Reason: "no serial marker files found"},
			want: "202401010000: [missing-data] no serial marker files found",
		},
		{
			skip: Skip{Dir: "202401010000", Test: "TDCCalibration", Kind: SkipFormat, Reason: "short row"},
			want: "202401010000/TDCCalibration: [format] short row",
		},
	}

	for _, tt := range tests {
		if got := tt.skip.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFractionRatio(t *testing.T) {
	if r := (Fraction{}).Ratio(); r != 0 {
		t.Errorf("empty fraction ratio = %v, want 0", r)
	}
	if r := (Fraction{Passed: 1, Total: 4}).Ratio(); r != 0.25 {
		t.Errorf("ratio = %v, want 0.25", r)
	}
}
