package models

// BoardYield is one row of the yield table
type BoardYield struct {
	SN int `db:"sn" json:"sn"`
	// Pass holds one entry per test the board was measured in
	Pass map[string]bool `db:"-" json:"pass"`
}

// Passed reports the board's result for a test and whether it was measured at all
func (b BoardYield) Passed(test string) (pass bool, measured bool) {
	pass, measured = b.Pass[test]
	return pass, measured
}

// YieldTable is indexed by serial number, one boolean column per evaluated test
type YieldTable struct {
	Tests  []string     `json:"tests"`
	Boards []BoardYield `json:"boards"`
}

// Fraction is a passing count over a denominator
type Fraction struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
}

func (f Fraction) Ratio() float64 {
	if f.Total == 0 {
		return 0
	}
	return float64(f.Passed) / float64(f.Total)
}
