package models

// TestRecord represents one measured row of a calibration test after serial resolution
type TestRecord struct {
	SN        int                `db:"sn" json:"sn"`
	TesterID  int                `db:"tester_id" json:"tester_id"`
	SourceDir string             `db:"source_dir" json:"source_dir"`
	Values    map[string]float64 `db:"fields" json:"fields"`
	Pass      bool               `db:"pass" json:"pass"`
}

// Value returns the named measurement (zero when absent)
func (r TestRecord) Value(column string) float64 {
	return r.Values[column]
}

// Table holds every record of one test type, with columns in output order
type Table struct {
	Test      string       `json:"test"`
	Columns   []string     `json:"columns"`
	Records   []TestRecord `json:"records"`
	Evaluated bool         `json:"evaluated"`
}

func NewTable(test string, columns []string, evaluated bool) *Table {
	return &Table{
		Test:      test,
		Columns:   append([]string(nil), columns...),
		Evaluated: evaluated,
	}
}
