package models

import "fmt"

// ResultDirectory is one time-stamped test campaign directory
type ResultDirectory struct {
	Name      string `db:"name" json:"name"`
	Path      string `db:"path" json:"path"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
}

// Skip kinds recorded in the run report
const (
	SkipMissingData      = "missing-data"
	SkipFormat           = "format"
	SkipUnresolvedSerial = "unresolved-serial"
)

// Skip records a directory, or a (directory, test) pair, left out of the aggregation
type Skip struct {
	Dir    string `db:"dir" json:"dir"`
	Test   string `db:"test_name" json:"test,omitempty"`
	Kind   string `db:"kind" json:"kind"`
	Reason string `db:"reason" json:"reason"`
}

func (s Skip) String() string {
	if s.Test == "" {
		return fmt.Sprintf("%s: [%s] %s", s.Dir, s.Kind, s.Reason)
	}
	return fmt.Sprintf("%s/%s: [%s] %s", s.Dir, s.Test, s.Kind, s.Reason)
}
