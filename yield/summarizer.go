package yield

import (
	"sort"

	"github.com/nonsonwune/tofhir_db/models"
)

// Summarize collapses merged tables into one pass/fail per board and test.
// Tables without a pass field are ignored.
func Summarize(tables []*models.Table) *models.YieldTable {
	yt := &models.YieldTable{}
	boards := make(map[int]*models.BoardYield)

	for _, t := range tables {
		if t == nil || !t.Evaluated {
			continue
		}
		yt.Tests = append(yt.Tests, t.Test)
		for _, rec := range t.Records {
			b, ok := boards[rec.SN]
			if !ok {
				b = &models.BoardYield{SN: rec.SN, Pass: make(map[string]bool)}
				boards[rec.SN] = b
			}
			prev, seen := b.Pass[t.Test]
			b.Pass[t.Test] = rec.Pass && (prev || !seen)
		}
	}

	yt.Boards = make([]models.BoardYield, 0, len(boards))
	for _, b := range boards {
		yt.Boards = append(yt.Boards, *b)
	}
	sort.Slice(yt.Boards, func(i, j int) bool { return yt.Boards[i].SN < yt.Boards[j].SN })
	return yt
}

// TestYield is the fraction of measured boards passing one test
func TestYield(yt *models.YieldTable, test string) models.Fraction {
	var f models.Fraction
	for _, b := range yt.Boards {
		pass, measured := b.Passed(test)
		if !measured {
			continue
		}
		f.Total++
		if pass {
			f.Passed++
		}
	}
	return f
}

// OverallYield is the fraction of all boards passing every summarized test
func OverallYield(yt *models.YieldTable) models.Fraction {
	f := models.Fraction{Total: len(yt.Boards)}
	for _, b := range yt.Boards {
		if passesAll(yt.Tests, b) {
			f.Passed++
		}
	}
	return f
}

func passesAll(tests []string, b models.BoardYield) bool {
	for _, test := range tests {
		if pass, measured := b.Passed(test); !measured || !pass {
			return false
		}
	}
	return true
}

// Incomplete returns the serials of boards missing at least one summarized test
func Incomplete(yt *models.YieldTable) []int {
	out := make([]int, 0)
	for _, b := range yt.Boards {
		for _, test := range yt.Tests {
			if _, measured := b.Passed(test); !measured {
				out = append(out, b.SN)
				break
			}
		}
	}
	return out
}

// Failing returns the boards that fail at least one measured test, with the failed tests
func Failing(yt *models.YieldTable) map[int][]string {
	out := make(map[int][]string)
	for _, b := range yt.Boards {
		for _, test := range yt.Tests {
			if pass, measured := b.Passed(test); measured && !pass {
				out[b.SN] = append(out[b.SN], test)
			}
		}
	}
	return out
}
