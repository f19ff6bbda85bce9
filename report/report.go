package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/nonsonwune/tofhir_db/models"
	"github.com/nonsonwune/tofhir_db/store"
	"github.com/nonsonwune/tofhir_db/yield"
)

var (
	heading = color.New(color.FgYellow)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
)

func title(w io.Writer, s string) {
	heading.Fprintf(w, "\n%s\n", s)
}

func percent(f models.Fraction) string {
	if f.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*f.Ratio())
}

// PrintYield renders per-test and overall yield
func PrintYield(w io.Writer, yt *models.YieldTable) {
	title(w, "Board Yield")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Test", "Passed", "Measured", "Yield"})

	for _, test := range yt.Tests {
		f := yield.TestYield(yt, test)
		table.Append([]string{test, strconv.Itoa(f.Passed), strconv.Itoa(f.Total), percent(f)})
	}
	overall := yield.OverallYield(yt)
	table.Append([]string{"Overall", strconv.Itoa(overall.Passed), strconv.Itoa(overall.Total), percent(overall)})
	table.Render()

	if incomplete := yield.Incomplete(yt); len(incomplete) > 0 {
		bad.Fprintf(w, "%d board(s) missing at least one test: %v\n", len(incomplete), incomplete)
	}
}

// PrintFailing lists the boards failing at least one measured test
func PrintFailing(w io.Writer, yt *models.YieldTable) {
	failing := yield.Failing(yt)
	if len(failing) == 0 {
		good.Fprintln(w, "No failing boards")
		return
	}

	serials := make([]int, 0, len(failing))
	for sn := range failing {
		serials = append(serials, sn)
	}
	sort.Ints(serials)

	title(w, "Failing Boards")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"SN", "Failed Tests"})
	table.SetAutoWrapText(false)
	for _, sn := range serials {
		tests := failing[sn]
		cell := tests[0]
		for _, t := range tests[1:] {
			cell += ", " + t
		}
		table.Append([]string{strconv.Itoa(sn), cell})
	}
	table.Render()
}

// PrintSkips renders the skip report; nothing is printed for a clean run
func PrintSkips(w io.Writer, skips []models.Skip) {
	if len(skips) == 0 {
		return
	}
	title(w, fmt.Sprintf("Skipped (%d)", len(skips)))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Directory", "Test", "Kind", "Reason"})
	table.SetAutoWrapText(false)
	for _, s := range skips {
		test := s.Test
		if test == "" {
			test = "(all)"
		}
		table.Append([]string{s.Dir, test, s.Kind, s.Reason})
	}
	table.Render()
}

func PrintBoard(w io.Writer, sn int, statuses []store.BoardStatus) {
	title(w, fmt.Sprintf("Board %d", sn))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Test", "Status", "Rows"})

	all := true
	for _, st := range statuses {
		status := "PASS"
		if !st.Pass {
			status = "FAIL"
			all = false
		}
		table.Append([]string{st.Test, status, strconv.Itoa(st.Rows)})
	}
	table.Render()

	if all {
		good.Fprintln(w, "All measured tests passed")
	} else {
		bad.Fprintln(w, "Board failed at least one test")
	}
}

func PrintRuns(w io.Writer, runs []store.Run) {
	title(w, "Recent Runs")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Started", "Base Directory", "Directories", "Boards", "Skipped", "Overall Yield"})
	for _, r := range runs {
		table.Append([]string{
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.BaseDir,
			strconv.Itoa(r.Directories),
			strconv.Itoa(r.Boards),
			strconv.Itoa(r.Skipped),
			fmt.Sprintf("%.1f%%", 100*r.OverallYield),
		})
	}
	table.Render()
}
