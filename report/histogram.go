package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nonsonwune/tofhir_db/merger"
	"github.com/nonsonwune/tofhir_db/testspec"
)

// DefaultBins is used when a parameter has no predefined binning
const DefaultBins = 40

const barWidth = 40

// Histogram counts values on a regular axis. Bins are half-open [low, high).
type Histogram struct {
	Binning   testspec.Binning
	Counts    []int
	Underflow int
	Overflow  int
	Invalid   int

	dividers []float64
}

// BinningFor returns the predefined binning of a parameter, or one fitted to the data
func BinningFor(spec testspec.Spec, param string, values []float64) testspec.Binning {
	if b, ok := spec.Binnings[param]; ok {
		return b
	}
	return AutoBinning(values, DefaultBins)
}

// AutoBinning spans the finite values so the maximum lands in the last bin.
// A non-positive bin count falls back to DefaultBins.
func AutoBinning(values []float64, bins int) testspec.Binning {
	if bins < 1 {
		bins = DefaultBins
	}
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return testspec.Binning{Low: 0, High: 1, Bins: bins}
	}
	lo, hi := floats.Min(finite), floats.Max(finite)
	if lo == hi {
		return testspec.Binning{Low: lo - 0.5, High: hi + 0.5, Bins: bins}
	}
	return testspec.Binning{Low: lo, High: math.Nextafter(hi, math.Inf(1)), Bins: bins}
}

// Fill counts values into the binning; a non-positive bin count is treated as one bin
func Fill(values []float64, b testspec.Binning) *Histogram {
	if b.Bins < 1 {
		b.Bins = 1
	}
	h := &Histogram{Binning: b, Counts: make([]int, b.Bins)}
	h.dividers = floats.Span(make([]float64, b.Bins+1), b.Low, b.High)

	inRange := make([]float64, 0, len(values))
	for _, v := range values {
		switch {
		case math.IsNaN(v):
			h.Invalid++
		case v < b.Low:
			h.Underflow++
		case v >= b.High:
			h.Overflow++
		default:
			inRange = append(inRange, v)
		}
	}
	if len(inRange) == 0 {
		return h
	}

	sort.Float64s(inRange)
	counts := stat.Histogram(nil, h.dividers, inRange, nil)
	for i, c := range counts {
		h.Counts[i] = int(c)
	}
	return h
}

// Edges returns the bounds of bin i
func (h *Histogram) Edges(i int) (float64, float64) {
	return h.dividers[i], h.dividers[i+1]
}

func (h *Histogram) Entries() int {
	n := h.Underflow + h.Overflow + h.Invalid
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// PrintHistogram renders the histogram as a table of bins with text bars
func PrintHistogram(w io.Writer, name string, h *Histogram) {
	title(w, fmt.Sprintf("%s (%d entries)", name, h.Entries()))

	peak := h.Underflow
	for _, c := range h.Counts {
		if c > peak {
			peak = c
		}
	}
	if h.Overflow > peak {
		peak = h.Overflow
	}
	bar := func(c int) string {
		if peak == 0 || c == 0 {
			return ""
		}
		n := c * barWidth / peak
		if n == 0 {
			n = 1
		}
		return strings.Repeat("#", n)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Range", "Count", ""})
	table.Append([]string{"< " + merger.FormatFloat(h.Binning.Low), strconv.Itoa(h.Underflow), bar(h.Underflow)})
	for i, c := range h.Counts {
		lo, hi := h.Edges(i)
		table.Append([]string{fmt.Sprintf("[%.4g, %.4g)", lo, hi), strconv.Itoa(c), bar(c)})
	}
	table.Append([]string{">= " + merger.FormatFloat(h.Binning.High), strconv.Itoa(h.Overflow), bar(h.Overflow)})
	table.Render()

	if h.Invalid > 0 {
		bad.Fprintf(w, "%d NaN value(s) not shown\n", h.Invalid)
	}
}
