package testspec

import (
	"math"
	"sort"

	"github.com/nonsonwune/tofhir_db/models"
)

// Bounds is an open interval
type Bounds struct {
	Low  float64
	High float64
}

func (b Bounds) Contains(v float64) bool {
	return v > b.Low && v < b.High
}

// AldoLimits are the acceptance windows of one gain setting
type AldoLimits struct {
	Slope Bounds
	B     Bounds
	INL   Bounds
}

// AldoGain is the nominal amplifier gain of the ALDO output stage
const AldoGain = (220 + 5.11) / 5.11

// AldoFitMaxDAC excludes the saturated end of the DAC scan from the fit
const AldoFitMaxDAC = 250

var aldoLimits = map[int]AldoLimits{
	0: {
		Slope: Bounds{AldoGain * 0.000445, AldoGain * 0.000485},
		B:     Bounds{34, AldoGain * 0.86},
		INL:   Bounds{0, 5},
	},
	1: {
		Slope: Bounds{AldoGain * 0.00089, AldoGain * 0.00096},
		B:     Bounds{31, AldoGain * 0.77},
		INL:   Bounds{0, 8},
	},
}

// AldoLimitsFor returns the limits of a gain setting
func AldoLimitsFor(gain int) (AldoLimits, bool) {
	l, ok := aldoLimits[gain]
	return l, ok
}

func aldoPredicate(rec models.TestRecord) bool {
	limits, ok := AldoLimitsFor(int(rec.Value("gain")))
	if !ok {
		return false
	}
	return limits.Slope.Contains(rec.Value("slope")) &&
		limits.B.Contains(rec.Value("b")) &&
		limits.INL.Contains(rec.Value("max_inl"))
}

// reduceAldo fits each (tester, asic, side, gain) DAC scan to a line
func reduceAldo(records []models.TestRecord) []models.TestRecord {
	type groupKey [4]float64
	groups := make(map[groupKey][]models.TestRecord)
	keys := make([]groupKey, 0)
	for _, rec := range records {
		k := groupKey{rec.Value("tester_ID"), rec.Value("asic_id"), rec.Value("side"), rec.Value("gain")}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], rec)
	}
	sort.Slice(keys, func(i, j int) bool {
		for n := 0; n < len(keys[i]); n++ {
			if keys[i][n] != keys[j][n] {
				return keys[i][n] < keys[j][n]
			}
		}
		return false
	})

	reduced := make([]models.TestRecord, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		var dac, vout []float64
		for _, rec := range group {
			if rec.Value("DAC") < AldoFitMaxDAC {
				dac = append(dac, rec.Value("DAC"))
				vout = append(vout, rec.Value("Vout"))
			}
		}

		slope, b, maxINL := math.NaN(), math.NaN(), math.NaN()
		if s, intercept, err := LinearFit(dac, vout); err == nil {
			slope, b = s, intercept
			maxINL = MaxNormalizedResidual(dac, vout, s, intercept)
		}

		first := group[0]
		reduced = append(reduced, models.TestRecord{
			SN:        first.SN,
			TesterID:  first.TesterID,
			SourceDir: first.SourceDir,
			Values: map[string]float64{
				"tester_ID": k[0],
				"asic_id":   k[1],
				"side":      k[2],
				"gain":      k[3],
				"slope":     slope,
				"b":         b,
				"max_inl":   maxINL,
			},
		})
	}
	return reduced
}

// DiscLimits are the upper bounds of one discriminator range
type DiscLimits struct {
	Noise [3]float64 // T1, T2, E
	Zero  [3]float64 // T1, T2, E
}

var discLimits = map[int]DiscLimits{
	0: {Noise: [3]float64{2, 1, 0.6}, Zero: [3]float64{100, 50, 16}},
	1: {Noise: [3]float64{1, 0.5, 0.3}, Zero: [3]float64{50, 25, 8}},
	2: {Noise: [3]float64{0.67, 0.33, 0.3}, Zero: [3]float64{33, 17, 5}},
	3: {Noise: [3]float64{0.5, 0.25, 0.3}, Zero: [3]float64{25, 13, 4}},
}

func discPredicate(discRange int) Predicate {
	l := discLimits[discRange]
	return func(rec models.TestRecord) bool {
		return rec.Value("noise_T1") < l.Noise[0] &&
			rec.Value("noise_T2") < l.Noise[1] &&
			rec.Value("noise_E") < l.Noise[2] &&
			rec.Value("zero_T1") > 0 && rec.Value("zero_T1") < l.Zero[0] &&
			rec.Value("zero_T2") > 0 && rec.Value("zero_T2") < l.Zero[1] &&
			rec.Value("zero_E") < l.Zero[2]
	}
}

func qdcPredicate(rec models.TestRecord) bool {
	return rec.Value("p0") < 100 && rec.Value("p1") > -2 && rec.Value("p1") < 15
}

// TDCMaxSigma is the resolution bound, 62.5 ps over a 6.25 ns clock
const TDCMaxSigma = 62.5 / 6250

func tdcPredicate(rec models.TestRecord) bool {
	a0, a1 := rec.Value("a0"), rec.Value("a1")
	return rec.Value("sigma") < TDCMaxSigma && a1 > 440 && 1.5*a1+a0 < 1000
}
