package testspec

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrDegenerateFit = errors.New("linear fit needs at least two distinct x values")

// LinearFit returns the least-squares slope and intercept of y = slope*x + intercept
func LinearFit(x, y []float64) (slope, intercept float64, err error) {
	if len(x) != len(y) {
		return 0, 0, errors.New("linear fit: x and y lengths differ")
	}
	if len(x) < 2 || floats.Min(x) == floats.Max(x) {
		return 0, 0, ErrDegenerateFit
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept, nil
}

// MaxNormalizedResidual is the largest absolute residual of the fit divided by its slope
func MaxNormalizedResidual(x, y []float64, slope, intercept float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	fitted := make([]float64, len(x))
	floats.ScaleTo(fitted, slope, x)
	floats.AddConst(intercept, fitted)
	return floats.Distance(y, fitted, math.Inf(1)) / slope
}
