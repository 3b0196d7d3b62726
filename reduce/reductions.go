package reduce

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ReductionFunc collapses one row (all non-iteration axes) to a scalar.
// Rows are never empty.
type ReductionFunc func(values []float64) float64

// Mean returns the arithmetic mean of the row.
func Mean(values []float64) float64 { return stat.Mean(values, nil) }

// Sum returns the sum of the row.
func Sum(values []float64) float64 { return floats.Sum(values) }

// Min returns the smallest element of the row.
func Min(values []float64) float64 { return floats.Min(values) }

// Max returns the largest element of the row.
func Max(values []float64) float64 { return floats.Max(values) }

// Std returns the unbiased standard deviation of the row.
func Std(values []float64) float64 { return stat.StdDev(values, nil) }

// ByName returns a built-in reduction.
func ByName(name string) (ReductionFunc, bool) {
	switch name {
	case "mean":
		return Mean, true
	case "sum":
		return Sum, true
	case "min":
		return Min, true
	case "max":
		return Max, true
	case "std":
		return Std, true
	default:
		return nil, false
	}
}
