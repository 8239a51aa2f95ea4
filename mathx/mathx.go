package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/floats"
)

func ConvertScale[X constraints.Float](x, xMin, xMax, yMin, yMax X) X {
	return yMin + (yMax-yMin)*(x-xMin)/(xMax-xMin)
}

func Clip[X constraints.Ordered](x, lo, hi X) X {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// MaxIndicesWithin は最大値から tol 以内の値を持つインデックスを全て返す。
func MaxIndicesWithin(xs []float64, tol float64) []int {
	if len(xs) == 0 {
		return nil
	}
	max := floats.Max(xs)
	idxs := make([]int, 0, len(xs))
	for i, x := range xs {
		if math.Abs(max-x) <= tol {
			idxs = append(idxs, i)
		}
	}
	return idxs
}
