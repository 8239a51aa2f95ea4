package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/sw965/texplore/mathx"
)

var (
	ErrDimMismatch = errors.New("次元数エラー: 特徴量の次元数が一致しません")
)

type Discretizer struct {
	Min          []float64
	Max          []float64
	StatesPerDim []int
}

func NewDiscretizer(min, max []float64, statesPerDim []int) (Discretizer, error) {
	if len(min) != len(max) {
		return Discretizer{}, fmt.Errorf("%w: min=%d max=%d", ErrDimMismatch, len(min), len(max))
	}
	if statesPerDim != nil && len(statesPerDim) != len(min) {
		return Discretizer{}, fmt.Errorf("%w: statesPerDim=%d features=%d", ErrDimMismatch, len(statesPerDim), len(min))
	}
	return Discretizer{Min: min, Max: max, StatesPerDim: statesPerDim}, nil
}

func (d Discretizer) Active() bool {
	for _, n := range d.StatesPerDim {
		if n > 0 {
			return true
		}
	}
	return false
}

// Discretize は各次元をセルの中心値へ写像する。StatesPerDim[i]==0 の次元はそのまま。
// History の接尾辞など、Min/Max の範囲外の次元もそのまま残す。
func (d Discretizer) Discretize(v []float64) []float64 {
	y := make([]float64, len(v))
	copy(y, v)
	for i, n := range d.StatesPerDim {
		if i >= len(v) || n <= 0 {
			continue
		}
		width := (d.Max[i] - d.Min[i]) / float64(n)
		if width <= 0 {
			continue
		}
		bin := int(math.Floor((v[i] - d.Min[i]) / width))
		bin = mathx.Clip(bin, 0, n-1)
		y[i] = d.Min[i] + (float64(bin)+0.5)*width
	}
	return y
}

// InBounds は各次元が [Min-eps, Max+eps] に収まるかを判定する。
func (d Discretizer) InBounds(v []float64, eps float64) bool {
	for i := range d.Min {
		if i >= len(v) {
			break
		}
		if v[i] < d.Min[i]-eps || v[i] > d.Max[i]+eps {
			return false
		}
	}
	return true
}
