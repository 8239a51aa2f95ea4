package tree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitLinear(t *testing.T) {
	tests := []struct {
		name         string
		xs           [][]float64
		f            func(x []float64) float64
		multivariate bool
		wantParams   int
	}{
		{
			name:         "正常_2変数",
			xs:           [][]float64{{0, 1}, {1, 0}, {2, 3}, {3, 1}, {4, 4}, {5, 2}},
			f:            func(x []float64) float64 { return 2*x[0] - 3*x[1] + 5 },
			multivariate: true,
			wantParams:   3,
		},
		{
			name:         "正常_定数の特徴量は除外",
			xs:           [][]float64{{0, 7}, {1, 7}, {2, 7}, {3, 7}},
			f:            func(x []float64) float64 { return -x[0] + 2 },
			multivariate: true,
			wantParams:   2,
		},
		{
			name:         "正常_共線な特徴量",
			xs:           [][]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}},
			f:            func(x []float64) float64 { return 4 * x[0] },
			multivariate: true,
			wantParams:   2,
		},
		{
			name:         "正常_単回帰",
			xs:           [][]float64{{3, 0}, {1, 1}, {4, 2}, {1, 3}, {5, 4}},
			f:            func(x []float64) float64 { return 3*x[1] - 1 },
			multivariate: false,
			wantParams:   2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ys := make([]float64, len(tc.xs))
			for i, x := range tc.xs {
				ys[i] = tc.f(x)
			}
			m := fitLinear(tc.xs, ys, tc.multivariate)
			for i, x := range tc.xs {
				assert.InDelta(t, ys[i], m.Eval(x), 1e-6)
			}
			assert.Equal(t, tc.wantParams, m.Params())
			meanErr, maxErr := residuals(m, tc.xs, ys)
			assert.InDelta(t, 0.0, meanErr, 1e-6)
			assert.InDelta(t, 0.0, maxErr, 1e-6)
		})
	}
}

func TestFitLinearSmall(t *testing.T) {
	m := fitLinear([][]float64{{1, 2}}, []float64{5}, true)
	assert.Equal(t, 5.0, m.Eval([]float64{100, -3}))
	assert.Equal(t, 1, m.Params())

	empty := fitLinear(nil, nil, true)
	assert.Equal(t, 0.0, empty.Eval([]float64{1}))
}

func TestSplitCriteria(t *testing.T) {
	assert.InDelta(t, math.Ln2, entropy(map[float64]int{0: 2, 1: 2}, 4), 1e-12)
	assert.Equal(t, 0.0, entropy(map[float64]int{3: 5}, 5))
	assert.Equal(t, 0.0, entropy(nil, 0))
	// 完全に分離する均等な分割の利得比は1
	assert.InDelta(t, 1.0, gainRatio(math.Ln2, 4, 2, 2, 0, 0), 1e-12)
	// 3クラスが均等なら log(3)
	assert.InDelta(t, math.Log(3), entropy(map[float64]int{0: 1, 1: 1, 2: 1}, 3), 1e-12)
	assert.InDelta(t, 1.0, popStdDev([]float64{1, 3}), 1e-12)
	assert.Equal(t, 0.0, popStdDev(nil))
	assert.InDelta(t, 1.0, sdr(1.0, 4, []float64{1, 1}, []float64{3, 3}), 1e-12)
}
