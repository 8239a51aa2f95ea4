package tree

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	constantVariance = 1e-10
	maxCond          = 1e12
)

type linearModel struct {
	Constant float64
	Coefs    []float64
}

func (m linearModel) Eval(x []float64) float64 {
	y := m.Constant
	for i, c := range m.Coefs {
		if c != 0 && i < len(x) {
			y += c * x[i]
		}
	}
	return y
}

// Params は定数項を含む自由度。
func (m linearModel) Params() int {
	v := 1
	for _, c := range m.Coefs {
		if c != 0 {
			v++
		}
	}
	return v
}

func (m linearModel) clone() linearModel {
	return linearModel{Constant: m.Constant, Coefs: append([]float64(nil), m.Coefs...)}
}

func (m linearModel) equal(o linearModel) bool {
	const eps = 1e-9
	if math.Abs(m.Constant-o.Constant) > eps || len(m.Coefs) != len(o.Coefs) {
		return false
	}
	for i := range m.Coefs {
		if math.Abs(m.Coefs[i]-o.Coefs[i]) > eps {
			return false
		}
	}
	return true
}

func column(xs [][]float64, j int) []float64 {
	col := make([]float64, len(xs))
	for i, x := range xs {
		col[i] = x[j]
	}
	return col
}

// fitLinear は中心化したデータに対する最小二乗法で線形モデルを当てはめる。
// 定数の特徴量は最初から除外し、Cholesky 分解に失敗した場合は分散の小さい特徴量から順に落として再試行する。
func fitLinear(xs [][]float64, ys []float64, multivariate bool) linearModel {
	n := len(ys)
	if n == 0 {
		return linearModel{}
	}
	d := len(xs[0])
	model := linearModel{Coefs: make([]float64, d)}
	yMean := stat.Mean(ys, nil)
	model.Constant = yMean
	if n == 1 {
		return model
	}

	means := make([]float64, d)
	variances := make([]float64, d)
	active := make([]int, 0, d)
	for j := 0; j < d; j++ {
		col := column(xs, j)
		means[j], variances[j] = stat.MeanVariance(col, nil)
		if variances[j] > constantVariance {
			active = append(active, j)
		}
	}

	if !multivariate {
		return fitSingle(xs, ys, means, variances, active, model)
	}

	// 自由度が足りない場合は分散の小さい特徴量を落とす
	for len(active) > n-1 {
		active = dropLowestVariance(active, variances)
	}

	for len(active) > 0 {
		beta, ok := solveNormal(xs, ys, means, yMean, active)
		if ok {
			for k, j := range active {
				model.Coefs[j] = beta[k]
				model.Constant -= beta[k] * means[j]
			}
			return model
		}
		active = dropLowestVariance(active, variances)
	}
	return model
}

func dropLowestVariance(active []int, variances []float64) []int {
	worst := 0
	for k := 1; k < len(active); k++ {
		// 同値の場合は後ろの特徴量を落とす
		if variances[active[k]] <= variances[active[worst]] {
			worst = k
		}
	}
	y := make([]int, 0, len(active)-1)
	y = append(y, active[:worst]...)
	return append(y, active[worst+1:]...)
}

func solveNormal(xs [][]float64, ys []float64, means []float64, yMean float64, active []int) ([]float64, bool) {
	k := len(active)
	xtx := mat.NewSymDense(k, nil)
	xty := mat.NewVecDense(k, nil)
	for i, x := range xs {
		yc := ys[i] - yMean
		for a, ja := range active {
			xa := x[ja] - means[ja]
			xty.SetVec(a, xty.AtVec(a)+xa*yc)
			for b := a; b < k; b++ {
				xb := x[active[b]] - means[active[b]]
				xtx.SetSym(a, b, xtx.At(a, b)+xa*xb)
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return nil, false
	}
	if chol.Cond() > maxCond {
		return nil, false
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, xty); err != nil {
		return nil, false
	}
	y := make([]float64, k)
	for i := range y {
		y[i] = beta.AtVec(i)
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, false
		}
	}
	return y, true
}

// fitSingle は最も二乗誤差が小さくなる特徴量1つだけを使う単回帰。
func fitSingle(xs [][]float64, ys []float64, means, variances []float64, active []int, model linearModel) linearModel {
	yMean := model.Constant
	bestSSE := 0.0
	for _, y := range ys {
		bestSSE += (y - yMean) * (y - yMean)
	}
	bestJ := -1
	bestBeta := 0.0
	for _, j := range active {
		cov := 0.0
		for i, x := range xs {
			cov += (x[j] - means[j]) * (ys[i] - yMean)
		}
		cov /= float64(len(ys) - 1)
		beta := cov / variances[j]
		sse := 0.0
		for i, x := range xs {
			r := ys[i] - (yMean + beta*(x[j]-means[j]))
			sse += r * r
		}
		if sse < bestSSE {
			bestSSE, bestJ, bestBeta = sse, j, beta
		}
	}
	if bestJ >= 0 {
		model.Coefs[bestJ] = bestBeta
		model.Constant = yMean - bestBeta*means[bestJ]
	}
	return model
}

// residuals は平均絶対誤差と最大絶対誤差を返す。
func residuals(m linearModel, xs [][]float64, ys []float64) (float64, float64) {
	if len(ys) == 0 {
		return 0, 0
	}
	sum, max := 0.0, 0.0
	for i, x := range xs {
		r := math.Abs(m.Eval(x) - ys[i])
		sum += r
		if r > max {
			max = r
		}
	}
	return sum / float64(len(ys)), max
}
