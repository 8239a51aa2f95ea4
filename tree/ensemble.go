package tree

import (
	"math/rand/v2"

	"github.com/sw965/texplore/mathx/randx"
)

// Ensemble は複数の木を束ね、予測分布を平均する。
// 各メンバーは TrainPct の確率でインスタンスを受け取り、FeatPct の割合の特徴量を0に固定して学習する。
type Ensemble struct {
	Members  []Regressor
	masks    [][]bool
	TrainPct float64
	FeatPct  float64
	rng      *rand.Rand
}

func NewEnsemble(members []Regressor, trainPct, featPct float64, seed uint64) *Ensemble {
	return &Ensemble{
		Members:  members,
		masks:    make([][]bool, len(members)),
		TrainPct: trainPct,
		FeatPct:  featPct,
		rng:      randx.NewMT19937(seed),
	}
}

func (e *Ensemble) mask(i, dims int) []bool {
	if e.masks[i] != nil && len(e.masks[i]) == dims {
		return e.masks[i]
	}
	m := make([]bool, dims)
	// 最初のメンバーは全ての特徴量を使う
	if e.FeatPct > 0 && i > 0 {
		for j := range m {
			m[j] = randx.Bernoulli(e.FeatPct, e.rng)
		}
	}
	e.masks[i] = m
	return m
}

func applyMask(x []float64, m []bool) []float64 {
	y := make([]float64, len(x))
	for j, v := range x {
		if !m[j] {
			y[j] = v
		}
	}
	return y
}

func (e *Ensemble) TrainInstance(x []float64, y float64) (bool, error) {
	return e.TrainInstances([]Instance{{Input: x, Output: y}})
}

func (e *Ensemble) TrainInstances(batch []Instance) (bool, error) {
	changed := false
	for i, member := range e.Members {
		sub := make([]Instance, 0, len(batch))
		for _, inst := range batch {
			// 最初のメンバーは常に全インスタンスで学習する
			if i > 0 && !randx.Bernoulli(e.TrainPct, e.rng) {
				continue
			}
			sub = append(sub, Instance{Input: applyMask(inst.Input, e.mask(i, len(inst.Input))), Output: inst.Output})
		}
		c, err := member.TrainInstances(sub)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (e *Ensemble) TestInstance(x []float64) map[float64]float64 {
	ys := map[float64]float64{}
	n := 0
	for i, member := range e.Members {
		m := e.masks[i]
		if m == nil {
			continue
		}
		ps := member.TestInstance(applyMask(x, m))
		if len(ps) == 0 {
			continue
		}
		n++
		for y, p := range ps {
			ys[y] += p
		}
	}
	for y := range ys {
		ys[y] /= float64(n)
	}
	return ys
}

func (e *Ensemble) Confidence(x []float64) float64 {
	sum := 0.0
	for i, member := range e.Members {
		m := e.masks[i]
		if m == nil {
			continue
		}
		sum += member.Confidence(applyMask(x, m))
	}
	return sum / float64(len(e.Members))
}

func (e *Ensemble) Copy() Regressor {
	c := &Ensemble{
		Members:  make([]Regressor, len(e.Members)),
		masks:    make([][]bool, len(e.masks)),
		TrainPct: e.TrainPct,
		FeatPct:  e.FeatPct,
		rng:      randx.NewMT19937(e.rng.Uint64()),
	}
	for i, member := range e.Members {
		c.Members[i] = member.Copy()
		if e.masks[i] != nil {
			c.masks[i] = append([]bool(nil), e.masks[i]...)
		}
	}
	return c
}
