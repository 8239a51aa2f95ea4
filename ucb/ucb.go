package ucb

import (
	"math"
)

type Func func(q, bound float64, total, n int) float64

// RewardBound は探索項のスケールであり、このMDPで取り得る価値の幅の上限。
func RewardBound(rewardRange, gamma float64) float64 {
	return math.Max(rewardRange, 1.0) / (1.0 - gamma)
}

func Bonus(bound float64, total, n int) float64 {
	return bound * 2.0 * math.Sqrt(math.Log(float64(total))/float64(n))
}

func Standard(q, bound float64, total, n int) float64 {
	return q + Bonus(bound, total, n)
}

// Values は各行動のUCB値を返す。visits と qs の長さは一致している事を想定。
func Values(f Func, qs []float64, bound float64, total int, visits []int) []float64 {
	ys := make([]float64, len(qs))
	for a, q := range qs {
		ys[a] = f(q, bound, total, visits[a])
	}
	return ys
}
