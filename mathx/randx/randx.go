// Package randx provides the seeded random stream shared by the planner and the models.
//
// Package randx はプランナーとモデルで共有する、シード付きの乱数ストリームを提供します。
package randx

import (
	"errors"
	"math/rand/v2"

	"github.com/seehuhn/mt19937"
)

var (
	ErrEmptyWeights = errors.New("重みエラー: 要素数が0です")
	ErrZeroWeights  = errors.New("重みエラー: 合計値が0以下です")
)

func NewMT19937(seed uint64) *rand.Rand {
	mt := mt19937.New()
	mt.Seed(int64(seed))
	return rand.New(mt)
}

func Uniform(lo, hi float64, rng *rand.Rand) float64 {
	return lo + (hi-lo)*rng.Float64()
}

func Bernoulli(p float64, rng *rand.Rand) bool {
	return rng.Float64() < p
}

func Choice[S ~[]E, E any](s S, rng *rand.Rand) E {
	return s[rng.IntN(len(s))]
}

// IndexByWeight は累積確率による抽選を行う。重みの合計は1である必要はない。
func IndexByWeight(ws []float64, rng *rand.Rand) (int, error) {
	n := len(ws)
	if n == 0 {
		return 0, ErrEmptyWeights
	}
	sum := 0.0
	for _, w := range ws {
		sum += w
	}
	if sum <= 0.0 {
		return 0, ErrZeroWeights
	}

	threshold := rng.Float64() * sum
	cum := 0.0
	for i, w := range ws {
		cum += w
		if threshold < cum {
			return i, nil
		}
	}
	// 浮動小数点誤差で末尾まで到達した場合
	return n - 1, nil
}
