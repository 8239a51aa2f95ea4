package ucb_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sw965/texplore/ucb"
)

func TestRewardBound(t *testing.T) {
	assert.InDelta(t, 10.0, ucb.RewardBound(0.5, 0.9), 1e-9)
	assert.InDelta(t, 20.0, ucb.RewardBound(2.0, 0.9), 1e-9)
}

func TestStandard(t *testing.T) {
	got := ucb.Standard(1.0, 10.0, 100, 4)
	want := 1.0 + 10.0*2.0*math.Sqrt(math.Log(100)/4)
	assert.InDelta(t, want, got, 1e-12)

	// 訪問回数が多い行動ほど探索項は小さい
	vs := ucb.Values(ucb.Standard, []float64{0, 0}, 1.0, 50, []int{1, 49})
	assert.Greater(t, vs[0], vs[1])
}
