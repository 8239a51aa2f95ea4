package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sw965/texplore/mathx/randx"
)

func TestNewStateInfo(t *testing.T) {
	info := newStateInfo(3, randx.NewMT19937(1))
	assert.Len(t, info.q, 3)
	for a := range info.q {
		assert.GreaterOrEqual(t, info.q[a], 0.0)
		assert.Less(t, info.q[a], 0.01)
		assert.Equal(t, 1, info.actions[a])
	}
	assert.Equal(t, 1, info.visits)
}

func TestClipVisits(t *testing.T) {
	tests := []struct {
		name        string
		visits      int
		actions     []int
		wantVisits  int
		wantActions []int
	}{
		{name: "正常_上限を超えた回数を減らす", visits: 100, actions: []int{80, 20}, wantVisits: 20, wantActions: []int{10, 10}},
		{name: "正常_上限未満はそのまま", visits: 7, actions: []int{3, 4}, wantVisits: 7, wantActions: []int{3, 4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info := newStateInfo(2, randx.NewMT19937(1))
			info.visits = tc.visits
			copy(info.actions, tc.actions)
			info.clipVisits(10, 2)
			assert.Equal(t, tc.wantVisits, info.visits)
			assert.Equal(t, tc.wantActions, info.actions)
		})
	}
}

func TestSelectActionPrefersLessTried(t *testing.T) {
	p, err := New(Config{
		NumActions: 2, Gamma: 0.9, Lambda: 0.1, RewardRange: 1, MaxReward: 1,
		MaxIterations: 10, MaxTime: 1, MaxDepth: 10, FeatMin: []float64{0}, FeatMax: []float64{1},
	})
	assert.NoError(t, err)
	info := newStateInfo(2, randx.NewMT19937(1))
	info.q = []float64{0.5, 0.5}
	info.visits = 101
	info.actions = []int{100, 1}
	assert.Equal(t, 1, p.selectAction(info))
}
