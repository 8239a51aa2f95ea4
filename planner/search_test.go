package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/ql"
	"github.com/sw965/texplore/state"
)

// shift は入力された状態を delta だけ動かす決定的なモデル。
type shift struct {
	delta  float64
	reward float64
}

func (shift) UpdateWithExperience(mdp.Experience) (bool, error)    { return false, nil }
func (shift) UpdateWithExperiences([]mdp.Experience) (bool, error) { return false, nil }
func (m shift) Copy() mdp.Model                                    { return m }
func (m shift) GetStateActionInfo(s []float64, a int) (mdp.StateActionInfo, error) {
	info := mdp.NewStateActionInfo()
	info.Reward = m.reward
	next := make([]float64, len(s))
	for i := range s {
		next[i] = s[i] + m.delta
	}
	info.AddOutcome(next, 1)
	info.Known = true
	return info, nil
}

func newSearchPlanner(t *testing.T, modify func(*Config)) *ParallelETUCT {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NumActions = 1
	cfg.Gamma = 0.9
	cfg.FeatMin = []float64{0}
	cfg.FeatMax = []float64{10}
	if modify != nil {
		modify(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestUCTSearchLambda(t *testing.T) {
	tests := []struct {
		name   string
		lambda float64
	}{
		{name: "正常_lambda0は更新後の最良値", lambda: 0},
		{name: "正常_lambda0.5は中間", lambda: 0.5},
		{name: "正常_lambda1は標本収益", lambda: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newSearchPlanner(t, func(c *Config) {
				c.Lambda = tc.lambda
				c.MaxDepth = 0
			})
			p.SetModel(shift{delta: 1, reward: 1})

			root := p.canonicalize([]float64{2})
			info := p.info(root)
			q0 := info.q[0]
			got, err := p.uctSearch([]float64{2}, root, 0, state.NewHistory(0))
			require.NoError(t, err)

			// 深さの上限に達した子は自身の最良値を返す
			child, ok := p.space.Lookup([]float64{3})
			require.True(t, ok)
			sampled := 1 + 0.9*p.info(child).maxQ()
			updated := ql.UpdateQ(q0, sampled, ql.LearnRate(1))

			assert.InDelta(t, updated, info.q[0], 1e-12)
			assert.InDelta(t, tc.lambda*sampled+(1-tc.lambda)*updated, got, 1e-12)
			assert.Equal(t, 2, info.actions[0])
			assert.Zero(t, info.visited)
		})
	}
}

func TestUCTSearchTrackActual(t *testing.T) {
	tests := []struct {
		name        string
		trackActual bool
		want        int
	}{
		// 中心から 0.3 動く予測は同じセルに留まる
		{name: "正常_中心からの予測はセルに留まる", trackActual: false, want: 1},
		// 実数の状態に変化量を積み上げると 2.05, 2.35, ..., 9.85 を通り 8 個のセルに至る
		{name: "正常_実数の状態に変化量を積み上げる", trackActual: true, want: 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newSearchPlanner(t, func(c *Config) {
				c.StatesPerDim = []int{10}
				c.TrackActual = tc.trackActual
				c.MaxDepth = 40
			})
			p.SetModel(shift{delta: 0.3})

			actual := []float64{2.05}
			root := p.canonicalize(actual)
			assert.Equal(t, []float64{2.5}, p.space.Vector(root))
			_, err := p.uctSearch(actual, root, 0, state.NewHistory(0))
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.NumStates())

			_, ok := p.space.Lookup([]float64{3.5})
			assert.Equal(t, tc.trackActual, ok)
		})
	}
}

func TestUCTSearchOutOfBounds(t *testing.T) {
	for _, track := range []bool{false, true} {
		p := newSearchPlanner(t, func(c *Config) {
			c.StatesPerDim = []int{10}
			c.TrackActual = track
			c.MaxDepth = 5
		})
		p.SetModel(shift{delta: 100, reward: 1})

		root := p.canonicalize([]float64{5})
		_, err := p.uctSearch([]float64{5}, root, 0, state.NewHistory(0))
		require.NoError(t, err)
		// 範囲外の予測は現在の状態に留まる
		assert.Equal(t, 1, p.NumStates(), "TrackActual=%v", track)
	}
}
