package factored_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/texplore/factored"
	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
)

func newModel(t *testing.T, numFactors int, modify func(*factored.Options)) *factored.Model {
	t.Helper()
	opts := factored.DefaultOptions()
	opts.NumActions = 2
	opts.NumFactors = numFactors
	if modify != nil {
		modify(&opts)
	}
	m, err := factored.New(opts)
	require.NoError(t, err)
	return m
}

func assertProbabilityInvariant(t *testing.T, info mdp.StateActionInfo) {
	t.Helper()
	sum := 0.0
	for _, o := range info.TransitionProbs {
		sum += o.Prob
	}
	assert.InDelta(t, 1.0, sum*(1-info.TermProb)+info.TermProb, 1e-4)
	assert.NoError(t, mdp.ValidateTransitions(&info))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*factored.Options)
		want   error
	}{
		{name: "異常_RMAX", modify: func(o *factored.Options) { o.ModelType = mdp.RMAX }, want: factored.ErrUnsupportedModel},
		{name: "異常_因子数0", modify: func(o *factored.Options) { o.NumFactors = 0 }, want: factored.ErrInvalidOptions},
		{name: "異常_行動数0", modify: func(o *factored.Options) { o.NumActions = 0 }, want: factored.ErrInvalidOptions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := factored.DefaultOptions()
			opts.NumActions = 2
			opts.NumFactors = 1
			tc.modify(&opts)
			_, err := factored.New(opts)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUnknownBeforeTraining(t *testing.T) {
	m := newModel(t, 2, nil)
	info, err := m.GetStateActionInfo([]float64{3, 4}, 1)
	require.NoError(t, err)

	assert.Equal(t, factored.UnknownReward, info.Reward)
	assert.False(t, info.Known)
	assert.Zero(t, info.TermProb)
	require.Len(t, info.TransitionProbs, 1)
	o := info.Outcomes()[0]
	assert.Equal(t, []float64{3, 4}, o.Vector)
	assert.Equal(t, 1.0, o.Prob)
}

func chainExperiences(reps int) []mdp.Experience {
	es := make([]mdp.Experience, 0, reps*20)
	for r := 0; r < reps; r++ {
		for x := 1; x < 10; x++ {
			es = append(es,
				mdp.Experience{S: []float64{float64(x)}, Act: 0, Next: []float64{float64(x - 1)}},
				mdp.Experience{S: []float64{float64(x)}, Act: 1, Next: []float64{float64(x + 1)}, Terminal: x+1 == 10, Reward: rewardAt(x + 1)},
			)
		}
	}
	return es
}

func rewardAt(x int) float64 {
	if x == 10 {
		return 1
	}
	return 0
}

func TestDeterministicChain(t *testing.T) {
	m := newModel(t, 1, nil)
	changed, err := m.UpdateWithExperiences(chainExperiences(3))
	require.NoError(t, err)
	assert.True(t, changed)

	info, err := m.GetStateActionInfo([]float64{5}, 1)
	require.NoError(t, err)
	assert.True(t, info.Known)
	assert.Zero(t, info.TermProb)
	assert.Zero(t, info.Reward)
	require.Len(t, info.TransitionProbs, 1)
	assert.Equal(t, []float64{6}, info.Outcomes()[0].Vector)
	assertProbabilityInvariant(t, info)

	info, err = m.GetStateActionInfo([]float64{9}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, info.TermProb)
	assert.Equal(t, 1.0, info.Reward)

	info, err = m.GetStateActionInfo([]float64{5}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, info.Outcomes()[0].Vector)
}

func TestStochasticInvariant(t *testing.T) {
	rng := randx.NewMT19937(11)
	m := newModel(t, 2, nil)
	es := make([]mdp.Experience, 0, 200)
	for i := 0; i < 200; i++ {
		s := []float64{float64(rng.IntN(5)), float64(rng.IntN(3))}
		a := rng.IntN(2)
		next := []float64{s[0] + float64(rng.IntN(2)), s[1] - float64(a)}
		es = append(es, mdp.Experience{S: s, Act: a, Next: next, Reward: float64(rng.IntN(3)), Terminal: randx.Bernoulli(0.2, rng)})
	}
	_, err := m.UpdateWithExperiences(es)
	require.NoError(t, err)

	for x := 0; x < 5; x++ {
		for y := 0; y < 3; y++ {
			for a := 0; a < 2; a++ {
				info, err := m.GetStateActionInfo([]float64{float64(x), float64(y)}, a)
				require.NoError(t, err)
				assertProbabilityInvariant(t, info)
				assert.GreaterOrEqual(t, info.TermProb, 0.0)
				assert.LessOrEqual(t, info.TermProb, 1.0)
			}
		}
	}
}

func TestProductAndChainRule(t *testing.T) {
	// 2つの因子は常に同じだけ変化する
	es := []mdp.Experience{
		{S: []float64{0, 0}, Act: 0, Next: []float64{0, 0}},
		{S: []float64{0, 0}, Act: 0, Next: []float64{1, 1}},
		{S: []float64{0, 0}, Act: 0, Next: []float64{0, 0}},
		{S: []float64{0, 0}, Act: 0, Next: []float64{1, 1}},
	}

	t.Run("正常_独立な因子の積", func(t *testing.T) {
		m := newModel(t, 2, nil)
		_, err := m.UpdateWithExperiences(es)
		require.NoError(t, err)
		info, err := m.GetStateActionInfo([]float64{0, 0}, 0)
		require.NoError(t, err)
		require.Len(t, info.TransitionProbs, 4)
		for _, o := range info.Outcomes() {
			assert.InDelta(t, 0.25, o.Prob, 1e-12)
		}
		assertProbabilityInvariant(t, info)
	})

	t.Run("正常_連鎖律による展開", func(t *testing.T) {
		m := newModel(t, 2, func(o *factored.Options) { o.Dependent = true })
		_, err := m.UpdateWithExperiences(es)
		require.NoError(t, err)
		info, err := m.GetStateActionInfo([]float64{0, 0}, 0)
		require.NoError(t, err)
		require.Len(t, info.TransitionProbs, 2)
		outcomes := info.Outcomes()
		assert.ElementsMatch(t, [][]float64{{0, 0}, {1, 1}}, [][]float64{outcomes[0].Vector, outcomes[1].Vector})
		for _, o := range outcomes {
			assert.InDelta(t, 0.5, o.Prob, 1e-12)
		}
		assertProbabilityInvariant(t, info)
	})
}

func TestAbsoluteTransitions(t *testing.T) {
	m := newModel(t, 1, func(o *factored.Options) { o.RelTrans = false })
	_, err := m.UpdateWithExperiences(chainExperiences(1))
	require.NoError(t, err)
	info, err := m.GetStateActionInfo([]float64{3}, 0)
	require.NoError(t, err)
	require.Len(t, info.TransitionProbs, 1)
	assert.Equal(t, []float64{2}, info.Outcomes()[0].Vector)
}

func TestContinuousModel(t *testing.T) {
	for _, mt := range []mdp.ModelType{mdp.M5MULTI, mdp.M5SINGLE, mdp.LSTMULTI, mdp.ALLM5TYPES} {
		t.Run("正常_"+mt.String(), func(t *testing.T) {
			m := newModel(t, 1, func(o *factored.Options) {
				o.ModelType = mt
				o.Episodic = false
			})
			es := make([]mdp.Experience, 0, 20)
			for x := 0; x < 10; x++ {
				s := float64(x) * 0.3
				es = append(es,
					mdp.Experience{S: []float64{s}, Act: 0, Next: []float64{s - 0.5}, Reward: -1},
					mdp.Experience{S: []float64{s}, Act: 1, Next: []float64{s + 0.5}, Reward: -1},
				)
			}
			_, err := m.UpdateWithExperiences(es)
			require.NoError(t, err)

			info, err := m.GetStateActionInfo([]float64{0.9}, 1)
			require.NoError(t, err)
			// 複数の木を平均する場合は僅かに異なる予測値が並ぶ
			mean := 0.0
			for _, o := range info.Outcomes() {
				mean += o.Vector[0] * o.Prob
			}
			assert.InDelta(t, 1.4, mean, 1e-3)
			assertProbabilityInvariant(t, info)
			assert.InDelta(t, -1.0, info.Reward, 1e-3)
			assert.Zero(t, info.TermProb)
		})
	}
}

func TestTerminalOnlyLeavesStateUnchanged(t *testing.T) {
	m := newModel(t, 1, nil)
	_, err := m.UpdateWithExperience(mdp.Experience{S: []float64{2}, Act: 0, Next: []float64{0}, Terminal: true, Reward: 5})
	require.NoError(t, err)
	info, err := m.GetStateActionInfo([]float64{2}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, info.TermProb)
	assert.False(t, info.Known)
	assert.Equal(t, []float64{2}, info.Outcomes()[0].Vector)
}

func TestHistoryAugmentedInput(t *testing.T) {
	m := newModel(t, 1, nil)
	// 入力の末尾2要素は直前の行動の one-hot 表現
	es := []mdp.Experience{
		{S: []float64{1, 1, 0}, Act: 1, Next: []float64{1}},
		{S: []float64{1, 0, 1}, Act: 1, Next: []float64{2}},
	}
	_, err := m.UpdateWithExperiences(es)
	require.NoError(t, err)
	info, err := m.GetStateActionInfo([]float64{1, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, info.Outcomes()[0].Vector)
}

func TestCopyIsIndependent(t *testing.T) {
	m := newModel(t, 1, nil)
	_, err := m.UpdateWithExperiences(chainExperiences(1))
	require.NoError(t, err)

	cp := m.Copy()
	for i := 0; i < 10; i++ {
		_, err = cp.UpdateWithExperience(mdp.Experience{S: []float64{5}, Act: 1, Next: []float64{5}})
		require.NoError(t, err)
	}
	six := mdp.OutcomeKey([]float64{6})
	info, err := m.GetStateActionInfo([]float64{5}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, info.TransitionProbs[six].Prob)

	info, err = cp.GetStateActionInfo([]float64{5}, 1)
	require.NoError(t, err)
	assert.Less(t, info.TransitionProbs[six].Prob, 0.5)
}

func TestDimMismatch(t *testing.T) {
	m := newModel(t, 2, nil)
	_, err := m.UpdateWithExperience(mdp.Experience{S: []float64{1, 2}, Next: []float64{1}})
	assert.ErrorIs(t, err, factored.ErrDimMismatch)
	_, err = m.GetStateActionInfo([]float64{1}, 0)
	assert.ErrorIs(t, err, factored.ErrDimMismatch)
}
