package planner

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/texplore/mdp"
)

// selfLoop は全ての状態行動で同じ状態に留まる決定的なモデル。
type selfLoop struct{}

func (selfLoop) UpdateWithExperience(mdp.Experience) (bool, error)    { return true, nil }
func (selfLoop) UpdateWithExperiences([]mdp.Experience) (bool, error) { return true, nil }
func (selfLoop) Copy() mdp.Model                                      { return selfLoop{} }
func (selfLoop) GetStateActionInfo(s []float64, a int) (mdp.StateActionInfo, error) {
	info := mdp.NewStateActionInfo()
	info.Reward = float64(a)
	info.AddOutcome(s, 1)
	info.Known = true
	return info, nil
}

func TestMetricsAndSwap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumActions = 2
	cfg.Gamma = 0.5
	cfg.FeatMin = []float64{0}
	cfg.FeatMax = []float64{1}
	cfg.MaxTime = 50 * time.Millisecond
	p, err := New(cfg)
	require.NoError(t, err)
	p.SetModel(selfLoop{})

	rollouts := testutil.ToFloat64(rolloutsTotal)
	swaps := testutil.ToFloat64(modelSwapsTotal)

	_, err = p.GetBestAction(context.Background(), []float64{0})
	require.NoError(t, err)
	assert.Greater(t, testutil.ToFloat64(rolloutsTotal), rollouts)
	assert.Positive(t, testutil.ToFloat64(stateSpaceSize))

	// 探索を止めてから差し替えを確かめる
	require.NoError(t, p.Close())
	frame := p.frame()
	p.SetSeeding(true)
	changed, err := p.UpdateModelWithExperience([]float64{0}, 1, []float64{0}, 1, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, frame+1, p.frame())
	assert.Equal(t, swaps+1, testutil.ToFloat64(modelSwapsTotal))

	// 差し替え後は訪問回数が上限まで減る
	info := p.info(p.canonicalize([]float64{0}))
	info.infoMu.Lock()
	assert.LessOrEqual(t, info.visits, cfg.MinVisits*cfg.NumActions)
	for _, n := range info.actions {
		assert.LessOrEqual(t, n, cfg.MinVisits)
	}
	info.infoMu.Unlock()
}
