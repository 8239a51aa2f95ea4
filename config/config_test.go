package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/texplore/config"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/planner"
	"github.com/sw965/texplore/tree"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.99, cfg.Planner.Gamma)
	assert.Equal(t, 0.1, cfg.Planner.Lambda)
	assert.Equal(t, 5, cfg.Model.M)
	assert.Equal(t, mdp.C45TREE, cfg.Model.Type)
	assert.Equal(t, planner.Greedy, cfg.Planner.Exploration)
	assert.Equal(t, 100*time.Millisecond, cfg.PlannerConfig(config.Task{NumActions: 2}).MaxTime)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "異常_epsilonと非epsilon探索の組み合わせ", modify: func(c *config.Config) { c.Agent.Epsilon = 0.2 }},
		{name: "異常_lambdaが範囲外", modify: func(c *config.Config) { c.Planner.Lambda = 1.5 }},
		{name: "異常_gammaが0", modify: func(c *config.Config) { c.Planner.Gamma = 0 }},
		{name: "異常_mが0", modify: func(c *config.Config) { c.Model.M = 0 }},
		{name: "異常_freqが0", modify: func(c *config.Config) { c.Model.Freq = 0 }},
		{name: "異常_rmaxは未対応", modify: func(c *config.Config) { c.Model.Type = mdp.RMAX }},
		{name: "異常_未知のログレベル", modify: func(c *config.Config) { c.Log.Level = "loud" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestEpsilon(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 0.0, cfg.Epsilon())

	cfg.Planner.Exploration = planner.Epsilon
	assert.Equal(t, config.DefaultEpsilon, cfg.Epsilon())

	cfg.Agent.Epsilon = 0.3
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.3, cfg.Epsilon())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("正常_既定値に重ねる", func(t *testing.T) {
		path := write("ok.yaml", `
planner:
  gamma: 0.9
  exploration: unknown
  history: 2
model:
  type: m5multi
  nmodels: 3
env:
  name: mountaincar
`)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 0.9, cfg.Planner.Gamma)
		assert.Equal(t, 0.1, cfg.Planner.Lambda)
		assert.Equal(t, planner.Unknown, cfg.Planner.Exploration)
		assert.Equal(t, mdp.M5MULTI, cfg.Model.Type)
		assert.Equal(t, 3, cfg.Model.NumModels)
		assert.Equal(t, "mountaincar", cfg.Env.Name)
	})

	t.Run("異常_未知の項目", func(t *testing.T) {
		path := write("unknown.yaml", "planner:\n  gama: 0.9\n")
		_, err := config.Load(path)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("異常_未知のモデル種別", func(t *testing.T) {
		path := write("model.yaml", "model:\n  type: forest\n")
		_, err := config.Load(path)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("正常_木の学習モード", func(t *testing.T) {
		path := write("train.yaml", "model:\n  train_mode: everyn\n  freq: 3\n")
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, tree.BuildEveryN, cfg.Model.TrainMode)

		fo := cfg.FactoredOptions(config.Task{NumActions: 2, FeatMin: []float64{0}, FeatMax: []float64{1}})
		assert.Equal(t, tree.BuildEveryN, fo.Tree.Mode)
		assert.Equal(t, 3, fo.Tree.Freq)
	})

	t.Run("異常_未知の学習モード", func(t *testing.T) {
		path := write("badtrain.yaml", "model:\n  train_mode: sometimes\n")
		_, err := config.Load(path)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("異常_ファイルが無い", func(t *testing.T) {
		_, err := config.Load(filepath.Join(dir, "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestPlannerConfigWithTask(t *testing.T) {
	cfg := config.Default()
	cfg.Planner.History = 1
	task := config.Task{NumActions: 3, FeatMin: []float64{-1, 0}, FeatMax: []float64{1, 2}, RewardMin: -1, RewardMax: 0, Episodic: true}

	pc := cfg.PlannerConfig(task)
	require.NoError(t, pc.Validate())
	assert.Equal(t, 1.0, pc.RewardRange)
	assert.Equal(t, 1, pc.HistorySize)

	fo := cfg.FactoredOptions(task)
	assert.Equal(t, 2, fo.NumFactors)
	assert.Equal(t, 3, fo.NumActions)
	assert.True(t, fo.Episodic)
	assert.Equal(t, tree.BuildEvery, fo.Tree.Mode)
	assert.Equal(t, 1, fo.Tree.Freq)
}
