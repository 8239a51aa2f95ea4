package agent_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/texplore/agent"
	"github.com/sw965/texplore/config"
	"github.com/sw965/texplore/env"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/planner"
	"github.com/sw965/texplore/policyio"
)

func chainSetup(t *testing.T, modify func(*config.Config)) (*env.Chain, *agent.ModelBased) {
	t.Helper()
	cfg := config.Default()
	cfg.Planner.Gamma = 0.9
	cfg.Planner.ActRate = 100
	if modify != nil {
		modify(&cfg)
	}
	c, err := env.NewChain(5, 0, 1)
	require.NoError(t, err)
	ag, err := agent.New(cfg, config.TaskOf(c))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ag.Close() })
	return c, ag
}

func TestRunChain(t *testing.T) {
	c, ag := chainSetup(t, nil)
	require.NoError(t, ag.SeedExperiences(c.Seedings()))

	sums, err := agent.Run(context.Background(), c, ag, 10, 50)
	require.NoError(t, err)
	require.Len(t, sums, 10)
	total := 0.0
	for _, s := range sums {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		total += s
	}
	assert.Positive(t, total, "少なくとも1回は終端に着く")
	assert.Positive(t, ag.Planner().NumStates())
	assert.NoError(t, ag.Close())
}

func TestRunCancelled(t *testing.T) {
	c, ag := chainSetup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sums, err := agent.Run(ctx, c, ag, 3, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sums)
}

func TestNextActionBeforeFirst(t *testing.T) {
	_, ag := chainSetup(t, nil)
	_, err := ag.NextAction(context.Background(), 0, []float64{1})
	assert.ErrorIs(t, err, agent.ErrNotStarted)
	assert.ErrorIs(t, ag.LastAction(0), agent.ErrNotStarted)
}

func TestEpsilonGreedy(t *testing.T) {
	c, ag := chainSetup(t, func(cfg *config.Config) {
		cfg.Planner.Exploration = planner.Epsilon
		cfg.Agent.Epsilon = 1
	})
	ctx := context.Background()
	counts := make([]int, 2)
	a, err := ag.FirstAction(ctx, c.Sensation())
	require.NoError(t, err)
	counts[a]++
	for i := 0; i < 40; i++ {
		a, err = ag.NextAction(ctx, 0, c.Sensation())
		require.NoError(t, err)
		require.GreaterOrEqual(t, a, 0)
		require.Less(t, a, 2)
		counts[a]++
	}
	assert.Positive(t, counts[0])
	assert.Positive(t, counts[1])
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.Epsilon = 0.5
	c, err := env.NewChain(5, 0, 1)
	require.NoError(t, err)
	_, err = agent.New(cfg, config.TaskOf(c))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestPolicyFiles(t *testing.T) {
	c, ag := chainSetup(t, nil)
	_, err := agent.Run(context.Background(), c, ag, 2, 10)
	require.NoError(t, err)
	require.NoError(t, ag.Close())

	path := filepath.Join(t.TempDir(), "policy.bin")
	require.NoError(t, ag.SavePolicy(path))

	_, fresh := chainSetup(t, nil)
	require.NoError(t, fresh.LoadPolicy(path))
	assert.Equal(t, ag.Planner().NumStates(), fresh.Planner().NumStates())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	pol, err := policyio.ReadPolicy(f)
	require.NoError(t, err)
	for _, rec := range pol.Records {
		s := policyio.Float64s(rec.State)
		assert.Equal(t, policyio.Float64s(rec.Q), fresh.Planner().QValues(s))
	}

	assert.Error(t, fresh.LoadPolicy(filepath.Join(t.TempDir(), "missing.bin")))
}

func TestLoadSeeds(t *testing.T) {
	c, ag := chainSetup(t, nil)
	path := filepath.Join(t.TempDir(), "seeds.bin")
	var buf bytes.Buffer
	records := []policyio.SeedRecord{}
	for _, e := range c.Seedings() {
		records = append(records, policyio.NewSeedRecord(e))
	}
	require.NoError(t, policyio.WriteSeeds(&buf, 1, records))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	require.NoError(t, ag.LoadSeeds(path))

	twoDim := filepath.Join(t.TempDir(), "seeds2.bin")
	buf.Reset()
	require.NoError(t, policyio.WriteSeeds(&buf, 2, []policyio.SeedRecord{policyio.NewSeedRecord(mdp.Experience{
		S: []float64{0, 0}, Next: []float64{1, 0},
	})}))
	require.NoError(t, os.WriteFile(twoDim, buf.Bytes(), 0o644))
	assert.ErrorIs(t, ag.LoadSeeds(twoDim), policyio.ErrSizeMismatch)
}

func TestSetDebug(t *testing.T) {
	_, ag := chainSetup(t, nil)
	var buf bytes.Buffer
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	ag.WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: lv})), lv)

	ag.SetDebug(true)
	assert.Equal(t, slog.LevelDebug, lv.Level())
	_, err := ag.FirstAction(context.Background(), []float64{0})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "action selected")
	assert.Contains(t, buf.String(), ag.RunID())

	ag.SetDebug(false)
	assert.Equal(t, slog.LevelInfo, lv.Level())
}
