// Package agent ties a learned factored model and the parallel planner into
// an acting agent, and provides the episode loop that drives it.
//
// Package agent は因子化モデルと並列プランナーを組み合わせて行動するエージェントと、
// それを動かすエピソードのループを提供します。
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/google/uuid"
	"github.com/sw965/texplore/config"
	"github.com/sw965/texplore/factored"
	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/planner"
	"github.com/sw965/texplore/policyio"
)

var (
	ErrNotStarted = errors.New("エージェントエラー: FirstAction が呼ばれていません")
)

type ModelBased struct {
	cfg     config.Config
	task    config.Task
	model   *factored.Model
	planner *planner.ParallelETUCT
	epsilon float64
	rng     *rand.Rand

	logger *slog.Logger
	level  *slog.LevelVar
	runID  string

	prevState []float64
	prevAct   int
	started   bool
	steps     int
}

func New(cfg config.Config, task config.Task) (*ModelBased, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := factored.New(cfg.FactoredOptions(task))
	if err != nil {
		return nil, err
	}
	p, err := planner.New(cfg.PlannerConfig(task))
	if err != nil {
		return nil, err
	}
	p.SetModel(m)

	ag := &ModelBased{
		cfg:     cfg,
		task:    task,
		model:   m,
		planner: p,
		epsilon: cfg.Epsilon(),
		rng:     randx.NewMT19937(cfg.Agent.Seed + 3),
		runID:   uuid.NewString(),
	}
	return ag.WithLogger(slog.Default(), nil), nil
}

// WithLogger はエージェントとプランナーのロガーを設定する。level が nil でなければ SetDebug で切り替えられる。
func (ag *ModelBased) WithLogger(logger *slog.Logger, level *slog.LevelVar) *ModelBased {
	ag.logger = logger.With("run_id", ag.runID)
	ag.level = level
	ag.planner.WithLogger(ag.logger.With("component", "planner"))
	return ag
}

func (ag *ModelBased) RunID() string {
	return ag.runID
}

func (ag *ModelBased) Planner() *planner.ParallelETUCT {
	return ag.planner
}

func (ag *ModelBased) SetDebug(debug bool) {
	if ag.level == nil {
		return
	}
	if debug {
		ag.level.Set(slog.LevelDebug)
	} else {
		ag.level.Set(slog.LevelInfo)
	}
}

// FirstAction はエピソードの最初の行動を返す。
func (ag *ModelBased) FirstAction(ctx context.Context, s []float64) (int, error) {
	ag.planner.SetFirst()
	ag.started = true
	ag.steps = 0
	return ag.act(ctx, s)
}

// NextAction は直前の行動の結果を学習キューへ送り、次の行動を返す。
func (ag *ModelBased) NextAction(ctx context.Context, reward float64, s []float64) (int, error) {
	if !ag.started {
		return 0, ErrNotStarted
	}
	if _, err := ag.planner.UpdateModelWithExperience(ag.prevState, ag.prevAct, s, reward, false); err != nil {
		return 0, err
	}
	return ag.act(ctx, s)
}

// LastAction は終端に達した経験を送る。次状態は直前の状態で代用する。
func (ag *ModelBased) LastAction(reward float64) error {
	if !ag.started {
		return ErrNotStarted
	}
	ag.started = false
	_, err := ag.planner.UpdateModelWithExperience(ag.prevState, ag.prevAct, ag.prevState, reward, true)
	return err
}

func (ag *ModelBased) act(ctx context.Context, s []float64) (int, error) {
	a, err := ag.planner.GetBestAction(ctx, s)
	if err != nil {
		return 0, err
	}
	if ag.epsilon > 0 && randx.Bernoulli(ag.epsilon, ag.rng) {
		a = ag.rng.IntN(ag.task.NumActions)
	}
	ag.prevState = append(ag.prevState[:0], s...)
	ag.prevAct = a
	ag.steps++
	ag.logger.Debug("action selected", "step", ag.steps, "action", a)
	return a, nil
}

// SeedExperiences は経験を同期的にモデルへ学習させる。
func (ag *ModelBased) SeedExperiences(es []mdp.Experience) error {
	ag.planner.SetSeeding(true)
	defer ag.planner.SetSeeding(false)
	for i, e := range es {
		if _, err := ag.planner.UpdateModelWithExperience(e.S, e.Act, e.Next, e.Reward, e.Terminal); err != nil {
			return fmt.Errorf("シード経験 %d: %w", i, err)
		}
	}
	// シードで積まれた行動履歴を捨てる
	ag.planner.SetFirst()
	ag.logger.Info("experiences seeded", "count", len(es))
	return nil
}

// LoadSeeds はシードファイルを読み込んで SeedExperiences に渡す。
func (ag *ModelBased) LoadSeeds(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, records, err := policyio.ReadSeeds(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if n != len(ag.task.FeatMin) {
		return fmt.Errorf("%w: %s: 特徴量の数 %d != %d", policyio.ErrSizeMismatch, path, n, len(ag.task.FeatMin))
	}
	es := make([]mdp.Experience, len(records))
	for i, r := range records {
		es[i] = r.Experience()
	}
	return ag.SeedExperiences(es)
}

func (ag *ModelBased) SavePolicy(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ag.planner.SavePolicy(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	ag.logger.Info("policy saved", "path", path, "states", ag.planner.NumStates())
	return nil
}

func (ag *ModelBased) LoadPolicy(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := ag.planner.LoadPolicy(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Close はプランナーを止める。
func (ag *ModelBased) Close() error {
	return ag.planner.Close()
}
