// Package planner implements a real-time parallel UCT planner with
// eligibility traces. A background search goroutine runs rollouts against the
// live model while a background learner goroutine retrains a copy of the
// model from queued experience and swaps it in.
//
// Package planner は、適格度トレース付きの実時間並列 UCT プランナーを実装します。
// 探索ゴルーチンが現在のモデルに対してロールアウトを繰り返す間に、学習ゴルーチンが
// 経験キューからモデルの複製を再学習して差し替えます。
//
// Lock order: learnMu → spaceMu → stateInfo.infoMu → stateInfo.modelMu → liveMu.
// listMu, historyMu, rootMu and rngMu are leaf locks.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sw965/texplore/mathx"
	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/state"
	"github.com/sw965/texplore/ucb"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoModel       = errors.New("プランナーエラー: モデルが設定されていません")
	ErrInvalidConfig = errors.New("プランナー設定エラー")
	ErrClosed        = errors.New("プランナーエラー: 既に終了しています")
)

const (
	// 計画対象の状態がこの時間更新されなければ、既知の状態からランダムに根を選ぶ
	rootTimeout = 500 * time.Millisecond
	boundsEps   = 0.001
	tieTol      = 1e-4
)

type ParallelETUCT struct {
	cfg         Config
	logger      *slog.Logger
	disc        state.Discretizer
	rewardBound float64
	vmax        float64

	learnMu sync.Mutex

	spaceMu sync.RWMutex
	space   *state.Space
	infos   []*stateInfo
	initRng *rand.Rand

	liveMu     sync.RWMutex
	model      mdp.Model
	lastUpdate int64

	rootMu       sync.Mutex
	root         state.Handle
	rootActual   []float64
	rootHistory  state.History
	rootSetAt    time.Time
	rootRollouts int

	listMu   sync.Mutex
	listCond *sync.Cond
	queue    []mdp.Experience

	historyMu sync.Mutex
	history   state.History

	rngMu sync.Mutex
	rng   *rand.Rand
	// 探索ゴルーチン専用
	searchRng *rand.Rand

	seeding atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group
	gctx      context.Context
	fatalMu   sync.Mutex
	fatal     error
	closed    atomic.Bool
}

func New(cfg Config) (*ParallelETUCT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinVisits <= 0 {
		cfg.MinVisits = DefaultConfig().MinVisits
	}
	statesPerDim := make([]int, len(cfg.FeatMin))
	copy(statesPerDim, cfg.StatesPerDim)
	disc, err := state.NewDiscretizer(cfg.FeatMin, cfg.FeatMax, statesPerDim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p := &ParallelETUCT{
		cfg:         cfg,
		logger:      slog.Default(),
		disc:        disc,
		rewardBound: ucb.RewardBound(cfg.RewardRange, cfg.Gamma),
		vmax:        cfg.MaxReward / (1.0 - cfg.Gamma),
		space:       state.NewSpace(),
		initRng:     randx.NewMT19937(cfg.Seed),
		root:        state.None,
		history:     state.NewHistory(cfg.HistorySize),
		rng:         randx.NewMT19937(cfg.Seed + 1),
		searchRng:   randx.NewMT19937(cfg.Seed + 2),
	}
	p.listCond = sync.NewCond(&p.listMu)
	return p, nil
}

func (p *ParallelETUCT) WithLogger(logger *slog.Logger) *ParallelETUCT {
	p.logger = logger
	return p
}

func (p *ParallelETUCT) Config() Config {
	return p.cfg
}

// SetModel は共有モデルを設定する。計画を始める前に一度だけ呼ぶ。
func (p *ParallelETUCT) SetModel(m mdp.Model) {
	p.liveMu.Lock()
	p.model = m
	p.lastUpdate++
	p.liveMu.Unlock()
}

func (p *ParallelETUCT) hasModel() bool {
	p.liveMu.RLock()
	defer p.liveMu.RUnlock()
	return p.model != nil
}

// frame は最後にモデルが変化した論理時刻。
func (p *ParallelETUCT) frame() int64 {
	p.liveMu.RLock()
	defer p.liveMu.RUnlock()
	return p.lastUpdate
}

// SetSeeding が真の間、UpdateModelWithExperience はキューを通さず同期的にモデルを学習する。
func (p *ParallelETUCT) SetSeeding(seeding bool) {
	p.seeding.Store(seeding)
}

// SetFirst はエピソードの開始時に呼び、行動履歴と計画対象の状態を消去する。
func (p *ParallelETUCT) SetFirst() {
	p.historyMu.Lock()
	p.history = state.NewHistory(p.cfg.HistorySize)
	p.historyMu.Unlock()

	p.rootMu.Lock()
	p.root = state.None
	p.rootMu.Unlock()
}

func (p *ParallelETUCT) currentHistory() state.History {
	p.historyMu.Lock()
	defer p.historyMu.Unlock()
	return p.history.Clone()
}

// canonicalize は離散化したベクトルの正準状態を返し、初めての状態なら stateInfo を作る。
func (p *ParallelETUCT) canonicalize(v []float64) state.Handle {
	d := p.disc.Discretize(v)
	if h, ok := p.space.Lookup(d); ok {
		return h
	}
	p.spaceMu.Lock()
	defer p.spaceMu.Unlock()
	h, created := p.space.Canonicalize(d)
	if created {
		p.infos = append(p.infos, newStateInfo(p.cfg.NumActions, p.initRng))
		stateSpaceSize.Set(float64(len(p.infos)))
	}
	return h
}

func (p *ParallelETUCT) info(h state.Handle) *stateInfo {
	p.spaceMu.RLock()
	defer p.spaceMu.RUnlock()
	return p.infos[h]
}

func (p *ParallelETUCT) allInfos() []*stateInfo {
	p.spaceMu.RLock()
	defer p.spaceMu.RUnlock()
	return append([]*stateInfo(nil), p.infos...)
}

// NumStates は正準化された状態の数。
func (p *ParallelETUCT) NumStates() int {
	p.spaceMu.RLock()
	defer p.spaceMu.RUnlock()
	return len(p.infos)
}

// UpdateModelWithExperience は経験を学習キューへ入れてすぐに戻る。
// シード中は同期的に学習し、モデルが変化したかどうかを返す。
func (p *ParallelETUCT) UpdateModelWithExperience(last []float64, act int, curr []float64, reward float64, terminal bool) (bool, error) {
	if !p.hasModel() {
		return false, ErrNoModel
	}
	if err := p.fatalErr(); err != nil {
		return false, err
	}

	p.historyMu.Lock()
	hist := p.history.Clone()
	p.history = p.history.Push(act)
	p.historyMu.Unlock()

	h := p.canonicalize(last)
	e := mdp.Experience{
		S:        hist.Augment(p.space.Vector(h), p.cfg.NumActions),
		Act:      act,
		Next:     p.disc.Discretize(curr),
		Reward:   reward,
		Terminal: terminal,
	}

	if p.seeding.Load() {
		return p.trainAndSwap([]mdp.Experience{e})
	}

	p.listMu.Lock()
	p.queue = append(p.queue, e)
	experiencesQueued.Set(float64(len(p.queue)))
	p.listCond.Signal()
	p.listMu.Unlock()
	return false, nil
}

// PlanOnNewModel は初回の呼び出しで探索ゴルーチンと学習ゴルーチンを起動する。以降は何もしない。
func (p *ParallelETUCT) PlanOnNewModel() {
	p.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		g, gctx := errgroup.WithContext(ctx)
		p.cancel = cancel
		p.group = g
		p.gctx = gctx

		// キャンセル時に学習ゴルーチンの Wait を起こす
		context.AfterFunc(gctx, func() {
			p.listMu.Lock()
			p.listCond.Broadcast()
			p.listMu.Unlock()
		})

		g.Go(func() error { return p.guard("search", p.searchLoop(gctx)) })
		g.Go(func() error { return p.guard("learner", p.learnLoop(gctx)) })
		p.logger.Debug("planner goroutines started")
	})
}

func (p *ParallelETUCT) guard(name string, err error) error {
	if err == nil {
		return nil
	}
	p.fatalMu.Lock()
	if p.fatal == nil {
		p.fatal = err
	}
	p.fatalMu.Unlock()
	p.logger.Error("planner goroutine stopped", "goroutine", name, "error", err)
	return err
}

func (p *ParallelETUCT) fatalErr() error {
	p.fatalMu.Lock()
	defer p.fatalMu.Unlock()
	return p.fatal
}

// GetBestAction は state を計画対象に設定し、MaxTime だけ探索させてから最良の行動を返す。
// 最大値から 1e-4 以内の行動が複数あれば一様に選ぶ。
func (p *ParallelETUCT) GetBestAction(ctx context.Context, s []float64) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if !p.hasModel() {
		return 0, ErrNoModel
	}
	start := time.Now()
	h := p.canonicalize(s)
	hist := p.currentHistory()

	p.rootMu.Lock()
	p.root = h
	p.rootActual = append([]float64(nil), s...)
	p.rootHistory = hist
	p.rootSetAt = start
	p.rootRollouts = 0
	p.rootMu.Unlock()

	p.PlanOnNewModel()
	var stopped <-chan struct{}
	if p.gctx != nil {
		stopped = p.gctx.Done()
	}

wait:
	for time.Since(start) < p.cfg.MaxTime {
		select {
		case <-ctx.Done():
			break wait
		case <-stopped:
			break wait
		default:
			runtime.Gosched()
		}
	}
	if err := p.fatalErr(); err != nil {
		return 0, err
	}

	info := p.info(h)
	info.infoMu.Lock()
	idxs := mathx.MaxIndicesWithin(info.q, tieTol)
	info.infoMu.Unlock()

	p.rngMu.Lock()
	a := randx.Choice(idxs, p.rng)
	p.rngMu.Unlock()

	bestActionLatency.Observe(time.Since(start).Seconds())
	return a, nil
}

// QValues は state の Q 値の複製を返す。
func (p *ParallelETUCT) QValues(s []float64) []float64 {
	info := p.info(p.canonicalize(s))
	info.infoMu.Lock()
	defer info.infoMu.Unlock()
	return append([]float64(nil), info.q...)
}

// Close は背景のゴルーチンを止めて合流させる。致命的なエラーで止まっていればそれを返す。
func (p *ParallelETUCT) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		// 起動前に閉じられた場合は以降の起動を防ぐ
		p.startOnce.Do(func() {})
		if p.group == nil {
			return
		}
		p.cancel()
		if werr := p.group.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
		p.logger.Debug("planner goroutines stopped")
	})
	if err == nil {
		err = p.fatalErr()
	}
	return err
}
