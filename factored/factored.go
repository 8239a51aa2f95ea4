// Package factored composes one tree per state feature, plus a reward tree
// and an optional termination tree, into an mdp.Model.
//
// Package factored は、状態の特徴量ごとの木と報酬・終了の木を組み合わせて
// mdp.Model を構成します。
package factored

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/tree"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrUnsupportedModel = errors.New("モデル種別エラー: 因子モデルとして使えないモデル種別です")
	ErrInvalidOptions   = errors.New("因子モデル設定エラー")
	ErrDimMismatch      = errors.New("経験エラー: 次状態の次元数が因子数と一致しません")
)

// UnknownReward は未学習のモデルが返す報酬。
const UnknownReward = -0.001

const knownThreshold = 0.5

type Options struct {
	NumActions int
	// 出力となる状態特徴量の数。入力の先頭 NumFactors 個が状態そのもの。
	NumFactors int
	ModelType  mdp.ModelType
	M          int
	// 1より大きければ各因子を Ensemble で学習する
	NumModels int
	TrainPct  float64
	FeatPct   float64
	// 真なら次状態そのものではなく差分 next-s を学習する
	RelTrans bool
	// 真なら後の因子は前の因子の値も入力に取る
	Dependent bool
	Episodic  bool
	Tree      tree.Options
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		ModelType: mdp.C45TREE,
		M:         5,
		NumModels: 1,
		TrainPct:  0.8,
		RelTrans:  true,
		Episodic:  true,
		Tree:      tree.DefaultOptions(),
	}
}

// Model は因子化された MDP モデル。最初の経験を受け取った時点で木を生成する。
type Model struct {
	opts        Options
	transitions []tree.Regressor
	reward      tree.Regressor
	termination tree.Regressor
	trained     bool
}

func New(opts Options) (*Model, error) {
	if opts.NumActions <= 0 || opts.NumFactors <= 0 {
		return nil, fmt.Errorf("%w: NumActions=%d NumFactors=%d", ErrInvalidOptions, opts.NumActions, opts.NumFactors)
	}
	switch opts.ModelType {
	case mdp.C45TREE, mdp.STUMP, mdp.M5MULTI, mdp.M5SINGLE, mdp.M5ALLMULTI, mdp.M5ALLSINGLE, mdp.LSTMULTI, mdp.LSTSINGLE, mdp.ALLM5TYPES:
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedModel, opts.ModelType)
	}
	if opts.NumModels <= 0 {
		opts.NumModels = 1
	}
	if opts.TrainPct <= 0 {
		opts.TrainPct = 1.0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Tree.M = opts.M
	opts.Tree.Logger = opts.Logger
	return &Model{opts: opts}, nil
}

func newRegressor(t mdp.ModelType, opts tree.Options) tree.Regressor {
	switch t {
	case mdp.STUMP:
		return tree.NewStump(opts)
	case mdp.M5MULTI, mdp.M5SINGLE, mdp.M5ALLMULTI, mdp.M5ALLSINGLE:
		opts.Multivariate = t == mdp.M5MULTI || t == mdp.M5ALLMULTI
		opts.Prune = t == mdp.M5ALLMULTI || t == mdp.M5ALLSINGLE
		return tree.NewM5(opts)
	case mdp.LSTMULTI, mdp.LSTSINGLE:
		opts.Multivariate = t == mdp.LSTMULTI
		return tree.NewLST(opts)
	case mdp.ALLM5TYPES:
		variants := []mdp.ModelType{mdp.M5MULTI, mdp.M5SINGLE, mdp.M5ALLMULTI, mdp.M5ALLSINGLE}
		members := make([]tree.Regressor, len(variants))
		for i, v := range variants {
			o := opts
			o.Seed = opts.Seed + uint64(i)
			members[i] = newRegressor(v, o)
		}
		return tree.NewEnsemble(members, 1.0, 0.0, opts.Seed)
	}
	return tree.NewC45(opts)
}

func (m *Model) newTree(t mdp.ModelType, seed uint64) tree.Regressor {
	opts := m.opts.Tree
	opts.Seed = seed
	if m.opts.NumModels <= 1 {
		return newRegressor(t, opts)
	}
	members := make([]tree.Regressor, m.opts.NumModels)
	for i := range members {
		o := opts
		o.Seed = seed*uint64(m.opts.NumModels) + uint64(i)
		members[i] = newRegressor(t, o)
	}
	return tree.NewEnsemble(members, m.opts.TrainPct, m.opts.FeatPct, seed)
}

func (m *Model) init() {
	base := m.opts.Tree.Seed
	m.transitions = make([]tree.Regressor, m.opts.NumFactors)
	for i := range m.transitions {
		m.transitions[i] = m.newTree(m.opts.ModelType, base+uint64(i)+1)
	}
	m.reward = m.newTree(m.opts.ModelType, base+uint64(m.opts.NumFactors)+1)
	if m.opts.Episodic {
		// 終了は0/1の分類なので常に分類木で学習する
		termType := mdp.C45TREE
		if m.opts.ModelType == mdp.STUMP {
			termType = mdp.STUMP
		}
		m.termination = m.newTree(termType, base+uint64(m.opts.NumFactors)+2)
	}
	m.opts.Logger.Debug("factored model initialised",
		"factors", m.opts.NumFactors, "model", m.opts.ModelType.String(), "nmodels", m.opts.NumModels)
}

// Input は状態と行動の one-hot 表現を連結した木の入力。
func (m *Model) Input(s []float64, action int) []float64 {
	x := make([]float64, len(s)+m.opts.NumActions)
	copy(x, s)
	if action >= 0 && action < m.opts.NumActions {
		x[len(s)+action] = 1
	}
	return x
}

func (m *Model) target(s, next []float64, i int) float64 {
	if m.opts.RelTrans {
		return next[i] - s[i]
	}
	return next[i]
}

func (m *Model) UpdateWithExperience(e mdp.Experience) (bool, error) {
	return m.UpdateWithExperiences([]mdp.Experience{e})
}

// UpdateWithExperiences は各木への訓練インスタンスをまとめ、木ごとに一度だけ学習させる。
func (m *Model) UpdateWithExperiences(es []mdp.Experience) (bool, error) {
	if len(es) == 0 {
		return false, nil
	}
	if m.transitions == nil {
		m.init()
	}

	n := m.opts.NumFactors
	transBatches := make([][]tree.Instance, n)
	rewardBatch := make([]tree.Instance, 0, len(es))
	termBatch := make([]tree.Instance, 0, len(es))
	for _, e := range es {
		if len(e.Next) != n || len(e.S) < n {
			return false, fmt.Errorf("%w: factors=%d len(S)=%d len(Next)=%d", ErrDimMismatch, n, len(e.S), len(e.Next))
		}
		x := m.Input(e.S, e.Act)
		rewardBatch = append(rewardBatch, tree.Instance{Input: x, Output: e.Reward})
		if m.opts.Episodic {
			term := 0.0
			if e.Terminal {
				term = 1.0
			}
			termBatch = append(termBatch, tree.Instance{Input: x, Output: term})
		}
		// 終了した遷移の次状態は意味を持たない
		if e.Terminal {
			continue
		}
		for i := 0; i < n; i++ {
			in := x
			if m.opts.Dependent {
				in = append([]float64(nil), x...)
				for j := 0; j < i; j++ {
					in = append(in, m.target(e.S, e.Next, j))
				}
			}
			transBatches[i] = append(transBatches[i], tree.Instance{Input: in, Output: m.target(e.S, e.Next, i)})
		}
	}

	changed := false
	train := func(r tree.Regressor, batch []tree.Instance) error {
		c, err := r.TrainInstances(batch)
		changed = changed || c
		return err
	}
	if err := train(m.reward, rewardBatch); err != nil {
		return changed, fmt.Errorf("報酬モデルの学習に失敗しました: %w", err)
	}
	if m.termination != nil {
		if err := train(m.termination, termBatch); err != nil {
			return changed, fmt.Errorf("終了モデルの学習に失敗しました: %w", err)
		}
	}
	for i, r := range m.transitions {
		if err := train(r, transBatches[i]); err != nil {
			return changed, fmt.Errorf("因子%dの学習に失敗しました: %w", i, err)
		}
	}
	m.trained = true
	return changed, nil
}

func expectation(ps map[float64]float64) float64 {
	vs := make([]float64, 0, len(ps))
	ws := make([]float64, 0, len(ps))
	for v, p := range ps {
		vs = append(vs, v)
		ws = append(ws, p)
	}
	return floats.Dot(vs, ws)
}

func (m *Model) unknown(s []float64) mdp.StateActionInfo {
	info := mdp.NewStateActionInfo()
	info.Reward = UnknownReward
	info.AddOutcome(s[:m.opts.NumFactors], 1.0)
	return info
}

type partial struct {
	vals []float64
	prob float64
}

// GetStateActionInfo は各因子の周辺分布の積 (Dependent なら連鎖律による展開) で次状態の分布を作る。
func (m *Model) GetStateActionInfo(s []float64, action int) (mdp.StateActionInfo, error) {
	n := m.opts.NumFactors
	if len(s) < n {
		return mdp.StateActionInfo{}, fmt.Errorf("%w: factors=%d len(S)=%d", ErrDimMismatch, n, len(s))
	}
	if !m.trained {
		return m.unknown(s), nil
	}

	x := m.Input(s, action)
	info := mdp.NewStateActionInfo()
	conf := m.reward.Confidence(x)
	info.Reward = expectation(m.reward.TestInstance(x))
	if m.termination != nil {
		info.TermProb = min(max(expectation(m.termination.TestInstance(x)), 0), 1)
		conf = min(conf, m.termination.Confidence(x))
	}

	parts := []partial{{prob: 1.0}}
	for i, r := range m.transitions {
		next := make([]partial, 0, len(parts))
		for _, p := range parts {
			in := x
			if m.opts.Dependent {
				in = append(append([]float64(nil), x...), p.vals...)
			}
			ps := r.TestInstance(in)
			conf = min(conf, r.Confidence(in))
			if len(ps) == 0 {
				// 非終了の遷移をまだ見ていない因子は変化しないとみなす
				self := 0.0
				if !m.opts.RelTrans {
					self = s[i]
				}
				ps = map[float64]float64{self: 1.0}
			}
			for v, q := range ps {
				if q <= 0 {
					continue
				}
				vals := append(append(make([]float64, 0, n), p.vals...), v)
				next = append(next, partial{vals: vals, prob: p.prob * q})
			}
		}
		parts = next
	}

	for _, p := range parts {
		v := p.vals
		if m.opts.RelTrans {
			v = make([]float64, n)
			for i := range v {
				v[i] = s[i] + p.vals[i]
			}
		}
		info.AddOutcome(v, p.prob)
	}
	info.Known = conf >= knownThreshold
	return info, nil
}

func (m *Model) Copy() mdp.Model {
	c := &Model{opts: m.opts, trained: m.trained}
	if m.transitions == nil {
		return c
	}
	c.transitions = make([]tree.Regressor, len(m.transitions))
	for i, r := range m.transitions {
		c.transitions[i] = r.Copy()
	}
	c.reward = m.reward.Copy()
	if m.termination != nil {
		c.termination = m.termination.Copy()
	}
	return c
}

func (m *Model) Options() Options {
	return m.opts
}
