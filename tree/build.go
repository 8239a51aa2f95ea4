package tree

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sw965/texplore/arena"
	"github.com/sw965/texplore/mathx/randx"
)

// strategy は木の種類ごとに異なる分割基準とリーフ表現。
type strategy interface {
	score(c *core, all, left, right []arena.Index, parent float64) float64
	// parentScore は分割候補の評価で毎回使う親ノードの値を一度だけ計算する。
	parentScore(c *core, all []arena.Index) float64
	fitLeaf(c *core, insts []arena.Index) leafStats
	addToLeaf(c *core, n *node, ii arena.Index) bool
	predict(n *node, x []float64) map[float64]float64
	mispredicted(c *core, n *node, x []float64, y float64) bool
	equal(a, b leafStats) bool
	// goodEnough が真ならリーフのまま分割しない
	goodEnough(c *core, insts []arena.Index) bool
	prune() bool
}

type core struct {
	opts  Options
	strat strategy
	nodes *arena.Arena[node]
	insts *arena.Arena[Instance]
	root  arena.Index
	dims  int
	count int
	since int
	rng   *rand.Rand
}

func newCore(opts Options, strat strategy) *core {
	opts = opts.withDefaults()
	c := &core{
		opts:  opts,
		strat: strat,
		nodes: arena.New[node](opts.NodeCapacity),
		insts: arena.New[Instance](opts.ExpCapacity),
		root:  arena.Nil,
		dims:  -1,
		rng:   randx.NewMT19937(opts.Seed),
	}
	logger := opts.Logger
	c.nodes.OnOverflow(func(capacity int) {
		logger.Warn("tree node pool exhausted, falling back to heap allocation", "capacity", capacity)
	})
	c.insts.OnOverflow(func(capacity int) {
		logger.Warn("tree experience buffer exhausted, falling back to heap allocation", "capacity", capacity)
	})
	return c
}

func (c *core) clone() *core {
	return &core{
		opts:  c.opts,
		strat: c.strat,
		nodes: c.nodes.Clone(copyNode),
		// インスタンスは追加後に変更されないので浅いコピーで共有する
		insts: c.insts.Clone(func(inst *Instance) Instance { return *inst }),
		root:  c.root,
		dims:  c.dims,
		count: c.count,
		since: c.since,
		rng:   randx.NewMT19937(c.rng.Uint64()),
	}
}

func (c *core) addInstance(x []float64, y float64) bool {
	ii := c.insts.Allocate()
	*c.insts.Get(ii) = Instance{Input: append([]float64(nil), x...), Output: y}

	if c.root == arena.Nil {
		c.root = c.newLeaf(nil)
	}
	ni := c.root
	for {
		n := c.nodes.Get(ni)
		n.insts = append(n.insts, ii)
		if n.leaf {
			return c.strat.addToLeaf(c, n, ii)
		}
		if n.test(x) {
			ni = n.left
		} else {
			ni = n.right
		}
	}
}

func (c *core) checkInput(x []float64) error {
	if len(x) == 0 {
		return ErrEmptyInput
	}
	if c.dims >= 0 && len(x) != c.dims {
		return fmt.Errorf("%w: want=%d got=%d", ErrDimMismatch, c.dims, len(x))
	}
	return nil
}

func (c *core) TrainInstance(x []float64, y float64) (bool, error) {
	return c.TrainInstances([]Instance{{Input: x, Output: y}})
}

// TrainInstances はバッチ全体を追加した後、再構築するかどうかを一度だけ判断する。
func (c *core) TrainInstances(batch []Instance) (bool, error) {
	if len(batch) == 0 {
		return false, nil
	}
	changed := false
	mispredicted := false
	for _, inst := range batch {
		if err := c.checkInput(inst.Input); err != nil {
			return changed, err
		}
		c.dims = len(inst.Input)
		if c.opts.Mode == BuildOnError && !mispredicted {
			if li := c.leafFor(inst.Input); li == arena.Nil || c.strat.mispredicted(c, c.nodes.Get(li), inst.Input, inst.Output) {
				mispredicted = true
			}
		}
		if c.addInstance(inst.Input, inst.Output) {
			changed = true
		}
		c.count++
		c.since++
	}

	var rebuild bool
	switch c.opts.Mode {
	case BuildEvery:
		rebuild = true
	case BuildOnError:
		rebuild = mispredicted
	case BuildEveryN:
		rebuild = c.since >= c.opts.Freq
	default:
		return changed, fmt.Errorf("%w: %d", ErrInvalidTrain, c.opts.Mode)
	}
	if !rebuild {
		return changed, nil
	}
	c.since = 0
	built, err := c.build(c.root, 0)
	return changed || built, err
}

func (c *core) allSame(idxs []arena.Index) bool {
	first := c.instance(idxs[0]).Output
	for _, ii := range idxs[1:] {
		if c.instance(ii).Output != first {
			return false
		}
	}
	return true
}

func (c *core) makeLeaf(ni arena.Index) bool {
	n := c.nodes.Get(ni)
	wasLeaf := n.leaf
	old := n.stats
	c.freeChildren(n)
	n.leaf = true
	n.stats = c.strat.fitLeaf(c, n.insts)
	n.built = len(n.insts)
	return !wasLeaf || !c.strat.equal(old, n.stats)
}

// build はノード ni 以下を再構築する。前回の構築以降に新しいインスタンスが届いていない部分木は再利用する。
func (c *core) build(ni arena.Index, depth int) (bool, error) {
	n := c.nodes.Get(ni)
	if len(n.insts) == 0 {
		return false, ErrEmptyBuild
	}
	if n.built == len(n.insts) {
		return false, nil
	}

	if len(n.insts) < 2 || c.allSame(n.insts) || (c.opts.MaxDepth > 0 && depth >= c.opts.MaxDepth) || c.strat.goodEnough(c, n.insts) {
		return c.makeLeaf(ni), nil
	}

	best, ok := c.bestSplit(n.insts)
	if !ok || best.score < c.opts.MinCriterion {
		return c.makeLeaf(ni), nil
	}

	changed := true
	if n.sameSplit(best) {
		// 分割が変わらなければ、子は addInstance の時点で新しいインスタンスを受け取っている
		l, err := c.build(n.left, depth+1)
		if err != nil {
			return l, err
		}
		r, err := c.build(n.right, depth+1)
		if err != nil {
			return l || r, err
		}
		changed = l || r
	} else {
		c.freeChildren(n)
		left, right := c.partition(n.insts, best)
		n.leaf = false
		n.dim, n.val, n.cut = best.dim, best.val, best.cut
		n.stats = leafStats{}
		n.left = c.newLeaf(left)
		n.right = c.newLeaf(right)
		if _, err := c.build(n.left, depth+1); err != nil {
			return true, err
		}
		if _, err := c.build(n.right, depth+1); err != nil {
			return true, err
		}
	}
	n.built = len(n.insts)

	if c.strat.prune() && c.pruneNode(ni) {
		changed = true
	}
	return changed, nil
}

func (c *core) partition(idxs []arena.Index, s split) ([]arena.Index, []arena.Index) {
	left := make([]arena.Index, 0, len(idxs))
	right := make([]arena.Index, 0, len(idxs))
	for _, ii := range idxs {
		if s.test(c.instance(ii).Input) {
			left = append(left, ii)
		} else {
			right = append(right, ii)
		}
	}
	return left, right
}

func (c *core) predictValue(ni arena.Index, x []float64) float64 {
	for {
		n := c.nodes.Get(ni)
		if n.leaf {
			return n.stats.model.Eval(x)
		}
		if n.test(x) {
			ni = n.left
		} else {
			ni = n.right
		}
	}
}

const pruneTolerance = 1e-6

// pruneNode は部分木の誤差と、自由度で補正した線形リーフの誤差を比べ、悪くなければ線形リーフに置き換える。
func (c *core) pruneNode(ni arena.Index) bool {
	n := c.nodes.Get(ni)
	if n.leaf {
		return false
	}
	xs, ys := c.inputsOutputs(n.insts)
	subErr := 0.0
	for i, x := range xs {
		subErr += math.Abs(c.predictValue(ni, x) - ys[i])
	}
	subErr /= float64(len(ys))

	stats := c.strat.fitLeaf(c, n.insts)
	linErr, _ := residuals(stats.model, xs, ys)
	nI := float64(len(ys))
	v := float64(stats.model.Params())
	factor := 10.0
	if nI > v {
		factor = (nI + v) / (nI - v)
	}
	if linErr*factor > subErr+pruneTolerance {
		return false
	}
	c.freeChildren(n)
	n.leaf = true
	n.stats = stats
	return true
}

func (c *core) TestInstance(x []float64) map[float64]float64 {
	li := c.leafFor(x)
	if li == arena.Nil {
		return map[float64]float64{}
	}
	return c.strat.predict(c.nodes.Get(li), x)
}

func (c *core) Confidence(x []float64) float64 {
	li := c.leafFor(x)
	if li == arena.Nil {
		return 0
	}
	if c.opts.M <= 0 {
		return 1
	}
	n := c.nodes.Get(li)
	return math.Min(float64(len(n.insts))/(2.0*float64(c.opts.M)), 1.0)
}
