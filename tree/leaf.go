package tree

import (
	"math"

	"github.com/sw965/texplore/arena"
	"gonum.org/v1/gonum/floats"
)

type classification struct{}

func (classification) parentScore(c *core, all []arena.Index) float64 {
	return entropy(c.classCounts(all), len(all))
}

func (classification) score(c *core, all, left, right []arena.Index, parent float64) float64 {
	hl := entropy(c.classCounts(left), len(left))
	hr := entropy(c.classCounts(right), len(right))
	return gainRatio(parent, len(all), len(left), len(right), hl, hr)
}

func (classification) fitLeaf(c *core, insts []arena.Index) leafStats {
	return leafStats{counts: c.classCounts(insts)}
}

func (classification) addToLeaf(c *core, n *node, ii arena.Index) bool {
	y := c.instance(ii).Output
	if n.stats.counts == nil {
		n.stats.counts = map[float64]int{}
	}
	// 純粋なリーフに同じクラスが届いた場合は分布が変わらない
	pure := len(n.stats.counts) == 1 && n.stats.counts[y] > 0
	n.stats.counts[y]++
	return !pure
}

func (classification) predict(n *node, x []float64) map[float64]float64 {
	ks := make([]float64, 0, len(n.stats.counts))
	for _, k := range n.stats.counts {
		ks = append(ks, float64(k))
	}
	total := floats.Sum(ks)
	ps := make(map[float64]float64, len(n.stats.counts))
	if total == 0 {
		return ps
	}
	for y, k := range n.stats.counts {
		ps[y] = float64(k) / total
	}
	return ps
}

func (classification) mispredicted(c *core, n *node, x []float64, y float64) bool {
	best, bestK := 0.0, -1
	for v, k := range n.stats.counts {
		if k > bestK || (k == bestK && v < best) {
			best, bestK = v, k
		}
	}
	return bestK < 0 || n.stats.counts[y] < bestK
}

func (classification) equal(a, b leafStats) bool {
	ta, tb := 0, 0
	for _, k := range a.counts {
		ta += k
	}
	for _, k := range b.counts {
		tb += k
	}
	if ta == 0 || tb == 0 {
		return ta == tb
	}
	keys := map[float64]struct{}{}
	for y := range a.counts {
		keys[y] = struct{}{}
	}
	for y := range b.counts {
		keys[y] = struct{}{}
	}
	for y := range keys {
		pa := float64(a.counts[y]) / float64(ta)
		pb := float64(b.counts[y]) / float64(tb)
		if math.Abs(pa-pb) > 1e-9 {
			return false
		}
	}
	return true
}

func (classification) goodEnough(c *core, insts []arena.Index) bool {
	return false
}

func (classification) prune() bool {
	return false
}

// linearRegression は M5 と LST に共通するリーフ表現。
type linearRegression struct {
	multivariate bool
}

func (l linearRegression) fitLeaf(c *core, insts []arena.Index) leafStats {
	xs, ys := c.inputsOutputs(insts)
	return leafStats{model: fitLinear(xs, ys, l.multivariate)}
}

func (l linearRegression) addToLeaf(c *core, n *node, ii arena.Index) bool {
	if n.built > 0 {
		// 線形モデルの再当てはめは再構築時にのみ行う
		return false
	}
	old := n.stats
	n.stats = l.fitLeaf(c, n.insts)
	return !old.model.equal(n.stats.model)
}

func (linearRegression) predict(n *node, x []float64) map[float64]float64 {
	return map[float64]float64{n.stats.model.Eval(x): 1.0}
}

func (linearRegression) mispredicted(c *core, n *node, x []float64, y float64) bool {
	return math.Abs(n.stats.model.Eval(x)-y) > c.opts.Tolerance
}

func (linearRegression) equal(a, b leafStats) bool {
	return a.model.equal(b.model)
}

func (l linearRegression) goodEnough(c *core, insts []arena.Index) bool {
	xs, ys := c.inputsOutputs(insts)
	m := fitLinear(xs, ys, l.multivariate)
	_, maxErr := residuals(m, xs, ys)
	return maxErr <= c.opts.Tolerance
}

type linearLeaf struct {
	linearRegression
	pruning bool
}

func newLinearLeaf(multivariate, pruning bool) linearLeaf {
	return linearLeaf{linearRegression: linearRegression{multivariate: multivariate}, pruning: pruning}
}

func (linearLeaf) parentScore(c *core, all []arena.Index) float64 {
	return popStdDev(c.outputs(all))
}

func (linearLeaf) score(c *core, all, left, right []arena.Index, parent float64) float64 {
	return sdr(parent, len(all), c.outputs(left), c.outputs(right))
}

func (l linearLeaf) prune() bool {
	return l.pruning
}

type linearSplits struct {
	linearRegression
}

func newLinearSplits(multivariate bool) linearSplits {
	return linearSplits{linearRegression{multivariate: multivariate}}
}

func (l linearSplits) linearError(c *core, idxs []arena.Index) float64 {
	if len(idxs) < 2 {
		return 0
	}
	xs, ys := c.inputsOutputs(idxs)
	m := fitLinear(xs, ys, l.multivariate)
	meanErr, _ := residuals(m, xs, ys)
	return meanErr
}

func (l linearSplits) parentScore(c *core, all []arena.Index) float64 {
	return l.linearError(c, all)
}

// score は線形回帰の平均絶対誤差の減少量。
func (l linearSplits) score(c *core, all, left, right []arena.Index, parent float64) float64 {
	n := float64(len(all))
	return parent - (float64(len(left))/n*l.linearError(c, left) + float64(len(right))/n*l.linearError(c, right))
}

func (linearSplits) prune() bool {
	return true
}
