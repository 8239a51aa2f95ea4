package tree

import (
	"math"
	"sort"

	"github.com/sw965/texplore/arena"
	"github.com/sw965/texplore/mathx/randx"
	"gonum.org/v1/gonum/stat"
)

type split struct {
	dim   int
	val   float64
	cut   bool
	score float64
}

func (s split) test(x []float64) bool {
	if s.cut {
		return x[s.dim] > s.val
	}
	return x[s.dim] == s.val
}

// candidates は次元 dim の分割候補値。ユニーク値が MaxCandidates を超える場合は等間隔に間引く。
func (c *core) candidates(idxs []arena.Index, dim int) []float64 {
	seen := map[float64]struct{}{}
	uniq := make([]float64, 0, len(idxs))
	for _, ii := range idxs {
		v := c.instance(ii).Input[dim]
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		uniq = append(uniq, v)
	}
	sort.Float64s(uniq)
	max := c.opts.MaxCandidates
	if len(uniq) <= max {
		return uniq
	}
	ys := make([]float64, max)
	for i := range ys {
		ys[i] = uniq[i*len(uniq)/max]
	}
	return ys
}

// bestSplit は全次元・全候補値・両方の分割種別を評価し、最良の分割を返す。
// SplitMargin 以内の同点は 1/nTies の確率で置き換える(リザーバ抽出)。
func (c *core) bestSplit(idxs []arena.Index) (split, bool) {
	parent := c.strat.parentScore(c, idxs)
	best := split{score: math.Inf(-1)}
	nTies := 0
	found := false

	for dim := 0; dim < c.dims; dim++ {
		for _, v := range c.candidates(idxs, dim) {
			for _, cut := range [2]bool{true, false} {
				s := split{dim: dim, val: v, cut: cut}
				left, right := c.partition(idxs, s)
				if len(left) == 0 || len(right) == 0 {
					continue
				}
				s.score = c.strat.score(c, idxs, left, right, parent)
				if math.IsNaN(s.score) {
					continue
				}
				switch {
				case !found || s.score > best.score+c.opts.SplitMargin:
					best = s
					nTies = 1
					found = true
				case math.Abs(s.score-best.score) <= c.opts.SplitMargin:
					nTies++
					if randx.Bernoulli(1.0/float64(nTies), c.rng) {
						best = s
					}
				}
			}
		}
	}
	return best, found
}

// entropy はクラス分布のエントロピー (自然対数)。利得比は対数の底に依らない。
func entropy(counts map[float64]int, n int) float64 {
	if n == 0 {
		return 0
	}
	ps := make([]float64, 0, len(counts))
	for _, k := range counts {
		ps = append(ps, float64(k)/float64(n))
	}
	return stat.Entropy(ps)
}

func (c *core) classCounts(idxs []arena.Index) map[float64]int {
	counts := map[float64]int{}
	for _, ii := range idxs {
		counts[c.instance(ii).Output]++
	}
	return counts
}

// gainRatio は情報利得を分割情報量で割った値。
func gainRatio(parentH float64, nAll, nLeft, nRight int, hLeft, hRight float64) float64 {
	n := float64(nAll)
	pl := float64(nLeft) / n
	pr := float64(nRight) / n
	gain := parentH - (pl*hLeft + pr*hRight)
	splitInfo := stat.Entropy([]float64{pl, pr})
	if splitInfo <= 0 {
		return 0
	}
	return gain / splitInfo
}

func popStdDev(ys []float64) float64 {
	if len(ys) == 0 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(ys, nil)
	return sd
}

// sdr は標準偏差減少量。
func sdr(parentSD float64, nAll int, left, right []float64) float64 {
	n := float64(nAll)
	return parentSD - (float64(len(left))/n*popStdDev(left) + float64(len(right))/n*popStdDev(right))
}
