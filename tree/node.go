package tree

import (
	"github.com/sw965/texplore/arena"
)

type leafStats struct {
	counts map[float64]int
	model  linearModel
}

func (s leafStats) clone() leafStats {
	c := leafStats{model: s.model.clone()}
	if s.counts != nil {
		c.counts = make(map[float64]int, len(s.counts))
		for k, v := range s.counts {
			c.counts[k] = v
		}
	}
	return c
}

// node はリーフか分割ノードのどちらか一方。
// 分割ノードでは test(x) が真のインスタンスが left へ、偽が right へ進む。
type node struct {
	leaf bool
	dim  int
	val  float64
	// 真なら x[dim] > val、偽なら x[dim] == val
	cut   bool
	left  arena.Index
	right arena.Index

	insts []arena.Index
	// 最後に構築した時点の len(insts)
	built int
	stats leafStats
}

func (n *node) test(x []float64) bool {
	if n.cut {
		return x[n.dim] > n.val
	}
	return x[n.dim] == n.val
}

func (n *node) sameSplit(s split) bool {
	return !n.leaf && n.dim == s.dim && n.val == s.val && n.cut == s.cut
}

func copyNode(n *node) node {
	c := *n
	c.insts = append([]arena.Index(nil), n.insts...)
	c.stats = n.stats.clone()
	return c
}

func (c *core) newLeaf(insts []arena.Index) arena.Index {
	idx := c.nodes.Allocate()
	n := c.nodes.Get(idx)
	n.leaf = true
	n.left, n.right = arena.Nil, arena.Nil
	n.insts = insts
	return idx
}

// freeChildren は部分木を後行順に解放し、ノードから子を切り離す。
func (c *core) freeChildren(n *node) {
	if n.leaf {
		return
	}
	for _, child := range []arena.Index{n.left, n.right} {
		if child == arena.Nil {
			continue
		}
		cn := c.nodes.Get(child)
		c.freeChildren(cn)
		if err := c.nodes.Free(child); err != nil {
			c.opts.Logger.Error("node free failed", "index", int(child), "error", err)
		}
	}
	n.left, n.right = arena.Nil, arena.Nil
}

func (c *core) leafFor(x []float64) arena.Index {
	ni := c.root
	for ni != arena.Nil {
		n := c.nodes.Get(ni)
		if n.leaf {
			return ni
		}
		if n.test(x) {
			ni = n.left
		} else {
			ni = n.right
		}
	}
	return arena.Nil
}

func (c *core) instance(ii arena.Index) *Instance {
	return c.insts.Get(ii)
}

func (c *core) inputsOutputs(idxs []arena.Index) ([][]float64, []float64) {
	xs := make([][]float64, len(idxs))
	ys := make([]float64, len(idxs))
	for i, ii := range idxs {
		inst := c.instance(ii)
		xs[i] = inst.Input
		ys[i] = inst.Output
	}
	return xs, ys
}

func (c *core) outputs(idxs []arena.Index) []float64 {
	ys := make([]float64, len(idxs))
	for i, ii := range idxs {
		ys[i] = c.instance(ii).Output
	}
	return ys
}

// NumNodes は確保中のノード数。
func (c *core) NumNodes() int {
	return c.nodes.Len()
}

func (c *core) NumInstances() int {
	return c.count
}

// Depth は根からリーフまでの最大の深さ。リーフのみなら0。
func (c *core) Depth() int {
	var depth func(arena.Index) int
	depth = func(ni arena.Index) int {
		if ni == arena.Nil {
			return 0
		}
		n := c.nodes.Get(ni)
		if n.leaf {
			return 0
		}
		return 1 + max(depth(n.left), depth(n.right))
	}
	return depth(c.root)
}
