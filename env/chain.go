package env

import (
	"fmt"
	"math/rand/v2"

	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
)

const (
	ChainLeft = iota
	ChainRight
)

// Chain は 0..length の1次元の鎖。右端に着くと報酬1で終了する。
type Chain struct {
	length int
	noise  float64
	pos    int
	done   bool
	rng    *rand.Rand
}

func NewChain(length int, noise float64, seed uint64) (*Chain, error) {
	if length < 2 {
		return nil, fmt.Errorf("%w: chain の長さは2以上が必要です length=%d", ErrUnknownEnv, length)
	}
	if noise < 0 || noise > 1 {
		return nil, fmt.Errorf("%w: noise=%v は [0,1] の範囲外です", ErrUnknownEnv, noise)
	}
	c := &Chain{length: length, noise: noise, rng: randx.NewMT19937(seed)}
	c.Reset()
	return c, nil
}

func (c *Chain) Sensation() []float64 {
	return []float64{float64(c.pos)}
}

func (c *Chain) Apply(action int) float64 {
	if c.done {
		return 0
	}
	if c.noise > 0 && randx.Bernoulli(c.noise, c.rng) {
		action = 1 - action
	}
	next, reward, terminal := c.step(c.pos, action)
	c.pos = next
	c.done = terminal
	return reward
}

func (c *Chain) step(pos, action int) (int, float64, bool) {
	if action == ChainLeft {
		return max(pos-1, 0), 0, false
	}
	if pos+1 >= c.length {
		return c.length, 1, true
	}
	return pos + 1, 0, false
}

func (c *Chain) Terminal() bool {
	return c.done
}

func (c *Chain) Reset() {
	c.pos = 0
	c.done = false
}

func (c *Chain) NumActions() int {
	return 2
}

func (c *Chain) MinMaxFeatures() ([]float64, []float64) {
	return []float64{0}, []float64{float64(c.length)}
}

func (c *Chain) MinMaxReward() (float64, float64) {
	return 0, 1
}

func (c *Chain) IsEpisodic() bool {
	return true
}

// Seedings は終端の手前で右に進んだ経験を1つ返す。
func (c *Chain) Seedings() []mdp.Experience {
	last := c.length - 1
	next, reward, terminal := c.step(last, ChainRight)
	return []mdp.Experience{{
		S:        []float64{float64(last)},
		Act:      ChainRight,
		Next:     []float64{float64(next)},
		Reward:   reward,
		Terminal: terminal,
	}}
}
