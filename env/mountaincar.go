package env

import (
	"math"
	"math/rand/v2"

	"github.com/sw965/texplore/mathx"
	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
)

const (
	carMinPos  = -1.2
	carMaxPos  = 0.6
	carGoalPos = 0.5
	carMaxVel  = 0.07
	carForce   = 0.001
	carGravity = 0.0025
)

// MountainCar は谷底の車を左右に揺らして右の山頂へ上げる連続状態の課題。
// 状態は (位置, 速度)、行動は 0=後退 1=惰行 2=前進、報酬は1ステップごとに -1。
type MountainCar struct {
	noise float64
	pos   float64
	vel   float64
	rng   *rand.Rand
}

func NewMountainCar(noise float64, seed uint64) *MountainCar {
	m := &MountainCar{noise: noise, rng: randx.NewMT19937(seed)}
	m.Reset()
	return m
}

func (m *MountainCar) Sensation() []float64 {
	return []float64{m.pos, m.vel}
}

func (m *MountainCar) Apply(action int) float64 {
	if m.Terminal() {
		return 0
	}
	force := float64(action-1) * carForce
	if m.noise > 0 {
		force += randx.Uniform(-m.noise, m.noise, m.rng) * carForce
	}
	m.vel = mathx.Clip(m.vel+force-carGravity*math.Cos(3*m.pos), -carMaxVel, carMaxVel)
	m.pos = mathx.Clip(m.pos+m.vel, carMinPos, carMaxPos)
	if m.pos == carMinPos && m.vel < 0 {
		m.vel = 0
	}
	return -1
}

func (m *MountainCar) Terminal() bool {
	return m.pos >= carGoalPos
}

func (m *MountainCar) Reset() {
	m.pos = randx.Uniform(-0.6, -0.4, m.rng)
	m.vel = 0
}

func (m *MountainCar) NumActions() int {
	return 3
}

func (m *MountainCar) MinMaxFeatures() ([]float64, []float64) {
	return []float64{carMinPos, -carMaxVel}, []float64{carMaxPos, carMaxVel}
}

func (m *MountainCar) MinMaxReward() (float64, float64) {
	return -1, 0
}

func (m *MountainCar) IsEpisodic() bool {
	return true
}

func (m *MountainCar) Seedings() []mdp.Experience {
	return nil
}
