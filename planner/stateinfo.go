package planner

import (
	"math/rand/v2"
	"sync"

	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/state"
	"gonum.org/v1/gonum/floats"
)

type cached struct {
	hist state.History
	sa   mdp.StateActionInfo
}

// stateInfo は正準状態ごとの探索統計と予測キャッシュ。
// infoMu は Q, visits, actions, visited, needsUpdate を、modelMu は cache を守る。
type stateInfo struct {
	infoMu      sync.Mutex
	q           []float64
	visits      int
	actions     []int
	visited     int
	needsUpdate bool

	modelMu sync.Mutex
	// 行動ごとに、行動履歴のキーから予測への写像
	cache []map[string]cached
}

func newStateInfo(numActions int, rng *rand.Rand) *stateInfo {
	info := &stateInfo{
		q:       make([]float64, numActions),
		visits:  1,
		actions: make([]int, numActions),
		cache:   make([]map[string]cached, numActions),
	}
	for a := range info.q {
		// 同点を避けるための小さな乱数
		info.q[a] = randx.Uniform(0, 0.01, rng)
		info.actions[a] = 1
		info.cache[a] = map[string]cached{}
	}
	return info
}

// maxQ は infoMu を保持した状態で呼ぶ。
func (info *stateInfo) maxQ() float64 {
	return floats.Max(info.q)
}

// clipVisits はモデル更新後に訪問回数を上限まで減らす。infoMu を保持した状態で呼ぶ。
func (info *stateInfo) clipVisits(minVisits, numActions int) {
	info.visits = min(info.visits, minVisits*numActions)
	for a := range info.actions {
		info.actions[a] = min(info.actions[a], minVisits)
	}
}
