// Package mdp defines the contracts shared by models, planners, agents and
// environments: experiences, prediction bundles and model types.
//
// Package mdp はモデル・プランナー・エージェント・環境の間で共有される契約
// (経験、予測の束、モデル種別) を定義します。
package mdp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/maps"
)

var (
	ErrInconsistentModel = errors.New("モデル不整合エラー")
	ErrUnknownModelType  = errors.New("モデル種別エラー: 未知のモデル種別です")
)

type Experience struct {
	S        []float64
	Act      int
	Next     []float64
	Reward   float64
	Terminal bool
}

type Outcome struct {
	Vector []float64
	Prob   float64
}

// StateActionInfo は (状態, 行動) に対するモデルの予測。
// TransitionProbs は終了しなかった場合の条件付き分布であり、合計は1となる。
type StateActionInfo struct {
	Reward          float64
	TermProb        float64
	TransitionProbs map[string]Outcome
	Known           bool
	FrameUpdated    int64
}

func NewStateActionInfo() StateActionInfo {
	return StateActionInfo{TransitionProbs: map[string]Outcome{}}
}

func OutcomeKey(v []float64) string {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		if x == 0 {
			x = 0
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return string(buf)
}

// AddOutcome は同じ次状態の確率を加算する。
func (info *StateActionInfo) AddOutcome(v []float64, p float64) {
	k := OutcomeKey(v)
	o, ok := info.TransitionProbs[k]
	if !ok {
		o = Outcome{Vector: append([]float64(nil), v...)}
	}
	o.Prob += p
	info.TransitionProbs[k] = o
}

// Outcomes はキー順に並べた次状態の一覧。乱数による抽選を再現可能にするため順序を固定する。
func (info *StateActionInfo) Outcomes() []Outcome {
	keys := maps.Keys(info.TransitionProbs)
	sort.Strings(keys)
	os := make([]Outcome, len(keys))
	for i, k := range keys {
		os[i] = info.TransitionProbs[k]
	}
	return os
}

func (info StateActionInfo) Clone() StateActionInfo {
	c := info
	c.TransitionProbs = make(map[string]Outcome, len(info.TransitionProbs))
	for k, o := range info.TransitionProbs {
		c.TransitionProbs[k] = Outcome{Vector: append([]float64(nil), o.Vector...), Prob: o.Prob}
	}
	return c
}

const (
	minProbSum = 0.9999
	maxProbSum = 1.0001
)

// ValidateTransitions はモデルの内部整合性を検査する。違反はモデル側のバグを意味する。
func ValidateTransitions(info *StateActionInfo) error {
	if info.TermProb < 0 || info.TermProb > 1 || math.IsNaN(info.TermProb) {
		return fmt.Errorf("%w: termProb=%v", ErrInconsistentModel, info.TermProb)
	}
	if info.TermProb >= 1 && len(info.TransitionProbs) == 0 {
		return nil
	}
	sum := 0.0
	for _, o := range info.TransitionProbs {
		if o.Prob < 0 || o.Prob > 1 || math.IsNaN(o.Prob) {
			return fmt.Errorf("%w: 遷移確率が範囲外です prob=%v next=%v", ErrInconsistentModel, o.Prob, o.Vector)
		}
		sum += o.Prob
	}
	if sum < minProbSum || sum > maxProbSum {
		return fmt.Errorf("%w: 遷移確率の合計が1ではありません sum=%v", ErrInconsistentModel, sum)
	}
	return nil
}

type Model interface {
	UpdateWithExperience(e Experience) (bool, error)
	UpdateWithExperiences(es []Experience) (bool, error)
	GetStateActionInfo(s []float64, action int) (StateActionInfo, error)
	Copy() Model
}

type Environment interface {
	Sensation() []float64
	Apply(action int) float64
	Terminal() bool
	Reset()
	NumActions() int
	MinMaxFeatures() (min, max []float64)
	MinMaxReward() (min, max float64)
	IsEpisodic() bool
	Seedings() []Experience
}
