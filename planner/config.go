package planner

import (
	"fmt"
	"strings"
	"time"
)

type Exploration int

const (
	// Greedy は UCB 探索だけを行う
	Greedy Exploration = iota
	// Unknown は未知の状態行動に Vmax を与えて展開を打ち切る (R-max 型)
	Unknown
	// Epsilon はエージェント側で ε-greedy を行う。プランナーからは Greedy と同じに見える。
	Epsilon
)

var explorationNames = map[Exploration]string{
	Greedy:  "greedy",
	Unknown: "unknown",
	Epsilon: "epsilon",
}

func (e Exploration) String() string {
	if name, ok := explorationNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Exploration(%d)", int(e))
}

func ParseExploration(s string) (Exploration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for e, name := range explorationNames {
		if name == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: 未知の探索方法です %q", ErrInvalidConfig, s)
}

func (e *Exploration) UnmarshalText(text []byte) error {
	v, err := ParseExploration(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func (e Exploration) MarshalYAML() (any, error) {
	return e.String(), nil
}

type Config struct {
	NumActions  int
	Gamma       float64
	Lambda      float64
	RewardRange float64
	// Unknown 探索で未知の状態行動に与える報酬の上限
	MaxReward     float64
	MaxIterations int
	MaxTime       time.Duration
	MaxDepth      int
	FeatMin       []float64
	FeatMax       []float64
	// 0 の次元は離散化しない
	StatesPerDim []int
	TrackActual  bool
	HistorySize  int
	Exploration  Exploration
	MinVisits    int
	Seed         uint64
}

func DefaultConfig() Config {
	return Config{
		Gamma:         0.99,
		Lambda:        0.1,
		RewardRange:   1.0,
		MaxReward:     1.0,
		MaxIterations: 1 << 30,
		MaxTime:       100 * time.Millisecond,
		MaxDepth:      100,
		Exploration:   Greedy,
		MinVisits:     10,
		Seed:          1,
	}
}

func (c Config) Validate() error {
	switch {
	case c.NumActions <= 0:
		return fmt.Errorf("%w: NumActions=%d", ErrInvalidConfig, c.NumActions)
	case c.Gamma <= 0 || c.Gamma >= 1:
		return fmt.Errorf("%w: Gamma=%v は (0,1) の範囲外です", ErrInvalidConfig, c.Gamma)
	case c.Lambda < 0 || c.Lambda > 1:
		return fmt.Errorf("%w: Lambda=%v は [0,1] の範囲外です", ErrInvalidConfig, c.Lambda)
	case c.MaxDepth < 0 || c.MaxIterations <= 0 || c.MaxTime < 0:
		return fmt.Errorf("%w: MaxDepth=%d MaxIterations=%d MaxTime=%v", ErrInvalidConfig, c.MaxDepth, c.MaxIterations, c.MaxTime)
	case len(c.FeatMin) != len(c.FeatMax):
		return fmt.Errorf("%w: FeatMin と FeatMax の次元数が一致しません", ErrInvalidConfig)
	case len(c.StatesPerDim) > len(c.FeatMin):
		return fmt.Errorf("%w: StatesPerDim の次元数が特徴量の次元数を超えています", ErrInvalidConfig)
	case c.HistorySize < 0:
		return fmt.Errorf("%w: HistorySize=%d", ErrInvalidConfig, c.HistorySize)
	}
	return nil
}
