// Package tree provides incrementally trained decision and model trees used
// as per-factor predictors: a C4.5-style classification tree, an M5-style
// regression tree with linear leaves, and a linear-splits regression tree
// that prunes subtrees back into linear leaves.
//
// Package tree は、各因子の予測器として使われる逐次学習可能な決定木・モデル木を提供します。
// C4.5 系の分類木、線形リーフを持つ M5 系の回帰木、部分木を線形リーフへ刈り込む
// linear-splits 回帰木の3種類です。
package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrEmptyBuild   = errors.New("木構築エラー: インスタンスが0件のノードを構築しようとしました")
	ErrEmptyInput   = errors.New("入力エラー: 入力ベクトルが空です")
	ErrDimMismatch  = errors.New("入力エラー: 入力ベクトルの次元数が一致しません")
	ErrInvalidTrain = errors.New("学習モードエラー")
)

type Instance struct {
	Input  []float64
	Output float64
}

// Regressor は全ての木モデルが満たす能力の集合。
type Regressor interface {
	TrainInstance(input []float64, output float64) (bool, error)
	TrainInstances(instances []Instance) (bool, error)
	// TestInstance は出力値から確率への写像を返す。未学習なら空。
	TestInstance(input []float64) map[float64]float64
	Confidence(input []float64) float64
	Copy() Regressor
}

type TrainMode int

const (
	BuildEvery TrainMode = iota
	BuildOnError
	BuildEveryN
)

var trainModeNames = map[TrainMode]string{
	BuildEvery:   "every",
	BuildOnError: "onerror",
	BuildEveryN:  "everyn",
}

func (m TrainMode) String() string {
	if name, ok := trainModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("TrainMode(%d)", int(m))
}

func ParseTrainMode(s string) (TrainMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range trainModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTrain, s)
}

func (m TrainMode) MarshalYAML() (any, error) {
	return m.String(), nil
}

func (m *TrainMode) UnmarshalText(text []byte) error {
	v, err := ParseTrainMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

type Options struct {
	Mode TrainMode
	// BuildEveryN の時の再構築間隔
	Freq int
	// 既知とみなす訪問回数。Confidence は leafCount/(2M)。
	M             int
	NodeCapacity  int
	ExpCapacity   int
	MaxDepth      int
	MaxCandidates int
	SplitMargin   float64
	MinCriterion  float64
	// 回帰木で予測誤りとみなす絶対誤差、および線形リーフで十分とみなす最大残差
	Tolerance    float64
	Multivariate bool
	Prune        bool
	Seed         uint64
	Logger       *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Mode:          BuildEvery,
		Freq:          1,
		M:             5,
		NodeCapacity:  2500,
		ExpCapacity:   10000,
		MaxCandidates: 100,
		SplitMargin:   1e-9,
		MinCriterion:  1e-4,
		Tolerance:     1e-3,
		Multivariate:  true,
		Seed:          1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Freq <= 0 {
		o.Freq = d.Freq
	}
	if o.NodeCapacity <= 0 {
		o.NodeCapacity = d.NodeCapacity
	}
	if o.ExpCapacity <= 0 {
		o.ExpCapacity = d.ExpCapacity
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type C45 struct{ *core }

// NewC45 は情報利得比で分割する分類木を返す。
func NewC45(opts Options) *C45 {
	return &C45{newCore(opts, classification{})}
}

// NewStump は深さ1に制限した分類木を返す。
func NewStump(opts Options) *C45 {
	opts.MaxDepth = 1
	return NewC45(opts)
}

func (t *C45) Copy() Regressor {
	return &C45{t.core.clone()}
}

type M5 struct{ *core }

// NewM5 は標準偏差減少量で分割し、リーフに線形モデルを持つ回帰木を返す。
// opts.Prune が真なら M5 の刈り込みも行う。
func NewM5(opts Options) *M5 {
	if opts.MinCriterion == 0 {
		opts.MinCriterion = 1e-6
	}
	return &M5{newCore(opts, newLinearLeaf(opts.Multivariate, opts.Prune))}
}

func (t *M5) Copy() Regressor {
	return &M5{t.core.clone()}
}

type LST struct{ *core }

// NewLST は線形回帰の誤差減少量で分割し、各ノードで部分木と線形リーフを比較して刈り込む回帰木を返す。
func NewLST(opts Options) *LST {
	if opts.MinCriterion == 0 {
		opts.MinCriterion = 1e-6
	}
	return &LST{newCore(opts, newLinearSplits(opts.Multivariate))}
}

func (t *LST) Copy() Regressor {
	return &LST{t.core.clone()}
}
