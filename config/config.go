// Package config holds the file and flag configurable settings of a
// texplore run and converts them into planner and model options.
//
// Package config は texplore の実行設定 (YAML ファイルとフラグ) を保持し、
// プランナーとモデルの設定へ変換します。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sw965/texplore/env"
	"github.com/sw965/texplore/factored"
	"github.com/sw965/texplore/logging"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/planner"
	"github.com/sw965/texplore/tree"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("設定エラー")
)

// DefaultEpsilon は epsilon 探索で値が指定されなかった時に使う。
const DefaultEpsilon = 0.1

type Config struct {
	Agent   Agent          `yaml:"agent"`
	Planner Planner        `yaml:"planner"`
	Model   Model          `yaml:"model"`
	Env     Env            `yaml:"env"`
	Run     Run            `yaml:"run"`
	Log     logging.Config `yaml:"log"`
}

type Agent struct {
	// epsilon 探索の時だけ指定できる
	Epsilon float64 `yaml:"epsilon"`
	Seed    uint64  `yaml:"seed"`
	// 空でなければ開始時に読み込み、終了時に保存する方策ファイル
	PolicyFile string `yaml:"policy_file"`
	// 空でなければ開始時に読み込むシード経験のファイル
	SeedFile string `yaml:"seed_file"`
}

type Planner struct {
	Gamma  float64 `yaml:"gamma"`
	Lambda float64 `yaml:"lambda"`
	// 1秒あたりの行動回数。計画時間は 1/ActRate 秒。
	ActRate      float64             `yaml:"act_rate"`
	MaxDepth     int                 `yaml:"max_depth"`
	History      int                 `yaml:"history"`
	Exploration  planner.Exploration `yaml:"exploration"`
	MinVisits    int                 `yaml:"min_visits"`
	StatesPerDim []int               `yaml:"states_per_dim"`
	TrackActual  bool                `yaml:"track_actual"`
}

type Model struct {
	Type      mdp.ModelType `yaml:"type"`
	M         int           `yaml:"m"`
	NumModels int           `yaml:"nmodels"`
	TrainPct  float64       `yaml:"train_pct"`
	FeatPct   float64       `yaml:"feat_pct"`
	RelTrans  bool          `yaml:"rel_trans"`
	Dependent bool          `yaml:"dependent"`
	// 各木の再構築の契機。everyn の時は Freq 件ごと
	TrainMode tree.TrainMode `yaml:"train_mode"`
	Freq      int            `yaml:"freq"`
}

type Env struct {
	Name   string  `yaml:"name"`
	Length int     `yaml:"length"`
	Noise  float64 `yaml:"noise"`
	Seed   uint64  `yaml:"seed"`
}

type Run struct {
	Episodes int `yaml:"episodes"`
	Steps    int `yaml:"steps"`
}

func Default() Config {
	pd := planner.DefaultConfig()
	fd := factored.DefaultOptions()
	ed := env.DefaultOptions()
	return Config{
		Agent: Agent{Seed: 1},
		Planner: Planner{
			Gamma:       pd.Gamma,
			Lambda:      pd.Lambda,
			ActRate:     float64(time.Second) / float64(pd.MaxTime),
			MaxDepth:    pd.MaxDepth,
			Exploration: pd.Exploration,
			MinVisits:   pd.MinVisits,
		},
		Model: Model{
			Type:      fd.ModelType,
			M:         fd.M,
			NumModels: fd.NumModels,
			TrainPct:  fd.TrainPct,
			FeatPct:   fd.FeatPct,
			RelTrans:  fd.RelTrans,
			TrainMode: fd.Tree.Mode,
			Freq:      fd.Tree.Freq,
		},
		Env: Env{Name: ed.Name, Length: ed.Length, Seed: ed.Seed},
		Run: Run{Episodes: 100, Steps: 1000},
		Log: logging.Config{Level: "info", Format: "text"},
	}
}

// Load は既定値の上に YAML ファイルの内容を重ね、検証してから返す。
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	p := c.Planner
	switch {
	case p.Gamma <= 0 || p.Gamma >= 1:
		return fmt.Errorf("%w: gamma=%v は (0,1) の範囲外です", ErrInvalidConfig, p.Gamma)
	case p.Lambda < 0 || p.Lambda > 1:
		return fmt.Errorf("%w: lambda=%v は [0,1] の範囲外です", ErrInvalidConfig, p.Lambda)
	case p.ActRate <= 0:
		return fmt.Errorf("%w: act_rate=%v は正である必要があります", ErrInvalidConfig, p.ActRate)
	case p.History < 0 || p.MaxDepth < 0:
		return fmt.Errorf("%w: history=%d max_depth=%d", ErrInvalidConfig, p.History, p.MaxDepth)
	case c.Agent.Epsilon < 0 || c.Agent.Epsilon > 1:
		return fmt.Errorf("%w: epsilon=%v は [0,1] の範囲外です", ErrInvalidConfig, c.Agent.Epsilon)
	case c.Agent.Epsilon != 0 && p.Exploration != planner.Epsilon:
		return fmt.Errorf("%w: epsilon は exploration=%s では指定できません", ErrInvalidConfig, p.Exploration)
	case c.Model.M <= 0 || c.Model.NumModels <= 0:
		return fmt.Errorf("%w: m=%d nmodels=%d", ErrInvalidConfig, c.Model.M, c.Model.NumModels)
	case c.Model.TrainPct <= 0 || c.Model.TrainPct > 1 || c.Model.FeatPct < 0 || c.Model.FeatPct >= 1:
		return fmt.Errorf("%w: train_pct=%v feat_pct=%v", ErrInvalidConfig, c.Model.TrainPct, c.Model.FeatPct)
	case c.Model.Freq <= 0:
		return fmt.Errorf("%w: freq=%d は正である必要があります", ErrInvalidConfig, c.Model.Freq)
	case c.Model.Type == mdp.RMAX:
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, factored.ErrUnsupportedModel, c.Model.Type)
	case c.Run.Episodes < 0 || c.Run.Steps <= 0:
		return fmt.Errorf("%w: episodes=%d steps=%d", ErrInvalidConfig, c.Run.Episodes, c.Run.Steps)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Epsilon は実際に使う探索率。epsilon 探索以外では0。
func (c Config) Epsilon() float64 {
	if c.Planner.Exploration != planner.Epsilon {
		return 0
	}
	if c.Agent.Epsilon == 0 {
		return DefaultEpsilon
	}
	return c.Agent.Epsilon
}

// Task は環境から読み取った、プランナーとモデルの構築に必要な値。
type Task struct {
	NumActions int
	FeatMin    []float64
	FeatMax    []float64
	RewardMin  float64
	RewardMax  float64
	Episodic   bool
}

func TaskOf(e mdp.Environment) Task {
	fmin, fmax := e.MinMaxFeatures()
	rmin, rmax := e.MinMaxReward()
	return Task{
		NumActions: e.NumActions(),
		FeatMin:    fmin,
		FeatMax:    fmax,
		RewardMin:  rmin,
		RewardMax:  rmax,
		Episodic:   e.IsEpisodic(),
	}
}

// PlannerConfig は環境の値と設定からプランナーの設定を作る。
func (c Config) PlannerConfig(t Task) planner.Config {
	pc := planner.DefaultConfig()
	pc.NumActions = t.NumActions
	pc.Gamma = c.Planner.Gamma
	pc.Lambda = c.Planner.Lambda
	pc.RewardRange = t.RewardMax - t.RewardMin
	pc.MaxReward = t.RewardMax
	pc.MaxTime = time.Duration(float64(time.Second) / c.Planner.ActRate)
	pc.MaxDepth = c.Planner.MaxDepth
	pc.FeatMin = append([]float64(nil), t.FeatMin...)
	pc.FeatMax = append([]float64(nil), t.FeatMax...)
	pc.StatesPerDim = c.Planner.StatesPerDim
	pc.TrackActual = c.Planner.TrackActual
	pc.HistorySize = c.Planner.History
	pc.Exploration = c.Planner.Exploration
	pc.MinVisits = c.Planner.MinVisits
	pc.Seed = c.Agent.Seed
	return pc
}

func (c Config) FactoredOptions(t Task) factored.Options {
	o := factored.DefaultOptions()
	o.NumActions = t.NumActions
	o.NumFactors = len(t.FeatMin)
	o.ModelType = c.Model.Type
	o.M = c.Model.M
	o.NumModels = c.Model.NumModels
	o.TrainPct = c.Model.TrainPct
	o.FeatPct = c.Model.FeatPct
	o.RelTrans = c.Model.RelTrans
	o.Dependent = c.Model.Dependent
	o.Episodic = t.Episodic
	o.Tree.Seed = c.Agent.Seed
	o.Tree.Mode = c.Model.TrainMode
	o.Tree.Freq = c.Model.Freq
	return o
}

func (c Config) EnvOptions() env.Options {
	return env.Options{Name: c.Env.Name, Length: c.Env.Length, Noise: c.Env.Noise, Seed: c.Env.Seed}
}
