// Package env provides small simulated environments that satisfy
// mdp.Environment, so that the agent can be run end to end.
//
// Package env は mdp.Environment を満たす小さなシミュレーション環境を提供します。
package env

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sw965/texplore/mdp"
)

var (
	ErrUnknownEnv = errors.New("環境エラー: 未知の環境です")
)

type Options struct {
	Name string
	// chain の長さ
	Length int
	// 行動が意図と異なる結果になる確率
	Noise float64
	Seed  uint64
}

func DefaultOptions() Options {
	return Options{Name: "chain", Length: 10, Seed: 1}
}

// New は名前に対応する環境を作る。
func New(opts Options) (mdp.Environment, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Name)) {
	case "chain":
		return NewChain(opts.Length, opts.Noise, opts.Seed)
	case "mountaincar":
		return NewMountainCar(opts.Noise, opts.Seed), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEnv, opts.Name)
}
