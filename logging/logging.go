// Package logging builds the structured loggers used across texplore.
//
// Package logging は texplore 全体で使う構造化ロガーを作ります。
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	ErrInvalidLevel  = errors.New("ログ設定エラー: 未知のログレベルです")
	ErrInvalidFormat = errors.New("ログ設定エラー: 未知の出力形式です")
)

type Config struct {
	// debug, info, warn, error のいずれか。空なら info。
	Level string `yaml:"level"`
	// text または json。空なら text。
	Format string `yaml:"format"`
	// nil なら標準エラー出力
	Output io.Writer `yaml:"-"`
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// New は設定からロガーを作る。返す LevelVar で実行中にレベルを変えられる。
func New(cfg Config) (*slog.Logger, *slog.LevelVar, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidFormat, cfg.Format)
	}
	return slog.New(h), lv, nil
}
