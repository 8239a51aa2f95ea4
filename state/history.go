package state

import (
	"strconv"
	"strings"
)

// History は直近 k 個の行動。遅延のある環境で、モデル入力の接尾辞として使う。
type History struct {
	Size    int
	Actions []int
}

func NewHistory(size int) History {
	return History{Size: size, Actions: make([]int, 0, size)}
}

func (h History) Clone() History {
	return History{Size: h.Size, Actions: append(make([]int, 0, h.Size), h.Actions...)}
}

// Push は末尾に行動を追加し、Size を超えた先頭を捨てた新しい History を返す。
func (h History) Push(action int) History {
	if h.Size <= 0 {
		return h
	}
	c := h.Clone()
	c.Actions = append(c.Actions, action)
	if len(c.Actions) > c.Size {
		c.Actions = c.Actions[len(c.Actions)-c.Size:]
	}
	return c
}

// Suffix は Size*numActions 次元の one-hot 表現。まだ埋まっていない枠は0。
func (h History) Suffix(numActions int) []float64 {
	y := make([]float64, h.Size*numActions)
	offset := h.Size - len(h.Actions)
	for i, a := range h.Actions {
		y[(offset+i)*numActions+a] = 1.0
	}
	return y
}

func (h History) Augment(v []float64, numActions int) []float64 {
	if h.Size <= 0 {
		return v
	}
	y := make([]float64, 0, len(v)+h.Size*numActions)
	y = append(y, v...)
	return append(y, h.Suffix(numActions)...)
}

func (h History) Key() string {
	if len(h.Actions) == 0 {
		return ""
	}
	parts := make([]string, len(h.Actions))
	for i, a := range h.Actions {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, ",")
}
