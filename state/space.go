// Package state provides the canonical state space used as the identity of
// planner states, together with discretisation and action history helpers.
//
// Package state はプランナーの状態の同一性として使われる正準状態空間と、
// 離散化・行動履歴のユーティリティを提供します。
package state

import (
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"
)

// Handle は正準状態の識別子。値ではなく同一性で比較する。
type Handle int

const None Handle = -1

type Space struct {
	mu      sync.RWMutex
	index   map[string]Handle
	vectors [][]float64
}

func NewSpace() *Space {
	return &Space{index: map[string]Handle{}}
}

func key(v []float64) string {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		// -0 と +0 を同一視する
		if x == 0 {
			x = 0
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return string(buf)
}

// Canonicalize は値が等しいベクトルに対して常に同じ Handle を返す。
// 初めて観測されたベクトルは複製して保存される。
func (s *Space) Canonicalize(v []float64) (Handle, bool) {
	k := key(v)
	s.mu.RLock()
	h, ok := s.index[k]
	s.mu.RUnlock()
	if ok {
		return h, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.index[k]; ok {
		return h, false
	}
	h = Handle(len(s.vectors))
	s.vectors = append(s.vectors, append([]float64(nil), v...))
	s.index[k] = h
	return h, true
}

func (s *Space) Lookup(v []float64) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.index[key(v)]
	return h, ok
}

// Vector は保存済みベクトルを返す。呼び出し側は変更してはならない。
func (s *Space) Vector(h Handle) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectors[h]
}

func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *Space) Handles() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hs := make([]Handle, len(s.vectors))
	for i := range hs {
		hs[i] = Handle(i)
	}
	return hs
}

func (s *Space) Random(rng *rand.Rand) (Handle, bool) {
	n := s.Len()
	if n == 0 {
		return None, false
	}
	return Handle(rng.IntN(n)), true
}
