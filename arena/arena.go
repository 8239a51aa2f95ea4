// Package arena provides a fixed-capacity slot allocator with a free list.
// Allocations past the capacity fall back to individually heap-allocated
// slots that are tracked so they can be released one by one.
//
// Package arena は空きリスト付きの固定容量スロットアロケータを提供します。
// 容量を超えた分は個別にヒープ確保され、個別に解放できるよう追跡されます。
package arena

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIndex = errors.New("Indexエラー: 確保されていないスロットです")
)

type Index int

const Nil Index = -1

type Arena[T any] struct {
	slots    []T
	used     []bool
	free     []Index
	next     int
	overflow map[Index]*T
	nextOver Index
	onOver   func(int)
}

func New[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots:    make([]T, capacity),
		used:     make([]bool, capacity),
		free:     make([]Index, 0, capacity),
		overflow: map[Index]*T{},
		nextOver: Index(capacity),
	}
}

// OnOverflow は初めて容量を超えた時に一度だけ呼ばれる関数を登録する。
func (a *Arena[T]) OnOverflow(f func(capacity int)) {
	a.onOver = f
}

func (a *Arena[T]) Cap() int {
	return len(a.slots)
}

func (a *Arena[T]) Allocate() Index {
	var zero T
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx] = zero
		a.used[idx] = true
		return idx
	}
	if a.next < len(a.slots) {
		idx := Index(a.next)
		a.next++
		a.slots[idx] = zero
		a.used[idx] = true
		return idx
	}

	if len(a.overflow) == 0 && a.onOver != nil && a.nextOver == Index(len(a.slots)) {
		a.onOver(len(a.slots))
	}
	idx := a.nextOver
	a.nextOver++
	a.overflow[idx] = new(T)
	return idx
}

func (a *Arena[T]) Get(idx Index) *T {
	if idx >= 0 && int(idx) < len(a.slots) {
		if !a.used[idx] {
			return nil
		}
		return &a.slots[idx]
	}
	return a.overflow[idx]
}

func (a *Arena[T]) Free(idx Index) error {
	if idx >= 0 && int(idx) < len(a.slots) {
		if !a.used[idx] {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, idx)
		}
		var zero T
		a.slots[idx] = zero
		a.used[idx] = false
		a.free = append(a.free, idx)
		return nil
	}
	if _, ok := a.overflow[idx]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, idx)
	}
	// 溢れたスロットはプールに戻さず、そのまま破棄する
	delete(a.overflow, idx)
	return nil
}

// Len は現在確保中のスロット数を返す。
func (a *Arena[T]) Len() int {
	return a.next - len(a.free) + len(a.overflow)
}

func (a *Arena[T]) Overflowed() int {
	return len(a.overflow)
}

// Clone はスロットの値を浅くコピーした新しいArenaを返す。
// T がポインタやスライスを含む場合、その深いコピーは呼び出し側の責任とする。
func (a *Arena[T]) Clone(copyFn func(*T) T) *Arena[T] {
	c := &Arena[T]{
		slots:    make([]T, len(a.slots)),
		used:     make([]bool, len(a.used)),
		free:     make([]Index, len(a.free), cap(a.free)),
		next:     a.next,
		overflow: make(map[Index]*T, len(a.overflow)),
		nextOver: a.nextOver,
		onOver:   a.onOver,
	}
	copy(c.used, a.used)
	copy(c.free, a.free)
	for i := range a.slots {
		if a.used[i] {
			c.slots[i] = copyFn(&a.slots[i])
		}
	}
	for idx, v := range a.overflow {
		cv := copyFn(v)
		c.overflow[idx] = &cv
	}
	return c
}
