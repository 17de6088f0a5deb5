package container

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// ErrIndexOutOfRange reports a rank or buffer index outside [0, size).
var ErrIndexOutOfRange = errors.New("index out of range")

// Buffer growth increment, in slots.
const bufferGrowth = 10

// Buffer is an append-only list of floating-point values that grows by a
// fixed increment, used to decode sequences of a priori unknown length from
// a stream. Not safe for concurrent use.
type Buffer[T constraints.Float] struct {
	data []T
	size int
}

func NewBuffer[T constraints.Float]() *Buffer[T] {
	return &Buffer[T]{}
}

func (b *Buffer[T]) Len() int {
	return b.size
}

func (b *Buffer[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= b.size {
		return zero, fmt.Errorf("buffer index %d outside [0,%d): %w", i, b.size, ErrIndexOutOfRange)
	}
	return b.data[i], nil
}

func (b *Buffer[T]) Push(v T) {
	if b.size == len(b.data) {
		grown := make([]T, len(b.data)+bufferGrowth)
		copy(grown, b.data)
		b.data = grown
	}
	b.data[b.size] = v
	b.size++
}

func (b *Buffer[T]) PushAll(vs ...T) {
	for _, v := range vs {
		b.Push(v)
	}
}

// PopLast discards the most recently pushed value, undoing a partial read.
func (b *Buffer[T]) PopLast() error {
	if b.size == 0 {
		return fmt.Errorf("pop from empty buffer: %w", ErrIndexOutOfRange)
	}
	b.size--
	return nil
}

// Values returns an exact-length copy of the buffered values.
func (b *Buffer[T]) Values() []T {
	out := make([]T, b.size)
	copy(out, b.data[:b.size])
	return out
}
