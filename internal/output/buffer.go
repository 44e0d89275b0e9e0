package output

import (
	"errors"
	"fmt"
)

var ErrBufferOverflow = errors.New("output: buffer capacity exceeded")

// Buffer is a pre-sized append-only row store. Appending past its capacity
// panics with an error wrapping ErrBufferOverflow.
type Buffer[T any] struct {
	rows   []T
	cursor int
}

type EventBuffer = Buffer[Event]
type RangeBuffer = Buffer[Range]

func NewBuffer[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{rows: make([]T, capacity)}
}

func (b *Buffer[T]) Append(row T) {
	if b.cursor >= len(b.rows) {
		panic(fmt.Errorf("%w: capacity %d", ErrBufferOverflow, len(b.rows)))
	}
	b.rows[b.cursor] = row
	b.cursor++
}

func (b *Buffer[T]) Len() int { return b.cursor }
func (b *Buffer[T]) Cap() int { return len(b.rows) }

// Rows returns the appended rows; the slice aliases the buffer.
func (b *Buffer[T]) Rows() []T {
	return b.rows[:b.cursor]
}

// Concat joins buffers in order into one slice.
func Concat[T any](buffers []*Buffer[T]) []T {
	var n int
	for _, b := range buffers {
		n += b.Len()
	}
	out := make([]T, 0, n)
	for _, b := range buffers {
		out = append(out, b.Rows()...)
	}
	return out
}
