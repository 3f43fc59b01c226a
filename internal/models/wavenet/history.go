package wavenet

import (
	"errors"
	"fmt"

	"github.com/imu1984/Time-series-prediction/internal/tensor"
)

// ErrDilationExceedsHistory marks a dilation that reaches further back than
// the decoder history. The decoder clamps the offset and continues; the
// error is reported as a warning on the output.
var ErrDilationExceedsHistory = errors.New("dilation exceeds history")

// DilationError describes one clamped dilation.
type DilationError struct {
	Level     int
	Dilation  int
	Available int
}

// Error implements the error interface.
func (e *DilationError) Error() string {
	return fmt.Sprintf("%v: level %d dilation %d, only %d steps available", ErrDilationExceedsHistory, e.Level, e.Dilation, e.Available)
}

// Unwrap lets errors.Is match ErrDilationExceedsHistory.
func (e *DilationError) Unwrap() error {
	return ErrDilationExceedsHistory
}

// arena holds one append-only state buffer per dilation level.
//
// Buffers are preallocated for history plus horizon steps, laid out
// [batch][capacity][filters], so appending never reallocates. An arena
// belongs to a single forward call.
type arena struct {
	batch    int
	filters  int
	capacity int
	levels   []buffer
}

type buffer struct {
	data []float32
	n    int
}

// newArena seeds each level with its encoder states [B, T, filters].
func newArena(states []*tensor.Tensor, horizon int) *arena {
	first := states[0]
	a := &arena{
		batch:    first.Dim(0),
		filters:  first.Dim(2),
		capacity: first.Dim(1) + horizon,
		levels:   make([]buffer, len(states)),
	}
	for i, s := range states {
		steps := s.Dim(1)
		buf := buffer{data: make([]float32, a.batch*a.capacity*a.filters), n: steps}
		src := s.Data()
		for b := 0; b < a.batch; b++ {
			copy(buf.data[b*a.capacity*a.filters:], src[b*steps*a.filters:(b+1)*steps*a.filters])
		}
		a.levels[i] = buf
	}
	return a
}

// size returns the number of states stored at level.
func (a *arena) size(level int) int {
	return a.levels[level].n
}

// back returns the state `offset` steps from the end of level as
// [B, filters]. offset 1 is the most recent state.
func (a *arena) back(level, offset int) *tensor.Tensor {
	buf := &a.levels[level]
	pos := buf.n - offset
	out := tensor.Zeros(tensor.Shape{a.batch, a.filters})
	dst := out.Data()
	for b := 0; b < a.batch; b++ {
		src := (b*a.capacity + pos) * a.filters
		copy(dst[b*a.filters:(b+1)*a.filters], buf.data[src:src+a.filters])
	}
	return out
}

// push appends x [B, filters] to level.
func (a *arena) push(level int, x *tensor.Tensor) {
	buf := &a.levels[level]
	if buf.n == a.capacity {
		panic(fmt.Sprintf("wavenet: history level %d is full (%d steps)", level, a.capacity))
	}
	src := x.Data()
	for b := 0; b < a.batch; b++ {
		dst := (b*a.capacity + buf.n) * a.filters
		copy(buf.data[dst:dst+a.filters], src[b*a.filters:(b+1)*a.filters])
	}
	buf.n++
}

// states returns the stored states of level as [B, n, filters].
func (a *arena) states(level int) *tensor.Tensor {
	buf := a.levels[level]
	out := tensor.Zeros(tensor.Shape{a.batch, buf.n, a.filters})
	dst := out.Data()
	row := buf.n * a.filters
	for b := 0; b < a.batch; b++ {
		copy(dst[b*row:(b+1)*row], buf.data[b*a.capacity*a.filters:])
	}
	return out
}
