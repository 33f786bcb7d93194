// Package replay holds the fixed-capacity experience ring used for
// off-policy training.
//
// A Buffer is not safe for concurrent use. The simulation loop owns it;
// batches handed to trainers are value copies.
package replay

import (
	"errors"
	"fmt"

	"github.com/racedqn/autopilot/pkg/core"
	"gorgonia.org/tensor"
)

// ErrInsufficientData is returned when a sample is requested from an empty
// buffer. Callers gate training on Len() >= batch size themselves.
var ErrInsufficientData = errors.New("replay buffer has insufficient data")

// ErrSampleSize is returned when fewer than one transition is requested.
var ErrSampleSize = errors.New("sample size must be positive")

// Rand is the randomness source used for sampling; *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Buffer is a ring of transitions. Once full, the oldest slot is overwritten.
type Buffer struct {
	data    []core.Transition
	cursor  int
	length  int
	inserts uint64
}

// New creates a Buffer. Capacities below 1 are raised to 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]core.Transition, capacity)}
}

// Store writes t at the cursor and advances it.
func (b *Buffer) Store(t core.Transition) {
	b.data[b.cursor] = t
	b.cursor = (b.cursor + 1) % len(b.data)
	if b.length < len(b.data) {
		b.length++
	}
	b.inserts++
}

// Len returns the number of valid slots.
func (b *Buffer) Len() int { return b.length }

// Cap returns the ring capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Inserts returns the total number of Store calls, never reset by wraparound.
func (b *Buffer) Inserts() uint64 { return b.inserts }

// At returns the transition in physical slot i. Slot order follows
// wraparound, not insertion order.
func (b *Buffer) At(i int) core.Transition {
	return b.data[i]
}

// Recent returns up to n of the newest transitions, oldest first.
func (b *Buffer) Recent(n int) []core.Transition {
	if n > b.length {
		n = b.length
	}
	if n <= 0 {
		return nil
	}
	out := make([]core.Transition, n)
	c := len(b.data)
	start := (b.cursor - n + c) % c
	for i := range out {
		out[i] = b.data[(start+i)%c]
	}
	return out
}

// SampleIndices draws k slot indices uniformly from [0, Len()) with
// replacement.
func (b *Buffer) SampleIndices(k int, rng Rand) ([]int, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrSampleSize, k)
	}
	if b.length == 0 {
		return nil, ErrInsufficientData
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = rng.Intn(b.length)
	}
	return idx, nil
}

// Sample returns k transitions drawn with replacement.
func (b *Buffer) Sample(k int, rng Rand) ([]core.Transition, error) {
	idx, err := b.SampleIndices(k, rng)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transition, len(idx))
	for i, j := range idx {
		out[i] = b.data[j]
	}
	return out, nil
}

// SampleBatch draws k transitions and packs them for a learner.
func (b *Buffer) SampleBatch(k int, rng Rand) (*Batch, error) {
	ts, err := b.Sample(k, rng)
	if err != nil {
		return nil, err
	}
	return Pack(ts), nil
}

// Batch is a column-packed set of transitions. States and NextStates have
// shape (Size, core.StateSize).
type Batch struct {
	Size       int
	States     *tensor.Dense
	NextStates *tensor.Dense
	Actions    []int
	Rewards    []float64
	Dones      []float64
}

// Pack copies ts into a Batch. The result shares no memory with ts.
func Pack(ts []core.Transition) *Batch {
	n := len(ts)
	states := make([]float64, n*core.StateSize)
	next := make([]float64, n*core.StateSize)
	bt := &Batch{
		Size:    n,
		Actions: make([]int, n),
		Rewards: make([]float64, n),
		Dones:   make([]float64, n),
	}
	for i, t := range ts {
		row := i * core.StateSize
		for j := 0; j < core.StateSize; j++ {
			states[row+j] = float64(t.State[j])
			next[row+j] = float64(t.NextState[j])
		}
		bt.Actions[i] = t.Action
		bt.Rewards[i] = float64(t.Reward)
		if t.Done {
			bt.Dones[i] = 1
		}
	}
	bt.States = tensor.New(tensor.WithShape(n, core.StateSize), tensor.WithBacking(states))
	bt.NextStates = tensor.New(tensor.WithShape(n, core.StateSize), tensor.WithBacking(next))
	return bt
}

// Row returns row i of a (n, StateSize) batch tensor without copying.
func Row(t *tensor.Dense, i int) []float64 {
	data := t.Data().([]float64)
	return data[i*core.StateSize : (i+1)*core.StateSize]
}
