package channel

// Bounded holds at most Cap values. Send blocks the producer when full;
// TrySend reports false instead.
type Bounded[T any] struct {
	ch chan T
}

var _ Channel[int] = (*Bounded[int])(nil)

// New returns a bounded channel. Sizes below 1 are raised to 1 so a
// producer can always finish one value without a waiting consumer.
func New[T any](size int) *Bounded[T] {
	if size < 1 {
		size = 1
	}
	return &Bounded[T]{ch: make(chan T, size)}
}

func (b *Bounded[T]) Send(v T) {
	b.ch <- v
}

func (b *Bounded[T]) TrySend(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

func (b *Bounded[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of queued values.
func (b *Bounded[T]) Len() int {
	return len(b.ch)
}

func (b *Bounded[T]) Cap() int {
	return cap(b.ch)
}

func (b *Bounded[T]) Close() {
	close(b.ch)
}
