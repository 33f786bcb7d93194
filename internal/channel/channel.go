// Package channel provides the bounded hand-off used between background
// workers and the simulation loop. Each channel has one producer and one
// consumer; the consumer never blocks.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

// Drain hands every value currently available on r to fn, in FIFO order,
// without blocking. It returns the number of values consumed.
func Drain[T any](r Receiver[T], fn func(T)) int {
	n := 0
	for {
		select {
		case v, ok := <-r.Receive():
			if !ok {
				return n
			}
			fn(v)
			n++
		default:
			return n
		}
	}
}
