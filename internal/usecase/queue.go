package usecase

import "sync"

// queue is an unbounded FIFO. Push never blocks; Out delivers items in
// order until Close is called.
type queue[T any] struct {
	in        chan T
	out       chan T
	done      chan struct{}
	closeOnce sync.Once
}

func newQueue[T any]() *queue[T] {
	q := &queue[T]{
		in:   make(chan T),
		out:  make(chan T),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *queue[T]) pump() {
	var buf []T
	for {
		var out chan T
		var next T
		if len(buf) > 0 {
			out = q.out
			next = buf[0]
		}
		select {
		case <-q.done:
			return
		case v := <-q.in:
			buf = append(buf, v)
		case out <- next:
			var zero T
			buf[0] = zero
			buf = buf[1:]
			if len(buf) == 0 {
				buf = nil
			}
		}
	}
}

// Push enqueues v. It returns false once the queue is closed.
func (q *queue[T]) Push(v T) bool {
	select {
	case q.in <- v:
		return true
	case <-q.done:
		return false
	}
}

func (q *queue[T]) Out() <-chan T {
	return q.out
}

// Close stops delivery. Items still buffered are dropped.
func (q *queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
