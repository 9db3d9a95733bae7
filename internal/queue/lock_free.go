package queue

import (
	"sync/atomic"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFree is a Michael-Scott lock-free queue. The zero value is not usable;
// create instances with NewLockFree.
type LockFree[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int64
}

var _ Queue[int] = (*LockFree[int])(nil)

// NewLockFree creates an empty lock-free queue.
func NewLockFree[T any]() *LockFree[T] {
	q := &LockFree[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Enqueue adds an item to the tail of the queue.
func (q *LockFree[T]) Enqueue(item T) {
	n := &node[T]{value: item}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}

		if next != nil {
			// tail is lagging, help it forward
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)
			return
		}
	}
}

// Dequeue removes and returns the item at the head of the queue.
func (q *LockFree[T]) Dequeue() (T, bool) {
	var zero T
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}

		if next == nil {
			return zero, false
		}

		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		// read before the CAS, a concurrent dequeue may reuse next as sentinel
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)
			return value, true
		}
	}
}

// Peek returns the item at the head of the queue without removing it.
func (q *LockFree[T]) Peek() (T, bool) {
	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			return zero, false
		}

		return next.value, true
	}
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *LockFree[T]) IsEmpty() bool {
	return q.head.Load().next.Load() == nil
}

// Length returns the number of items in the queue.
func (q *LockFree[T]) Length() int {
	return int(q.length.Load())
}
