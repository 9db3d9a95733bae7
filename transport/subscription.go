package transport

import (
	"fmt"
	"sync"

	"github.com/harp-tech/go-harp/harp"
	"github.com/harp-tech/go-harp/internal/queue"
)

// Filter selects the messages delivered to a subscription. A nil Filter
// matches every message.
type Filter func(msg *harp.Message) bool

// MatchAddress matches messages for the given register address.
func MatchAddress(address byte) Filter {
	return func(msg *harp.Message) bool {
		return msg.Address() == address
	}
}

// MatchKind matches messages of the given kind, with or without the error flag.
func MatchKind(kind harp.MessageType) Filter {
	kind = kind.Kind()
	return func(msg *harp.Message) bool {
		return msg.Kind() == kind
	}
}

// MatchReply matches the reply to a command of the given kind on address.
func MatchReply(address byte, kind harp.MessageType) Filter {
	return All(MatchAddress(address), MatchKind(kind))
}

// All matches messages accepted by every filter.
func All(filters ...Filter) Filter {
	return func(msg *harp.Message) bool {
		for _, f := range filters {
			if f != nil && !f(msg) {
				return false
			}
		}

		return true
	}
}

// Subscription delivers the messages matching its filter, in wire order.
//
// Messages are buffered without bound until read from C. When the transport
// terminates, pending messages are still delivered and then C is closed.
type Subscription struct {
	id     uint64
	t      *Transport
	filter Filter

	queue  *queue.LockFree[*harp.Message]
	notify chan struct{}
	ch     chan *harp.Message

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func newSubscription(t *Transport, id uint64, filter Filter) *Subscription {
	return &Subscription{
		id:     id,
		t:      t,
		filter: filter,
		queue:  queue.NewLockFree[*harp.Message](),
		notify: make(chan struct{}, 1),
		ch:     make(chan *harp.Message),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// C returns the delivery channel. It is closed once the subscription ends.
func (s *Subscription) C() <-chan *harp.Message {
	return s.ch
}

// Done is closed once the subscription has ended and C is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the subscription, once C is closed: the
// terminal transport error, or ErrSubscriberPanic when the filter panicked.
// It is nil while the subscription is active, after Unsubscribe, and after a
// clean shutdown.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Pending returns the number of messages queued but not yet received from C.
func (s *Subscription) Pending() int {
	return s.queue.Length()
}

// Unsubscribe stops delivery and closes C. Undelivered messages are
// discarded. It is safe to call more than once and from any goroutine.
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.t.removeSubscription(s.id)
	})
	<-s.done
}

// matches runs the filter on the read loop. A panicking filter ends only
// this subscription.
func (s *Subscription) matches(msg *harp.Message) (ok bool) {
	if s.filter == nil {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			s.t.logger.Error("subscription filter panicked", "subscription", s.id, "panic", r)
			s.fail(fmt.Errorf("%w: %v", ErrSubscriberPanic, r))
		}
	}()

	return s.filter(msg)
}

// fail ends the subscription with err. Undelivered messages are discarded.
// It does not wait for the pump, so it is safe on the read loop.
func (s *Subscription) fail(err error) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		close(s.stop)
		s.t.removeSubscription(s.id)
	})
}

// publish is only called by the transport read loop.
func (s *Subscription) publish(msg *harp.Message) {
	s.queue.Enqueue(msg)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.ch)

	for {
		msg, ok := s.queue.Dequeue()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.stop:
				return
			case <-s.t.done:
				// the read loop has exited; whatever is queued now is final
				if s.queue.IsEmpty() {
					s.finish()
					return
				}

				continue
			}
		}

		select {
		case s.ch <- msg:
		case <-s.stop:
			return
		}
	}
}

func (s *Subscription) finish() {
	s.mu.Lock()
	if s.err == nil {
		s.err = s.t.Err()
	}
	s.mu.Unlock()

	s.t.removeSubscription(s.id)
}
