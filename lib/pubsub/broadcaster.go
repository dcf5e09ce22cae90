package pubsub

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("pubsub")

// QueueSize is the number of undelivered messages a subscription buffers
const QueueSize = 128

// Broadcaster fans out messages of type T to the subscribers of a topic.
// All methods are safe for concurrent use.
type Broadcaster[T any] struct {
	nextID        atomic.Uint32
	topics        *xsync.MapOf[string, *xsync.MapOf[uint32, struct{}]]
	subscriptions *xsync.MapOf[uint32, *Subscription[T]]
	// tail of the delivery chain per topic, keeps publishes in call order
	tails     *xsync.MapOf[string, chan struct{}]
	published     atomic.Uint64
	inflight      sync.WaitGroup
	closed        atomic.Bool
}

// New creates an empty broadcaster
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		topics:        xsync.NewMapOf[string, *xsync.MapOf[uint32, struct{}]](),
		subscriptions: xsync.NewMapOf[uint32, *Subscription[T]](),
		tails:         xsync.NewMapOf[string, chan struct{}](),
	}
}

// Subscribe registers a new receiver on topic. Ids are unique per broadcaster and start at 1.
func (b *Broadcaster[T]) Subscribe(topic string) *Subscription[T] {
	sub := &Subscription[T]{
		ID:     b.nextID.Add(1),
		Topic:  topic,
		ch:     make(chan T, QueueSize),
		closed: make(chan struct{}),
	}

	// register before the topic entry so a publisher never sees an unknown id
	b.subscriptions.Store(sub.ID, sub)
	b.topics.Compute(topic, func(set *xsync.MapOf[uint32, struct{}], loaded bool) (*xsync.MapOf[uint32, struct{}], bool) {
		if !loaded {
			set = xsync.NewMapOf[uint32, struct{}]()
		}
		set.Store(sub.ID, struct{}{})
		return set, false
	})

	if b.closed.Load() {
		sub.Close()
	}

	Logger.Debugf("Subscribed %d to topic %q", sub.ID, topic)
	return sub
}

// Unsubscribe removes the subscription id from topic and closes it.
// A second call for the same id returns a not found error and changes nothing.
func (b *Broadcaster[T]) Unsubscribe(topic string, id uint32) (uint32, error) {
	removed := false
	b.topics.Compute(topic, func(set *xsync.MapOf[uint32, struct{}], loaded bool) (*xsync.MapOf[uint32, struct{}], bool) {
		if !loaded {
			return nil, true
		}
		_, removed = set.LoadAndDelete(id)
		return set, set.Size() == 0
	})

	if !removed {
		return 0, store.NewNotFoundError("", fmt.Sprintf("subscription %d", id))
	}

	if sub, ok := b.subscriptions.LoadAndDelete(id); ok {
		sub.Close()
	}
	Logger.Debugf("Unsubscribed %d from topic %q", id, topic)
	return id, nil
}

// Publish delivers msg to every current subscriber of topic. Delivery runs
// detached from the caller, after earlier publishes to the same topic have been
// delivered. Subscribers that are gone are cleaned up.
func (b *Broadcaster[T]) Publish(topic string, msg T) {
	set, ok := b.topics.Load(topic)
	if !ok {
		return
	}

	var ids []uint32
	set.Range(func(id uint32, _ struct{}) bool {
		ids = append(ids, id)
		return true
	})
	if len(ids) == 0 {
		return
	}

	done := make(chan struct{})
	var prev chan struct{}
	b.tails.Compute(topic, func(old chan struct{}, loaded bool) (chan struct{}, bool) {
		prev = old
		return done, false
	})

	b.published.Add(1)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer b.release(topic, done)

		if prev != nil {
			<-prev
		}

		for _, id := range ids {
			sub, ok := b.subscriptions.Load(id)
			if !ok {
				continue
			}
			if !sub.deliver(msg) {
				Logger.Debugf("Subscriber %d on topic %q is gone", id, topic)
				_, _ = b.Unsubscribe(topic, id)
			}
		}
	}()
}

// release ends a delivery and drops the chain entry if no later publish is queued behind it
func (b *Broadcaster[T]) release(topic string, done chan struct{}) {
	close(done)
	b.tails.Compute(topic, func(cur chan struct{}, loaded bool) (chan struct{}, bool) {
		return cur, !loaded || cur == done
	})
}

// Len returns the number of live subscriptions
func (b *Broadcaster[T]) Len() int { return b.subscriptions.Size() }

// Published returns the number of messages handed to at least one subscriber
func (b *Broadcaster[T]) Published() uint64 { return b.published.Load() }

// Wait blocks until all pending deliveries have finished
func (b *Broadcaster[T]) Wait() { b.inflight.Wait() }

// Close closes every subscription and waits for pending deliveries
func (b *Broadcaster[T]) Close() {
	b.closed.Store(true)
	b.subscriptions.Range(func(id uint32, sub *Subscription[T]) bool {
		sub.Close()
		return true
	})
	b.inflight.Wait()
}

// --------------------------------------------------------------------------
// Subscription
// --------------------------------------------------------------------------

// Subscription is the receiving end of one Subscribe call
type Subscription[T any] struct {
	ID    uint32
	Topic string

	ch        chan T
	closed    chan struct{}
	closeOnce sync.Once
}

// deliver blocks until msg is queued or the subscription is closed
func (s *Subscription[T]) deliver(msg T) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.ch <- msg:
		return true
	case <-s.closed:
		return false
	}
}

// Recv returns the next message. Queued messages are drained before io.EOF
// is returned for a closed subscription.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T

	select {
	case msg := <-s.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.closed:
		select {
		case msg := <-s.ch:
			return msg, nil
		default:
			return zero, io.EOF
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Done is closed once the subscription is closed
func (s *Subscription[T]) Done() <-chan struct{} { return s.closed }

// Close marks the receiver as gone. The data channel stays open so a racing publisher cannot panic.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}
