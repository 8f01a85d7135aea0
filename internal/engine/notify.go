package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/ledgerbox/internal/ir"
)

// DefaultSubscriberBuffer is the channel capacity given to each subscriber.
const DefaultSubscriberBuffer = 64

// notifier fans committed events out to subscribers without blocking the
// writer. A subscriber whose buffer is full misses the event.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]chan ir.Event
	nextID int
	buffer int
	closed bool
	log    *zap.SugaredLogger
}

func newNotifier(buffer int, log *zap.SugaredLogger) *notifier {
	return &notifier{
		subs:   make(map[int]chan ir.Event),
		buffer: buffer,
		log:    log,
	}
}

func (n *notifier) subscribe() (<-chan ir.Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan ir.Event, n.buffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if c, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (n *notifier) publish(ev ir.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			n.log.Warnw("subscriber dropped event",
				"subscriber", id,
				"seq", ev.Seq,
				"event", ev.Name,
				"account", ev.Account,
			)
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}

// Subscribe returns a channel receiving every committed event, and a
// cancel function that unsubscribes and closes the channel. Delivery never
// blocks the writer: events arriving while the buffer is full are dropped
// and the drop is logged.
func (e *Engine) Subscribe() (<-chan ir.Event, func()) {
	return e.notifier.subscribe()
}
