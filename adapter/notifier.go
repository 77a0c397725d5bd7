package adapter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultQueueSize bounds the number of pending events.
const DefaultQueueSize = 64

// Notifier publishes events from a single background goroutine so the
// caller never waits on the downstream system. Events beyond the queue
// capacity are dropped.
type Notifier struct {
	adapter  Adapter
	timeout  time.Duration
	onResult func(event *CellExecutedEvent, err error)

	queue chan *CellExecutedEvent
	done  chan struct{}
	once  sync.Once
}

// NotifierConfig configures a Notifier.
type NotifierConfig struct {
	// QueueSize bounds pending events (default DefaultQueueSize).
	QueueSize int
	// Timeout bounds each Publish call including retries (0 = none).
	Timeout time.Duration
	// OnResult is called once per event with the publish error, nil on
	// success. Dropped events get ErrQueueFull on the caller's goroutine.
	// Optional.
	OnResult func(event *CellExecutedEvent, err error)
}

// NewNotifier starts a notifier for a.
func NewNotifier(a Adapter, cfg NotifierConfig) *Notifier {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	n := &Notifier{
		adapter:  a,
		timeout:  cfg.Timeout,
		onResult: cfg.OnResult,
		queue:    make(chan *CellExecutedEvent, size),
		done:     make(chan struct{}),
	}
	go n.loop()
	return n
}

// ErrQueueFull is passed to OnResult for dropped events.
var ErrQueueFull = errors.New("notification queue full")

// Notify enqueues event. Returns false if the event was dropped.
// Must not be called after Close.
func (n *Notifier) Notify(event *CellExecutedEvent) bool {
	select {
	case n.queue <- event:
		return true
	default:
		if n.onResult != nil {
			n.onResult(event, ErrQueueFull)
		}
		return false
	}
}

func (n *Notifier) loop() {
	defer close(n.done)
	for event := range n.queue {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if n.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, n.timeout)
		}
		err := n.adapter.Publish(ctx, event)
		cancel()
		if n.onResult != nil {
			n.onResult(event, err)
		}
	}
}

// Close drains pending events, then closes the adapter.
func (n *Notifier) Close() error {
	n.once.Do(func() { close(n.queue) })
	<-n.done
	return n.adapter.Close()
}
