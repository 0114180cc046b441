package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 15 * time.Second
)

// Stats counts what happened to enqueued notifications.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the number of pending notifications held before new
// ones are dropped.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// Dispatcher delivers notifications asynchronously from a single worker.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	notifier  Notifier
	logger    *zap.Logger
	queueSize int
	timeout   time.Duration

	queue     chan string
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher starts a dispatcher for n. It returns nil when n is nil,
// which makes every call a no-op.
func NewDispatcher(n Notifier, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if n == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		notifier:  n,
		logger:    logger,
		queueSize: defaultQueueSize,
		timeout:   defaultSendTimeout,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan string, d.queueSize)

	d.wg.Add(1)
	go d.loop()

	return d
}

// Enqueue schedules a notification. It never blocks; when the queue is full
// or the dispatcher is closed the notification is dropped.
func (d *Dispatcher) Enqueue(name string) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- name:
	default:
		d.dropped.Add(1)
		d.logger.Warn("Notification queue full, dropping notification", zap.String("skill", name))
	}
}

// Close stops accepting notifications, delivers the ones already queued and
// waits for the worker to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}

	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
	})
	d.wg.Wait()
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case name := <-d.queue:
			d.deliver(name)
		case <-d.done:
			for {
				select {
				case name := <-d.queue:
					d.deliver(name)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.NotifyNewSkill(ctx, name); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Notification failed", zap.Error(&Error{Skill: name, Err: err}))
		return
	}
	d.sent.Add(1)
	d.logger.Debug("Notification sent", zap.String("skill", name))
}
