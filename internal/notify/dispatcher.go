// Package notify fans message events out to notification sinks without
// holding up the request that produced them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/metrics"
	"github.com/quocanhngo/talkcore/internal/model"
	"go.uber.org/zap"
)

// Sink delivers one notification to one recipient
type Sink interface {
	Name() string
	Notify(ctx context.Context, userID uuid.UUID, n model.Notification) error
}

// Options tunes the dispatcher; zero values fall back to defaults
type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

type job struct {
	userID uuid.UUID
	n      model.Notification
}

// Dispatcher is a bounded queue drained by a fixed worker pool. Enqueue never
// blocks: when the queue is full the notification is dropped and counted, so
// delivery is at most once.
type Dispatcher struct {
	sinks   []Sink
	queue   chan job
	workers int
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, m *metrics.Metrics, opts Options, sinks ...Sink) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan job, opts.QueueSize),
		workers: opts.Workers,
		timeout: opts.Timeout,
		log:     log.Named("notify"),
		metrics: m,
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Enqueue hands n to the workers and reports whether it was accepted
func (d *Dispatcher) Enqueue(userID uuid.UUID, n model.Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- job{userID: userID, n: n}:
		d.metrics.NotificationQueued()
		return true
	default:
		d.metrics.NotificationDropped()
		d.log.Warn("queue full, dropping notification",
			zap.Stringer("user_id", userID),
			zap.Stringer("message_id", n.MessageID),
			zap.String("type", string(n.Type)))
		return false
	}
}

// Close stops accepting work and waits for queued notifications to be delivered
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Notify(ctx, j.userID, j.n)
		cancel()
		if err != nil {
			d.metrics.NotificationFailed(sink.Name())
			d.log.Warn("sink delivery failed",
				zap.String("sink", sink.Name()),
				zap.Stringer("user_id", j.userID),
				zap.Stringer("message_id", j.n.MessageID),
				zap.Error(err))
		}
	}
}
