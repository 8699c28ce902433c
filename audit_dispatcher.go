package credlock

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples the authentication hot path from sink latency:
// Emit hands events to a buffered channel and a single pump goroutine feeds
// the sink. Ordering is preserved because there is exactly one pump.
type auditDispatcher struct {
	sink       AuditSink
	events     chan AuditEvent
	quit       chan struct{}
	finished   chan struct{}
	dropIfFull bool
	dropped    atomic.Uint64
	stopOnce   sync.Once
}

// newAuditDispatcher returns nil when auditing is disabled; the nil receiver
// is safe to Emit on, so callers never branch. An enabled dispatcher with no
// sink falls back to NoOpSink and discards events.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &auditDispatcher{
		sink:       sink,
		events:     make(chan AuditEvent, size),
		quit:       make(chan struct{}),
		finished:   make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}

	go d.pump()

	return d
}

func (d *auditDispatcher) pump() {
	defer close(d.finished)

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			// Flush whatever was buffered before Close.
			for {
				select {
				case event := <-d.events:
					d.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues an event for delivery. In drop mode a full buffer sheds the
// event and bumps the drop counter; in blocking mode Emit waits for buffer
// space, context cancellation, or dispatcher shutdown, whichever is first.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops the pump after flushing buffered events. Safe to call more
// than once; every call waits for the flush to finish.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		close(d.quit)
	})
	<-d.finished
}

// Dropped reports how many events were shed because the buffer was full.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
