/*
Package notify implements the fire-and-forget notification hook.

PURPOSE:
  Dispatches mutation events to sinks without ever blocking or failing
  the mutation path. The Dispatcher hands events to a background
  goroutine over a buffered channel; if the buffer is full the event is
  dropped and logged. Delivery guarantees (retry, backoff, dead-letter)
  belong to whatever sits behind a Sink, not here.

CONTRACT (from report.Notifier):
  - Notify never blocks the caller
  - Sink failures never propagate back into the mutation's verdict

USAGE:
  d := notify.NewDispatcher(log, notify.LogSink(log))
  defer d.Close()
  svc := report.NewService(store, d, log)

SEE ALSO:
  - report/store.go: The Notifier contract
*/
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/warp/expense-engine/report"
)

// Sink receives dispatched events. A Sink that panics is recovered and
// logged; it never takes the dispatcher down.
type Sink func(report.Event)

// LogSink returns a Sink that records events to the logger. The default
// collaborator when no queue is wired in.
func LogSink(log *zap.Logger) Sink {
	return func(ev report.Event) {
		log.Info("notification",
			zap.String("kind", string(ev.Kind)),
			zap.String("report_id", string(ev.ReportID)),
			zap.String("owner_id", string(ev.OwnerID)),
			zap.String("actor_id", string(ev.ActorID)),
			zap.Int64("version", ev.Version))
	}
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher fans events out to sinks from a single background
// goroutine. Implements report.Notifier.
type Dispatcher struct {
	log    *zap.Logger
	sinks  []Sink
	events chan report.Event

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

const defaultBuffer = 256

// NewDispatcher starts the dispatch goroutine.
func NewDispatcher(log *zap.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		log:    log,
		sinks:  sinks,
		events: make(chan report.Event, defaultBuffer),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues the event. Never blocks and never panics: a full
// buffer or a closed dispatcher drops the event with a warning rather
// than stalling or raising into a mutation.
func (d *Dispatcher) Notify(ev report.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("notification dropped, dispatcher closed",
			zap.String("kind", string(ev.Kind)),
			zap.String("report_id", string(ev.ReportID)))
		return
	}
	select {
	case d.events <- ev:
	default:
		d.log.Warn("notification dropped, buffer full",
			zap.String("kind", string(ev.Kind)),
			zap.String("report_id", string(ev.ReportID)))
	}
}

// Close drains queued events and stops the goroutine. The write lock
// waits out in-flight Notify calls, so the channel is never closed
// under a sender.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.events)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		for _, sink := range d.sinks {
			d.deliver(sink, ev)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, ev report.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("notification sink panicked",
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", rec))
		}
	}()
	sink(ev)
}
