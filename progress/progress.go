// Package progress delivers session stage notifications to observers.
//
// Notifications are best-effort: a slow or failing observer never delays or
// breaks the session that emits them.
package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/overdub/log"
	"github.com/justapithecus/overdub/types"
)

// Reporter receives stage notifications.
type Reporter interface {
	Report(stage types.Stage)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(stage types.Stage)

// Report calls f(stage).
func (f ReporterFunc) Report(stage types.Stage) { f(stage) }

// Discard is a Reporter that ignores every stage.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(types.Stage) {}

// DefaultDrainTimeout bounds how long Close waits for queued stages.
const DefaultDrainTimeout = time.Second

// queueSize exceeds the number of stages a session can emit.
const queueSize = 4

// ErrDrainTimeout is returned by Close when the observer did not consume the
// queued stages in time.
var ErrDrainTimeout = errors.New("progress: observer did not drain in time")

// Option configures an Async reporter.
type Option func(*Async)

// WithLogger sets the logger used to report dropped stages and observer panics.
func WithLogger(logger *log.Logger) Option {
	return func(a *Async) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDrainTimeout sets how long Close waits for queued stages.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) {
		if d > 0 {
			a.drainTimeout = d
		}
	}
}

// Async decouples a Reporter from its caller. Report never blocks; stages
// are delivered in order by one goroutine, and an observer panic is
// recovered and logged.
type Async struct {
	next         Reporter
	logger       *log.Logger
	drainTimeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan types.Stage
	done   chan struct{}
}

// NewAsync starts delivering stages to next. A nil next behaves like Discard.
func NewAsync(next Reporter, opts ...Option) *Async {
	if next == nil {
		next = Discard
	}
	a := &Async{
		next:         next,
		logger:       log.NewNop(),
		drainTimeout: DefaultDrainTimeout,
		queue:        make(chan types.Stage, queueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

// Report queues stage for delivery. Stages reported after Close, or while the
// queue is full, are dropped.
func (a *Async) Report(stage types.Stage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.logger.Debug("progress stage dropped after close", map[string]any{"stage": string(stage)})
		return
	}
	select {
	case a.queue <- stage:
	default:
		a.logger.Warn("progress stage dropped, observer is behind", map[string]any{"stage": string(stage)})
	}
}

// Shutdown stops accepting stages without waiting. Stages already queued
// are still delivered by the background goroutine. Safe to call more than
// once.
func (a *Async) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
}

// Close stops accepting stages and waits for queued ones to be delivered,
// up to the drain timeout. Safe to call more than once.
func (a *Async) Close() error {
	a.Shutdown()
	select {
	case <-a.done:
		return nil
	case <-time.After(a.drainTimeout):
		return ErrDrainTimeout
	}
}

func (a *Async) run() {
	defer close(a.done)
	for stage := range a.queue {
		a.deliver(stage)
	}
}

func (a *Async) deliver(stage types.Stage) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("progress observer panicked", map[string]any{
				"stage": string(stage),
				"panic": fmt.Sprint(r),
			})
		}
	}()
	a.next.Report(stage)
}

// Tee returns a Reporter that forwards every stage to each non-nil reporter
// in order.
func Tee(reporters ...Reporter) Reporter {
	var out tee
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return Discard
	case 1:
		return out[0]
	default:
		return out
	}
}

type tee []Reporter

func (t tee) Report(stage types.Stage) {
	for _, r := range t {
		r.Report(stage)
	}
}
