// Package cooldown drives a submission that may be rate limited: it counts
// down the advised cooldown, resubmits once when it reaches zero, and lets the
// user retry early or cancel.
package cooldown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrBusy is returned by Submit while a submission or countdown is active.
var ErrBusy = errors.New("cooldown: submission already in progress")

// State of the controller.
type State int

const (
	Idle State = iota
	Submitting
	Succeeded
	Failed
	Cooldown
)

var stateNames = [...]string{"idle", "submitting", "succeeded", "failed", "cooldown"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// EventType identifies an observer notification.
type EventType int

const (
	EventSubmitting EventType = iota
	EventTick
	EventSucceeded
	EventFailed
	EventCooldown
	EventCancelled
)

// Event is delivered to the observer on every transition and countdown tick.
type Event[T any] struct {
	Type      EventType
	Attempt   int
	Remaining int   // seconds left, Cooldown and Tick only
	From      State // state a Cancelled event interrupted
	Result    T
	Err       error
}

// Hinted is implemented by errors that carry a server-advised wait.
type Hinted interface {
	CooldownHint() time.Duration
}

// SubmitFunc performs one submission.
type SubmitFunc[T any] func(ctx context.Context, ref string) (T, error)

type Option[T any] func(*Controller[T])

// WithClock replaces the wall clock, for tests.
func WithClock[T any](c clockwork.Clock) Option[T] {
	return func(ctl *Controller[T]) { ctl.clock = c }
}

// WithObserver registers fn for every Event. fn must not call back into the
// controller synchronously.
func WithObserver[T any](fn func(Event[T])) Option[T] {
	return func(ctl *Controller[T]) { ctl.observe = fn }
}

// Controller is a retry state machine. Every transition bumps epoch; timer
// callbacks and finished submissions carrying an older epoch are dropped, so
// at most one submission follows each countdown.
type Controller[T any] struct {
	submit  SubmitFunc[T]
	clock   clockwork.Clock
	observe func(Event[T])

	emitMu sync.Mutex // held while an event is delivered; taken before mu is released

	mu        sync.Mutex
	state     State
	epoch     uint64
	attempt   int
	ref       string
	base      context.Context
	remaining int
	timer     clockwork.Timer
	abort     context.CancelFunc
}

func New[T any](submit SubmitFunc[T], opts ...Option[T]) *Controller[T] {
	c := &Controller[T]{submit: submit, clock: clockwork.NewRealClock(), base: context.Background()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the seconds left in the current countdown, or 0.
func (c *Controller[T]) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Cooldown {
		return 0
	}
	return c.remaining
}

// Submit runs a first attempt for ref and blocks until it completes. ctx also
// bounds any automatic retry that follows.
func (c *Controller[T]) Submit(ctx context.Context, ref string) error {
	c.mu.Lock()
	if c.state == Submitting || c.state == Cooldown {
		c.mu.Unlock()
		return ErrBusy
	}
	c.ref = ref
	c.base = ctx
	c.attempt = 0
	a := c.beginLocked()
	c.unlockAndEmit(Event[T]{Type: EventSubmitting, Attempt: a.n})

	c.run(a)
	return nil
}

// RetryNow skips the remaining countdown and submits immediately. It reports
// false when no countdown is active.
func (c *Controller[T]) RetryNow() bool {
	c.mu.Lock()
	if c.state != Cooldown {
		c.mu.Unlock()
		return false
	}
	c.stopTimerLocked()
	a := c.beginLocked()
	c.unlockAndEmit(Event[T]{Type: EventSubmitting, Attempt: a.n})

	c.run(a)
	return true
}

// Cancel aborts a countdown or an in-flight submission and returns to Idle.
// It reports false when there was nothing to cancel.
func (c *Controller[T]) Cancel() bool {
	c.mu.Lock()
	if c.state != Cooldown && c.state != Submitting {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.epoch++
	c.stopTimerLocked()
	if c.abort != nil {
		c.abort()
		c.abort = nil
	}
	c.state = Idle
	c.remaining = 0
	c.unlockAndEmit(Event[T]{Type: EventCancelled, Attempt: c.attempt, From: from})
	return true
}

// submission is a snapshot of one submission taken under the lock.
type submission struct {
	epoch uint64
	n     int
	ref   string
	ctx   context.Context
}

// beginLocked moves to Submitting under a fresh epoch.
func (c *Controller[T]) beginLocked() submission {
	c.epoch++
	c.attempt++
	c.state = Submitting
	c.remaining = 0
	ctx, cancel := context.WithCancel(c.base)
	c.abort = cancel
	return submission{epoch: c.epoch, n: c.attempt, ref: c.ref, ctx: ctx}
}

func (c *Controller[T]) run(a submission) {
	res, err := c.submit(a.ctx, a.ref)
	c.finish(a.epoch, res, err)
}

func (c *Controller[T]) finish(epoch uint64, res T, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if c.abort != nil {
		c.abort()
		c.abort = nil
	}
	ev := Event[T]{Attempt: c.attempt, Result: res, Err: err}

	var h Hinted
	switch {
	case err == nil:
		c.state = Succeeded
		ev.Type = EventSucceeded
	case errors.As(err, &h):
		c.epoch++
		c.state = Cooldown
		c.remaining = seconds(h.CooldownHint())
		c.scheduleLocked(c.epoch)
		ev.Type = EventCooldown
		ev.Remaining = c.remaining
	default:
		c.state = Failed
		ev.Type = EventFailed
	}
	c.unlockAndEmit(ev)
}

func (c *Controller[T]) scheduleLocked(epoch uint64) {
	c.timer = c.clock.AfterFunc(time.Second, func() { c.tick(epoch) })
}

// tick runs once per second during Cooldown and fires the retry at zero.
func (c *Controller[T]) tick(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != Cooldown {
		c.mu.Unlock()
		return
	}
	c.remaining--
	if c.remaining > 0 {
		c.scheduleLocked(epoch)
		c.unlockAndEmit(Event[T]{Type: EventTick, Attempt: c.attempt, Remaining: c.remaining})
		return
	}
	c.timer = nil
	a := c.beginLocked()
	c.unlockAndEmit(Event[T]{Type: EventSubmitting, Attempt: a.n})

	c.run(a)
}

func (c *Controller[T]) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// unlockAndEmit releases mu and delivers ev. Taking emitMu first keeps
// delivery in transition order.
func (c *Controller[T]) unlockAndEmit(ev Event[T]) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Controller[T]) emit(ev Event[T]) {
	if c.observe != nil {
		c.observe(ev)
	}
}

// seconds rounds d up to whole seconds, at least one.
func seconds(d time.Duration) int {
	n := int((d + time.Second - 1) / time.Second)
	if n < 1 {
		return 1
	}
	return n
}
