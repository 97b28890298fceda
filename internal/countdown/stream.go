package countdown

import (
	"context"
	"sync"
	"time"

	"countdownbot/internal/clock"
)

// Notification is one emitted message and its logical emission time,
// measured from the moment the subscription started.
type Notification struct {
	At   time.Duration
	Text string
}

// cursor yields planned notifications in emission order. At is the planned
// logical time. A cursor is single-use.
type cursor interface {
	next() (Notification, bool)
}

// Stream is a lazily produced, finite sequence of notifications. Every
// subscription replays the whole schedule from logical time zero.
type Stream struct {
	clock  clock.Clock
	cursor func() cursor
}

// Plan returns the full schedule with planned logical times, without
// touching the clock.
func (st *Stream) Plan() []Notification {
	var out []Notification
	c := st.cursor()
	for {
		n, ok := c.next()
		if !ok {
			return out
		}
		out = append(out, n)
	}
}

// Subscribe starts the schedule and calls onNext for each notification.
//
// At most one timer is registered per subscription: the next notification is
// computed only after the previous one was delivered, and its timer targets an
// absolute deadline so slow delivery does not accumulate drift.
//
// Returning an error from onNext stops the subscription with that error.
// Cancelling ctx or calling Cancel stops it with the cancellation cause.
// onNext must not call Cancel itself.
func (st *Stream) Subscribe(ctx context.Context, onNext func(Notification) error) *Subscription {
	s := &Subscription{
		clock:  st.clock,
		cur:    st.cursor(),
		onNext: onNext,
		start:  st.clock.Now(),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.scheduleLocked()
	s.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() { s.stop(context.Cause(ctx)) })
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			stop()
		} else {
			s.stopCtx = stop
			s.mu.Unlock()
		}
	}
	return s
}

// Run subscribes and blocks until the stream completes or is cancelled.
func (st *Stream) Run(ctx context.Context, onNext func(Notification) error) error {
	s := st.Subscribe(ctx, onNext)
	<-s.Done()
	return s.Err()
}

// Subscription is one running pass over a Stream.
type Subscription struct {
	clock  clock.Clock
	cur    cursor
	onNext func(Notification) error
	start  time.Time

	deliverMu sync.Mutex

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
	err     error
	done    chan struct{}
	stopCtx func() bool
}

// Done is closed once the stream completed, failed or was cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns nil after normal completion, the onNext error, or the
// cancellation cause.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Started returns the clock time at which the schedule began.
func (s *Subscription) Started() time.Time { return s.start }

// Cancel releases the pending timer. Once Cancel returns no further
// notification is delivered.
func (s *Subscription) Cancel() {
	s.stop(context.Canceled)
	// wait out a delivery that was already in flight
	s.deliverMu.Lock()
	s.deliverMu.Unlock()
}

func (s *Subscription) stop(err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.err = err
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	stopCtx := s.stopCtx
	s.stopCtx = nil
	close(s.done)
	s.mu.Unlock()

	if stopCtx != nil {
		stopCtx()
	}
}

func (s *Subscription) scheduleLocked() {
	n, ok := s.cur.next()
	if !ok {
		s.stopped = true
		close(s.done)
		if s.stopCtx != nil {
			s.stopCtx()
			s.stopCtx = nil
		}
		return
	}
	wait := s.start.Add(n.At).Sub(s.clock.Now())
	s.timer = s.clock.AfterFunc(wait, func() { s.fire(n) })
}

func (s *Subscription) fire(n Notification) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	n.At = s.clock.Now().Sub(s.start)
	if err := s.onNext(n); err != nil {
		s.stop(err)
		return
	}

	s.mu.Lock()
	if !s.stopped {
		s.scheduleLocked()
	}
	s.mu.Unlock()
}
