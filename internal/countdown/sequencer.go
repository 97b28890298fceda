package countdown

import (
	"sort"
	"strings"
	"time"

	"countdownbot/internal/clock"
)

// CommandName is the command this package answers to (case-insensitive).
const CommandName = "countdown"

// Line is a command line as handed over by the host: the command word
// without its prefix and the raw argument tokens.
type Line struct {
	IsCommand bool
	Command   string
	Args      []string
}

// Sequencer builds notification streams on one clock.
type Sequencer struct {
	clock clock.Clock
}

// NewSequencer returns a Sequencer driven by clk (the wall clock if nil).
func NewSequencer(clk clock.Clock) *Sequencer {
	if clk == nil {
		clk = clock.Real()
	}
	return &Sequencer{clock: clk}
}

// EvaluateCommand is the host entry point. It returns nil when line is not a
// countdown command. Parse failures and help requests never surface as
// errors: the stream then holds the usage text as its only message.
func (q *Sequencer) EvaluateCommand(line Line) *Stream {
	if !line.IsCommand || !strings.EqualFold(line.Command, CommandName) {
		return nil
	}
	spec, err := ParseCommand(line.Args)
	if err != nil {
		return q.Just(Usage())
	}
	return q.Evaluate(spec)
}

// ParseCommand parses argument tokens into a Spec.
func ParseCommand(args []string) (Spec, error) {
	o, err := ParseOptions(args)
	if err != nil {
		return Spec{}, err
	}
	return NewSpec(o)
}

// Evaluate builds the merged countdown stream for spec.
func (q *Sequencer) Evaluate(spec Spec) *Stream {
	spec.Events = append([]Event(nil), spec.Events...)
	sort.SliceStable(spec.Events, func(i, j int) bool { return spec.Events[i].Offset < spec.Events[j].Offset })
	return &Stream{
		clock:  q.clock,
		cursor: func() cursor { return &countdownCursor{spec: spec} },
	}
}

// Just returns a stream that emits text once at logical time zero.
func (q *Sequencer) Just(text string) *Stream {
	return &Stream{
		clock:  q.clock,
		cursor: func() cursor { return &justCursor{text: text} },
	}
}

type justCursor struct {
	text string
	done bool
}

func (c *justCursor) next() (Notification, bool) {
	if c.done {
		return Notification{}, false
	}
	c.done = true
	return Notification{Text: c.text}, true
}

const (
	phaseStart = iota
	phaseBody
	phaseDone
)

// countdownCursor merges the periodic clock and the event clock.
//
// Periodic tick k (0-based) is due at (k+1)*Interval and kept while that is
// strictly below Duration. Event sample j is due at j+1 and kept while
// j < Duration; it fires every event whose offset equals j. Samples without
// an event emit nothing, so the cursor jumps straight to the next event
// offset. On equal times the periodic tick goes first.
type countdownCursor struct {
	spec  Spec
	phase int
	k     int64
	e     int
}

func (c *countdownCursor) next() (Notification, bool) {
	sp := &c.spec
	switch c.phase {
	case phaseStart:
		c.phase = phaseBody
		return Notification{At: 0, Text: remainingText(sp.Duration, sp.Unit)}, true

	case phaseBody:
		tp, okP := c.nextTick()
		te, okE := c.nextEvent()
		switch {
		case okP && (!okE || tp <= te):
			c.k++
			return Notification{At: seconds(tp), Text: remainingText(sp.Duration-tp, sp.Unit)}, true
		case okE:
			msg := sp.Events[c.e].Message
			c.e++
			return Notification{At: seconds(te), Text: msg}, true
		}
		c.phase = phaseDone
		return Notification{At: seconds(sp.Completion()), Text: sp.Finish}, true
	}
	return Notification{}, false
}

func (c *countdownCursor) nextTick() (int64, bool) {
	iv := c.spec.Interval
	if iv <= 0 {
		return 0, false
	}
	t := (c.k + 1) * iv
	return t, t < c.spec.Duration
}

func (c *countdownCursor) nextEvent() (int64, bool) {
	if c.e >= len(c.spec.Events) {
		return 0, false
	}
	off := c.spec.Events[c.e].Offset
	// events are sorted, so nothing after this one is in range either
	if off >= c.spec.Duration {
		return 0, false
	}
	return off + 1, true
}

func seconds(n int64) time.Duration { return time.Duration(n) * time.Second }
