package countdown

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// maxSeconds keeps the finish time (duration + 1s) representable as a time.Duration.
const maxSeconds = math.MaxInt64/int64(time.Second) - 1

// Spec is the validated, immutable description of one countdown.
type Spec struct {
	Duration int64 // seconds
	Interval int64 // seconds
	Unit     Unit  // display unit of Duration
	Events   []Event
	Finish   string
}

// NewSpec derives a Spec from parsed options.
func NewSpec(o Options) (Spec, error) {
	dur, err := parsePositive("duration", o.Duration)
	if err != nil {
		return Spec{}, err
	}
	iv, err := parsePositive("interval", o.Interval)
	if err != nil {
		return Spec{}, err
	}
	events, err := ParseEvents(o.Events)
	if err != nil {
		return Spec{}, fmt.Errorf("events: %w", err)
	}
	finish := strings.Join(o.Finish, " ")
	if len(o.Finish) == 0 {
		finish = strings.Join(DefaultFinish, " ")
	}
	return Spec{
		Duration: dur.Seconds,
		Interval: iv.Seconds,
		Unit:     dur.Unit,
		Events:   events,
		Finish:   finish,
	}, nil
}

func parsePositive(name, raw string) (TimeSpec, error) {
	ts, err := ParseTimeSpec(raw)
	if err != nil {
		return TimeSpec{}, fmt.Errorf("%s: %w", name, err)
	}
	if ts.Seconds <= 0 {
		return TimeSpec{}, fmt.Errorf("%s: %w: must be greater than zero", name, ErrInvalidTimeSpec)
	}
	if ts.Seconds > maxSeconds {
		return TimeSpec{}, fmt.Errorf("%s: %w: too large", name, ErrInvalidTimeSpec)
	}
	return ts, nil
}

// Completion is the logical time in seconds at which the finish message is
// emitted: the duration itself, or one second later when the event clock runs.
func (s Spec) Completion() int64 {
	if len(s.Events) > 0 {
		return s.Duration + 1
	}
	return s.Duration
}

// TotalDuration is Completion as a time.Duration.
func (s Spec) TotalDuration() time.Duration {
	return time.Duration(s.Completion()) * time.Second
}
