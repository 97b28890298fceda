package countdown

import (
	"fmt"
	"math"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Unit is the display unit implied by the trailing letter of a time spec.
type Unit int

const (
	UnitSecond Unit = iota
	UnitMinute
	UnitHour
)

func (u Unit) String() string {
	switch u {
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	default:
		return "second"
	}
}

// Seconds returns how many seconds one unit holds.
func (u Unit) Seconds() int64 {
	switch u {
	case UnitMinute:
		return 60
	case UnitHour:
		return 3600
	default:
		return 1
	}
}

// Labels returns the singular and plural English label.
func (u Unit) Labels() (singular, plural string) {
	s := u.String()
	return s, s + "s"
}

// TimeSpec is a parsed "<integer><unit?>" string such as "45s", "2m", "1h" or "90".
type TimeSpec struct {
	Raw     string
	Seconds int64
	Unit    Unit
}

const timeSpecFormat = "time spec must be in the format <int>[unit] where unit is s, m, h"

// ParseTimeSpec converts raw into total seconds and a display unit.
//
// A trailing h or m selects hours or minutes, a trailing s or no letter at all
// selects seconds. Any other trailing letter, an empty string or a prefix that
// is not a non-negative integer fails with ErrInvalidTimeSpec.
func ParseTimeSpec(raw string) (TimeSpec, error) {
	if raw == "" {
		return TimeSpec{}, fmt.Errorf("%w: empty (%s)", ErrInvalidTimeSpec, timeSpecFormat)
	}

	unit := UnitSecond
	amount := raw
	last, size := utf8.DecodeLastRuneInString(raw)
	if unicode.IsLetter(last) {
		switch last {
		case 'h':
			unit = UnitHour
		case 'm':
			unit = UnitMinute
		case 's':
			unit = UnitSecond
		default:
			return TimeSpec{}, fmt.Errorf("%w: unknown unit %q in %q (%s)", ErrInvalidTimeSpec, last, raw, timeSpecFormat)
		}
		amount = raw[:len(raw)-size]
	}

	n, err := parseAmount(amount)
	if err != nil {
		return TimeSpec{}, fmt.Errorf("%w: %q: %v (%s)", ErrInvalidTimeSpec, raw, err, timeSpecFormat)
	}
	mult := unit.Seconds()
	if n > math.MaxInt64/mult {
		return TimeSpec{}, fmt.Errorf("%w: %q overflows", ErrInvalidTimeSpec, raw)
	}
	return TimeSpec{Raw: raw, Seconds: n * mult, Unit: unit}, nil
}

// parseAmount accepts ASCII digits only: no sign, no spaces.
func parseAmount(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing amount")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("amount %q is not a non-negative integer", s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}
