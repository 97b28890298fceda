package countdown

import (
	"errors"
	"testing"
)

func TestParseTimeSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		seconds int64
		unit    Unit
	}{
		{raw: "45s", seconds: 45, unit: UnitSecond},
		{raw: "2m", seconds: 120, unit: UnitMinute},
		{raw: "2h", seconds: 7200, unit: UnitHour},
		{raw: "90", seconds: 90, unit: UnitSecond},
		{raw: "0s", seconds: 0, unit: UnitSecond},
		{raw: "007m", seconds: 420, unit: UnitMinute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimeSpec(tt.raw)
			if err != nil {
				t.Fatalf("ParseTimeSpec(%q) error: %v", tt.raw, err)
			}
			if got.Seconds != tt.seconds {
				t.Fatalf("Seconds = %d, want %d", got.Seconds, tt.seconds)
			}
			if got.Unit != tt.unit {
				t.Fatalf("Unit = %v, want %v", got.Unit, tt.unit)
			}
			if got.Raw != tt.raw {
				t.Fatalf("Raw = %q, want %q", got.Raw, tt.raw)
			}
		})
	}
}

func TestParseTimeSpecInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "5x", "m", "h", "-5s", "+5", " 5", "5 m", "1.5h", "5!", "5M", "99999999999999999999s", "9223372036854775807h"} {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTimeSpec(raw)
			if !errors.Is(err, ErrInvalidTimeSpec) {
				t.Fatalf("ParseTimeSpec(%q) error = %v, want ErrInvalidTimeSpec", raw, err)
			}
		})
	}
}

func TestUnitLabels(t *testing.T) {
	t.Parallel()
	one, many := UnitHour.Labels()
	if one != "hour" || many != "hours" {
		t.Fatalf("Labels = %q/%q, want hour/hours", one, many)
	}
	if UnitMinute.Seconds() != 60 || UnitHour.Seconds() != 3600 || UnitSecond.Seconds() != 1 {
		t.Fatal("unexpected unit multipliers")
	}
}
