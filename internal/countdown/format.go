package countdown

import "strconv"

// FormatRemaining renders seconds in unit, truncating: 119 seconds in
// minutes is "1 minute". Only an exact 1 takes the singular label.
func FormatRemaining(seconds int64, unit Unit) string {
	v := seconds / unit.Seconds()
	singular, plural := unit.Labels()
	label := plural
	if v == 1 {
		label = singular
	}
	return strconv.FormatInt(v, 10) + " " + label
}

func remainingText(seconds int64, unit Unit) string {
	return FormatRemaining(seconds, unit) + " remaining..."
}
