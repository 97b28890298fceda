package countdown

import (
	"regexp"
	"sort"
	"strings"
)

// Event is a one-off announcement at Offset seconds into the countdown.
type Event struct {
	Offset  int64
	Message string
}

var eventTimeToken = regexp.MustCompile(`^[0-9]+[smh]$`)

// ParseEvents groups a flat token list into events.
//
// A time token ("30s", "4m", "1h") opens a new event and every following
// non-time token is appended to its message. Tokens before the first time
// token have no event to attach to and are dropped. The result is sorted by
// offset; events sharing an offset keep their input order.
func ParseEvents(tokens []string) ([]Event, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	var (
		out     []Event
		pending *Event
		words   []string
	)
	flush := func() {
		if pending == nil {
			return
		}
		pending.Message = strings.Join(words, " ")
		out = append(out, *pending)
		pending = nil
		words = words[:0]
	}

	for _, tok := range tokens {
		if eventTimeToken.MatchString(tok) {
			ts, err := ParseTimeSpec(tok)
			if err != nil {
				return nil, err
			}
			flush()
			pending = &Event{Offset: ts.Seconds}
			continue
		}
		if pending != nil {
			words = append(words, tok)
		}
	}
	flush()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}
