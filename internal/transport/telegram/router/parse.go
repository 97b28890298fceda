package router

import (
	"strings"

	"github.com/google/uuid"
)

func newReqID() string {
	return uuid.NewString()[:8]
}

// parseCommandText splits a chat message into the command word and its
// argument tokens. The word loses its prefix and any "@botname" suffix.
// ok is false when text does not start with one of prefixes.
func parseCommandText(text string, prefixes []string) (word string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	prefix := ""
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			prefix = p
			break
		}
	}
	if prefix == "" {
		return "", nil, false
	}

	rest := strings.TrimPrefix(text, prefix)
	// "/ countdown" is not a command
	if rest == "" || strings.TrimLeft(rest, " \t\r\n") != rest {
		return "", nil, false
	}
	parts := tokenizeCommandLine(rest)
	if len(parts) == 0 {
		return "", nil, false
	}
	word = parts[0]
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

// tokenizeCommandLine splits command text on whitespace while keeping quoted
// runs together:
//
//	countdown -d 5m -i 1m -f "All done"
//
// A quote only opens at the start of a token, so apostrophes inside words
// ("it's") stay literal. An unterminated quote falls back to plain fields.
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out    []string
		buf    strings.Builder
		inQ    bool
		qChar  byte
		quoted bool
	)
	flush := func() {
		if buf.Len() > 0 || quoted {
			out = append(out, buf.String())
			buf.Reset()
		}
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inQ {
			switch {
			case ch == '\\' && i+1 < len(s) && s[i+1] == qChar:
				buf.WriteByte(qChar)
				i++
			case ch == qChar:
				inQ = false
			default:
				buf.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case '"', '\'':
			if buf.Len() == 0 && !quoted {
				inQ, qChar, quoted = true, ch, true
				continue
			}
			buf.WriteByte(ch)
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	if inQ {
		return strings.Fields(s)
	}
	flush()
	return out
}
