package countdown

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/spf13/pflag"
)

// UsageHeader is the first line of the usage text.
const UsageHeader = "!countdown -d <duration> -i <interval> [options]"

// DefaultFinish is the finish message used when -f is not given.
var DefaultFinish = []string{"Finished!"}

// Options holds the raw command-line values for one countdown invocation.
type Options struct {
	Duration string
	Interval string
	Finish   []string
	Events   []string
	Help     bool
}

func newFlagSet(o *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("countdown", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	fs.StringVarP(&o.Duration, "duration", "d", "", "The countdown `duration` (e.g., 1m, 2h, 45s)")
	fs.StringVarP(&o.Interval, "interval", "i", "", "The countdown `interval` (e.g., 2m, 1h, 5s)")
	fs.StringArrayVarP(&o.Finish, "finish", "f", append([]string(nil), DefaultFinish...), "The `words` to say when the countdown is over.")
	fs.StringArrayVarP(&o.Events, "events", "e", nil, "Event `tokens`: things to say after specific amounts of time have passed, in the format [time] [message]. For instance: -e 4m Wrap it up!")
	fs.BoolVarP(&o.Help, "help", "h", false, "Show this help.")
	return fs
}

// ParseOptions parses the tokens following the command name.
//
// -f and -e are variadic: they take every following token up to the next
// flag. Errors wrap ErrHelpRequested, ErrMissingRequiredOption,
// ErrUnexpectedArgument or the underlying pflag error.
func ParseOptions(args []string) (Options, error) {
	var o Options
	fs := newFlagSet(&o)
	if err := fs.Parse(expandVariadic(fs, args)); err != nil {
		return Options{}, err
	}
	if o.Help {
		return o, ErrHelpRequested
	}
	if rest := fs.Args(); len(rest) > 0 {
		return Options{}, fmt.Errorf("%w: %q", ErrUnexpectedArgument, strings.Join(rest, " "))
	}
	for _, name := range []string{"duration", "interval"} {
		if !fs.Changed(name) {
			return Options{}, fmt.Errorf("%w: --%s", ErrMissingRequiredOption, name)
		}
	}
	return o, nil
}

// Usage renders the help text for the countdown command.
func Usage() string {
	var o Options
	fs := newFlagSet(&o)
	fs.Lookup("finish").DefValue = strings.Join(DefaultFinish, " ")

	var b strings.Builder
	b.WriteString(UsageHeader)
	b.WriteString("\n\n")
	b.WriteString(fs.FlagUsages())
	return strings.TrimRight(b.String(), "\n")
}

// expandVariadic rewrites "-e 4m Wrap it up" into one "--events=<tok>"
// argument per token so pflag's string arrays keep every word in order.
func expandVariadic(fs *pflag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		name, inline, hasInline := variadicFlag(fs, a)
		if name == "" {
			out = append(out, a)
			continue
		}
		n := 0
		if hasInline {
			out = append(out, "--"+name+"="+inline)
			n++
		}
		for i+1 < len(args) && !looksLikeFlag(args[i+1]) {
			i++
			out = append(out, "--"+name+"="+args[i])
			n++
		}
		if n == 0 {
			// let pflag report the missing argument
			out = append(out, a)
		}
	}
	return out
}

func variadicFlag(fs *pflag.FlagSet, arg string) (name, inline string, hasInline bool) {
	var f *pflag.Flag
	switch {
	case strings.HasPrefix(arg, "--") && len(arg) > 2:
		key := arg[2:]
		if eq := strings.IndexByte(key, '='); eq >= 0 {
			key, inline, hasInline = key[:eq], key[eq+1:], true
		}
		f = fs.Lookup(key)
	case strings.HasPrefix(arg, "-") && len(arg) >= 2:
		f = fs.ShorthandLookup(arg[1:2])
		if len(arg) > 2 {
			inline, hasInline = strings.TrimPrefix(arg[2:], "="), true
		}
	}
	if f == nil || f.Value.Type() != "stringArray" {
		return "", "", false
	}
	return f.Name, inline, hasInline
}

// looksLikeFlag reports whether tok starts another option. Words such as
// "-" or "-5" stay message text.
func looksLikeFlag(tok string) bool {
	if tok == "--" {
		return true
	}
	body := strings.TrimPrefix(strings.TrimPrefix(tok, "-"), "-")
	if body == tok || body == "" {
		return false
	}
	return unicode.IsLetter([]rune(body)[0])
}
