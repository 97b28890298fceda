package countdown

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseOptions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args string
		want Options
	}{
		{
			name: "required only",
			args: "-d 5m -i 1m",
			want: Options{Duration: "5m", Interval: "1m", Finish: []string{"Finished!"}},
		},
		{
			name: "long names and inline values",
			args: "--duration=5m --interval 30s",
			want: Options{Duration: "5m", Interval: "30s", Finish: []string{"Finished!"}},
		},
		{
			name: "variadic finish and events",
			args: "-d 5m -e 4m Wrap it up! -i 1m -f Time is up",
			want: Options{
				Duration: "5m",
				Interval: "1m",
				Finish:   []string{"Time", "is", "up"},
				Events:   []string{"4m", "Wrap", "it", "up!"},
			},
		},
		{
			name: "dash words stay in messages",
			args: "-d 10 -i 5 -e 5s count - -3",
			want: Options{
				Duration: "10",
				Interval: "5",
				Finish:   []string{"Finished!"},
				Events:   []string{"5s", "count", "-", "-3"},
			},
		},
		{
			name: "repeated variadic flag appends",
			args: "-d 10 -i 5 -e 2s a -e 4s b",
			want: Options{
				Duration: "10",
				Interval: "5",
				Finish:   []string{"Finished!"},
				Events:   []string{"2s", "a", "4s", "b"},
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOptions(strings.Fields(tt.args))
			if err != nil {
				t.Fatalf("ParseOptions(%q) error: %v", tt.args, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseOptions(%q) = %+v, want %+v", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseOptionsErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		args string
		want error
	}{
		{name: "nothing", args: "", want: ErrMissingRequiredOption},
		{name: "no interval", args: "-d 5m", want: ErrMissingRequiredOption},
		{name: "no duration", args: "-i 5m", want: ErrMissingRequiredOption},
		{name: "help", args: "-h", want: ErrHelpRequested},
		{name: "help wins", args: "-d 5m --help", want: ErrHelpRequested},
		{name: "stray word", args: "now -d 5m -i 1m", want: ErrUnexpectedArgument},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseOptions(strings.Fields(tt.args))
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParseOptions(%q) error = %v, want %v", tt.args, err, tt.want)
			}
		})
	}
}

func TestParseOptionsMalformed(t *testing.T) {
	t.Parallel()
	for _, args := range []string{"-d", "-d 5m -i 1m -x", "-d 5m -i 1m -e", "--bogus=1 -d 5m -i 1m"} {
		if _, err := ParseOptions(strings.Fields(args)); err == nil {
			t.Fatalf("ParseOptions(%q) expected error", args)
		}
	}
}

func TestUsage(t *testing.T) {
	t.Parallel()
	u := Usage()
	if !strings.HasPrefix(u, UsageHeader) {
		t.Fatalf("usage does not start with header:\n%s", u)
	}
	for _, want := range []string{"--duration", "--interval", "--finish", "--events", "--help", "(default Finished!)"} {
		if !strings.Contains(u, want) {
			t.Fatalf("usage missing %q:\n%s", want, u)
		}
	}
	if strings.Contains(u, "stringArray") || strings.Contains(u, "[]string") {
		t.Fatalf("usage leaks a type name:\n%s", u)
	}
}
