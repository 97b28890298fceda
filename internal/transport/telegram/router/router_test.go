package router

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	kit "countdownbot/internal/transport"
	logx "countdownbot/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeSender struct {
	sent chan sentMsg
	menu chan []kit.BotCommand
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan sentMsg, 32), menu: make(chan []kit.BotCommand, 4)}
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sent <- sentMsg{to: to, text: text, opt: opt}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: 1}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.menu <- cmds
	return nil
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "countdown -d 5m  -i 1m", want: []string{"countdown", "-d", "5m", "-i", "1m"}},
		{in: `countdown -f "All done" -d 1m`, want: []string{"countdown", "-f", "All done", "-d", "1m"}},
		{in: `x 'single quoted' ""`, want: []string{"x", "single quoted", ""}},
		{in: `-e 5s it's time`, want: []string{"-e", "5s", "it's", "time"}},
		{in: `say "a \"b\" c"`, want: []string{"say", `a "b" c`}},
		{in: `broken "quote here`, want: []string{"broken", `"quote`, "here"}},
		{in: "multi\nline\ttabs", want: []string{"multi", "line", "tabs"}},
	}
	for _, tt := range tests {
		if got := tokenizeCommandLine(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("tokenizeCommandLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCommandText(t *testing.T) {
	t.Parallel()
	prefixes := []string{"/", "!"}
	tests := []struct {
		in   string
		word string
		args []string
		ok   bool
	}{
		{in: "/countdown -d 5m", word: "countdown", args: []string{"-d", "5m"}, ok: true},
		{in: "  !Countdown@MyBot now ", word: "countdown", args: []string{"now"}, ok: true},
		{in: "/help", word: "help", args: []string{}, ok: true},
		{in: "hello there", ok: false},
		{in: "/ countdown", ok: false},
		{in: "/", ok: false},
		{in: "/@bot", ok: false},
		{in: "#countdown", ok: false},
	}
	for _, tt := range tests {
		word, args, ok := parseCommandText(tt.in, prefixes)
		if ok != tt.ok {
			t.Fatalf("parseCommandText(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
		if !ok {
			continue
		}
		if word != tt.word || !reflect.DeepEqual(args, tt.args) {
			t.Fatalf("parseCommandText(%q) = %q %q, want %q %q", tt.in, word, args, tt.word, tt.args)
		}
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"countdown stop":        "countdown_stop",
		"Count-Down":            "count_down",
		"a--b__c":               "a_b_c",
		"9lives":                "cmd_9lives",
		"!!!":                   "",
		strings.Repeat("x", 40): strings.Repeat("x", 32),
	}
	for in, want := range tests {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitizeTelegramCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMenuCommands(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *Request) error { return nil }
	root := newRoot()
	cmds := []Command{
		{Route: "countdown", Description: "start a countdown", Handle: noop},
		{Route: "countdown stop", Description: "stop countdowns", Handle: noop},
		{Route: "countdown prune", Description: "prune audit", Access: AccessOwnerOnly, Handle: noop},
	}
	for _, c := range cmds {
		root.add(splitRoute(c.Route), c)
	}
	got := buildTelegramMenuCommands(root, cmds)
	want := []kit.BotCommand{
		{Command: "countdown", Description: "start a countdown"},
		{Command: "countdown_prune", Description: "🔒 prune audit"},
		{Command: "countdown_stop", Description: "stop countdowns"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("menu = %+v, want %+v", got, want)
	}
}

type routed struct {
	path []string
	args []string
	from int64
}

func startManager(t *testing.T, cmds []Command) (*fakeSender, chan<- kit.Update) {
	t.Helper()
	fs := newFakeSender()
	m := NewCommandManager(logx.Nop(), fs, Options{
		Prefixes:       []string{"/", "!"},
		Owners:         []int64{42},
		Workers:        2,
		CommandTimeout: time.Second,
	})
	m.SetRegistry(cmds)
	select {
	case <-fs.menu:
	case <-time.After(2 * time.Second):
		t.Fatal("menu was not published")
	}

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return fs, updates
}

func message(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1, ChatID: -100, ThreadID: 7, FromID: from, Text: text}}
}

func TestDispatchRoutesCommands(t *testing.T) {
	got := make(chan routed, 8)
	record := func(_ context.Context, req *Request) error {
		if req.Chat != (kit.ChatTarget{ChatID: -100, ThreadID: 7}) || req.ReqID == "" || req.Logger.IsZero() {
			t.Errorf("request not populated: %+v", req)
		}
		got <- routed{path: req.Path, args: req.Args, from: req.FromID}
		return nil
	}
	fs, updates := startManager(t, []Command{
		{Route: "countdown", Aliases: []string{"cd"}, Description: "start a countdown", Handle: record},
		{Route: "countdown stop", Description: "stop countdowns", Handle: record},
		{Route: "countdown prune", Access: AccessOwnerOnly, Handle: record},
		{Route: "boom", Handle: func(context.Context, *Request) error { panic("boom") }},
	})

	expect := func(path, args []string) {
		t.Helper()
		select {
		case r := <-got:
			if !reflect.DeepEqual(r.path, path) || !reflect.DeepEqual(r.args, args) {
				t.Fatalf("routed %q %q, want %q %q", r.path, r.args, path, args)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("command %q not routed", path)
		}
	}
	expectSent := func(contains string) sentMsg {
		t.Helper()
		select {
		case s := <-fs.sent:
			if !strings.Contains(s.text, contains) {
				t.Fatalf("sent %q, want it to contain %q", s.text, contains)
			}
			return s
		case <-time.After(2 * time.Second):
			t.Fatalf("nothing sent, want %q", contains)
		}
		return sentMsg{}
	}

	updates <- message(1, "!countdown -d 5m -i 1m -e 10s Wrap up")
	expect([]string{"countdown"}, []string{"-d", "5m", "-i", "1m", "-e", "10s", "Wrap", "up"})

	updates <- message(1, "/COUNTDOWN Stop")
	expect([]string{"countdown", "stop"}, []string{})

	updates <- message(1, "/countdown_stop")
	expect([]string{"countdown", "stop"}, []string{})

	updates <- message(1, "/cd@SomeBot -h")
	expect([]string{"countdown"}, []string{"-h"})

	updates <- message(1, "/countdown prune")
	expectSent("unauthorized")

	updates <- message(42, "/countdown prune")
	expect([]string{"countdown", "prune"}, []string{})

	// panics are recovered and the pool keeps serving
	updates <- message(1, "/boom")
	updates <- message(1, "/unknown")
	updates <- message(1, "just chatting")
	updates <- message(1, "/help countdown")
	s := expectSent("/countdown stop")
	if s.opt == nil || s.opt.ParseMode != "HTML" {
		t.Fatalf("help opts = %+v", s.opt)
	}

	select {
	case r := <-got:
		t.Fatalf("unexpected route %+v", r)
	case s := <-fs.sent:
		t.Fatalf("unexpected message %q", s.text)
	default:
	}
}

func TestHelpText(t *testing.T) {
	t.Parallel()
	noop := func(context.Context, *Request) error { return nil }
	m := NewCommandManager(logx.Nop(), nil, Options{})
	m.SetRegistry([]Command{
		{Route: "countdown", Description: "start a countdown", Usage: "!countdown -d <duration> -i <interval>", Handle: noop},
		{Route: "countdown stop", Description: "stop countdowns", Handle: noop},
		{Route: "admin reload", Access: AccessOwnerOnly, Handle: noop},
	})

	top := m.helpText(nil)
	for _, want := range []string{"<code>/countdown</code> - start a countdown", "<code>/help</code>", "🔒 <code>/admin</code>"} {
		if !strings.Contains(top, want) {
			t.Fatalf("top help missing %q:\n%s", want, top)
		}
	}
	if strings.Index(top, "<code>/admin</code>") < strings.Index(top, "<code>/help</code>") {
		t.Fatalf("owner-only commands should be listed last:\n%s", top)
	}

	node := m.helpText([]string{"countdown"})
	for _, want := range []string{"&lt;duration&gt;", "/countdown stop", "<b>Subcommands</b>"} {
		if !strings.Contains(node, want) {
			t.Fatalf("node help missing %q:\n%s", want, node)
		}
	}
	if got := m.helpText([]string{"nope"}); !strings.Contains(got, "Unknown command") {
		t.Fatalf("unknown help = %q", got)
	}
}
