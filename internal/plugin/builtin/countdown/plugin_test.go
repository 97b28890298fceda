package countdown

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"countdownbot/internal/clock"
	"countdownbot/internal/config"
	core "countdownbot/internal/countdown"
	"countdownbot/internal/eventbus"
	"countdownbot/internal/plugin"
	"countdownbot/internal/storage"
	kit "countdownbot/internal/transport"
	logx "countdownbot/pkg/logx"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.out)}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.out))
	for _, s := range f.out {
		out = append(out, s.text)
	}
	return out
}

type harness struct {
	p      *Plugin
	v      *clock.Virtual
	snd    *fakeSender
	store  storage.Store
	events <-chan eventbus.Event
	cfg    *config.Config
}

func newHarness(t *testing.T, raw string) *harness {
	t.Helper()
	h := &harness{
		v:   clock.NewVirtual(epoch),
		snd: &fakeSender{},
		cfg: &config.Config{Storage: &config.StorageConfig{Driver: "file", AuditRetention: "1h"}},
	}
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	h.store = st

	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	t.Cleanup(unsub)
	h.events = events

	h.p = New(WithClock(h.v))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	deps := plugin.Deps{
		Logger:  logx.Nop(),
		Adapter: h.snd,
		Bus:     bus,
		Store:   st,
		Config:  func() *config.Config { return h.cfg },
	}
	if err := h.p.Init(ctx, deps); err != nil {
		t.Fatal(err)
	}
	if raw != "" {
		if err := h.p.OnConfigChange(ctx, json.RawMessage(raw)); err != nil {
			t.Fatalf("OnConfigChange: %v", err)
		}
	}
	if err := h.p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.p.Stop(context.Background()) })
	return h
}

var chat = kit.ChatTarget{ChatID: -100, ThreadID: 3}

func (h *harness) run(t *testing.T, route, args string) {
	t.Helper()
	for _, c := range h.p.Commands() {
		if c.Route != route {
			continue
		}
		req := &plugin.Request{
			Chat:         chat,
			FromID:       42,
			FromUsername: "alice",
			Command:      route,
			Args:         strings.Fields(args),
			Adapter:      h.snd,
			Logger:       logx.Nop(),
		}
		if err := c.Handle(context.Background(), req); err != nil {
			t.Fatalf("%s %q: %v", route, args, err)
		}
		return
	}
	t.Fatalf("no command %q", route)
}

func (h *harness) waitEvent(t *testing.T, typ string) eventbus.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("event %q not published", typ)
		}
	}
}

func (h *harness) actions(t *testing.T) []string {
	t.Helper()
	entries, err := h.store.ListAudit(context.Background(), storage.AuditFilter{ChatID: chat.ChatID})
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		if e.Plugin != "countdown" || e.ActorID != 42 || e.ThreadID != chat.ThreadID {
			t.Fatalf("unexpected audit entry %+v", e)
		}
		out = append(out, e.Action)
	}
	return out
}

func TestCountdownRelaysToChat(t *testing.T) {
	h := newHarness(t, "")
	h.run(t, "countdown", "-d 3 -i 1 -f Go go go")
	h.waitEvent(t, EventStarted)

	h.v.Advance(time.Minute)
	h.waitEvent(t, EventFinished)

	want := []string{"3 seconds remaining...", "2 seconds remaining...", "1 second remaining...", "Go go go"}
	if got := h.snd.texts(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("sent %q, want %q", got, want)
	}
	for _, s := range h.snd.out {
		if s.to != chat {
			t.Fatalf("sent to %+v, want %+v", s.to, chat)
		}
	}
	if got := h.actions(t); strings.Join(got, ",") != AuditStart+","+AuditFinish {
		t.Fatalf("audit = %v", got)
	}
	if rs := h.p.active(chat); len(rs) != 0 {
		t.Fatalf("finished run still tracked: %d", len(rs))
	}
}

func TestCountdownSkipsBlankEvents(t *testing.T) {
	h := newHarness(t, "")
	h.run(t, "countdown", "-d 2 -i 5 -e 1s")
	h.v.Advance(time.Minute)
	h.waitEvent(t, EventFinished)
	for _, s := range h.snd.texts() {
		if strings.TrimSpace(s) == "" {
			t.Fatalf("blank message relayed: %q", h.snd.texts())
		}
	}
}

func TestCountdownUsageReply(t *testing.T) {
	h := newHarness(t, "")
	for _, args := range []string{"-d 3", "--help", "-d 3 -i 1 stray"} {
		h.snd.out = nil
		h.run(t, "countdown", args)
		h.v.Advance(0)
		got := h.snd.texts()
		if len(got) != 1 || !strings.HasPrefix(got[0], core.UsageHeader) {
			t.Fatalf("%q: sent %q, want usage", args, got)
		}
	}
	if rs := h.p.active(chat); len(rs) != 0 {
		t.Fatalf("usage reply tracked as run")
	}
}

func TestCountdownLimitsListAndStop(t *testing.T) {
	h := newHarness(t, `{"max_duration":"1m","max_per_chat":1}`)

	h.run(t, "countdown", "-d 2m -i 1m")
	h.run(t, "countdown", "-d 30 -i 10")
	h.run(t, "countdown", "-d 20 -i 10")
	h.run(t, "countdown list", "")
	h.run(t, "countdown stop", "")
	h.waitEvent(t, EventCancelled)
	h.run(t, "countdown stop", "")

	got := h.snd.texts()
	if len(got) != 5 {
		t.Fatalf("sent %q", got)
	}
	if !strings.HasPrefix(got[0], "countdown too long") {
		t.Fatalf("over-limit reply = %q", got[0])
	}
	if !strings.Contains(got[1], "already running") {
		t.Fatalf("per-chat limit reply = %q", got[1])
	}
	if !strings.Contains(got[2], "30 seconds left") || !strings.Contains(got[2], "@alice") {
		t.Fatalf("list reply = %q", got[2])
	}
	if got[3] != "countdown stopped" || got[4] != "no countdown running" {
		t.Fatalf("stop replies = %q", got[3:])
	}

	// the cancelled run never speaks again
	h.v.Advance(time.Minute)
	if n := len(h.snd.texts()); n != 5 {
		t.Fatalf("messages after stop: %q", h.snd.texts()[5:])
	}
	if got := h.actions(t); strings.Join(got, ",") != AuditStart+","+AuditCancel {
		t.Fatalf("audit = %v", got)
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t, "")
	h.run(t, "countdown", "-d 1 -i 1")
	h.v.Advance(time.Minute)
	h.waitEvent(t, EventFinished)
	h.snd.out = nil

	h.run(t, "countdown history", "")
	got := h.snd.texts()
	if len(got) != 1 || !strings.Contains(got[0], "2024-01-01 12:00:00") || !strings.Contains(got[0], "@alice") {
		t.Fatalf("history = %q", got)
	}
	h.snd.out = nil
	h.run(t, "countdown history", "zero")
	if got := h.snd.texts(); len(got) != 1 || !strings.HasPrefix(got[0], "usage:") {
		t.Fatalf("bad arg reply = %q", got)
	}
}

func TestPruneAudit(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	for _, at := range []time.Time{epoch.Add(-2 * time.Hour), epoch.Add(-time.Minute)} {
		if err := h.store.AppendAudit(ctx, storage.AuditEntry{At: at, ChatID: chat.ChatID, Plugin: "countdown", Action: AuditStart}); err != nil {
			t.Fatal(err)
		}
	}
	h.run(t, "countdown prune", "")
	if got := h.snd.texts(); len(got) != 1 || got[0] != "pruned 1 audit entries" {
		t.Fatalf("prune reply = %q", got)
	}

	h.cfg = &config.Config{}
	n, err := h.p.pruneAudit(ctx)
	if err != nil || n != 0 {
		t.Fatalf("prune without retention = %d, %v", n, err)
	}
}

func TestValidateConfig(t *testing.T) {
	p := New()
	ctx := context.Background()
	for _, raw := range []string{``, `{}`, `{"max_duration":"2h","max_per_chat":5,"rate_per_sec":1,"audit_prune":"0 3 * * *"}`} {
		if err := p.ValidateConfig(ctx, json.RawMessage(raw)); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
	}
	for _, raw := range []string{`{"max_duration":"-1s"}`, `{"max_duration":"soon"}`, `{"max_per_chat":-1}`, `{"audit_prune":"whenever"}`, `{"bogus":1}`} {
		if err := p.ValidateConfig(ctx, json.RawMessage(raw)); err == nil {
			t.Fatalf("%s accepted", raw)
		}
	}
}
