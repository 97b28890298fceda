package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"countdownbot/internal/transport"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("plugin", "countdown"))
	log.Info("countdown started", Int64("duration_s", 300), Err(nil))
	log.Error("send failed", Err(errors.New("boom")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first["plugin"] != "countdown" || first["message"] != "countdown started" {
		t.Fatalf("unexpected entry: %v", first)
	}
	if _, ok := first["err"]; ok {
		t.Fatal("nil error should not be logged")
	}
	if c, _ := first["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q", c)
	}
	if !strings.Contains(lines[1], `"err":"boom"`) {
		t.Fatalf("error entry missing err: %s", lines[1])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with configured level")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Info("nothing happens", String("k", "v"))
	if log.With(String("a", "b")).IsZero() {
		t.Fatal("derived logger carries fields")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug, " WARNING ": LevelWarn, "error": LevelError, "bogus": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFormatTelegramEntry(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"relay failed","run":"abc","chat":42}`)
	got := formatTelegramEntry(line)
	want := "[WARN] relay failed\n- chat=42\n- run=abc"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := formatTelegramEntry([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-JSON entry = %q", got)
	}
}

type captureSender struct{ ch chan string }

func (c captureSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.ch <- text
	return transport.MessageRef{}, nil
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	sender := captureSender{ch: make(chan string, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ChatID: 7, MinLevel: "warn", RatePerSec: 10},
	}, sender)
	defer svc.Close()

	log.Info("not forwarded")
	log.Warn("forwarded")

	select {
	case msg := <-sender.ch:
		if !strings.HasPrefix(msg, "[WARN] forwarded") {
			t.Fatalf("got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning not forwarded")
	}
	select {
	case msg := <-sender.ch:
		t.Fatalf("unexpected extra message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
