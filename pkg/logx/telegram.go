package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"countdownbot/internal/transport"
)

const (
	telegramMaxText  = 3500
	telegramMaxField = 600
	telegramMaxStack = 900
)

type telegramItem struct {
	to  transport.ChatTarget
	msg string
}

// telegramSink is a zerolog LevelWriter that forwards entries at or above
// minLevel to a chat through a bounded queue. Entries over the rate limit or
// arriving on a full queue are dropped; logging never blocks on the network.
type telegramSink struct {
	mu       sync.Mutex
	sender   transport.Sender
	to       transport.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan telegramItem
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink(sender transport.Sender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		queue:    make(chan telegramItem, 256),
	}
}

func (t *telegramSink) setSender(s transport.Sender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *telegramSink) getSender() transport.Sender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sender
}

func (t *telegramSink) configure(to transport.ChatTarget, minLevel zerolog.Level, lim *rate.Limiter) {
	t.mu.Lock()
	t.to = to
	t.minLevel = minLevel
	t.limiter = lim
	t.mu.Unlock()

	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.cancel = cancel
		t.mu.Unlock()
		t.wg.Add(1)
		go t.run(ctx)
	})
}

func (t *telegramSink) close() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) run(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			if sender := t.getSender(); sender != nil {
				_, _ = sender.SendText(ctx, it.to, it.msg, &transport.SendOptions{DisablePreview: true, Silent: true})
			}
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, minLevel, lim, sender := t.to, t.minLevel, t.limiter, t.sender
	t.mu.Unlock()

	if to.ChatID == 0 || sender == nil || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	msg := formatTelegramEntry(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case t.queue <- telegramItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatTelegramEntry turns a zerolog JSON line into a short chat message:
// "[LEVEL] message" followed by one "- key=value" line per field.
func formatTelegramEntry(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), telegramMaxText)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "stack" {
			b.WriteString("\n- stack=\n")
			b.WriteString(truncate(fmt.Sprint(m[k]), telegramMaxStack))
			continue
		}
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), telegramMaxField))
	}
	return truncate(b.String(), telegramMaxText)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
