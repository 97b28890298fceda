package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("5 minutes remaining...", 0, ""); len(got) != 1 || got[0] != "5 minutes remaining..." {
		t.Fatalf("short text = %q", got)
	}

	long := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	got := splitTelegramText(long, 40, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 30) || got[1] != strings.Repeat("b", 30) {
		t.Fatalf("newline split = %q", got)
	}

	plain := strings.Repeat("x", 25)
	got = splitTelegramText(plain, 10, "")
	if len(got) != 3 || strings.Join(got, "") != plain {
		t.Fatalf("hard split = %q", got)
	}

	html := strings.Repeat("y", 8) + "<b>bold</b>"
	got = splitTelegramText(html, 10, "HTML")
	if got[0] != strings.Repeat("y", 8) || !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("html split = %q", got)
	}
}

func TestToUpdate(t *testing.T) {
	t.Parallel()

	if _, ok := toUpdate(nil); ok {
		t.Fatal("nil message should be ignored")
	}
	if _, ok := toUpdate(&tele.Message{Text: "x"}); ok {
		t.Fatal("message without chat should be ignored")
	}

	up, ok := toUpdate(&tele.Message{
		ID:       9,
		ThreadID: 3,
		Text:     "!countdown -d 1m -i 30s",
		Chat:     &tele.Chat{ID: -1001, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 77, Username: "alice"},
	})
	if !ok || up.Message == nil {
		t.Fatal("message dropped")
	}
	m := up.Message
	if m.ID != 9 || m.ChatID != -1001 || m.ThreadID != 3 || m.FromID != 77 || m.FromUsername != "alice" || !m.IsGroup {
		t.Fatalf("mapped = %+v", m)
	}

	up, _ = toUpdate(&tele.Message{Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate}})
	if up.Message.IsGroup || up.Message.FromID != 0 {
		t.Fatalf("private without sender = %+v", up.Message)
	}
}
