package relay

import (
	"bytes"
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/zulandar/mailroom/internal/store"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*Router, *Engine, *MockAdapter, *gorm.DB) {
	t.Helper()
	engine, mock, db := newTestEngine(t)
	router, err := NewRouter(RouterOpts{
		Engine: engine,
		Config: engine.cfg,
		Out:    &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return router, engine, mock, db
}

func staffText(channelID, content string) StaffMessage {
	msg := staffMsg(channelID)
	msg.Content = content
	return msg
}

func TestHandle_UserMessageRouted(t *testing.T) {
	router, _, mock, _ := newTestRouter(t)

	router.Handle(context.Background(), UserMessage{Author: testUser(), Content: "hi"})

	if got := mock.CreatedChannels(); len(got) != 1 {
		t.Errorf("created %d channels, want 1", len(got))
	}
}

func TestHandleStaffMessage_NonStaffIgnored(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	msg := staffText("chan-1", "!reply hello")
	msg.Member.IsStaff = false
	router.Handle(context.Background(), msg)

	if got := mock.DMs(); len(got) != 0 {
		t.Errorf("non-staff command sent %d DMs", len(got))
	}
}

func TestHandleStaffMessage_ReplyCommand(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-1", "!reply we got you"))

	dms := mock.DMs()
	if len(dms) != 1 || !strings.Contains(dms[0].Content, "we got you") {
		t.Errorf("DMs = %+v", dms)
	}
}

func TestHandleStaffMessage_ShortAliases(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-1", "!r quick answer"))
	router.Handle(context.Background(), staffText("chan-1", "!ar anonymous answer"))

	dms := mock.DMs()
	if len(dms) != 2 {
		t.Fatalf("sent %d DMs, want 2", len(dms))
	}
	if !strings.Contains(dms[0].Content, "quick answer") {
		t.Errorf("first DM = %q", dms[0].Content)
	}
	if !strings.HasPrefix(dms[1].Content, "**Admin:**") {
		t.Errorf("anonreply DM = %q, want role-only author", dms[1].Content)
	}
}

func TestHandleStaffMessage_SnippetPrefixBeatsCommandPrefix(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddSnippet(db, "rules", "Please read the rules.", false); err != nil {
		t.Fatal(err)
	}

	// "!!rules" also parses as command "!rules"; the snippet must win.
	router.Handle(context.Background(), staffText("chan-1", "!!rules"))

	dms := mock.DMs()
	if len(dms) != 1 || !strings.Contains(dms[0].Content, "Please read the rules.") {
		t.Errorf("DMs = %+v, want snippet text", dms)
	}
}

func TestHandleStaffMessage_UnknownSnippetSilent(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-1", "!!nope"))

	if got := mock.DMs(); len(got) != 0 {
		t.Errorf("unknown snippet sent %d DMs", len(got))
	}
	if got := mock.SentTo("chan-1"); len(got) != 0 {
		t.Errorf("unknown snippet posted %d messages", len(got))
	}
}

func TestHandleStaffMessage_SnippetLifecycle(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	ctx := context.Background()
	router.Handle(ctx, staffText("chan-9", "!snippet hi Hello there!"))

	snippet, err := store.Snippet(db, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if snippet == nil || snippet.Text != "Hello there!" {
		t.Fatalf("snippet after create = %+v", snippet)
	}

	router.Handle(ctx, staffText("chan-9", "!es hi Hello again!"))
	snippet, err = store.Snippet(db, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if snippet == nil || snippet.Text != "Hello again!" {
		t.Errorf("snippet after edit = %+v", snippet)
	}

	router.Handle(ctx, staffText("chan-9", "!ds hi"))
	snippet, err = store.Snippet(db, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if snippet != nil {
		t.Errorf("snippet after delete = %+v", snippet)
	}

	responses := mock.SentTo("chan-9")
	if len(responses) != 3 {
		t.Errorf("got %d responses, want create/edit/delete confirmations", len(responses))
	}
}

func TestHandleStaffMessage_SnippetsList(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if err := store.AddSnippet(db, "hi", "Hello!", false); err != nil {
		t.Fatal(err)
	}
	if err := store.AddSnippet(db, "bye", "Goodbye!", false); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-9", "!snippets"))

	sent := mock.SentTo("chan-9")
	if len(sent) != 1 || !strings.Contains(sent[0].Content, "bye, hi") {
		t.Errorf("snippet list = %v", sent)
	}
}

func TestHandleStaffMessage_CloseCommand(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-1", "!close"))

	if got := mock.DeletedChannels(); len(got) != 1 {
		t.Errorf("deleted %d channels, want 1", len(got))
	}
}

func TestHandleStaffMessage_UnknownCommandIgnored(t *testing.T) {
	router, _, mock, _ := newTestRouter(t)

	router.Handle(context.Background(), staffText("chan-1", "!frobnicate now"))

	if got := mock.Sent(); len(got) != 0 {
		t.Errorf("unknown command produced %d messages", len(got))
	}
}

func TestHandleStaffMessage_AlwaysReply(t *testing.T) {
	router, engine, mock, db := newTestRouter(t)
	engine.cfg.AlwaysReply = true

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-1", "just answering directly"))

	dms := mock.DMs()
	if len(dms) != 1 || !strings.Contains(dms[0].Content, "just answering directly") {
		t.Errorf("DMs = %+v", dms)
	}
}

func TestHandleStaffMessage_NoAlwaysReplyBareMessageIgnored(t *testing.T) {
	router, _, mock, db := newTestRouter(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}

	router.Handle(context.Background(), staffText("chan-1", "internal discussion"))

	if got := mock.DMs(); len(got) != 0 {
		t.Errorf("bare staff chatter sent %d DMs", len(got))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantArgs []string
	}{
		{"!reply hello world", "reply", []string{"hello", "world"}},
		{"!CLOSE", "close", nil},
		{"!block <@123>", "block", []string{"<@123>"}},
		{"!", "", nil},
	}

	for _, tt := range tests {
		name, args := parseCommand(tt.input, "!")
		if name != tt.wantName {
			t.Errorf("parseCommand(%q) name = %q, want %q", tt.input, name, tt.wantName)
		}
		if len(args) != len(tt.wantArgs) {
			t.Errorf("parseCommand(%q) args = %v, want %v", tt.input, args, tt.wantArgs)
			continue
		}
		for i := range args {
			if args[i] != tt.wantArgs[i] {
				t.Errorf("parseCommand(%q) args = %v, want %v", tt.input, args, tt.wantArgs)
			}
		}
	}
}

func TestSplitSnippetArgs(t *testing.T) {
	shortcut, text := splitSnippetArgs([]string{"hi", "Hello", "there!"})
	if shortcut != "hi" || text != "Hello there!" {
		t.Errorf("splitSnippetArgs = %q, %q", shortcut, text)
	}

	shortcut, text = splitSnippetArgs(nil)
	if shortcut != "" || text != "" {
		t.Errorf("splitSnippetArgs(nil) = %q, %q", shortcut, text)
	}
}

func TestEventVariants(t *testing.T) {
	// The closed event set: each variant satisfies Event.
	events := []Event{UserMessage{}, UserMessageEdit{}, Mention{}, StaffMessage{}}
	kinds := make(map[reflect.Type]bool)
	for _, ev := range events {
		kinds[reflect.TypeOf(ev)] = true
	}
	if len(kinds) != 4 {
		t.Errorf("got %d distinct event kinds, want 4", len(kinds))
	}
}
