package store

import (
	"strings"
	"testing"

	"github.com/zulandar/mailroom/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Thread{},
		&models.BlockEntry{},
		&models.ThreadLog{},
		&models.Snippet{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

func TestCreateThread_AndLookup(t *testing.T) {
	db := openTestDB(t)

	thread, err := CreateThread(db, "chan-1", "user-1", "alice#1234")
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	if thread.Status != models.ThreadOpen {
		t.Errorf("Status = %q, want %q", thread.Status, models.ThreadOpen)
	}

	got, err := OpenThreadByUser(db, "user-1")
	if err != nil {
		t.Fatalf("OpenThreadByUser() error = %v", err)
	}
	if got == nil || got.ChannelID != "chan-1" {
		t.Errorf("OpenThreadByUser() = %+v, want channel chan-1", got)
	}

	byChan, err := ThreadByChannel(db, "chan-1")
	if err != nil {
		t.Fatalf("ThreadByChannel() error = %v", err)
	}
	if byChan == nil || byChan.UserID != "user-1" {
		t.Errorf("ThreadByChannel() = %+v, want user user-1", byChan)
	}
}

func TestOpenThreadByUser_NoThread(t *testing.T) {
	db := openTestDB(t)

	got, err := OpenThreadByUser(db, "user-1")
	if err != nil {
		t.Fatalf("OpenThreadByUser() error = %v", err)
	}
	if got != nil {
		t.Errorf("OpenThreadByUser() = %+v, want nil", got)
	}
}

func TestOpenThreadByUser_IgnoresClosed(t *testing.T) {
	db := openTestDB(t)

	if _, err := CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	if err := CloseThread(db, "chan-1"); err != nil {
		t.Fatal(err)
	}

	got, err := OpenThreadByUser(db, "user-1")
	if err != nil {
		t.Fatalf("OpenThreadByUser() error = %v", err)
	}
	if got != nil {
		t.Errorf("OpenThreadByUser() = %+v, want nil after close", got)
	}
}

func TestThreadByChannel_FindsClosed(t *testing.T) {
	db := openTestDB(t)

	if _, err := CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	if err := CloseThread(db, "chan-1"); err != nil {
		t.Fatal(err)
	}

	got, err := ThreadByChannel(db, "chan-1")
	if err != nil {
		t.Fatalf("ThreadByChannel() error = %v", err)
	}
	if got == nil {
		t.Fatal("ThreadByChannel() = nil, want closed thread")
	}
	if got.IsOpen() {
		t.Error("thread still open after CloseThread")
	}
	if got.ClosedAt == nil {
		t.Error("ClosedAt not set")
	}
}

func TestCloseThread_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if _, err := CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	if err := CloseThread(db, "chan-1"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := CloseThread(db, "chan-1"); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := CloseThread(db, "no-such-channel"); err != nil {
		t.Fatalf("close unknown channel: %v", err)
	}
}

func TestOpenThreads(t *testing.T) {
	db := openTestDB(t)

	if _, err := CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateThread(db, "chan-2", "user-2", "bob#5678"); err != nil {
		t.Fatal(err)
	}
	if err := CloseThread(db, "chan-1"); err != nil {
		t.Fatal(err)
	}

	open, err := OpenThreads(db)
	if err != nil {
		t.Fatalf("OpenThreads() error = %v", err)
	}
	if len(open) != 1 || open[0].ChannelID != "chan-2" {
		t.Errorf("OpenThreads() = %+v, want only chan-2", open)
	}
}

func TestCreateThread_Validation(t *testing.T) {
	db := openTestDB(t)

	if _, err := CreateThread(db, "", "user-1", "alice"); err == nil {
		t.Error("expected error for empty channelID")
	}
	if _, err := CreateThread(db, "chan-1", "", "alice"); err == nil {
		t.Error("expected error for empty userID")
	}
}

// ---------------------------------------------------------------------------
// Block list
// ---------------------------------------------------------------------------

func TestBlock_Unblock(t *testing.T) {
	db := openTestDB(t)

	blocked, err := IsBlocked(db, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("user blocked before Block")
	}

	if err := Block(db, "user-1"); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	blocked, err = IsBlocked(db, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if !blocked {
		t.Error("user not blocked after Block")
	}

	if err := Unblock(db, "user-1"); err != nil {
		t.Fatalf("Unblock() error = %v", err)
	}
	blocked, err = IsBlocked(db, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if blocked {
		t.Error("user still blocked after Unblock")
	}
}

func TestBlock_AlreadyBlocked(t *testing.T) {
	db := openTestDB(t)

	if err := Block(db, "user-1"); err != nil {
		t.Fatal(err)
	}
	if err := Block(db, "user-1"); err != nil {
		t.Errorf("second Block() error = %v, want nil", err)
	}
}

func TestUnblock_NotBlocked(t *testing.T) {
	db := openTestDB(t)

	if err := Unblock(db, "user-1"); err != nil {
		t.Errorf("Unblock() of absent user error = %v, want nil", err)
	}
}

// ---------------------------------------------------------------------------
// Logs
// ---------------------------------------------------------------------------

func TestNewLogFilename(t *testing.T) {
	db := openTestDB(t)

	name, err := NewLogFilename(db, "user-1")
	if err != nil {
		t.Fatalf("NewLogFilename() error = %v", err)
	}
	if !strings.HasSuffix(name, ".txt") {
		t.Errorf("filename %q missing .txt suffix", name)
	}

	count, err := LogCountByUser(db, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("LogCountByUser() = %d, want 1", count)
	}
}

func TestNewLogFilename_Unique(t *testing.T) {
	db := openTestDB(t)

	a, err := NewLogFilename(db, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewLogFilename(db, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two log filenames collide: %q", a)
	}
}

func TestLogsByUser(t *testing.T) {
	db := openTestDB(t)

	if _, err := NewLogFilename(db, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLogFilename(db, "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLogFilename(db, "user-2"); err != nil {
		t.Fatal(err)
	}

	logs, err := LogsByUser(db, "user-1")
	if err != nil {
		t.Fatalf("LogsByUser() error = %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("LogsByUser() returned %d entries, want 2", len(logs))
	}
	for _, l := range logs {
		if l.UserID != "user-1" {
			t.Errorf("log for wrong user: %+v", l)
		}
	}
}

// ---------------------------------------------------------------------------
// Snippets
// ---------------------------------------------------------------------------

func TestSnippet_Roundtrip(t *testing.T) {
	db := openTestDB(t)

	if err := AddSnippet(db, "Rules", "Please read the rules.", false); err != nil {
		t.Fatalf("AddSnippet() error = %v", err)
	}

	// Shortcuts are case-insensitive.
	got, err := Snippet(db, "RULES")
	if err != nil {
		t.Fatalf("Snippet() error = %v", err)
	}
	if got == nil || got.Text != "Please read the rules." {
		t.Errorf("Snippet() = %+v", got)
	}
	if got.Shortcut != "rules" {
		t.Errorf("Shortcut = %q, want lowercased %q", got.Shortcut, "rules")
	}
}

func TestSnippet_NotFound(t *testing.T) {
	db := openTestDB(t)

	got, err := Snippet(db, "nope")
	if err != nil {
		t.Fatalf("Snippet() error = %v", err)
	}
	if got != nil {
		t.Errorf("Snippet() = %+v, want nil", got)
	}
}

func TestAddSnippet_Duplicate(t *testing.T) {
	db := openTestDB(t)

	if err := AddSnippet(db, "hi", "Hello!", false); err != nil {
		t.Fatal(err)
	}
	if err := AddSnippet(db, "hi", "Hi again!", false); err == nil {
		t.Error("expected error adding duplicate shortcut")
	}
}

func TestDeleteSnippet(t *testing.T) {
	db := openTestDB(t)

	if err := AddSnippet(db, "hi", "Hello!", true); err != nil {
		t.Fatal(err)
	}
	if err := DeleteSnippet(db, "HI"); err != nil {
		t.Fatalf("DeleteSnippet() error = %v", err)
	}
	got, err := Snippet(db, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("snippet survived delete: %+v", got)
	}
}

func TestAllSnippets_Sorted(t *testing.T) {
	db := openTestDB(t)

	for _, s := range []string{"zeta", "alpha", "mid"} {
		if err := AddSnippet(db, s, "text", false); err != nil {
			t.Fatal(err)
		}
	}

	all, err := AllSnippets(db)
	if err != nil {
		t.Fatalf("AllSnippets() error = %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(all) != len(want) {
		t.Fatalf("AllSnippets() returned %d, want %d", len(all), len(want))
	}
	for i, s := range all {
		if s.Shortcut != want[i] {
			t.Errorf("AllSnippets()[%d] = %q, want %q", i, s.Shortcut, want[i])
		}
	}
}
