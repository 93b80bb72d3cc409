package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/mailroom/internal/store"
)

func TestNextCronDuration(t *testing.T) {
	d := nextCronDuration("0 4 * * *")
	if d <= 0 || d > 24*time.Hour {
		t.Errorf("nextCronDuration() = %v, want within one day", d)
	}
}

func TestNextCronDuration_Invalid(t *testing.T) {
	if d := nextCronDuration("not a cron"); d != 0 {
		t.Errorf("nextCronDuration(invalid) = %v, want 0", d)
	}
	if d := nextCronDuration("0 4 * *"); d != 0 {
		t.Errorf("nextCronDuration(four fields) = %v, want 0", d)
	}
}

func TestSweepOrphanedThreads(t *testing.T) {
	engine, mock, db := newTestEngine(t)

	if _, err := store.CreateThread(db, "chan-live", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateThread(db, "chan-gone", "user-2", "bob#5678"); err != nil {
		t.Fatal(err)
	}
	mock.ChannelMsgsErr = map[string]error{
		"chan-gone": &PlatformError{Code: 404, Message: "Unknown Channel"},
	}

	engine.sweepOrphanedThreads(context.Background())

	live, err := store.ThreadByChannel(db, "chan-live")
	if err != nil {
		t.Fatal(err)
	}
	if !live.IsOpen() {
		t.Error("live thread was closed by the janitor")
	}

	gone, err := store.ThreadByChannel(db, "chan-gone")
	if err != nil {
		t.Fatal(err)
	}
	if gone.IsOpen() {
		t.Error("orphaned thread still open after sweep")
	}
}

func TestSweepOrphanedThreads_TransientErrorIgnored(t *testing.T) {
	engine, mock, db := newTestEngine(t)

	if _, err := store.CreateThread(db, "chan-1", "user-1", "alice#1234"); err != nil {
		t.Fatal(err)
	}
	mock.ChannelMsgsErr = map[string]error{
		"chan-1": errors.New("rate limited"),
	}

	engine.sweepOrphanedThreads(context.Background())

	thread, err := store.ThreadByChannel(db, "chan-1")
	if err != nil {
		t.Fatal(err)
	}
	if !thread.IsOpen() {
		t.Error("thread closed on a transient probe error")
	}
}

func TestIsUnknownChannel(t *testing.T) {
	if !isUnknownChannel(&PlatformError{Code: 404, Message: "Unknown Channel"}) {
		t.Error("404 platform error not recognized")
	}
	if isUnknownChannel(&PlatformError{Code: 500, Message: "boom"}) {
		t.Error("500 misclassified as unknown channel")
	}
	if isUnknownChannel(errors.New("plain error")) {
		t.Error("plain error misclassified as unknown channel")
	}
}

func TestRunJanitor_DisabledReturns(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.cfg.Janitor.Enabled = false

	done := make(chan struct{})
	go func() {
		engine.RunJanitor(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunJanitor did not return when disabled")
	}
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.cfg.Janitor.Enabled = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.RunJanitor(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunJanitor did not stop on context cancel")
	}
}
