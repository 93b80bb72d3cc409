package relay

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/zulandar/mailroom/internal/attachments"
	"github.com/zulandar/mailroom/internal/store"
	"gorm.io/gorm"
)

// mockPlatform adds a managed lifecycle around MockAdapter for daemon tests.
type mockPlatform struct {
	*MockAdapter
	inbound    chan Event
	connectErr error
	closed     bool
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		MockAdapter: NewMockAdapter(),
		inbound:     make(chan Event, 16),
	}
}

func (p *mockPlatform) Connect(ctx context.Context) error { return p.connectErr }
func (p *mockPlatform) Listen(ctx context.Context) (<-chan Event, error) {
	return p.inbound, nil
}
func (p *mockPlatform) Close() error {
	p.closed = true
	return nil
}

func newTestDaemon(t *testing.T, platform *mockPlatform) (*Daemon, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	files, err := attachments.NewDiskStore(t.TempDir(), "http://localhost:8890")
	if err != nil {
		t.Fatal(err)
	}

	d, err := NewDaemon(DaemonOpts{
		DB:      db,
		Config:  testCfg(),
		Adapter: platform,
		Files:   files,
		Out:     &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	return d, db
}

func TestNewDaemon_Validation(t *testing.T) {
	platform := newMockPlatform()
	db := openTestDB(t)
	files, err := attachments.NewDiskStore(t.TempDir(), "http://localhost:8890")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewDaemon(DaemonOpts{Config: testCfg(), Adapter: platform, Files: files}); err == nil {
		t.Error("expected error for nil DB")
	}
	if _, err := NewDaemon(DaemonOpts{DB: db, Adapter: platform, Files: files}); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewDaemon(DaemonOpts{DB: db, Config: testCfg(), Files: files}); err == nil {
		t.Error("expected error for nil adapter")
	}
	if _, err := NewDaemon(DaemonOpts{DB: db, Config: testCfg(), Adapter: platform}); err == nil {
		t.Error("expected error for nil attachment store")
	}
}

func TestDaemonRun_PumpsEvents(t *testing.T) {
	platform := newMockPlatform()
	d, db := newTestDaemon(t, platform)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	platform.inbound <- UserMessage{Author: testUser(), Content: "hello"}

	// Wait for the event to be processed into a thread.
	deadline := time.After(2 * time.Second)
	for {
		thread, err := store.OpenThreadByUser(db, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if thread != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("event was never processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
	if !platform.closed {
		t.Error("adapter not closed on shutdown")
	}
}

func TestDaemonRun_ConnectFailure(t *testing.T) {
	platform := newMockPlatform()
	platform.connectErr = context.DeadlineExceeded
	d, _ := newTestDaemon(t, platform)

	if err := d.Run(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestDaemonRun_InboundClosed(t *testing.T) {
	platform := newMockPlatform()
	d, _ := newTestDaemon(t, platform)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	close(platform.inbound)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return when inbound closed")
	}
}
