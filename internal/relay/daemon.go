package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/zulandar/mailroom/internal/attachments"
	"github.com/zulandar/mailroom/internal/config"
	"github.com/zulandar/mailroom/internal/queue"
	"gorm.io/gorm"
)

// PlatformAdapter is an Adapter with a managed connection lifecycle.
type PlatformAdapter interface {
	Adapter

	// Connect establishes the platform connection.
	Connect(ctx context.Context) error

	// Listen returns the inbound event channel. The channel is closed when
	// the adapter is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Event, error)

	// Close gracefully shuts down the connection.
	Close() error
}

// Daemon is the main relay process. It connects the platform adapter,
// builds the engine and router, and pumps inbound events until cancelled.
type Daemon struct {
	db      *gorm.DB
	cfg     *config.Config
	adapter PlatformAdapter
	files   attachments.Store
	out     io.Writer
}

// DaemonOpts holds parameters for creating a Daemon.
type DaemonOpts struct {
	DB      *gorm.DB
	Config  *config.Config
	Adapter PlatformAdapter
	Files   attachments.Store
	Out     io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("relay: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: adapter is required")
	}
	if opts.Files == nil {
		return nil, fmt.Errorf("relay: attachment store is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		db:      opts.DB,
		cfg:     opts.Config,
		adapter: opts.Adapter,
		files:   opts.Files,
		out:     out,
	}, nil
}

// Run starts the relay daemon and blocks until the context is cancelled.
// On shutdown it waits for in-flight attachment patches and closes the
// adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Mailroom connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("relay: connect: %w", err)
	}

	manager, err := NewThreadManager(ThreadManagerOpts{
		DB:      d.db,
		Adapter: d.adapter,
		Queue:   queue.New(ctx),
	})
	if err != nil {
		d.adapter.Close()
		return err
	}

	engine, err := NewEngine(EngineOpts{
		DB:      d.db,
		Config:  d.cfg,
		Adapter: d.adapter,
		Manager: manager,
		Files:   d.files,
		Out:     d.out,
	})
	if err != nil {
		d.adapter.Close()
		return err
	}

	router, err := NewRouter(RouterOpts{
		Engine: engine,
		Config: d.cfg,
		Out:    d.out,
	})
	if err != nil {
		d.adapter.Close()
		return err
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("relay: listen: %w", err)
	}

	go engine.RunJanitor(ctx)

	fmt.Fprintf(d.out, "Mailroom online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Mailroom shutting down...\n")
			engine.Flush()
			if err := d.adapter.Close(); err != nil {
				log.Printf("relay: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Mailroom stopped\n")
			return nil

		case ev, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Mailroom inbound channel closed\n")
				engine.Flush()
				return nil
			}
			router.Handle(ctx, ev)
		}
	}
}
