package relay

import (
	"context"
	"fmt"

	"github.com/zulandar/mailroom/internal/models"
	"github.com/zulandar/mailroom/internal/queue"
	"github.com/zulandar/mailroom/internal/store"
	"gorm.io/gorm"
)

// ThreadManager owns the user↔channel mapping for open threads. Lookups are
// direct store reads; creation goes through the serialization queue so that
// lookup-then-create never interleaves between two messages from the same
// new user.
type ThreadManager struct {
	db      *gorm.DB
	adapter Adapter
	queue   *queue.Queue
}

// ThreadManagerOpts holds parameters for creating a ThreadManager.
type ThreadManagerOpts struct {
	DB      *gorm.DB
	Adapter Adapter
	Queue   *queue.Queue
}

// NewThreadManager creates a ThreadManager.
func NewThreadManager(opts ThreadManagerOpts) (*ThreadManager, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("relay: thread manager: db is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("relay: thread manager: adapter is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("relay: thread manager: queue is required")
	}
	return &ThreadManager{db: opts.DB, adapter: opts.Adapter, queue: opts.Queue}, nil
}

// GetOrCreateForUser returns the user's open thread, creating one if needed.
// Creation runs as a serialized task that re-checks existence first: a task
// queued behind an equivalent one must observe the thread it created rather
// than create a second channel. On channel-create or store failure nothing
// is persisted and a *ThreadCreationError carrying the seed content is
// returned.
func (m *ThreadManager) GetOrCreateForUser(ctx context.Context, user User, seedContent string) (*models.Thread, bool, error) {
	// Fast path: an open thread already exists.
	if thread, err := store.OpenThreadByUser(m.db, user.ID); err != nil {
		return nil, false, &ThreadCreationError{User: user, Content: seedContent, Err: err}
	} else if thread != nil {
		return thread, false, nil
	}

	var (
		created *models.Thread
		wasNew  bool
	)
	done := m.queue.Enqueue(func(taskCtx context.Context) error {
		// Re-check inside the task: an earlier queued task may have
		// created the thread while this one waited.
		thread, err := store.OpenThreadByUser(m.db, user.ID)
		if err != nil {
			return err
		}
		if thread != nil {
			created = thread
			return nil
		}

		channelID, err := m.adapter.CreateChannel(taskCtx, ChannelName(user))
		if err != nil {
			return err
		}
		thread, err = store.CreateThread(m.db, channelID, user.ID, user.Tag())
		if err != nil {
			return err
		}
		created = thread
		wasNew = true
		return nil
	})

	if err := <-done; err != nil {
		return nil, false, &ThreadCreationError{User: user, Content: seedContent, Err: err}
	}
	return created, wasNew, nil
}

// GetByChannelID resolves the thread shown in a channel. Pure lookup, no
// side effects; returns nil if the channel is not a thread channel.
func (m *ThreadManager) GetByChannelID(ctx context.Context, channelID string) (*models.Thread, error) {
	return store.ThreadByChannel(m.db, channelID)
}

// Close marks the thread for the channel closed. Deleting the channel and
// archiving its transcript are the caller's responsibility, performed only
// after the close has been persisted. A second close is a no-op.
func (m *ThreadManager) Close(ctx context.Context, channelID string) error {
	return store.CloseThread(m.db, channelID)
}
