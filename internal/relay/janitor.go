package relay

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/mailroom/internal/store"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// RunJanitor periodically closes threads whose channel no longer exists,
// typically because a staff member deleted the channel by hand instead of
// using the close command. It blocks until the context is cancelled.
func (e *Engine) RunJanitor(ctx context.Context) {
	if !e.cfg.Janitor.Enabled {
		return
	}

	d := nextCronDuration(e.cfg.Janitor.Cron)
	if d == 0 {
		log.Printf("relay: janitor: bad cron expression %q, janitor disabled", e.cfg.Janitor.Cron)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.sweepOrphanedThreads(ctx)
			if d := nextCronDuration(e.cfg.Janitor.Cron); d > 0 {
				timer.Reset(d)
			} else {
				return
			}
		}
	}
}

// sweepOrphanedThreads closes open threads whose channels are gone. The
// probe is a zero-cost history read; only a platform "unknown channel"
// error marks the thread orphaned.
func (e *Engine) sweepOrphanedThreads(ctx context.Context) {
	threads, err := store.OpenThreads(e.db)
	if err != nil {
		log.Printf("relay: janitor: list open threads: %v", err)
		return
	}

	for _, thread := range threads {
		_, err := e.adapter.ChannelMessages(ctx, thread.ChannelID, 1)
		if err == nil || !isUnknownChannel(err) {
			continue
		}
		if err := e.manager.Close(ctx, thread.ChannelID); err != nil {
			log.Printf("relay: janitor: close orphaned thread %s: %v", thread.ChannelID, err)
			continue
		}
		log.Printf("relay: janitor: closed orphaned thread %s (user %s)", thread.ChannelID, thread.UserID)
	}
}

// isUnknownChannel reports whether err is a platform 404 for the channel.
func isUnknownChannel(err error) bool {
	var perr *PlatformError
	if !errors.As(err, &perr) {
		return false
	}
	return perr.Code == 404
}
