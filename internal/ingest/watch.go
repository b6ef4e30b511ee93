package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long Follow waits for writes to go quiet before a run.
const DefaultSettle = 2 * time.Second

// Follow watches root for event log changes and calls run once per burst of
// writes. Runs never overlap. It returns when ctx is done or run fails.
func (p *Pipeline) Follow(ctx context.Context, root string, settle time.Duration, run func(context.Context) error) error {
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingest: create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(root); err != nil {
		return fmt.Errorf("ingest: watch %s: %w", root, err)
	}

	log := p.log.WithField("root", root)
	log.WithField("event", "follow_loop_start").WithField("settle", settle).Info("watching for new events")

	timer := time.NewTimer(settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.WithField("event", "follow_loop_stop").WithField("reason", "context_done").Info("stopped watching")
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !IsEventLog(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithField("event", "follow_watch_error").WithError(err).Warn("watcher error")
		case <-timer.C:
			if err := run(ctx); err != nil {
				return err
			}
		}
	}
}
