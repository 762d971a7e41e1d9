package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// WatchStore watches the schedule table file and reloads it when another
// process (usually the CLI) rewrites it while the daemon is running. The
// store directory is watched rather than the file itself because atomic
// saves replace the file via rename.
func (s *Scheduler) WatchStore(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.store.Path())
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()

		target := filepath.Base(s.store.Path())
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				// Coalesce the burst of events one save produces.
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			case <-timerC:
				timer = nil
				timerC = nil
				s.Reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Schedule table watcher error")
			}
		}
	}()

	log.Info().Str("path", s.store.Path()).Msg("Watching schedule table for external changes")
	return nil
}

// Reload replaces the in-memory table with the persisted one, keeping any
// entry currently mid-run: the dispatch loop's pending update would otherwise
// be lost to a concurrent CLI edit.
func (s *Scheduler) Reload() {
	workflows, err := s.store.Load()
	if err != nil {
		log.Error().Err(err).Msg("Ignoring external table change, file unreadable")
		return
	}

	now := time.Now().UTC()

	s.mu.Lock()
	fresh := make(map[string]*Workflow, len(workflows))
	for _, w := range workflows {
		if current, ok := s.table[w.ID]; ok && current.Status == StatusRunning {
			fresh[w.ID] = current
			continue
		}
		normalizeLoaded(w, now)
		fresh[w.ID] = w
	}
	for id, current := range s.table {
		if _, ok := fresh[id]; !ok && current.Status == StatusRunning {
			fresh[id] = current
		}
	}
	count := len(fresh)
	s.table = fresh
	s.mu.Unlock()

	log.Info().Int("count", count).Msg("Schedule table reloaded from disk")
	s.publish(Event{Kind: EventReloaded, At: now})
}
