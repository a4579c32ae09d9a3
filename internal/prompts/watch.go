package prompts

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the library whenever its file changes. The parent directory
// is watched rather than the file itself so that editors and config tools
// that replace the file by rename are still seen. A store built on the
// embedded defaults has nothing to watch.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchCancel != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	s.watchWg.Add(1)
	go s.watchLoop(watchCtx, watcher)
	return nil
}

// Close stops the watcher, if one is running.
func (s *Store) Close() error {
	s.watchMu.Lock()
	cancel := s.watchCancel
	s.watchCancel = nil
	s.watchMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.watchWg.Wait()
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.watchWg.Done()
	defer watcher.Close()

	target := filepath.Clean(s.path)

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if err := s.Reload(); err != nil {
				s.logger.Warn("prompt library reload failed, keeping previous", "error", err)
			} else {
				s.logger.Info("prompt library reloaded", "path", s.path)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("prompt library watch error", "error", err)
		}
	}
}
