package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/callrecon/internal/call"
)

// DefaultDebounce coalesces bursts of file events into one change signal.
const DefaultDebounce = 100 * time.Millisecond

// FileSource reads row snapshots from a JSON file that another process
// rewrites whenever the view changes.
//
// The containing directory is watched with fsnotify so atomic
// rename-into-place writes are seen. If the watcher cannot be created the
// source still works; Changes never fires and the monitor's fallback poll
// carries the load.
type FileSource struct {
	path     string
	debounce time.Duration

	watcher *fsnotify.Watcher
	changes chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithDebounce sets the quiet period before a change is signalled.
func WithDebounce(d time.Duration) FileOption {
	return func(s *FileSource) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// NewFileSource creates a source for path and starts watching it.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	s := &FileSource{
		path:     abs,
		debounce: DefaultDebounce,
		changes:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.watcher = initWatcher(filepath.Dir(abs))
	if s.watcher != nil {
		s.wg.Add(1)
		go s.watch()
	}
	return s, nil
}

// initWatcher creates a watcher on dir. Returns nil on failure.
func initWatcher(dir string) *fsnotify.Watcher {
	if _, err := os.Stat(dir); err != nil {
		slog.Warn("source directory unavailable, polling only", "dir", dir, "error", err)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify: failed to create watcher, polling only", "error", err)
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		slog.Warn("fsnotify: failed to watch directory, polling only", "dir", dir, "error", err)
		return nil
	}

	return watcher
}

func (s *FileSource) watch() {
	defer s.wg.Done()

	timer := newDebounceTimer()
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			resetDebounceTimer(timer, s.debounce)

		case <-timer.C:
			signal(s.changes)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("fsnotify: watcher error", "path", s.path, "error", err)
		}
	}
}

func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

func resetDebounceTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// Path returns the absolute snapshot path.
func (s *FileSource) Path() string {
	return s.path
}

// Rows reads and decodes the current snapshot. A missing file is an empty
// view.
func (s *FileSource) Rows(ctx context.Context) ([]call.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// Changes implements Notifier.
func (s *FileSource) Changes() <-chan struct{} {
	return s.changes
}

// Close stops the watcher. It is safe to call more than once.
func (s *FileSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return err
}
