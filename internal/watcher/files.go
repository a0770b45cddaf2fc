package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a fixed set of files and emits debounced batches.
type Watcher struct {
	opts      Options
	paths     map[string]struct{}
	dirs      []string
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a watcher for paths. The files need not exist yet, but their
// directories must.
func New(paths []string, opts Options) (*Watcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}

	w := &Watcher{
		opts:      opts,
		paths:     make(map[string]struct{}, len(paths)),
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		w.paths[abs] = struct{}{}
		dir := filepath.Dir(abs)
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("directory of %s is not accessible: %w", p, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		dirs[dir] = struct{}{}
	}
	for d := range dirs {
		w.dirs = append(w.dirs, d)
	}
	sort.Strings(w.dirs)

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable_using_polling", slog.String("error", err.Error()))
		} else {
			w.fsWatcher = fsw
		}
	}
	return w, nil
}

// Polling reports whether the watcher polls instead of using fsnotify.
func (w *Watcher) Polling() bool {
	return w.fsWatcher == nil
}

// Start watches until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w.fsWatcher != nil {
		for _, d := range w.dirs {
			if err := w.fsWatcher.Add(d); err != nil {
				return fmt.Errorf("watch %s: %w", d, err)
			}
		}
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.paths[path]; !ok {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (s fileState) same(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

func statFile(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	state := make(map[string]fileState, len(w.paths))
	for p := range w.paths {
		state[p] = statFile(p)
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			for p, prev := range state {
				cur := statFile(p)
				var op Operation
				switch {
				case cur.same(prev):
					continue
				case !prev.exists:
					op = OpCreate
				case !cur.exists:
					op = OpDelete
				default:
					op = OpModify
				}
				state[p] = cur
				w.debouncer.Add(FileEvent{Path: p, Operation: op, Timestamp: time.Now()})
			}
		}
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

// Events returns debounced batches. The channel closes on Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns watcher errors. It is never closed.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop ends watching and closes Events. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsWatcher != nil {
			err = w.fsWatcher.Close()
		}
		w.debouncer.Stop()
	})
	return err
}
