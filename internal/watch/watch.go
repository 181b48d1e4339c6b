// Package watch turns filesystem notifications about a repository into
// dirty marks and index refreshes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/gitmeta/internal/debounce"
)

const DefaultDelay = 350 * time.Millisecond

// Target is the repository being watched.
type Target interface {
	GitDir() string
	WorkingDirectory() string
	MarkDirty()
	RefreshIndex(ctx context.Context) error
}

type Change uint8

const (
	ChangeNone Change = iota
	ChangeRefs
	ChangeIndex
)

func (c Change) String() string {
	switch c {
	case ChangeRefs:
		return "refs"
	case ChangeIndex:
		return "index"
	default:
		return "none"
	}
}

type Watcher struct {
	target   Target
	fsw      *fsnotify.Watcher
	delay    time.Duration
	onChange func(Change)

	mu          sync.Mutex
	ctx         context.Context
	refsChanged *debounce.Debouncer
	indexDirty  *debounce.Debouncer
}

// New starts watching target. onChange, if set, runs after the debounced
// MarkDirty or RefreshIndex call.
func New(target Target, delay time.Duration, onChange func(Change)) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for _, path := range watchPaths(target.GitDir(), target.WorkingDirectory()) {
		slog.Debug("adding path to FS watcher", slog.String("path", path))
		if err := fsw.Add(path); err != nil {
			err := errors.Join(err, fsw.Close())
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
	}
	return &Watcher{target: target, fsw: fsw, delay: delay, onChange: onChange, ctx: context.Background()}, nil
}

// Run processes notifications until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	defer w.stopDebouncers()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnoreWatchPath(ev.Name) {
				continue
			}
			change := classify(w.target.GitDir(), w.target.WorkingDirectory(), ev.Name)
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
				slog.String("change", change.String()),
			)
			if ev.Op&fsnotify.Create != 0 {
				w.addIfDir(ev.Name)
			}
			w.schedule(change)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) Close() error {
	w.stopDebouncers()
	return w.fsw.Close()
}

func (w *Watcher) schedule(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch change {
	case ChangeRefs:
		debounce.Ensure(&w.refsChanged, w.delay, func() {
			w.target.MarkDirty()
			w.notify(ChangeRefs)
		}).Trigger()
	case ChangeIndex:
		debounce.Ensure(&w.indexDirty, w.delay, func() {
			if err := w.target.RefreshIndex(w.context()); err != nil {
				slog.Error("refresh index", slog.String("git_dir", w.target.GitDir()), slog.Any("error", err))
				return
			}
			w.notify(ChangeIndex)
		}).Trigger()
	}
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

func (w *Watcher) notify(change Change) {
	if w.onChange != nil {
		w.onChange(change)
	}
}

func (w *Watcher) stopDebouncers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range []*debounce.Debouncer{w.refsChanged, w.indexDirty} {
		if d != nil {
			d.Stop()
		}
	}
}

// addIfDir follows new ref namespaces, e.g. refs/remotes/<new remote>.
func (w *Watcher) addIfDir(path string) {
	if !isWithin(filepath.Join(w.target.GitDir(), "refs"), path) {
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if err := w.fsw.Add(path); err != nil {
			slog.Debug("watch new directory", slog.String("path", path), slog.Any("error", err))
		}
	}
}

// watchPaths lists the metadata directory, every directory below refs/ (the
// notifications are not recursive) and the working directory root.
func watchPaths(gitDir, workDir string) []string {
	if gitDir == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var paths []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	add(gitDir)
	_ = filepath.WalkDir(filepath.Join(gitDir, "refs"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			add(path)
		}
		return nil
	})
	if workDir != "" {
		add(workDir)
	}
	return paths
}

func classify(gitDir, workDir, path string) Change {
	path = filepath.Clean(path)
	if isWithin(gitDir, path) {
		rel, err := filepath.Rel(gitDir, path)
		if err != nil {
			return ChangeNone
		}
		rel = filepath.ToSlash(rel)
		switch {
		case rel == "HEAD" || rel == "packed-refs" || strings.HasPrefix(rel, "refs/"):
			return ChangeRefs
		case rel == "index":
			return ChangeIndex
		default:
			return ChangeNone
		}
	}
	if workDir != "" && isWithin(workDir, path) {
		return ChangeIndex
	}
	return ChangeNone
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func shouldIgnoreWatchPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".lock" || ext == ".ipc"
}
