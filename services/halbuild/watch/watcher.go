// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch regenerates manifests when interface specs change and
// serves the state of the loop over HTTP.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("watcher already started")

// Change is a debounced change to one path.
type Change struct {
	// Path is absolute.
	Path string

	Op   fsnotify.Op
	Time time.Time
}

// Handler receives one debounced batch, deduplicated by path and in
// first-seen order. It is called from a single goroutine.
type Handler func(ctx context.Context, batch []Change)

// Options configure a Watcher.
type Options struct {
	// Debounce is how long the tree must be quiet before a batch is
	// delivered. Default 500ms.
	Debounce time.Duration

	// Match selects relevant files by base name, doublestar syntax.
	// Default "*.hal".
	Match []string

	// Ignore skips directories and files by base name, doublestar syntax.
	Ignore []string

	// Extra are additional files to watch outside the roots, such as the
	// manifest template. Their parent directories are watched
	// non-recursively.
	Extra []string

	// BufferSize bounds queued events. Default 1024.
	BufferSize int

	Logger *slog.Logger
}

// DefaultOptions returns the defaults described on Options.
func DefaultOptions() Options {
	return Options{
		Debounce:   500 * time.Millisecond,
		Match:      []string{"*.hal"},
		Ignore:     []string{".*", "default", "vts"},
		BufferSize: 1024,
	}
}

// Watcher watches directory trees with fsnotify and batches relevant
// changes.
//
// # Thread Safety
//
// Start and Stop may be called from any goroutine. The handler runs on
// the debounce goroutine only.
type Watcher struct {
	roots   []string
	opts    Options
	handler Handler
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	events   chan Change
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	started  bool
	watching map[string]bool
}

// New creates a Watcher over roots. Call Start to begin.
//
// # Inputs
//
//   - roots: Absolute directories watched recursively.
//   - handler: Receives debounced batches.
//   - opts: Zero fields take DefaultOptions values.
//
// # Outputs
//
//   - *Watcher: Not yet watching.
//   - error: When fsnotify cannot be initialised.
func New(roots []string, handler Handler, opts Options) (*Watcher, error) {
	def := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = def.Debounce
	}
	if len(opts.Match) == 0 {
		opts.Match = def.Match
	}
	if opts.Ignore == nil {
		opts.Ignore = def.Ignore
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		roots:    roots,
		opts:     opts,
		handler:  handler,
		watcher:  fw,
		logger:   logger,
		events:   make(chan Change, opts.BufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		watching: make(map[string]bool),
	}, nil
}

// Start adds every root and extra file and spawns the event and
// debounce goroutines. Both exit on Stop or when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if err := w.addAll(); err != nil {
		w.mu.Lock()
		w.started = false
		w.mu.Unlock()
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop closes the watcher and waits for a running handler to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.stopped
	}
}

// Watched returns the directories currently watched, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watching))
	for dir := range w.watching {
		out = append(out, dir)
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) addAll() error {
	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}
	for _, extra := range w.opts.Extra {
		if err := w.add(filepath.Dir(extra)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.watching[dir] = true
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.add(path)
	})
}

func (w *Watcher) ignored(base string) bool {
	for _, pattern := range w.opts.Ignore {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path should trigger a batch.
func (w *Watcher) relevant(path string) bool {
	if slices.Contains(w.opts.Extra, path) {
		return true
	}
	base := filepath.Base(path)
	if w.ignored(base) || !w.underRoot(path) {
		return false
	}
	for _, pattern := range w.opts.Match {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// New directories are watched, and a directory that appears with
			// specs already inside (a move) counts as a change.
			if event.Has(fsnotify.Create) && w.underRoot(event.Name) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if w.ignored(filepath.Base(event.Name)) {
						continue
					}
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("watch new directory", slog.String("path", event.Name), slog.String("error", err.Error()))
					}
					w.enqueue(Change{Path: event.Name, Op: event.Op, Time: time.Now()})
					continue
				}
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.enqueue(Change{Path: event.Name, Op: event.Op, Time: time.Now()})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) enqueue(c Change) {
	select {
	case w.events <- c:
	default:
		w.logger.Warn("watch buffer full, dropping event", slog.String("path", c.Path))
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer close(w.stopped)

	var (
		batch  []Change
		timer  *time.Timer
		timerC <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(batch) == 0 {
			return
		}
		deduped := dedupe(batch)
		batch = batch[:0]
		if w.handler != nil {
			w.handler(ctx, deduped)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case c := <-w.events:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the latest change per path at the position the path was
// first seen.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
