// Package watcher ingests PDFs dropped into inbox directories, using fsnotify with
// per-file debouncing so a file still being copied is ingested once.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/indexer"
)

const defaultDebounce = 400 * time.Millisecond

// IngestFunc ingests the PDF at path.
type IngestFunc func(ctx context.Context, path string) error

// Inbox watches root directories and ingests PDFs that appear or change in them.
// Removing a file from an inbox does not remove its collection.
type Inbox struct {
	ingest    IngestFunc
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	roots   []string
	watched map[string][]string // root -> directories added to fsw
	pending map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithRecursive controls whether subdirectories of each root are watched. Default true.
func WithRecursive(r bool) Option {
	return func(in *Inbox) { in.recursive = r }
}

// WithDebounce sets how long a file must stay quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) {
		if l != nil {
			in.logger = l
		}
	}
}

// NewInbox creates an inbox calling ingest for every settled PDF.
func NewInbox(ingest IngestFunc, opts ...Option) *Inbox {
	in := &Inbox{
		ingest:    ingest,
		recursive: true,
		debounce:  defaultDebounce,
		logger:    zap.NewNop(),
		watched:   make(map[string][]string),
		pending:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching roots, creating any that do not exist. It runs until ctx
// is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context, roots ...string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.fsw != nil {
		return errors.New("inbox already started")
	}
	if in.stopped {
		return errors.New("inbox stopped")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	in.fsw = fsw
	for _, root := range roots {
		if err := in.addRootLocked(root); err != nil {
			_ = fsw.Close()
			in.fsw = nil
			return err
		}
	}
	in.ctx, in.cancel = context.WithCancel(ctx)
	in.logger.Info("inbox watching", zap.Strings("roots", in.roots), zap.Bool("recursive", in.recursive))

	in.wg.Add(1)
	go in.loop(in.ctx, fsw)
	return nil
}

func (in *Inbox) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer in.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			in.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watch error", zap.Error(err))
		}
	}
}

func (in *Inbox) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !in.underRoot(path) {
		return
	}
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			in.addSubdirectory(path)
			return
		}
		if indexer.IsPDF(path) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if in.unschedule(path) || indexer.IsPDF(path) {
			in.logger.Debug("file left inbox, collection kept", zap.String("path", path))
		}
	}
}

// addSubdirectory watches a directory created or moved under a root and ingests the
// PDFs already inside it.
func (in *Inbox) addSubdirectory(dir string) {
	in.mu.Lock()
	fsw := in.fsw
	recursive := in.recursive
	in.mu.Unlock()
	if fsw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(p); err != nil {
				in.logger.Warn("cannot watch directory", zap.String("path", p), zap.Error(err))
			}
			return nil
		}
		if indexer.IsPDF(p) {
			in.schedule(p)
		}
		return nil
	})
}

func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Reset(in.debounce)
		return
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() { in.fire(path) })
}

func (in *Inbox) unschedule(path string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	t, ok := in.pending[path]
	if ok {
		t.Stop()
		delete(in.pending, path)
	}
	return ok
}

func (in *Inbox) fire(path string) {
	in.mu.Lock()
	delete(in.pending, path)
	if in.stopped || in.ingest == nil {
		in.mu.Unlock()
		return
	}
	ctx := in.ctx
	in.wg.Add(1)
	in.mu.Unlock()
	defer in.wg.Done()
	in.run(ctx, path)
}

func (in *Inbox) run(ctx context.Context, path string) {
	if err := in.ingest(ctx, path); err != nil {
		in.logger.Warn("inbox ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Debug("inbox ingested", zap.String("path", path))
}

func (in *Inbox) underRoot(path string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, root := range in.roots {
		if inDir(root, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (in *Inbox) addRootLocked(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	for _, r := range in.roots {
		if r == abs {
			return nil
		}
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return err
	}
	var dirs []string
	if in.recursive {
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return err
			}
			dirs = append(dirs, p)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		dirs = []string{abs}
	}
	for i, d := range dirs {
		if err := in.fsw.Add(d); err != nil {
			for _, added := range dirs[:i] {
				_ = in.fsw.Remove(added)
			}
			return err
		}
	}
	in.watched[abs] = dirs
	in.roots = append(in.roots, abs)
	return nil
}

// AddDirectory starts watching root. With syncExisting, PDFs already in root are
// ingested in the background.
func (in *Inbox) AddDirectory(root string, syncExisting bool) error {
	in.mu.Lock()
	if in.fsw == nil {
		in.mu.Unlock()
		return errors.New("inbox not started")
	}
	if err := in.addRootLocked(root); err != nil {
		in.mu.Unlock()
		return err
	}
	abs, _ := filepath.Abs(root)
	ctx := in.ctx
	if syncExisting {
		in.wg.Add(1)
	}
	in.mu.Unlock()

	in.logger.Info("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go func() {
			defer in.wg.Done()
			in.syncRoot(ctx, abs)
		}()
	}
	return nil
}

// RemoveDirectory stops watching root. Its collections stay indexed.
func (in *Inbox) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, r := range in.roots {
		if r != abs {
			continue
		}
		if in.fsw != nil {
			for _, d := range in.watched[abs] {
				_ = in.fsw.Remove(d)
			}
		}
		delete(in.watched, abs)
		in.roots = append(in.roots[:i], in.roots[i+1:]...)
		in.logger.Info("inbox directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns the watched roots in the order they were added.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// Sync ingests every PDF already present under the watched roots and returns when done.
func (in *Inbox) Sync(ctx context.Context) {
	for _, root := range in.Directories() {
		in.syncRoot(ctx, root)
	}
}

// SyncInBackground runs Sync on the inbox context. Stop cancels it and waits for it.
func (in *Inbox) SyncInBackground() error {
	in.mu.Lock()
	if in.fsw == nil || in.stopped {
		in.mu.Unlock()
		return errors.New("inbox not started")
	}
	ctx := in.ctx
	in.wg.Add(1)
	in.mu.Unlock()

	go func() {
		defer in.wg.Done()
		in.Sync(ctx)
	}()
	return nil
}

func (in *Inbox) syncRoot(ctx context.Context, root string) {
	if in.ingest == nil {
		return
	}
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && !in.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if indexer.IsPDF(p) {
			in.run(ctx, p)
		}
		return nil
	})
}

// Stop stops watching, drops pending files and waits for running ingestions to finish.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if in.stopped {
		in.mu.Unlock()
		return
	}
	in.stopped = true
	for p, t := range in.pending {
		t.Stop()
		delete(in.pending, p)
	}
	if in.cancel != nil {
		in.cancel()
	}
	fsw := in.fsw
	in.mu.Unlock()

	if fsw != nil {
		_ = fsw.Close()
	}
	in.wg.Wait()
}
