package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) ingest(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startInbox(t *testing.T, rec *recorder, roots ...string) *Inbox {
	t.Helper()
	in := NewInbox(rec.ingest, WithDebounce(100*time.Millisecond))
	if err := in.Start(context.Background(), roots...); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(in.Stop)
	return in
}

func TestInbox_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	in := startInbox(t, &recorder{})

	if err := in.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := in.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := in.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := in.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(in.Directories()) != 0 {
		t.Errorf("after remove: %v", in.Directories())
	}
}

func TestInbox_AddDirectoryBeforeStart(t *testing.T) {
	in := NewInbox(nil)
	if err := in.AddDirectory(t.TempDir(), false); err == nil {
		t.Error("expected error before Start")
	}
}

func TestInbox_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startInbox(t, rec, dir)

	path := filepath.Join(dir, "report.pdf")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("%PDF-1.4 partial"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })
	time.Sleep(300 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 || got[0] != "report.pdf" {
		t.Errorf("ingested %v, want [report.pdf]", got)
	}
}

func TestInbox_NewSubdirectoryIsIngested(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startInbox(t, rec, dir)

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "deep.pdf"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		for _, p := range rec.snapshot() {
			if p == "deep.pdf" {
				return true
			}
		}
		return false
	})
}

func TestInbox_SyncIngestsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{filepath.Join(dir, "a.pdf"), filepath.Join(sub, "b.PDF"), filepath.Join(dir, "c.txt")} {
		if err := os.WriteFile(name, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	rec := &recorder{}
	in := NewInbox(rec.ingest, WithRecursive(false))
	if err := in.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	defer in.Stop()
	in.Sync(context.Background())

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "a.pdf" {
		t.Errorf("non-recursive sync ingested %v, want [a.pdf]", got)
	}
}

func TestInbox_StopWaitsForBackgroundSync(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var mu sync.Mutex
	finished := 0
	in := NewInbox(func(ctx context.Context, path string) error {
		started <- struct{}{}
		<-release
		mu.Lock()
		finished++
		mu.Unlock()
		return nil
	})
	if err := in.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if err := in.SyncInBackground(); err != nil {
		t.Fatal(err)
	}
	<-started

	stopped := make(chan struct{})
	go func() {
		in.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a sync ingestion was running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the sync finished")
	}
	mu.Lock()
	defer mu.Unlock()
	// The cancelled context ends the walk after the running ingestion.
	if finished != 1 {
		t.Errorf("finished = %d, want 1", finished)
	}
	if err := in.SyncInBackground(); err == nil {
		t.Error("expected error syncing a stopped inbox")
	}
}

func TestInbox_IngestErrorsDoNotStopWatching(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	calls := 0
	in := NewInbox(func(ctx context.Context, path string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("bad pdf")
	}, WithDebounce(50*time.Millisecond))
	if err := in.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	defer in.Stop()

	for _, name := range []string{"one.pdf", "two.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	})
}

func TestInbox_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startInbox(t, &recorder{}, root)
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should exist after Start: %v", err)
	}
}

func TestInbox_StopIsIdempotent(t *testing.T) {
	in := NewInbox(nil)
	if err := in.Start(context.Background(), t.TempDir()); err != nil {
		t.Fatal(err)
	}
	in.Stop()
	in.Stop()
	if err := in.Start(context.Background()); err == nil {
		t.Error("expected error restarting a stopped inbox")
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.pdf", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
		{"/tmp/a", "/tmp/ab", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
