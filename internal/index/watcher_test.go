package index

import (
	"context"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/ctxcache/internal/storage"
	"github.com/starford/ctxcache/internal/testutil"
)

// watcherTestEnv sets up a project, a storage provider for its cache and a DB.
func watcherTestEnv(t *testing.T) (*testutil.Project, storage.Provider, *DB) {
	t.Helper()
	p := testutil.NewProject(t)
	store, err := storage.NewFS(p.ContextDir)
	if err != nil {
		t.Fatal(err)
	}
	return p, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+path)
	r.mu.Unlock()
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, e)
}

func startWatch(t *testing.T, db *DB, store storage.Provider, root string, cb EventCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, db, store, root, quietLogger(), cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewDocumentIndexed(t *testing.T) {
	p, store, db := watcherTestEnv(t)
	rec := &recorder{}
	startWatch(t, db, store, p.ContextDir, rec.record)

	p.WriteDoc("new.md", "# New")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("new.md")
		return cs != ""
	}, "new document not indexed by watcher")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:new.md") || rec.has("updated:new.md")
	}, "expected callback for new.md")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	p, store, db := watcherTestEnv(t)
	startWatch(t, db, store, p.ContextDir, nil)

	if err := os.MkdirAll(p.DocPath("guides"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	p.WriteDoc("guides/deep.md", "# Deep")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("guides/deep.md")
		return cs != ""
	}, "document in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	p, store, db := watcherTestEnv(t)
	p.WriteDoc("del.md", "# Delete Me")
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs == "" {
		t.Fatal("precondition: document should be indexed")
	}

	startWatch(t, db, store, p.ContextDir, nil)
	_ = os.Remove(p.DocPath("del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.md")
		return cs == ""
	}, "deleted document still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	p, store, db := watcherTestEnv(t)
	p.WriteDoc("old.md", "# Rename")
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}

	startWatch(t, db, store, p.ContextDir, nil)
	_ = os.Rename(p.DocPath("old.md"), p.DocPath("renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.md")
		newCS, _ := db.GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}

func TestWatcher_SourceChangeReported(t *testing.T) {
	p, store, db := watcherTestEnv(t)
	p.WriteSource("src/a.go", "package a")
	p.WriteSource("src/unrelated.go", "package a")
	p.WriteDoc("a.md", testutil.Doc("a", map[string]string{"src/a.go": "1234567"}, "`src/a.go`"))
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	startWatch(t, db, store, p.ContextDir, rec.record)

	p.WriteSource("src/unrelated.go", "package a // changed")
	p.WriteSource("src/a.go", "package a // changed")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("source:src/a.go")
	}, "expected source:src/a.go callback")
	if rec.has("source:src/unrelated.go") {
		t.Error("unreferenced source reported")
	}
}
