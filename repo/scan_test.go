package repo

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestAddLocalFilesDiscoversNewFiles checks that a fresh scan picks up every
// file on disk as a new, fully-saved version.
func TestAddLocalFilesDiscoversNewFiles(t *testing.T) {
	root := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(root, "one.txt"), []byte("one"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(root, "two.txt"), []byte("two"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, root)

	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}
	if len(r.Files) != 2 {
		t.Fatalf("expected 2 tracked files, got %d", len(r.Files))
	}
	for name, f := range r.Files {
		if !f.IsComplete() {
			t.Fatalf("expected %s to be complete after a fresh scan", name)
		}
	}
}

// TestAddLocalFilesSkipsUnchangedFiles checks that re-scanning a file whose
// mtime has not advanced past the latest known version does not append a
// new version.
func TestAddLocalFilesSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(root, "one.txt"), []byte("one"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, root)

	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}
	firstCount := len(r.Files["one.txt"].Versions)

	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}
	secondCount := len(r.Files["one.txt"].Versions)

	if firstCount != secondCount {
		t.Fatalf("expected version count unchanged across a no-op rescan, got %d then %d", firstCount, secondCount)
	}
}

// TestAddLocalFilesSynthesizesDeletion checks that a file known to the repo
// but missing from disk gets a synthesized deletion version.
func TestAddLocalFilesSynthesizesDeletion(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")
	if err := ioutil.WriteFile(path, []byte("will vanish"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, root)
	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}

	f, ok := r.Files["gone.txt"]
	if !ok {
		t.Fatal("expected gone.txt to still be tracked after deletion")
	}
	cv := f.CurrentVersion()
	if cv == nil || !cv.Deleted {
		t.Fatalf("expected the latest version of gone.txt to be a deletion, got %+v", cv)
	}
}

// TestAddLocalFilesRescanAfterModification checks that a file whose mtime
// advances past the latest known version is re-chunked as a new version.
func TestAddLocalFilesRescanAfterModification(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "changed.txt")
	if err := ioutil.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, root)
	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}
	firstTimestamp := r.Files["changed.txt"].CurrentVersion().Timestamp

	// Bump mtime well past the first scan's recorded timestamp so the next
	// scan is guaranteed to see it as newer.
	newMtime := time.Unix(firstTimestamp+10, 0)
	if err := ioutil.WriteFile(path, []byte("v2, longer now"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, newMtime, newMtime); err != nil {
		t.Fatal(err)
	}

	if err := r.AddLocalFiles(); err != nil {
		t.Fatal(err)
	}
	versions := r.Files["changed.txt"].Versions
	if len(versions) != 2 {
		t.Fatalf("expected a second version after the mtime advanced, got %d versions", len(versions))
	}
}
