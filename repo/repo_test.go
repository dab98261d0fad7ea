package repo

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
)

// useTempConfigDir points build.ConfigDir at a throwaway directory for the
// duration of a test, since saveStateWAL falls back to writing a state file
// there whenever a repo has no writeaheadlog attached.
func useTempConfigDir(t *testing.T) {
	t.Helper()
	t.Setenv("CHUNKER_DATA_DIR", t.TempDir())
}

func newTestRepo(t *testing.T, root string) *Repo {
	t.Helper()
	useTempConfigDir(t)
	return New("test-uuid", "testrepo", TypeStatic, root, nil, nil, nil)
}

// chunkRecordFor builds a single-chunk manifest-style VersionRecord for a
// chunk that is not yet present on disk, for tests exercising the
// missing-chunk paths (AddChunk, handlePacket's "chunk"/"offer" cases).
func chunkRecordFor(digest string, length int, timestamp int64) chunkfile.VersionRecord {
	return chunkfile.VersionRecord{
		Timestamp: timestamp,
		Chunks: []chunkfile.ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: uint64(length), Hash: digest},
		},
	}
}

// TestRepoUpdateFromDiskScan checks that Updating a path with no chunk
// descriptors (the local-scan path) chunks the file's current on-disk bytes
// and records them as a fully-saved version.
func TestRepoUpdateFromDiskScan(t *testing.T) {
	root := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(root, "a.txt"), []byte("scanned contents"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, root)

	if err := r.Update("a.txt", chunkfile.VersionRecord{Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}

	f, ok := r.Files["a.txt"]
	if !ok {
		t.Fatal("expected a.txt to be tracked after Update")
	}
	if !f.IsComplete() {
		t.Fatal("expected a locally-scanned file to be immediately complete")
	}
}

// TestRepoUpdateManifestCreatesZeroLengthFile checks the materialize rule:
// a version arriving with declared chunks but no local bytes creates a
// zero-length placeholder file that is reported incomplete.
func TestRepoUpdateManifestCreatesZeroLengthFile(t *testing.T) {
	root := t.TempDir()
	r := newTestRepo(t, root)

	rec := chunkfile.VersionRecord{
		Timestamp: 2000,
		Chunks: []chunkfile.ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: 10, Hash: "deadbeef"},
		},
	}
	if err := r.Update("b.txt", rec); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "b.txt")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected a zero-length placeholder, got size %d", info.Size())
	}
	if f := r.Files["b.txt"]; f.IsComplete() {
		t.Fatal("expected the placeholder file to be reported incomplete")
	}
}

// TestRepoUpdateDeletedRemovesFile checks that a deleted version unlinks an
// existing file.
func TestRepoUpdateDeletedRemovesFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "c.txt")
	if err := ioutil.WriteFile(path, []byte("to be deleted"), 0644); err != nil {
		t.Fatal(err)
	}
	r := newTestRepo(t, root)

	if err := r.Update("c.txt", chunkfile.VersionRecord{Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Update("c.txt", chunkfile.VersionRecord{Timestamp: 2, Deleted: true}); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected c.txt to be removed, stat err = %v", err)
	}
}

// TestRepoAddChunkCompletesFile checks that AddChunk fills a placeholder's
// missing chunk and finalizes its mtime once every chunk is saved.
func TestRepoAddChunkCompletesFile(t *testing.T) {
	root := t.TempDir()
	r := newTestRepo(t, root)

	data := []byte("0123456789")
	digest, err := crypto.HashBytes(crypto.HashSHA256, data)
	if err != nil {
		t.Fatal(err)
	}
	rec := chunkfile.VersionRecord{
		Timestamp: 3000,
		Chunks: []chunkfile.ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: uint64(len(data)), Hash: digest},
		},
	}
	if err := r.Update("d.txt", rec); err != nil {
		t.Fatal(err)
	}

	identity := "sha256:" + itoaLen(len(data)) + ":" + digest
	if err := r.AddChunk(identity, data); err != nil {
		t.Fatal(err)
	}

	f := r.Files["d.txt"]
	if !f.IsComplete() {
		t.Fatal("expected d.txt to be complete after AddChunk filled its only chunk")
	}
	got, err := ioutil.ReadFile(filepath.Join(root, "d.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatalf("file contents = %q, want %q", got, data)
	}
}

// TestRepoSummary checks the complete/total accounting Core's list command
// relies on.
func TestRepoSummary(t *testing.T) {
	root := t.TempDir()
	r := newTestRepo(t, root)

	if err := ioutil.WriteFile(filepath.Join(root, "complete.txt"), []byte("done"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Update("complete.txt", chunkfile.VersionRecord{Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	incompleteRec := chunkfile.VersionRecord{
		Timestamp: 2,
		Chunks: []chunkfile.ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: 4, Hash: "ffff"},
		},
	}
	if err := r.Update("incomplete.txt", incompleteRec); err != nil {
		t.Fatal(err)
	}

	complete, total := r.Summary()
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if complete != 1 {
		t.Fatalf("complete = %d, want 1", complete)
	}
}

// TestRepoAllChunks checks that AllChunks partitions known and missing
// chunks across every tracked file.
func TestRepoAllChunks(t *testing.T) {
	root := t.TempDir()
	r := newTestRepo(t, root)

	if err := ioutil.WriteFile(filepath.Join(root, "complete.txt"), []byte("done"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := r.Update("complete.txt", chunkfile.VersionRecord{Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	incompleteRec := chunkfile.VersionRecord{
		Timestamp: 2,
		Chunks: []chunkfile.ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: 4, Hash: "ffff"},
		},
	}
	if err := r.Update("incomplete.txt", incompleteRec); err != nil {
		t.Fatal(err)
	}

	known, missing := r.AllChunks()
	if len(known) != 1 {
		t.Fatalf("known = %d, want 1", len(known))
	}
	if len(missing) != 1 {
		t.Fatalf("missing = %d, want 1", len(missing))
	}
}

func itoaLen(n int) string {
	return itoaUint(uint64(n))
}

func itoaUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
