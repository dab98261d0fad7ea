package core

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
	"github.com/chunkernet/chunker/repo"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	t.Setenv("CHUNKER_DATA_DIR", t.TempDir())
	c, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		for _, r := range c.List() {
			r.Stop()
		}
	})
	return c
}

// TestCoreCreateAndGet checks that Create writes a manifest, and, with
// add=true, registers the repo so it is immediately retrievable.
func TestCoreCreateAndGet(t *testing.T) {
	c := newTestCore(t)
	srcDir := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(srcDir, "f.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	manifestPath := filepath.Join(t.TempDir(), "out.chunkfile")

	r, err := c.Create(manifestPath, "myrepo", srcDir, repo.TypeStatic, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ioutil.ReadFile(manifestPath); err != nil {
		t.Fatalf("expected a manifest file to be written: %v", err)
	}

	got, err := c.Get(r.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UUID != r.UUID {
		t.Fatalf("Get returned uuid %q, want %q", got.UUID, r.UUID)
	}
}

// TestCoreCreateWithoutAddDoesNotRegister checks that add=false only writes
// the manifest, without tracking the repo live.
func TestCoreCreateWithoutAddDoesNotRegister(t *testing.T) {
	c := newTestCore(t)
	srcDir := t.TempDir()
	manifestPath := filepath.Join(t.TempDir(), "out.chunkfile")

	r, err := c.Create(manifestPath, "myrepo", srcDir, repo.TypeStatic, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(r.UUID); err != repo.ErrNoSuchRepo {
		t.Fatalf("expected ErrNoSuchRepo for an un-added repo, got %v", err)
	}
}

// TestCoreAddLoadsManifest checks that Add loads a manifest written by
// Create and registers it as a live repo rooted at the given directory.
func TestCoreAddLoadsManifest(t *testing.T) {
	c := newTestCore(t)
	srcDir := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(srcDir, "f.txt"), []byte("hello again"), 0644); err != nil {
		t.Fatal(err)
	}
	manifestPath := filepath.Join(t.TempDir(), "out.chunkfile")
	if _, err := c.Create(manifestPath, "myrepo", srcDir, repo.TypeStatic, nil, false); err != nil {
		t.Fatal(err)
	}

	r, err := c.Add(manifestPath, srcDir, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(r.UUID); err != nil {
		t.Fatalf("expected repo to be registered after Add: %v", err)
	}
}

// TestCoreRemove checks that Remove stops and unregisters a repo.
func TestCoreRemove(t *testing.T) {
	c := newTestCore(t)
	srcDir := t.TempDir()
	manifestPath := filepath.Join(t.TempDir(), "out.chunkfile")
	r, err := c.Create(manifestPath, "myrepo", srcDir, repo.TypeStatic, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Remove(r.UUID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(r.UUID); err != repo.ErrNoSuchRepo {
		t.Fatalf("expected ErrNoSuchRepo after Remove, got %v", err)
	}
}

// TestCoreRemoveUnknownUUID checks the not-found error path.
func TestCoreRemoveUnknownUUID(t *testing.T) {
	c := newTestCore(t)
	if err := c.Remove("does-not-exist"); err != repo.ErrNoSuchRepo {
		t.Fatalf("expected ErrNoSuchRepo, got %v", err)
	}
}

// TestCoreList checks that List returns every registered repo.
func TestCoreList(t *testing.T) {
	c := newTestCore(t)
	for i := 0; i < 3; i++ {
		srcDir := t.TempDir()
		manifestPath := filepath.Join(t.TempDir(), "out.chunkfile")
		if _, err := c.Create(manifestPath, "r", srcDir, repo.TypeStatic, nil, true); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(c.List()); got != 3 {
		t.Fatalf("List() returned %d repos, want 3", got)
	}
}

// TestCoreHeal checks that Heal copies bytes for a chunk known in one repo
// and missing in another, returning the number of bytes healed.
func TestCoreHeal(t *testing.T) {
	c := newTestCore(t)

	srcDir := t.TempDir()
	data := []byte("shared across repos")
	if err := ioutil.WriteFile(filepath.Join(srcDir, "shared.bin"), data, 0644); err != nil {
		t.Fatal(err)
	}
	srcManifest := filepath.Join(t.TempDir(), "src.chunkfile")
	srcRepo, err := c.Create(srcManifest, "src", srcDir, repo.TypeStatic, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	identity := srcRepo.Files["shared.bin"].GetKnownChunks()[0].Identity()
	parts := splitIdentity(identity)

	dstDir := t.TempDir()
	dstManifest := filepath.Join(t.TempDir(), "dst.chunkfile")
	if _, err := c.Create(dstManifest, "dst", dstDir, repo.TypeStatic, nil, true); err != nil {
		t.Fatal(err)
	}
	dstRepo, err := c.Get(listUUIDExcept(c, srcRepo.UUID))
	if err != nil {
		t.Fatal(err)
	}
	rec := chunkfile.VersionRecord{
		Timestamp: 9999,
		Chunks: []chunkfile.ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: uint64(parts.length), Hash: parts.hash},
		},
	}
	if err := dstRepo.Update("shared.bin", rec); err != nil {
		t.Fatal(err)
	}

	healed := c.Heal()
	if healed != int64(len(data)) {
		t.Fatalf("Heal() = %d, want %d", healed, len(data))
	}
}

type identityParts struct {
	hash   string
	length int
}

func splitIdentity(identity string) identityParts {
	// identity is "{hash_type}:{length}:{hash}"
	var htEnd, lenEnd int
	for i, ch := range identity {
		if ch == ':' {
			if htEnd == 0 {
				htEnd = i
			} else {
				lenEnd = i
				break
			}
		}
	}
	length := 0
	for _, ch := range identity[htEnd+1 : lenEnd] {
		length = length*10 + int(ch-'0')
	}
	return identityParts{hash: identity[lenEnd+1:], length: length}
}

func listUUIDExcept(c *Core, exclude string) string {
	for _, r := range c.List() {
		if r.UUID != exclude {
			return r.UUID
		}
	}
	return ""
}
