// Package core holds the set of repositories a chunkerd process manages and
// dispatches adapter commands (CLI, HTTP) into repo-level operations.
package core

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chunkernet/chunker/build"
	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
	"github.com/chunkernet/chunker/healer"
	"github.com/chunkernet/chunker/persist"
	"github.com/chunkernet/chunker/repo"
	"github.com/google/uuid"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/writeaheadlog"
)

// Core is instantiated as a value owned by the adapter's entry point (CLI
// main or daemon main); adapters borrow it. There is no process-wide
// singleton.
type Core struct {
	mu    sync.RWMutex
	repos map[string]*repo.Repo
	log   *persist.Logger
	wal   *writeaheadlog.WAL
}

// New constructs an empty Core and loads every `*.state` file found in the
// config directory.
func New(log *persist.Logger) (*Core, error) {
	if err := build.EnsureConfigDir(); err != nil {
		return nil, err
	}
	walPath := filepath.Join(build.ConfigDir(), "chunker.wal")
	_, wal, err := writeaheadlog.New(walPath)
	if err != nil {
		return nil, errors.AddContext(err, "could not open writeaheadlog")
	}

	c := &Core{
		repos: make(map[string]*repo.Repo),
		log:   log,
		wal:   wal,
	}
	if err := c.loadExistingState(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Core) loadExistingState() error {
	entries, err := os.ReadDir(build.ConfigDir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".state") {
			continue
		}
		path := filepath.Join(build.ConfigDir(), e.Name())
		doc, err := repo.LoadManifestOrState(path)
		if err != nil {
			if c.log != nil {
				c.log.Println("skipping corrupt state file", path, ":", err)
			}
			continue
		}
		r, err := repo.FromDoc(doc, c.wal, c.log)
		if err != nil {
			if c.log != nil {
				c.log.Println("skipping state file", path, ":", err)
			}
			continue
		}
		c.mu.Lock()
		c.repos[r.UUID] = r
		c.mu.Unlock()
		if err := r.Start(); err != nil && c.log != nil {
			c.log.Println("failed to start repo", r.UUID, ":", err)
		}
	}
	return nil
}

// Create builds a new manifest from directory, writes it to chunkfilePath,
// optionally registers it as a live repo (add=true), and returns it.
func (c *Core) Create(chunkfilePath, name, directory string, typ repo.Type, key crypto.CipherKey, add bool) (*repo.Repo, error) {
	id := crypto.SumSHA256([]byte(uuid.NewString()))
	idHex := hex.EncodeToString(id[:])

	r := repo.New(idHex, name, typ, directory, key, c.wal, c.log)
	if err := r.AddLocalFiles(); err != nil {
		return nil, err
	}
	if err := r.SaveManifest(chunkfilePath, false); err != nil {
		return nil, err
	}

	if add {
		c.mu.Lock()
		c.repos[r.UUID] = r
		c.mu.Unlock()
		if err := r.Start(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add loads an existing manifest from chunkfilePath and starts tracking it
// as a live repo rooted at directory.
func (c *Core) Add(chunkfilePath, directory, name string, key crypto.CipherKey) (*repo.Repo, error) {
	doc, err := repo.LoadManifestOrState(chunkfilePath)
	if err != nil {
		return nil, err
	}
	if name != "" {
		doc.Name = name
	}
	if directory != "" {
		doc.Root = directory
	}
	r, err := repo.FromDoc(doc, c.wal, c.log)
	if err != nil {
		return nil, err
	}
	if key != nil {
		r.Key = key
	}

	c.mu.Lock()
	c.repos[r.UUID] = r
	c.mu.Unlock()
	if err := r.Start(); err != nil {
		return nil, err
	}
	return r, nil
}

// Remove stops the repo, erases its state file, and drops it from the map.
// Chunk bytes on disk are not deleted.
func (c *Core) Remove(uuidStr string) error {
	c.mu.Lock()
	r, ok := c.repos[uuidStr]
	if ok {
		delete(c.repos, uuidStr)
	}
	c.mu.Unlock()
	if !ok {
		return repo.ErrNoSuchRepo
	}

	if err := r.Stop(); err != nil {
		return err
	}
	return persist.RemoveFile(r.StatePath())
}

// Get returns the repo with the given uuid.
func (c *Core) Get(uuidStr string) (*repo.Repo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.repos[uuidStr]
	if !ok {
		return nil, repo.ErrNoSuchRepo
	}
	return r, nil
}

// List returns every managed repo.
func (c *Core) List() []*repo.Repo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*repo.Repo, 0, len(c.repos))
	for _, r := range c.repos {
		out = append(out, r)
	}
	return out
}

// Heal runs a cross-repo dedup pass: every repo's known chunks are matched
// against every repo's missing chunks, returning total bytes healed.
func (c *Core) Heal() int64 {
	var known, missing []*chunkfile.Chunk
	for _, r := range c.List() {
		k, m := r.AllChunks()
		known = append(known, k...)
		missing = append(missing, m...)
	}
	total := healer.SelfHeal(known, missing)
	if total < 0 {
		return 0
	}
	return total
}
