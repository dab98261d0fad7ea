// Package repo implements the content-addressed repository engine: the
// data model owner, its local filesystem scan and watcher integration, and
// its per-repository peer synchronization loop.
package repo

import (
	"sync"

	"github.com/chunkernet/chunker/build"
	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
	"github.com/chunkernet/chunker/persist"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/threadgroup"
	"github.com/uplo-tech/writeaheadlog"
)

// Type identifies whether a Repo is a publisher-produced, fixed manifest
// or a live, multi-node synchronized folder.
type Type string

const (
	// TypeStatic is a publisher manifest: a fixed set of files, generally
	// distributed once and not locally watched.
	TypeStatic Type = "static"
	// TypeShare is a live folder synchronized across nodes: watched,
	// scanned, and merged continuously.
	TypeShare Type = "share"
)

var (
	// ErrNoSuchRepo is returned by Core when a command targets an unknown
	// uuid.
	ErrNoSuchRepo = errors.New("no repo with that uuid")
	// ErrManifestCorrupt is returned when a manifest or state file fails to
	// parse or is missing required fields.
	ErrManifestCorrupt = errors.New("manifest is corrupt or missing required fields")
)

// Repo owns the Files of one repository, its manifest/state persistence,
// and the background watcher and net-loop workers that keep it in sync.
// Repo.mu guards every mutating method (Update, AddChunk, SelfHeal,
// AddLocalFiles, ToManifest/Save); the net loop never holds it across a
// blocking receive.
type Repo struct {
	UUID string
	Name string
	Type Type
	Root string
	Key  crypto.CipherKey

	Files map[string]*chunkfile.File

	Peers   []*Peer
	HashType crypto.HashType
	Chunker  chunkfile.Chunker

	mu      sync.RWMutex
	log     *persist.Logger
	wal     *writeaheadlog.WAL
	threads threadgroup.ThreadGroup

	watcherStop chan struct{}
	netloopStop chan struct{}
}

// New constructs a Repo. wal and log are supplied by Core, which owns one
// shared writeaheadlog per config directory and one logger shared by all
// repos.
func New(uuid, name string, typ Type, root string, key crypto.CipherKey, wal *writeaheadlog.WAL, log *persist.Logger) *Repo {
	return &Repo{
		UUID:     uuid,
		Name:     name,
		Type:     typ,
		Root:     root,
		Key:      key,
		Files:    make(map[string]*chunkfile.File),
		HashType: crypto.HashSHA256,
		Chunker:  chunkfile.FixedChunker{},
		wal:      wal,
		log:      log,
	}
}

// Start launches the repo's background workers: the filesystem watcher for
// TypeShare repos, and the peer-sync net loop for both repo types (a static
// repo still serves chunks to subscribers even though it has no local
// watcher).
func (r *Repo) Start() error {
	if err := r.threads.Add(); err != nil {
		return err
	}
	defer r.threads.Done()

	if r.Type == TypeShare {
		if err := r.startWatcher(); err != nil {
			return err
		}
	}
	return r.startNetLoop()
}

// Stop signals the watcher and net loop to shut down and blocks until both
// have joined. In-flight chunk writes complete; no torn writes are
// permitted, since every write is a single open/seek-or-offset/write/close
// unit.
func (r *Repo) Stop() error {
	return r.threads.Stop()
}

// StatePath returns the path of this repo's private state file.
func (r *Repo) StatePath() string {
	return build.StateFilePath(r.UUID)
}

// AllChunks returns every known and every missing chunk across the repo's
// current file versions, for Core's cross-repo heal pass.
func (r *Repo) AllChunks() (known, missing []*chunkfile.Chunk) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.Files {
		known = append(known, f.GetKnownChunks()...)
		missing = append(missing, f.GetMissingChunks()...)
	}
	return known, missing
}

// Summary reports (completeFiles, totalFiles) across the repo's current
// file set, used by Core's `list` command.
func (r *Repo) Summary() (complete, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.Files {
		total++
		if f.IsComplete() {
			complete++
		}
	}
	return complete, total
}
