package repo

import (
	"os"
	"time"

	"github.com/chunkernet/chunker/chunkfile"
)

// Update is the heart of the engine's write path. It builds a FileVersion
// from rec (or, if rec.Chunks is nil, from the file's current on-disk
// contents), merges it into the File at path, materializes the effective
// latest version onto disk, and persists state. It is the only place
// versions are created outside of manifest load.
func (r *Repo) Update(path string, rec chunkfile.VersionRecord) error {
	if err := r.applyUpdate(path, rec); err != nil {
		return err
	}
	return r.saveStateWAL()
}

// applyUpdate performs the locked mutation steps of Update (build, merge,
// materialize) without persisting — saveStateWAL takes its own read lock,
// so it must run after this function has released r.mu.
func (r *Repo) applyUpdate(path string, rec chunkfile.VersionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.Files[path]
	if !ok {
		var err error
		f, err = chunkfile.NewFile(r.Root, path)
		if err != nil {
			return err
		}
		r.Files[path] = f
	}

	var fv *chunkfile.FileVersion
	if rec.Chunks == nil && !rec.Deleted {
		var err error
		fv, err = chunkfile.NewFileVersionFromDisk(f.AbsPath, rec.Timestamp, r.HashType, r.Key, r.Chunker, f)
		if err != nil {
			return err
		}
		fv.Username, fv.Hostname = rec.Username, rec.Hostname
	} else {
		fv = chunkfile.NewFileVersionFromManifest(rec, f)
	}
	f.Merge(fv)

	return r.materialize(f)
}

// materialize applies the effective latest version of f to disk: unlink on
// deletion, leave bytes untouched if the file already exists, otherwise
// create a zero-length file dated by completion state.
func (r *Repo) materialize(f *chunkfile.File) error {
	cv := f.CurrentVersion()
	if cv == nil {
		return nil
	}

	if cv.Deleted {
		err := os.Remove(f.AbsPath)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if _, err := os.Stat(f.AbsPath); err == nil {
		return nil // bytes may diverge from hashes; the next Validate reflects that
	}

	file, err := os.Create(f.AbsPath)
	if err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	if cv.IsComplete() {
		now := time.Now()
		return os.Chtimes(f.AbsPath, now, time.Unix(cv.Timestamp, 0))
	}
	return os.Chtimes(f.AbsPath, time.Unix(0, 0), time.Unix(0, 0))
}

// AddChunk is called when a chunk arrives from the network. For every
// missing chunk across every File whose identity equals chunkID, it calls
// SaveData — this is how one wire arrival fills multiple locations (the
// intra-repo dedup property).
func (r *Repo) AddChunk(chunkID string, data []byte) error {
	if err := r.applyAddChunk(chunkID, data); err != nil {
		return err
	}
	return r.saveStateWAL()
}

func (r *Repo) applyAddChunk(chunkID string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range r.Files {
		cv := f.CurrentVersion()
		if cv == nil {
			continue
		}
		wasComplete := cv.IsComplete()
		if wasComplete {
			continue
		}
		for _, c := range cv.GetMissingChunks() {
			if c.Identity() != chunkID {
				continue
			}
			nowComplete := isLastMissing(cv, c)
			if err := c.SaveData(data, cv.Timestamp, nowComplete); err != nil {
				return err
			}
		}
	}
	return nil
}

// isLastMissing reports whether target is the only missing chunk left in
// fv — used to decide whether this SaveData call should finalize the
// file's mtime to the version timestamp (the Partial→Complete transition).
func isLastMissing(fv *chunkfile.FileVersion, target *chunkfile.Chunk) bool {
	for _, c := range fv.GetMissingChunks() {
		if c != target && !c.Saved {
			return false
		}
	}
	return true
}
