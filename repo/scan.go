package repo

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
)

// AddLocalFiles walks Root recursively. For each file whose relpath is
// either unknown, or whose on-disk mtime (rounded) is strictly greater than
// the latest known version's timestamp, it calls Update with a
// nil-chunks version (meaning "recompute from disk"). It then synthesizes
// deletion versions for known, non-deleted files whose absolute path no
// longer exists.
func (r *Repo) AddLocalFiles() error {
	seen := make(map[string]bool)

	err := filepath.WalkDir(r.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(r.Root, path)
		if err != nil {
			return nil
		}
		seen[relPath] = true

		info, err := d.Info()
		if err != nil {
			return nil
		}
		mtime := crypto.TSRound(float64(info.ModTime().Unix()))

		r.mu.RLock()
		existing, known := r.Files[relPath]
		var latest int64 = -1
		if known {
			if cv := existing.CurrentVersion(); cv != nil {
				latest = cv.Timestamp
			}
		}
		r.mu.RUnlock()

		if !known || mtime > latest {
			return r.Update(relPath, chunkfile.VersionRecord{
				Timestamp: mtime,
				Chunks:    nil,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.RLock()
	var toDelete []struct {
		path string
		ts   int64
	}
	for path, f := range r.Files {
		if seen[path] {
			continue
		}
		cv := f.CurrentVersion()
		if cv == nil || cv.Deleted {
			continue
		}
		if _, statErr := os.Stat(f.AbsPath); statErr == nil {
			continue
		}
		toDelete = append(toDelete, struct {
			path string
			ts   int64
		}{path, crypto.TSRound(float64(cv.Timestamp + 1))})
	}
	r.mu.RUnlock()

	for _, d := range toDelete {
		if err := r.Update(d.path, chunkfile.VersionRecord{
			Timestamp: d.ts,
			Deleted:   true,
		}); err != nil {
			return err
		}
	}
	return nil
}
