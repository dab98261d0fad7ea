package chunkfile

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/uplo-tech/errors"
)

// ErrInvalidPath is returned when a file's resolved absolute path would
// escape its Repo's root directory.
var ErrInvalidPath = errors.New("path escapes repo root")

// File is the ordered history of versions for one repo-relative path.
type File struct {
	RelPath  string
	AbsPath  string
	Versions []*FileVersion // sorted ascending by Timestamp
}

// NewFile validates that relPath resolves inside root and returns an empty
// File rooted there. Versions must be appended with Merge.
func NewFile(root, relPath string) (*File, error) {
	abs := filepath.Join(root, relPath)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(abs)
	if err != nil {
		return nil, err
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return nil, ErrInvalidPath
	}
	return &File{RelPath: relPath, AbsPath: absPath}, nil
}

// Merge appends incoming versions and re-sorts ascending by timestamp. Two
// versions sharing a timestamp are ordered by ascending (username,
// hostname) when either carries author metadata; otherwise insertion order
// (stable sort) wins.
func (f *File) Merge(versions ...*FileVersion) {
	f.Versions = append(f.Versions, versions...)
	sort.SliceStable(f.Versions, func(i, j int) bool {
		a, b := f.Versions[i], f.Versions[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Username == "" && a.Hostname == "" && b.Username == "" && b.Hostname == "" {
			return false
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		return a.Hostname < b.Hostname
	})
}

// CurrentVersion returns the last element of Versions — the version with
// the largest timestamp, per the LWW merge rule.
func (f *File) CurrentVersion() *FileVersion {
	if len(f.Versions) == 0 {
		return nil
	}
	return f.Versions[len(f.Versions)-1]
}

// GetMissingChunks proxies to CurrentVersion.
func (f *File) GetMissingChunks() []*Chunk {
	cv := f.CurrentVersion()
	if cv == nil {
		return nil
	}
	return cv.GetMissingChunks()
}

// GetKnownChunks proxies to CurrentVersion.
func (f *File) GetKnownChunks() []*Chunk {
	cv := f.CurrentVersion()
	if cv == nil {
		return nil
	}
	return cv.GetKnownChunks()
}

// IsComplete proxies to CurrentVersion.
func (f *File) IsComplete() bool {
	cv := f.CurrentVersion()
	return cv != nil && cv.IsComplete()
}
