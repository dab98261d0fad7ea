package chunkfile

import (
	"crypto/sha256"
	"sort"

	"github.com/chunkernet/chunker/crypto"
	"github.com/uplo-tech/merkletree"
)

// VersionRecord is the tagged, structured form of a manifest entry for one
// FileVersion. It is the JSON shape persisted in manifest and state files.
type VersionRecord struct {
	Timestamp int64               `json:"timestamp"`
	Deleted   bool                `json:"deleted"`
	Chunks    []ChunkDescriptor   `json:"chunks"`
	Username  string              `json:"username,omitempty"`
	Hostname  string              `json:"hostname,omitempty"`
}

// FileVersion is an immutable snapshot of a File at a point in time: a
// timestamp, a deleted flag, and an ordered list of chunks. Once appended to
// a File's version list it is never mutated.
type FileVersion struct {
	Timestamp int64
	Deleted   bool
	Chunks    []*Chunk
	Username  string
	Hostname  string
}

// NewFileVersionFromManifest builds a FileVersion from chunk descriptors
// taken from a manifest or network arrival: offsets are assigned as a
// running sum of lengths in the given order, and every chunk is validated
// immediately so pre-existing local bytes register as saved.
func NewFileVersionFromManifest(rec VersionRecord, owner *File) *FileVersion {
	fv := &FileVersion{
		Timestamp: rec.Timestamp,
		Deleted:   rec.Deleted,
		Username:  rec.Username,
		Hostname:  rec.Hostname,
	}
	var offset uint64
	for _, d := range rec.Chunks {
		c := &Chunk{
			HashType: d.HashType,
			Length:   d.Length,
			Hash:     d.Hash,
			Offset:   offset,
			file:     owner,
		}
		c.Validate()
		fv.Chunks = append(fv.Chunks, c)
		offset += d.Length
	}
	return fv
}

// NewFileVersionFromDisk runs chunker over an existing on-disk file to
// produce a fully-saved FileVersion, used when a local scan discovers a
// file whose chunks were never recorded.
func NewFileVersionFromDisk(path string, timestamp int64, ht crypto.HashType, key crypto.CipherKey, chunker Chunker, owner *File) (*FileVersion, error) {
	descs, err := chunker.Chunk(path, ht, key)
	if err != nil {
		return nil, err
	}
	fv := &FileVersion{Timestamp: timestamp}
	for _, d := range descs {
		fv.Chunks = append(fv.Chunks, &Chunk{
			HashType: d.HashType,
			Length:   d.Length,
			Hash:     d.Hash,
			Offset:   d.Offset,
			Saved:    true,
			file:     owner,
		})
	}
	return fv, nil
}

// ToRecord renders the FileVersion back into its manifest JSON shape.
func (fv *FileVersion) ToRecord() VersionRecord {
	rec := VersionRecord{
		Timestamp: fv.Timestamp,
		Deleted:   fv.Deleted,
		Username:  fv.Username,
		Hostname:  fv.Hostname,
	}
	for _, c := range fv.Chunks {
		rec.Chunks = append(rec.Chunks, ChunkDescriptor{
			Offset:   c.Offset,
			Length:   c.Length,
			HashType: c.HashType,
			Hash:     c.Hash,
		})
	}
	return rec
}

// GetMissingChunks returns chunks with Saved == false.
func (fv *FileVersion) GetMissingChunks() []*Chunk {
	var out []*Chunk
	for _, c := range fv.Chunks {
		if !c.Saved {
			out = append(out, c)
		}
	}
	return out
}

// GetKnownChunks returns chunks with Saved == true.
func (fv *FileVersion) GetKnownChunks() []*Chunk {
	var out []*Chunk
	for _, c := range fv.Chunks {
		if c.Saved {
			out = append(out, c)
		}
	}
	return out
}

// IsComplete reports whether the version has no missing chunks.
func (fv *FileVersion) IsComplete() bool {
	for _, c := range fv.Chunks {
		if !c.Saved {
			return false
		}
	}
	return true
}

// MerkleRoot derives a Merkle root over the version's chunk hashes, used as
// a cheap, derived (never persisted) way to compare two versions' chunk
// sets for equality without comparing every descriptor pairwise.
func (fv *FileVersion) MerkleRoot() (crypto.Hash, error) {
	sorted := make([]*Chunk, len(fv.Chunks))
	copy(sorted, fv.Chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	tree := merkletree.New(sha256.New())
	for _, c := range sorted {
		tree.Push([]byte(c.Identity()))
	}
	var root crypto.Hash
	copy(root[:], tree.Root())
	return root, nil
}
