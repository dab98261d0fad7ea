package chunkfile

import (
	"testing"

	"github.com/chunkernet/chunker/crypto"
)

func descChunk(offset, length uint64, saved bool) *Chunk {
	return &Chunk{HashType: crypto.HashSHA256, Offset: offset, Length: length, Hash: "h", Saved: saved}
}

// TestFileVersionFromManifestAssignsOffsets checks that offsets are assigned
// as a running sum of declared lengths, in the order chunks appear in the
// record.
func TestFileVersionFromManifestAssignsOffsets(t *testing.T) {
	owner := &File{RelPath: "x.bin"}
	rec := VersionRecord{
		Timestamp: 100,
		Chunks: []ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: 10, Hash: "a"},
			{HashType: crypto.HashSHA256, Length: 20, Hash: "b"},
		},
	}
	fv := NewFileVersionFromManifest(rec, owner)
	if len(fv.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(fv.Chunks))
	}
	if fv.Chunks[0].Offset != 0 {
		t.Fatalf("first chunk offset = %d, want 0", fv.Chunks[0].Offset)
	}
	if fv.Chunks[1].Offset != 10 {
		t.Fatalf("second chunk offset = %d, want 10", fv.Chunks[1].Offset)
	}
}

// TestFileVersionGetMissingAndKnownChunks checks the Saved-based partition.
func TestFileVersionGetMissingAndKnownChunks(t *testing.T) {
	fv := &FileVersion{Chunks: []*Chunk{
		descChunk(0, 10, true),
		descChunk(10, 10, false),
		descChunk(20, 10, true),
	}}
	missing := fv.GetMissingChunks()
	if len(missing) != 1 || missing[0].Offset != 10 {
		t.Fatalf("unexpected missing chunks: %+v", missing)
	}
	known := fv.GetKnownChunks()
	if len(known) != 2 {
		t.Fatalf("expected 2 known chunks, got %d", len(known))
	}
	if fv.IsComplete() {
		t.Fatal("expected IsComplete to be false with a missing chunk")
	}
}

// TestFileVersionIsCompleteAllSaved checks that a version with no missing
// chunks reports complete, including the degenerate zero-chunk case.
func TestFileVersionIsCompleteAllSaved(t *testing.T) {
	fv := &FileVersion{Chunks: []*Chunk{descChunk(0, 10, true), descChunk(10, 10, true)}}
	if !fv.IsComplete() {
		t.Fatal("expected IsComplete to be true when every chunk is saved")
	}
	empty := &FileVersion{}
	if !empty.IsComplete() {
		t.Fatal("expected a version with no chunks to be trivially complete")
	}
}

// TestFileVersionMerkleRootOrderIndependent checks that MerkleRoot is
// computed over chunks sorted by offset, so constructing the same version
// with chunks appended out of order still yields the same root.
func TestFileVersionMerkleRootOrderIndependent(t *testing.T) {
	fv1 := &FileVersion{Chunks: []*Chunk{descChunk(0, 10, true), descChunk(10, 10, true)}}
	fv2 := &FileVersion{Chunks: []*Chunk{descChunk(10, 10, true), descChunk(0, 10, true)}}

	r1, err := fv1.MerkleRoot()
	if err != nil {
		t.Fatal(err)
	}
	r2, err := fv2.MerkleRoot()
	if err != nil {
		t.Fatal(err)
	}
	if r1 != r2 {
		t.Fatal("expected MerkleRoot to be independent of chunk append order")
	}
}

// TestFileVersionMerkleRootDiffersOnContentChange checks that changing a
// chunk's identity changes the derived root.
func TestFileVersionMerkleRootDiffersOnContentChange(t *testing.T) {
	fv1 := &FileVersion{Chunks: []*Chunk{descChunk(0, 10, true)}}
	fv2 := &FileVersion{Chunks: []*Chunk{descChunk(0, 10, true)}}
	fv2.Chunks[0].Hash = "different"

	r1, _ := fv1.MerkleRoot()
	r2, _ := fv2.MerkleRoot()
	if r1 == r2 {
		t.Fatal("expected different chunk hashes to produce different merkle roots")
	}
}

// TestFileVersionToRecordRoundTrip checks that ToRecord preserves every
// field NewFileVersionFromManifest reads.
func TestFileVersionToRecordRoundTrip(t *testing.T) {
	owner := &File{RelPath: "y.bin"}
	rec := VersionRecord{
		Timestamp: 42,
		Deleted:   true,
		Username:  "alice",
		Hostname:  "host1",
		Chunks: []ChunkDescriptor{
			{HashType: crypto.HashSHA256, Length: 5, Hash: "aa"},
		},
	}
	fv := NewFileVersionFromManifest(rec, owner)
	out := fv.ToRecord()
	if out.Timestamp != rec.Timestamp || out.Deleted != rec.Deleted {
		t.Fatalf("ToRecord() = %+v, want matching fields from %+v", out, rec)
	}
	if out.Username != "alice" || out.Hostname != "host1" {
		t.Fatalf("ToRecord() did not preserve author metadata: %+v", out)
	}
	if len(out.Chunks) != 1 || out.Chunks[0].Hash != "aa" {
		t.Fatalf("ToRecord() did not preserve chunk descriptors: %+v", out.Chunks)
	}
}
