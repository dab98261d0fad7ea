package chunkfile

import (
	"io"
	"os"

	"github.com/chunkernet/chunker/crypto"
)

// ChunkSize is the fixed slice size used by FixedChunker: 1 MiB.
const ChunkSize = 1 << 20

// ChunkDescriptor is a single slice produced by a Chunker: an offset/length
// pair and the hash of the bytes at that range, under HashType. Hash is
// computed over whatever form travels on the wire for the repo (plaintext
// for unencrypted repos, ciphertext when a key is set) — see
// crypto.CipherKey.
//
// Offset is never marshaled: the manifest form omits it (offsets are the
// running sum of a version's chunk lengths, recomputed by
// NewFileVersionFromManifest), so the JSON shape is just
// {"hash_type":"sha256","length":...,"hash":"..."}.
type ChunkDescriptor struct {
	Offset   uint64          `json:"-"`
	Length   uint64          `json:"length"`
	HashType crypto.HashType `json:"hash_type"`
	Hash     string          `json:"hash"`
}

// Chunker splits a file on disk into an ordered sequence of ChunkDescriptors.
// It is an interface so the fixed-size scheme can be swapped for a
// content-defined one without touching FileVersion or File. Only
// FixedChunker ships.
type Chunker interface {
	Chunk(path string, ht crypto.HashType, key crypto.CipherKey) ([]ChunkDescriptor, error)
}

// FixedChunker slices a file into ChunkSize-byte records, the final record
// holding the tail (strictly > 0 bytes; an exact multiple of ChunkSize omits
// a trailing empty record).
type FixedChunker struct{}

// Chunk implements Chunker.
func (FixedChunker) Chunk(path string, ht crypto.HashType, key crypto.CipherKey) ([]ChunkDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var descs []ChunkDescriptor
	buf := make([]byte, ChunkSize)
	var offset uint64
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			payload := buf[:n]
			if key != nil {
				id := chunkKeyID(ht, offset, uint64(n))
				payload = []byte(key.Derive(id).EncryptBytes(payload))
			}
			digest, herr := crypto.HashBytes(ht, payload)
			if herr != nil {
				return nil, herr
			}
			descs = append(descs, ChunkDescriptor{
				Offset:   offset,
				Length:   uint64(n),
				HashType: ht,
				Hash:     digest,
			})
			offset += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return descs, nil
}

// chunkKeyID builds the identity string a per-chunk encryption key (and its
// deterministic nonce) is derived from. It is offset/length-based rather
// than hash-based because FixedChunker must derive the key before the final
// hash is known, at scan time; Chunk.GetData re-derives the same id from the
// same (HashType, Offset, Length) triple stored on the Chunk so a chunk's
// ciphertext — and the hash recorded for it — never changes between scan
// time and a later wire re-encryption. Offset and length alone are
// sufficient to make each chunk's derived key unique within a file, since
// FixedChunker never produces overlapping ranges.
func chunkKeyID(ht crypto.HashType, offset, length uint64) string {
	return ht.String() + ":" + itoa(offset) + ":" + itoa(length)
}

func itoa(v uint64) string {
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
