package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/uplo-tech/errors"
	"golang.org/x/crypto/sha3"
)

// HashSize is the size, in bytes, of the digests produced by the default
// hash algorithm (sha256).
const HashSize = 32

// Hash is a generic 32-byte digest, used for repo uuids and derived
// FileVersion merkle roots.
type Hash [HashSize]byte

// HashType is an identifier for the hash algorithms chunk identities may be
// declared under. It is a closed variant set: sha256 and sha3_256 are valid
// for new chunks, md5 is accepted only when reading legacy manifests.
type HashType [8]byte

var (
	// HashSHA256 is the default hash algorithm for new chunks.
	HashSHA256 = HashType{'s', 'h', 'a', '2', '5', '6', 0, 0}
	// HashSHA3256 is an alternate hash algorithm for new chunks.
	HashSHA3256 = HashType{'s', 'h', 'a', '3', '_', '2', '5', '6'}
	// HashMD5Legacy is accepted only for reading manifests written before
	// the closed variant set was introduced; never used for new writes.
	HashMD5Legacy = HashType{'m', 'd', '5', 0, 0, 0, 0, 0}
)

// ErrInvalidHashType is returned by FromString when the string does not name
// a known algorithm.
var ErrInvalidHashType = errors.New("unrecognized hash_type")

// String renders a HashType in the same lowercase form used in manifest
// JSON and chunk identity strings.
func (ht HashType) String() string {
	switch ht {
	case HashSHA256:
		return "sha256"
	case HashSHA3256:
		return "sha3_256"
	case HashMD5Legacy:
		return "md5"
	default:
		return ""
	}
}

// FromString parses a manifest's hash_type field into a HashType.
func (ht *HashType) FromString(s string) error {
	switch s {
	case "sha256":
		*ht = HashSHA256
	case "sha3_256":
		*ht = HashSHA3256
	case "md5":
		*ht = HashMD5Legacy
	default:
		return ErrInvalidHashType
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler so a HashType serializes
// in manifest/state JSON as its String() form ("sha256") rather than as a
// raw byte array.
func (ht HashType) MarshalText() ([]byte, error) {
	s := ht.String()
	if s == "" {
		return nil, ErrInvalidHashType
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, the inverse of
// MarshalText.
func (ht *HashType) UnmarshalText(text []byte) error {
	return ht.FromString(string(text))
}

// IsValidHashType reports whether ht is one of the known variants.
func IsValidHashType(ht HashType) bool {
	switch ht {
	case HashSHA256, HashSHA3256, HashMD5Legacy:
		return true
	default:
		return false
	}
}

// New returns a fresh hash.Hash implementing ht, or an error if ht is
// unrecognized.
func (ht HashType) New() (hash.Hash, error) {
	switch ht {
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA3256:
		return sha3.New256(), nil
	case HashMD5Legacy:
		return md5.New(), nil
	default:
		return nil, ErrInvalidHashType
	}
}

// HashBytes hashes data with ht and returns the lowercase hex digest used in
// manifest JSON and chunk identity strings.
func HashBytes(ht HashType, data []byte) (string, error) {
	h, err := ht.New()
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumSHA256 returns the sha256 digest of data as a Hash, used for repo uuid
// derivation (sha256 of a random UUID).
func SumSHA256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// TSRound implements the timestamp quantization rule shared by the whole
// engine: ceiling to the next even integer second, with zero mapping to
// zero. The least-accurate supported filesystem has 2-second granularity,
// so comparing timestamps across filesystems requires this agreement.
func TSRound(t float64) int64 {
	if t <= 0 {
		return 0
	}
	n := int64(t)
	if float64(n) < t {
		n++
	}
	if n%2 != 0 {
		n++
	}
	return n
}
