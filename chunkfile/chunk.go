package chunkfile

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chunkernet/chunker/crypto"
	"github.com/uplo-tech/errors"
)

// ErrIntegrityFailure names the case of a chunk's declared hash not matching
// its on-disk bytes. No function in this package returns it: a mismatch is
// non-fatal and self-correcting, so Validate just leaves Saved false.
var ErrIntegrityFailure = errors.New("chunk hash does not match declared value")

// Chunk identifies and bounds a contiguous byte range of a File's current
// on-disk contents. Two chunks with the same Identity() are interchangeable
// — that's the basis for self-healing (healer.SelfHeal).
type Chunk struct {
	HashType crypto.HashType
	Length   uint64
	Hash     string // lowercase hex digest
	Offset   uint64
	Saved    bool

	// file is a weak, non-owning back-reference set by the FileVersion
	// constructors; never nil during normal operation, and never touched
	// concurrently outside of Repo's lock.
	file *File
}

// Identity returns the chunk-identity string "{hash_type}:{length}:{hash}"
// used to match interchangeable chunks across files.
func (c *Chunk) Identity() string {
	return fmt.Sprintf("%s:%d:%s", c.HashType.String(), c.Length, c.Hash)
}

// Validate reads the chunk's byte range from disk, recomputes its hash, and
// updates Saved accordingly. Reads that fail (missing file, short read, I/O
// error) leave Saved false without returning an error.
func (c *Chunk) Validate() {
	data, err := c.readRange()
	if err != nil {
		c.Saved = false
		return
	}
	digest, err := crypto.HashBytes(c.HashType, data)
	if err != nil {
		c.Saved = false
		return
	}
	c.Saved = digest == c.Hash
}

func (c *Chunk) readRange() ([]byte, error) {
	if c.file == nil {
		return nil, errors.New("chunk has no owning file")
	}
	f, err := os.Open(c.file.AbsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, c.Length)
	if _, err := f.ReadAt(buf, int64(c.Offset)); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// GetData returns the chunk's raw bytes, optionally encrypted for wire
// transfer if key is non-nil. It returns nil on any read error rather than
// propagating one.
func (c *Chunk) GetData(key crypto.CipherKey) []byte {
	data, err := c.readRange()
	if err != nil {
		return nil
	}
	if key == nil {
		return data
	}
	id := chunkKeyID(c.HashType, c.Offset, c.Length)
	return []byte(key.Derive(id).EncryptBytes(data))
}

// SaveData writes data at the chunk's offset, marks it saved, and applies
// the timestamp policy: a partially downloaded file must remain visibly
// "not yet complete" to external tools (observable via its mtime), and
// becomes dated-at-source only once every chunk in the version is saved.
// completeTimestamp is the version's declared timestamp; complete reports
// whether this write finished the last missing chunk.
func (c *Chunk) SaveData(data []byte, completeTimestamp int64, complete bool) error {
	if c.file == nil {
		return errors.New("chunk has no owning file")
	}

	existed := true
	info, err := os.Stat(c.file.AbsPath)
	if os.IsNotExist(err) {
		existed = false
	} else if err != nil {
		return err
	}

	var priorAtime, priorMtime time.Time
	if existed {
		priorAtime = info.ModTime() // best-effort; access time isn't portable via os.FileInfo
		priorMtime = info.ModTime()
	}

	f, err := os.OpenFile(c.file.AbsPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(data, int64(c.Offset)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.Saved = true

	var newMtime time.Time
	if complete {
		newMtime = time.Unix(completeTimestamp, 0)
	} else if existed {
		newMtime = priorMtime
	} else {
		newMtime = time.Unix(0, 0)
	}
	if !existed {
		priorAtime = time.Unix(0, 0)
	}
	return os.Chtimes(c.file.AbsPath, priorAtime, newMtime)
}
