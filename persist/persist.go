package persist

import (
	"bytes"
	"compress/gzip"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
)

const (
	// DefaultDiskPermissionsTest when creating files or directories in tests.
	DefaultDiskPermissionsTest = 0750

	// defaultDirPermissions is the default permissions when creating dirs.
	defaultDirPermissions = 0700

	// defaultFilePermissions is the default permissions when creating files.
	defaultFilePermissions = 0600

	// randomBytes is the number of bytes to use to ensure sufficient randomness
	randomBytes = 20

	// tempSuffix is the suffix that is applied to the temporary/backup versions
	// of the files being persisted.
	tempSuffix = "_temp"
)

var (
	// ErrBadFilenameSuffix indicates that SaveJSON or LoadJSON was called using
	// a filename that has a bad suffix. This prevents users from trying to use
	// this package to manage the temp files - this package will manage them
	// automatically.
	ErrBadFilenameSuffix = errors.New("filename suffix not allowed")

	// ErrBadHeader indicates that the file opened is not the file that was
	// expected.
	ErrBadHeader = errors.New("wrong header")

	// ErrBadVersion indicates that the version number of the file is not
	// compatible with the current codebase.
	ErrBadVersion = errors.New("incompatible version")

	// ErrFileInUse is returned if SaveJSON or LoadJSON is called on a file
	// that's already being manipulated in another thread by the persist
	// package.
	ErrFileInUse = errors.New("another thread is saving or loading this file")
)

// Metadata contains the header and version of the data being stored. Every
// file written by SaveJSON carries Metadata alongside its object so that a
// reader can reject a file written by an incompatible version before
// decoding the object.
type Metadata struct {
	Header  string `json:"header"`
	Version string `json:"version"`
}

var (
	// activeFiles is a map tracking which filenames are currently being used
	// for saving and loading. There should never be a situation where the same
	// file is being called twice from different threads, as the persist package
	// has no way to tell what order they were intended to be called.
	activeFiles   = make(map[string]struct{})
	activeFilesMu sync.Mutex
)

func lockFile(filename string) error {
	activeFilesMu.Lock()
	defer activeFilesMu.Unlock()
	if _, ok := activeFiles[filename]; ok {
		return ErrFileInUse
	}
	activeFiles[filename] = struct{}{}
	return nil
}

func unlockFile(filename string) {
	activeFilesMu.Lock()
	defer activeFilesMu.Unlock()
	delete(activeFiles, filename)
}

func checkSuffix(filename string) error {
	if strings.HasSuffix(filename, tempSuffix) {
		return ErrBadFilenameSuffix
	}
	return nil
}

// RandomSuffix returns a 20 character base32 suffix for a filename. There are
// 100 bits of entropy, and a very low probability of colliding with existing
// files unintentionally.
func RandomSuffix() string {
	str := base32.StdEncoding.EncodeToString(fastrand.Bytes(randomBytes))
	return str[:20]
}

// UID returns a hexadecimal encoded string that can be used as a unique ID.
func UID() string {
	return hex.EncodeToString(fastrand.Bytes(randomBytes))
}

// RemoveFile removes an atomic file from disk, along with any uncommitted
// or temporary files.
func RemoveFile(filename string) error {
	if err := os.RemoveAll(filename); err != nil {
		return err
	}
	if err := os.RemoveAll(filename + tempSuffix); err != nil {
		return err
	}
	temps, err := filepath.Glob(filename + tempSuffix + "_*")
	if err != nil {
		return err
	}
	for _, tmp := range temps {
		if err := os.RemoveAll(tmp); err != nil {
			return err
		}
	}
	return nil
}

// jsonDoc is the on-disk envelope: one JSON object holding the Metadata
// header and the caller's object. It is what gets gzip-compressed (or not)
// below.
type jsonDoc struct {
	Metadata Metadata        `json:"metadata"`
	Object   json.RawMessage `json:"object"`
}

// SaveJSON writes object to filename as JSON prefixed by meta, atomically
// (write to a uniquely-suffixed temp file, fsync, rename over the target).
// If compress is true the whole document is gzipped; manifests are written
// plain so they're human-inspectable, state files are written compressed.
func SaveJSON(meta Metadata, object interface{}, filename string, compress bool) error {
	if err := checkSuffix(filename); err != nil {
		return err
	}
	if err := lockFile(filename); err != nil {
		return err
	}
	defer unlockFile(filename)

	raw, err := json.Marshal(object)
	if err != nil {
		return errors.AddContext(err, "could not marshal object")
	}
	doc := jsonDoc{Metadata: meta, Object: raw}

	var body []byte
	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if err := json.NewEncoder(zw).Encode(doc); err != nil {
			return errors.AddContext(err, "could not gzip-encode document")
		}
		if err := zw.Close(); err != nil {
			return errors.AddContext(err, "could not close gzip writer")
		}
		body = buf.Bytes()
	} else {
		body, err = json.MarshalIndent(doc, "", "\t")
		if err != nil {
			return errors.AddContext(err, "could not marshal document")
		}
	}

	if err := os.MkdirAll(filepath.Dir(filename), defaultDirPermissions); err != nil {
		return errors.AddContext(err, "could not create parent directory")
	}

	tmpFilename := filename + tempSuffix + "_" + RandomSuffix()
	f, err := os.OpenFile(tmpFilename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, defaultFilePermissions)
	if err != nil {
		return errors.AddContext(err, "could not open temp file")
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmpFilename)
		return errors.AddContext(err, "could not write temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpFilename)
		return errors.AddContext(err, "could not sync temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFilename)
		return errors.AddContext(err, "could not close temp file")
	}
	if err := os.Rename(tmpFilename, filename); err != nil {
		os.Remove(tmpFilename)
		return errors.AddContext(err, "could not rename temp file into place")
	}
	return nil
}

// LoadJSON reads a document written by SaveJSON from filename into object,
// verifying it carries the expected Metadata. Gzip-compression is detected
// automatically (by sniffing the gzip magic bytes) so callers don't need to
// know which form produced the file on disk.
func LoadJSON(meta Metadata, object interface{}, filename string) error {
	if err := checkSuffix(filename); err != nil {
		return err
	}
	if err := lockFile(filename); err != nil {
		return err
	}
	defer unlockFile(filename)

	body, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}

	var doc jsonDoc
	if isGzip(body) {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return errors.AddContext(err, "could not open gzip reader")
		}
		defer zr.Close()
		if err := json.NewDecoder(zr).Decode(&doc); err != nil {
			return errors.AddContext(err, "could not decode gzip document")
		}
	} else {
		if err := json.Unmarshal(body, &doc); err != nil {
			return errors.AddContext(err, "could not decode document")
		}
	}

	if doc.Metadata.Header != meta.Header {
		return ErrBadHeader
	}
	if doc.Metadata.Version != "" && meta.Version != "" && doc.Metadata.Version != meta.Version {
		return ErrBadVersion
	}
	return json.Unmarshal(doc.Object, object)
}

// isGzip sniffs the two-byte gzip magic number (0x1f 0x8b).
func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}
