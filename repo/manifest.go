package repo

import (
	"encoding/hex"
	"encoding/json"

	"github.com/chunkernet/chunker/chunkfile"
	"github.com/chunkernet/chunker/crypto"
	"github.com/chunkernet/chunker/persist"
	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/writeaheadlog"
)

// encodeStateUpdate packs a state file's target path and body into a
// writeaheadlog instruction blob, the same encoding.MarshalAll convention
// uplodir's persistwal.go uses for its metadata updates.
func encodeStateUpdate(path string, body []byte) []byte {
	return encoding.MarshalAll(path, body)
}

// manifestHeader is the persist.Metadata header every manifest and state
// file is tagged with, so a reader rejects a file from an incompatible
// version before decoding its body.
var manifestHeader = persist.Metadata{Header: "Chunker Manifest", Version: "1.0"}

// FileDoc is the manifest JSON shape for one File entry.
type FileDoc struct {
	Versions []chunkfile.VersionRecord `json:"versions"`
}

// ManifestDoc is the on-disk shape for both the shareable manifest
// (State == false) and the private per-node state file (State == true).
// KeyEntropy carries the actual key material and is populated only on the
// state form: the manifest form is meant to be handed to other nodes, and
// encryption keys are given out of band, never embedded in something
// shared.
type ManifestDoc struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	UUID       string             `json:"uuid"`
	Key        string             `json:"key,omitempty"`
	KeyEntropy string             `json:"key_entropy,omitempty"`
	Peers      []string           `json:"peers,omitempty"`
	Root       string             `json:"root,omitempty"`
	State      bool               `json:"state"`
	Files      map[string]FileDoc `json:"files"`
}

// ToManifest renders the repo into the shareable manifest form: omits root
// and per-chunk saved flags, and includes only the latest version of each
// file.
func (r *Repo) ToManifest() ManifestDoc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := ManifestDoc{
		Name:  r.Name,
		Type:  string(r.Type),
		UUID:  r.UUID,
		Files: make(map[string]FileDoc, len(r.Files)),
	}
	if r.Key != nil && r.Key.Type() != crypto.TypePlain {
		doc.Key = r.Key.Type().String()
	}
	for _, p := range r.Peers {
		doc.Peers = append(doc.Peers, p.Addr)
	}
	for path, f := range r.Files {
		cv := f.CurrentVersion()
		if cv == nil {
			continue
		}
		doc.Files[path] = FileDoc{Versions: []chunkfile.VersionRecord{cv.ToRecord()}}
	}
	return doc
}

// ToState renders the repo into the private state form: full version
// history, root, and per-chunk saved flags travel via ChunkDescriptor plus
// a side Validate pass on load (Saved is re-derived, never itself
// serialized, so the state form's chunks are identical to the manifest
// form's — the distinguishing content is Root and the full version list).
func (r *Repo) ToState() ManifestDoc {
	doc := r.ToManifest()
	doc.State = true
	doc.Root = r.Root
	if r.Key != nil && r.Key.Type() != crypto.TypePlain {
		doc.KeyEntropy = hex.EncodeToString(r.Key.Key())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for path, f := range r.Files {
		var recs []chunkfile.VersionRecord
		for _, v := range f.Versions {
			recs = append(recs, v.ToRecord())
		}
		doc.Files[path] = FileDoc{Versions: recs}
	}
	return doc
}

// SaveManifest writes the shareable manifest to path, plaintext JSON by
// default (compress=false) so a user-chosen manifest path stays
// human-inspectable.
func (r *Repo) SaveManifest(path string, compress bool) error {
	return persist.SaveJSON(manifestHeader, r.ToManifest(), path, compress)
}

// LoadManifestOrState reads either manifest form from path (gzip or
// plaintext auto-detected by persist.LoadJSON).
func LoadManifestOrState(path string) (ManifestDoc, error) {
	var doc ManifestDoc
	if err := persist.LoadJSON(manifestHeader, &doc, path); err != nil {
		return ManifestDoc{}, errors.Compose(ErrManifestCorrupt, err)
	}
	if doc.UUID == "" || doc.Files == nil {
		return ManifestDoc{}, ErrManifestCorrupt
	}
	return doc, nil
}

// FromDoc reconstructs a live Repo from a loaded ManifestDoc: every file's
// version history is replayed through Update so the usual merge/materialize
// path runs exactly as it would for any other source.
//
// A state file carries KeyEntropy (its own process's private persistence,
// never shared) and so reconstructs its real key. A shareable manifest
// carries only the cipher type name, never key material: encryption keys
// are given out of band, so FromDoc leaves the key nil in that case and
// relies on the caller to supply the real key (e.g. core.Add's key
// parameter) rather than fabricating one, which would silently produce a
// repo that can never decrypt its own chunks.
func FromDoc(doc ManifestDoc, wal *writeaheadlog.WAL, log *persist.Logger) (*Repo, error) {
	var key crypto.CipherKey
	if doc.KeyEntropy != "" {
		var ct crypto.CipherType
		if err := ct.FromString(doc.Key); err != nil {
			return nil, err
		}
		entropy, err := hex.DecodeString(doc.KeyEntropy)
		if err != nil {
			return nil, errors.AddContext(err, "corrupt key entropy in state file")
		}
		key, err = crypto.NewCipherKey(ct, entropy)
		if err != nil {
			return nil, err
		}
	}

	r := New(doc.UUID, doc.Name, Type(doc.Type), doc.Root, key, wal, log)
	for _, addr := range doc.Peers {
		r.Peers = append(r.Peers, &Peer{Addr: addr})
	}
	for path, fd := range doc.Files {
		for _, rec := range fd.Versions {
			if err := r.Update(path, rec); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// saveStateWAL persists the full state form durably via a single
// writeaheadlog transaction carrying the gzip-compressed JSON body, the
// same two-phase durability pattern (NewTransaction /
// SignalSetupComplete / apply / SignalUpdatesApplied) used for
// uplofile's on-disk format, collapsed to one whole-file overwrite update
// since state files are small JSON blobs rather than page-structured
// binaries.
func (r *Repo) saveStateWAL() (err error) {
	if r.wal == nil {
		return persist.SaveJSON(manifestHeader, r.ToState(), r.StatePath(), true)
	}

	body, err := json.Marshal(r.ToState())
	if err != nil {
		return err
	}
	update := writeaheadlog.Update{
		Name:         "chunker state overwrite",
		Instructions: encodeStateUpdate(r.StatePath(), body),
	}

	txn, err := r.wal.NewTransaction([]writeaheadlog.Update{update})
	if err != nil {
		return errors.AddContext(err, "failed to create wal txn")
	}
	if err := <-txn.SignalSetupComplete(); err != nil {
		return errors.AddContext(err, "failed to signal setup completion")
	}
	defer func() {
		if err != nil {
			panic(err)
		}
	}()
	if err := persist.SaveJSON(manifestHeader, r.ToState(), r.StatePath(), true); err != nil {
		return errors.AddContext(err, "failed to apply state update")
	}
	if err := txn.SignalUpdatesApplied(); err != nil {
		return errors.AddContext(err, "failed to signal updates applied")
	}
	return nil
}
