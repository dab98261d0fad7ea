package core

import (
	"encoding/hex"

	"github.com/chunkernet/chunker/crypto"
	"github.com/chunkernet/chunker/repo"
	"github.com/uplo-tech/errors"
)

// ErrBadArgs is returned by Dispatch when a command is missing a required
// positional or optional argument.
var ErrBadArgs = errors.New("missing or invalid arguments")

// Result is the {"status": "ok"|"error", ...} payload shape shared by both
// the CLI's stdout and the HTTP surface's response body.
type Result map[string]interface{}

func ok(fields Result) Result {
	if fields == nil {
		fields = Result{}
	}
	fields["status"] = "ok"
	return fields
}

// Dispatch runs one of the command-set entries (create, add, remove,
// heal, fetch, list, state, quit) against c. positional and optional follow
// the same shape api.ParseCommandPath and the CLI's flag parser both
// produce, so a single dispatch table serves every adapter.
func (c *Core) Dispatch(cmd string, positional []string, optional map[string]interface{}) (Result, error) {
	switch cmd {
	case "create":
		return c.dispatchCreate(optional)
	case "add":
		return c.dispatchAdd(optional)
	case "remove":
		return c.dispatchRemove(optional)
	case "heal":
		return c.dispatchHeal()
	case "fetch":
		return c.dispatchFetch()
	case "list":
		return c.dispatchList()
	case "state":
		return c.dispatchState()
	case "quit":
		return c.dispatchQuit()
	default:
		return nil, errors.New("unknown command: " + cmd)
	}
}

func stringOpt(optional map[string]interface{}, key string) (string, bool) {
	v, ok := optional[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolOpt(optional map[string]interface{}, key string) bool {
	v, ok := optional[key].(bool)
	return ok && v
}

// keyFromOption builds a CipherKey from the "key" option's hex-encoded
// entropy: the caller (chunkerc's mnemonic decoding, or a direct hex
// value) supplies the raw key material, never a generated one. Absent the
// option, the repo is unencrypted.
func keyFromOption(optional map[string]interface{}) (crypto.CipherKey, error) {
	ks, present := stringOpt(optional, "key")
	if !present || ks == "" {
		return nil, nil
	}
	entropy, err := hex.DecodeString(ks)
	if err != nil {
		return nil, errors.AddContext(err, "key option is not valid hex")
	}
	return crypto.NewCipherKey(crypto.TypeDefault, entropy)
}

func (c *Core) dispatchCreate(optional map[string]interface{}) (Result, error) {
	chunkfilePath, ok1 := stringOpt(optional, "chunkfile")
	directory, ok2 := stringOpt(optional, "directory")
	if !ok1 || !ok2 {
		return nil, ErrBadArgs
	}
	name, _ := stringOpt(optional, "name")
	typ := repo.TypeStatic
	if t, present := stringOpt(optional, "type"); present && t == string(repo.TypeShare) {
		typ = repo.TypeShare
	}

	key, err := keyFromOption(optional)
	if err != nil {
		return nil, err
	}

	r, err := c.Create(chunkfilePath, name, directory, typ, key, boolOpt(optional, "add"))
	if err != nil {
		return nil, err
	}
	return ok(Result{"uuid": r.UUID}), nil
}

func (c *Core) dispatchAdd(optional map[string]interface{}) (Result, error) {
	chunkfilePath, present := stringOpt(optional, "chunkfile")
	if !present {
		return nil, ErrBadArgs
	}
	directory, _ := stringOpt(optional, "directory")
	name, _ := stringOpt(optional, "name")

	key, err := keyFromOption(optional)
	if err != nil {
		return nil, err
	}

	r, err := c.Add(chunkfilePath, directory, name, key)
	if err != nil {
		return nil, err
	}
	return ok(Result{"uuid": r.UUID}), nil
}

func (c *Core) dispatchRemove(optional map[string]interface{}) (Result, error) {
	uuidStr, present := stringOpt(optional, "uuid")
	if !present {
		return nil, ErrBadArgs
	}
	if err := c.Remove(uuidStr); err != nil {
		return nil, err
	}
	return ok(nil), nil
}

func (c *Core) dispatchHeal() (Result, error) {
	return ok(Result{"bytes_healed": c.Heal()}), nil
}

func (c *Core) dispatchFetch() (Result, error) {
	for _, r := range c.List() {
		if err := r.OfferAndRequest(); err != nil {
			return nil, err
		}
	}
	return ok(nil), nil
}

func (c *Core) dispatchList() (Result, error) {
	var repos []Result
	for _, r := range c.List() {
		complete, total := r.Summary()
		repos = append(repos, Result{
			"uuid":           r.UUID,
			"name":           r.Name,
			"type":           string(r.Type),
			"files_complete": complete,
			"files_total":    total,
		})
	}
	return ok(Result{"repos": repos}), nil
}

func (c *Core) dispatchState() (Result, error) {
	var repos []interface{}
	for _, r := range c.List() {
		repos = append(repos, r.ToState())
	}
	return ok(Result{"repos": repos}), nil
}

func (c *Core) dispatchQuit() (Result, error) {
	for _, r := range c.List() {
		if err := r.Stop(); err != nil {
			return nil, err
		}
	}
	return ok(nil), nil
}
