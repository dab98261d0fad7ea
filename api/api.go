// Package api exposes the engine's command set over HTTP: GET /api/<path>
// maps to a positional/optional argument call, and GET
// /download/<uuid>/<name>.chunker exports a manifest.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chunkernet/chunker/core"
	"github.com/julienschmidt/httprouter"
)

// API wraps a *core.Core with an httprouter.Router.
type API struct {
	router *httprouter.Router
	core   *core.Core
}

// New builds an API surface over c.
func New(c *core.Core) *API {
	a := &API{router: httprouter.New(), core: c}
	a.router.GET("/api/*path", a.apiHandler)
	a.router.GET("/download/:uuid/:name", a.downloadHandler)
	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	a.router.ServeHTTP(w, req)
}

// commandArgs is the positional/optional argument shape produced by mapping
// a /api/<path>?k=v&flag=on request.
type commandArgs struct {
	Positional []string               `json:"positional"`
	Optional   map[string]interface{} `json:"optional"`
}

// ParseCommandPath maps path (the wildcard captured after /api/) and query
// values into a commandArgs: path segments become positional args, query
// keys become long options, and the literal value "on" becomes a boolean
// flag. It is exported so the mapping rule has a single definition;
// cmd/chunkerc builds its request URLs directly and does not call it.
func ParseCommandPath(path string, query map[string][]string) commandArgs {
	args := commandArgs{Optional: make(map[string]interface{})}
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			args.Positional = append(args.Positional, seg)
		}
	}
	for k, vs := range query {
		if len(vs) == 0 {
			continue
		}
		if vs[0] == "on" {
			args.Optional[k] = true
		} else {
			args.Optional[k] = vs[0]
		}
	}
	return args
}

func (a *API) apiHandler(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
	args := ParseCommandPath(ps.ByName("path"), req.URL.Query())
	if len(args.Positional) == 0 {
		writeError(w, http.StatusBadRequest, "missing command")
		return
	}

	result, err := a.core.Dispatch(args.Positional[0], args.Positional[1:], args.Optional)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) downloadHandler(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	r, err := a.core.Get(ps.ByName("uuid"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/chunker")
	if err := json.NewEncoder(w).Encode(r.ToManifest()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
