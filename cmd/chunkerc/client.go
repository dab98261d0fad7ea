package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/uplo-tech/errors"
)

// Client is a thin HTTP client over a running chunkerd's /api surface,
// using the single GET /api/<path>?k=v&flag=on convention.
type Client struct {
	addr string
	http *http.Client
}

// NewClient builds a Client targeting addr (host:port).
func NewClient(addr string) *Client {
	return &Client{addr: addr, http: &http.Client{}}
}

// Call issues `GET /api/<cmd>/<args...>?k=v` against the daemon and decodes
// the {"status": "ok"|"error", ...} response body into a map.
func (c *Client) Call(cmd string, args []string, values url.Values) (map[string]interface{}, error) {
	segments := append([]string{cmd}, args...)
	u := url.URL{
		Scheme:   "http",
		Host:     c.addr,
		Path:     "/api/" + strings.Join(segments, "/"),
		RawQuery: values.Encode(),
	}

	resp, err := c.http.Get(u.String())
	if err != nil {
		return nil, errors.AddContext(err, "could not reach chunkerd at "+c.addr)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.AddContext(err, "could not decode chunkerd response")
	}
	if result["status"] != "ok" {
		msg, _ := result["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("chunkerd returned %s", result["status"])
		}
		return nil, errors.New(msg)
	}
	return result, nil
}
