package repo

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/chunkernet/chunker/chunkfile"
)

const (
	keepaliveInterval     = 60 * time.Second
	unreachableThreshold  = 300 * time.Second
	idlePollInterval      = 1 * time.Second
	noPeersPollInterval   = 5 * time.Second
)

// packet is one arrival from a Peer, tagged with its sender so the net loop
// can update LastPong and route the payload.
type packet struct {
	from *Peer
	data []byte
}

// wireMessage is the command vocabulary exchanged over the peer transport:
// `{"cmd":"get-status","since":<ts>}` and friends. offer/request carry
// chunk identity strings for the `fetch` command's known/missing exchange;
// the DHT offer/request step that turns a chunk id into an
// (external_ip, external_port) pair is a peer-finder collaborator, out of
// this engine's scope.
type wireMessage struct {
	Cmd    string   `json:"cmd"`
	Since  int64    `json:"since,omitempty"`
	Chunks []string `json:"chunks,omitempty"`
	ID     string   `json:"id,omitempty"`
	Data   string   `json:"data,omitempty"` // base64, only set for cmd "chunk"
}

// startNetLoop launches the per-repo peer synchronization worker. The
// spec's select()-over-many-fds reactor is restated in Go's native
// concurrency idiom: one reader goroutine per Peer blocks on Peer.Recv and
// forwards arrivals on a shared packets channel; this goroutine selects
// over that channel with a ticking timer reproducing the 1s/5s/60s/300s
// cadence, instead of a raw syscall select. It exits when the repo's
// threadgroup is stopped.
func (r *Repo) startNetLoop() error {
	if err := r.threads.Add(); err != nil {
		return err
	}
	packets := make(chan packet, 32)

	r.mu.RLock()
	for _, p := range r.Peers {
		r.spawnPeerReader(p, packets)
	}
	r.mu.RUnlock()

	go func() {
		defer r.threads.Done()
		r.netLoop(packets)
	}()
	return nil
}

// spawnPeerReader starts the per-Peer reader goroutine. It must itself
// observe the threadgroup stop signal so Stop() can join deterministically
// even while a peer's Recv is blocked — it does this with a short read
// deadline rather than an unbounded blocking read.
func (r *Repo) spawnPeerReader(p *Peer, packets chan<- packet) {
	if err := r.threads.Add(); err != nil {
		return
	}
	go func() {
		defer r.threads.Done()
		buf := make([]byte, 64*1024)
		for {
			select {
			case <-r.threads.StopChan():
				return
			default:
			}
			p.SetReadDeadline(time.Now().Add(idlePollInterval))
			n, err := p.Recv(buf)
			if err != nil {
				continue // timeout or transient error; re-check stop and retry
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case packets <- packet{from: p, data: data}:
			case <-r.threads.StopChan():
				return
			}
		}
	}()
}

func (r *Repo) netLoop(packets <-chan packet) {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.threads.StopChan():
			return

		case pkt := <-packets:
			pkt.from.Touch()
			r.handlePacket(pkt)

		case <-ticker.C:
			r.mu.RLock()
			peers := append([]*Peer(nil), r.Peers...)
			r.mu.RUnlock()

			if len(peers) == 0 {
				time.Sleep(noPeersPollInterval - idlePollInterval)
				continue
			}

			now := time.Now()
			for _, p := range peers {
				if p.NeedsKeepalive(now, keepaliveInterval) {
					msg, _ := json.Marshal(wireMessage{Cmd: "get-status", Since: 0})
					if err := p.Send(msg); err == nil {
						p.MarkPinged(now)
					}
				}
				if p.Unreachable(now, unreachableThreshold) && r.log != nil {
					r.log.Println("peer unreachable:", p.Addr)
				}
			}
		}
	}
}

func (r *Repo) handlePacket(pkt packet) {
	var msg wireMessage
	if err := json.Unmarshal(pkt.data, &msg); err != nil {
		return
	}
	switch msg.Cmd {
	case "get-status":
		// Peer is asking what's changed since msg.Since; answering is the
		// adapter-level sync protocol, out of scope for the engine itself —
		// peer-finder and wire protocol beyond "hand me a Peer" are
		// external collaborators.
	case "request":
		r.mu.RLock()
		var chunks []*chunkfile.Chunk
		for _, f := range r.Files {
			chunks = append(chunks, f.GetKnownChunks()...)
		}
		r.mu.RUnlock()
		for _, want := range msg.Chunks {
			for _, c := range chunks {
				if c.Identity() == want {
					if data := c.GetData(r.Key); data != nil {
						reply, err := json.Marshal(wireMessage{
							Cmd:  "chunk",
							ID:   want,
							Data: base64.StdEncoding.EncodeToString(data),
						})
						if err == nil {
							pkt.from.Send(reply) //nolint:errcheck
						}
					}
					break
				}
			}
		}
	case "chunk":
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			return
		}
		if err := r.AddChunk(msg.ID, data); err != nil && r.log != nil {
			r.log.Println("failed to apply received chunk", msg.ID, ":", err)
		}
	case "offer":
		r.mu.RLock()
		var missing []*chunkfile.Chunk
		for _, f := range r.Files {
			missing = append(missing, f.GetMissingChunks()...)
		}
		r.mu.RUnlock()

		var want []string
		for _, offered := range msg.Chunks {
			for _, m := range missing {
				if m.Identity() == offered {
					want = append(want, offered)
					break
				}
			}
		}
		if len(want) > 0 {
			reply, _ := json.Marshal(wireMessage{Cmd: "request", Chunks: want})
			pkt.from.Send(reply) //nolint:errcheck
		}
	}
}

// OfferAndRequest implements the `fetch` command: every peer is sent an
// offer of this repo's known chunk identities, prompting them to request
// back whatever of those identities they're missing.
func (r *Repo) OfferAndRequest() error {
	r.mu.RLock()
	var known []*chunkfile.Chunk
	for _, f := range r.Files {
		known = append(known, f.GetKnownChunks()...)
	}
	peers := append([]*Peer(nil), r.Peers...)
	r.mu.RUnlock()

	ids := make([]string, len(known))
	for i, c := range known {
		ids[i] = c.Identity()
	}
	msg, err := json.Marshal(wireMessage{Cmd: "offer", Chunks: ids})
	if err != nil {
		return err
	}
	for _, p := range peers {
		if err := p.Send(msg); err != nil && r.log != nil {
			r.log.Println("fetch offer failed for peer", p.Addr, ":", err)
		}
	}
	return nil
}
