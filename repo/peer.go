package repo

import (
	"net"
	"sync"
	"time"

	connmonitor "github.com/uplo-tech/monitor"
	"github.com/uplo-tech/ratelimit"
)

// Peer is a datagram-oriented remote endpoint the net loop synchronizes
// with. The engine manages LastPing/LastPong; everything about discovering
// peers (LAN broadcast, DHT) is handed in by the caller, not discovered by
// this package.
type Peer struct {
	Addr string // stable, sortable address, e.g. "203.0.113.4:54545"

	conn *net.UDPConn
	rl   *ratelimit.RateLimit
	mon  *connmonitor.Monitor

	mu       sync.Mutex
	LastPing time.Time
	LastPong time.Time
}

// NewPeer dials addr over UDP and allocates a rate limiter and a
// byte-counting monitor for the peer. Send and Recv use the raw connection,
// so neither rate limiting nor byte counting is applied to its traffic.
func NewPeer(addr string) (*Peer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &Peer{
		Addr: addr,
		conn: conn,
		rl:   ratelimit.NewRateLimit(0, 0, 0),
		mon:  connmonitor.NewMonitor(),
	}, nil
}

// Send writes a packet to the peer.
func (p *Peer) Send(b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

// Recv blocks until a packet arrives or the read deadline set by the caller
// elapses.
func (p *Peer) Recv(buf []byte) (int, error) {
	return p.conn.Read(buf)
}

// SetReadDeadline forwards to the underlying connection, letting the net
// loop poll without blocking forever.
func (p *Peer) SetReadDeadline(t time.Time) error {
	return p.conn.SetReadDeadline(t)
}

// Close releases the peer's socket.
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Touch records that a packet was just received.
func (p *Peer) Touch() {
	p.mu.Lock()
	p.LastPong = time.Now()
	p.mu.Unlock()
}

// NeedsKeepalive reports whether it has been at least keepaliveInterval
// since the last ping and the last pong.
func (p *Peer) NeedsKeepalive(now time.Time, keepaliveInterval time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.LastPing) >= keepaliveInterval && now.Sub(p.LastPong) >= keepaliveInterval
}

// MarkPinged records that a keepalive was just sent.
func (p *Peer) MarkPinged(now time.Time) {
	p.mu.Lock()
	p.LastPing = now
	p.mu.Unlock()
}

// Unreachable reports whether the peer has not answered within
// unreachableThreshold.
func (p *Peer) Unreachable(now time.Time, unreachableThreshold time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.LastPong) >= unreachableThreshold
}
