// Package socket is the raw socket factory collaborator: it opens the
// shared multicast listen socket bound to :5353 (SO_REUSEADDR/SO_REUSEPORT,
// joined to 224.0.0.251 on each selected interface) and one per-interface
// responder socket with IP_MULTICAST_IF pinned, so outgoing multicast
// always egresses the interface it was built for.
package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"golang.org/x/net/ipv4"

	mdnserrors "github.com/linklocal/mdns/internal/errors"
)

// Port is the mDNS well-known UDP port (RFC 6762 §5).
const Port = 5353

// GroupIPv4 is the mDNS IPv4 multicast group address.
const GroupIPv4 = "224.0.0.251"

var groupAddr = net.IPv4(224, 0, 0, 251)

// MaxDatagramSize is the receive buffer size: RFC 6762 §17 allows mDNS
// messages up to 9000 bytes ("jumbo" Ethernet frames), well above the
// classic 512-byte DNS limit.
const MaxDatagramSize = 9000

// Listen opens the shared UDP socket bound to 0.0.0.0:5353 with
// SO_REUSEADDR/SO_REUSEPORT (so it can coexist with Avahi, Bonjour, or
// systemd-resolved on the same host) and joins the mDNS group on every
// interface in ifaces. At least one interface must accept the join.
func Listen(ifaces []net.Interface) (*ipv4.PacketConn, error) {
	lc := net.ListenConfig{Control: platformControl}

	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf("0.0.0.0:%d", Port))
	if err != nil {
		return nil, &mdnserrors.NetworkError{
			Operation: "listen",
			Err:       err,
			Details:   fmt.Sprintf("bind 0.0.0.0:%d", Port),
		}
	}

	p := ipv4.NewPacketConn(conn)

	joined := 0
	for _, i := range ifaces {
		ifaceCopy := i
		if err := p.JoinGroup(&ifaceCopy, &net.UDPAddr{IP: groupAddr}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		_ = conn.Close()
		return nil, &mdnserrors.NetworkError{
			Operation: "join multicast group",
			Err:       fmt.Errorf("no interface accepted the join"),
			Details:   fmt.Sprintf("%s on %d candidate interfaces", GroupIPv4, len(ifaces)),
		}
	}

	if err := p.SetMulticastTTL(255); err != nil {
		_ = conn.Close()
		return nil, &mdnserrors.NetworkError{Operation: "set multicast TTL", Err: err}
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		_ = conn.Close()
		return nil, &mdnserrors.NetworkError{Operation: "set multicast loopback", Err: err}
	}
	if udpConn, ok := conn.(*net.UDPConn); ok {
		_ = udpConn.SetReadBuffer(65536)
	}

	return p, nil
}

// Responder is a per-interface sending socket with IP_MULTICAST_IF pinned
// to that interface, so a node with several interfaces sends each
// multicast packet out the interface it was built for rather than
// whichever the OS routing table happens to pick.
type Responder struct {
	Iface net.Interface
	conn  *ipv4.PacketConn
}

// OpenResponders opens one Responder per interface in ifaces.
func OpenResponders(ifaces []net.Interface) ([]*Responder, error) {
	out := make([]*Responder, 0, len(ifaces))
	for _, i := range ifaces {
		r, err := openResponder(i)
		if err != nil {
			for _, opened := range out {
				_ = opened.Close()
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func openResponder(i net.Interface) (*Responder, error) {
	lc := net.ListenConfig{Control: platformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", "0.0.0.0:0")
	if err != nil {
		return nil, &mdnserrors.NetworkError{
			Operation: "open responder socket",
			Err:       err,
			Details:   i.Name,
		}
	}

	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastInterface(&i); err != nil {
		_ = conn.Close()
		return nil, &mdnserrors.NetworkError{
			Operation: "set multicast interface",
			Err:       err,
			Details:   i.Name,
		}
	}
	_ = p.SetMulticastTTL(255)
	_ = p.SetMulticastLoopback(true)

	return &Responder{Iface: i, conn: p}, nil
}

// SendMulticast transmits payload to the mDNS group on this responder's
// interface.
func (r *Responder) SendMulticast(payload []byte) error {
	return r.sendTo(payload, &net.UDPAddr{IP: groupAddr, Port: Port})
}

// SendUnicast transmits payload to a specific destination (legacy port-53
// clients, or a query's requester for a unicast-only response).
func (r *Responder) SendUnicast(payload []byte, dst *net.UDPAddr) error {
	return r.sendTo(payload, dst)
}

func (r *Responder) sendTo(payload []byte, dst *net.UDPAddr) error {
	n, err := r.conn.WriteTo(payload, nil, dst)
	if err != nil {
		return &mdnserrors.NetworkError{
			Operation: "send",
			Err:       err,
			Details:   fmt.Sprintf("%s -> %s", r.Iface.Name, dst),
		}
	}
	if n != len(payload) {
		return &mdnserrors.NetworkError{
			Operation: "send",
			Err:       fmt.Errorf("short write: %d/%d bytes", n, len(payload)),
			Details:   r.Iface.Name,
		}
	}
	return nil
}

// Close releases the responder's socket.
func (r *Responder) Close() error { return r.conn.Close() }

// AddrString formats an IPv4 address and port for logging.
func AddrString(ip net.IP, port int) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, MaxDatagramSize)
		return &buf
	},
}

// GetBuffer returns a pooled MaxDatagramSize-byte receive buffer. Callers
// must return it with PutBuffer.
func GetBuffer() *[]byte { return bufferPool.Get().(*[]byte) }

// PutBuffer returns buf to the pool.
func PutBuffer(buf *[]byte) { bufferPool.Put(buf) }
