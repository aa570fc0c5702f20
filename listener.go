package mdns

import (
	"net"

	"github.com/dogmatiq/dodeca/logging"

	"github.com/linklocal/mdns/internal/socket"
	"github.com/linklocal/mdns/internal/wire"
)

// maxDatagramSize bounds a single read; RFC 6762 §17 allows mDNS messages
// up to 9000 bytes, but 8972 (a 9000-byte jumbo-frame MTU minus the 20-byte
// IPv4 and 8-byte UDP headers) is the figure this node actually parses in
// one read.
const maxDatagramSize = 8972

// legacyUnicastPort is the source port a pre-mDNS "legacy" unicast DNS
// client queries from (RFC 6762 §6.7).
const legacyUnicastPort = 53

// handleDatagram is the engine.Handler registered for the shared listen
// socket: it parses the datagram and routes it to the query or response
// path. A malformed packet is logged and discarded rather than
// propagated, per the "engine never dies from one bad packet" policy.
func (n *Node) handleDatagram(payload []byte, src net.Addr, ifIndex int) {
	if len(payload) > maxDatagramSize {
		payload = payload[:maxDatagramSize]
	}

	udpSrc, ok := src.(*net.UDPAddr)
	if !ok {
		return
	}

	msg, err := wire.ParseMessage(payload)
	if err != nil {
		logging.Log(n.logger, "mdns: discarding malformed packet from %s: %s", udpSrc, err)
		return
	}

	if !msg.IsQuery() {
		n.handleResponse(msg)
		return
	}

	switch udpSrc.Port {
	case socket.Port:
		n.handleQuery(msg, udpSrc, true)
	case legacyUnicastPort:
		// Legacy unicast mDNS client on port 53 (RFC 6762 §6.7): answer both
		// directly to the sender and to the multicast group, so other
		// listeners still observe the exchange.
		n.handleQuery(msg, udpSrc, false)
		n.handleQuery(msg, udpSrc, true)
	default:
		// Neither the mDNS port nor the legacy unicast port: not a query
		// this node answers.
	}
}
