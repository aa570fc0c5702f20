package mdns

import (
	"net"

	"github.com/dogmatiq/dodeca/logging"

	"github.com/linklocal/mdns/internal/iface"
)

// InterfaceChoice selects which local interfaces a Node joins the
// multicast group on.
type InterfaceChoice int

const (
	// DefaultInterfaces joins every UP, MULTICAST interface that doesn't
	// look like a VPN or container bridge (iface.DefaultFilter).
	DefaultInterfaces InterfaceChoice = iota
	// AllInterfaces joins every UP, MULTICAST, non-loopback interface
	// regardless of name (iface.AllFilter).
	AllInterfaces
	// ExplicitInterfaces joins only the interfaces owning the addresses
	// passed to WithInterfaces.
	ExplicitInterfaces
)

// Option configures a Node at construction time.
type Option func(*Node) error

// WithLogger injects the logger used for background-worker diagnostics
// (read errors, recovered panics, malformed packets). The default is
// logging.DefaultLogger.
func WithLogger(l logging.Logger) Option {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

// WithInterfaces restricts the node to the interfaces owning the given
// IPv4 addresses, equivalent to the caller API's InterfaceChoice with an
// explicit address list.
func WithInterfaces(addrs []net.IP) Option {
	return func(n *Node) error {
		n.interfaceChoice = ExplicitInterfaces
		n.explicitAddrs = addrs
		return nil
	}
}

// WithAllInterfaces selects every UP, MULTICAST, non-loopback interface
// regardless of name.
func WithAllInterfaces() Option {
	return func(n *Node) error {
		n.interfaceChoice = AllInterfaces
		return nil
	}
}

// WithInterfaceFilter overrides the predicate used for DefaultInterfaces,
// in place of the default VPN/container-bridge exclusion list.
func WithInterfaceFilter(filter iface.Filter) Option {
	return func(n *Node) error {
		n.interfaceFilter = filter
		return nil
	}
}
