// Package mdns implements a peer-to-peer Multicast DNS / DNS-SD node
// (RFC 6762/6763): service registration and responder, service discovery
// (Browser) and on-demand resolution (ServiceInfo.Request), all sharing one
// engine-multiplexed socket set and record cache.
package mdns

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"golang.org/x/net/ipv4"

	"github.com/linklocal/mdns/internal/cache"
	mdnserrors "github.com/linklocal/mdns/internal/errors"
	"github.com/linklocal/mdns/internal/engine"
	"github.com/linklocal/mdns/internal/iface"
	"github.com/linklocal/mdns/internal/socket"
	"github.com/linklocal/mdns/internal/wire"
)

// domainLocal is the single domain this node operates in.
const domainLocal = "local."

// servicesMetaQuery is the well-known DNS-SD meta-query name used to
// enumerate every registered service type (RFC 6763 §9).
const servicesMetaQuery = "_services._dns-sd._udp.local."

// registeredService is a service this node advertises and answers queries
// for.
type registeredService struct {
	info *ServiceInfo
	ttl  uint32
}

// Node is the top-level coordinator: it owns the sockets, the record
// cache, the background engine and reaper, the set of registered
// services, and the set of listeners (browsers and resolvers) waiting on
// cache updates.
type Node struct {
	logger logging.Logger

	interfaceChoice InterfaceChoice
	explicitAddrs   []net.IP
	interfaceFilter iface.Filter

	ifaces     []net.Interface
	listenConn *ipv4.PacketConn
	responders []*socket.Responder

	eng    *engine.Engine
	cond   *engine.Cond
	reaper *engine.Reaper
	cache  *cache.Cache

	listeners []engine.Listener
	browsers  map[*Browser]struct{}
	services  map[string]*registeredService // keyed by lowercase instance name
	typeRefs  map[string]int                 // lowercase service type -> count of registered instances

	closed    bool
	closeOnce sync.Once
}

// Open resolves the interfaces requested by opts, binds the shared listen
// socket, opens one responder socket per interface, and starts the engine
// and reaper. The returned Node answers queries for no services until
// RegisterService is called.
func Open(opts ...Option) (*Node, error) {
	n := &Node{
		logger:          logging.DefaultLogger,
		interfaceFilter: iface.DefaultFilter,
		cond:            engine.NewCond(),
		cache:           cache.New(),
		browsers:        make(map[*Browser]struct{}),
		services:        make(map[string]*registeredService),
		typeRefs:        make(map[string]int),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	ifaces, err := n.resolveInterfaces()
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, &mdnserrors.NetworkError{
			Operation: "open",
			Err:       fmt.Errorf("no usable interfaces"),
		}
	}
	n.ifaces = ifaces

	listenConn, err := socket.Listen(ifaces)
	if err != nil {
		return nil, err
	}
	n.listenConn = listenConn

	responders, err := socket.OpenResponders(ifaces)
	if err != nil {
		_ = listenConn.Close()
		return nil, err
	}
	n.responders = responders

	n.eng = engine.New(n.logger)
	n.eng.Register(listenConn, n.handleDatagram)

	n.reaper = engine.NewReaper(n.cache, n.snapshotListeners)
	go n.reaper.Run()

	return n, nil
}

func (n *Node) resolveInterfaces() ([]net.Interface, error) {
	switch n.interfaceChoice {
	case AllInterfaces:
		return iface.Resolve(iface.AllFilter)
	case ExplicitInterfaces:
		return iface.ByAddrs(n.explicitAddrs)
	default:
		filter := n.interfaceFilter
		if filter == nil {
			filter = iface.DefaultFilter
		}
		return iface.Resolve(filter)
	}
}

// Interfaces returns the interfaces this node joined the multicast group
// on.
func (n *Node) Interfaces() []net.Interface {
	out := make([]net.Interface, len(n.ifaces))
	copy(out, n.ifaces)
	return out
}

// Close withdraws every registered service (three goodbye rounds), stops
// every browser, stops the reaper and engine, and closes every socket. It
// is idempotent.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.cond.Lock()
		n.closed = true
		browsers := make([]*Browser, 0, len(n.browsers))
		for b := range n.browsers {
			browsers = append(browsers, b)
		}
		n.cond.Broadcast()
		n.cond.Unlock()

		for _, b := range browsers {
			b.Cancel()
		}

		n.UnregisterAllServices()

		n.reaper.Stop()
		_ = n.eng.Close()

		_ = n.listenConn.Close()
		for _, r := range n.responders {
			_ = r.Close()
		}
	})
	return nil
}

// addListener registers l to receive UpdateRecord notifications for every
// cache mutation and reap eviction.
func (n *Node) addListener(l engine.Listener) {
	n.cond.Lock()
	defer n.cond.Unlock()
	n.listeners = append(n.listeners, l)
}

// removeListener removes l from the listener set. It is a no-op if l is
// not registered.
func (n *Node) removeListener(l engine.Listener) {
	n.cond.Lock()
	defer n.cond.Unlock()
	for i, existing := range n.listeners {
		if existing == l {
			n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
			return
		}
	}
}

// snapshotListeners returns a copy of the current listener set, safe to
// range over without the node lock (per spec.md §9's "snapshot the list
// under the lock before dispatching callbacks" guidance).
func (n *Node) snapshotListeners() []engine.Listener {
	n.cond.Lock()
	defer n.cond.Unlock()
	out := make([]engine.Listener, len(n.listeners))
	copy(out, n.listeners)
	return out
}

// send serializes out once and transmits it on every responder socket,
// unicast to dst if non-nil, multicast to the mDNS group otherwise.
func (n *Node) send(out *wire.Outgoing, dst *net.UDPAddr) error {
	if out.Empty() {
		return nil
	}
	payload, err := out.Pack()
	if err != nil {
		return err
	}

	var firstErr error
	for _, r := range n.responders {
		var sendErr error
		if dst != nil {
			sendErr = r.SendUnicast(payload, dst)
		} else {
			sendErr = r.SendMulticast(payload)
		}
		if sendErr != nil && firstErr == nil {
			firstErr = sendErr
		}
	}
	return firstErr
}

// waitOrShutdown waits on the node condition for d or until Close is
// called, whichever comes first. It reports false if the node was closed
// while waiting. Callers must hold n.cond's lock.
func (n *Node) waitOrShutdown(d time.Duration) bool {
	if n.closed {
		return false
	}
	n.cond.WaitTimeout(d)
	return !n.closed
}

// isClosed reports whether Close has been called.
func (n *Node) isClosed() bool {
	n.cond.Lock()
	defer n.cond.Unlock()
	return n.closed
}
