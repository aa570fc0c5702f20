// These integration tests open real Node instances bound to the shared
// multicast socket: they require a non-loopback, multicast-capable
// interface (see internal/iface.AllFilter) and are skipped in short
// mode, matching the network-dependent tests in the example corpus this
// package draws from.
package mdns

import (
	"net"
	"testing"
	"time"
)

func openTestNode(t *testing.T) *Node {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping network-dependent test in short mode")
	}

	node, err := Open(WithAllInterfaces())
	if err != nil {
		t.Skipf("no usable multicast interface in this environment: %v", err)
	}
	return node
}

// TestRegisterAndResolve covers scenario 1: register an instance, then
// resolve it back via GetServiceInfo within 3s.
func TestRegisterAndResolve(t *testing.T) {
	node := openTestNode(t)
	defer node.Close()

	info, err := NewServiceInfo(
		"_http._tcp.local.",
		"My Service._http._tcp.local.",
		net.ParseIP("127.0.0.1"),
		1234,
		"",
	)
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}
	_ = info.SetProperty("version", "0.10")
	_ = info.SetProperty("a", "test value")
	_ = info.SetProperty("b", "another value")

	if err := node.RegisterService(info); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}
	defer node.UnregisterService(info)

	resolved := node.GetServiceInfo("_http._tcp.local.", "My Service._http._tcp.local.", 3*time.Second)
	if resolved == nil {
		t.Fatal("GetServiceInfo returned nil; expected the self-registered instance to resolve")
	}
	if resolved.Port() != 1234 {
		t.Errorf("resolved port = %d, want 1234", resolved.Port())
	}
	if got := resolved.Addr(); got == nil || !got.Equal(net.ParseIP("127.0.0.1").To4()) {
		t.Errorf("resolved addr = %v, want 127.0.0.1", got)
	}
}

// TestResolveNonexistentInstanceTimesOut covers scenario 2: resolving an
// instance nobody registered returns nil only after the full timeout has
// elapsed.
func TestResolveNonexistentInstanceTimesOut(t *testing.T) {
	node := openTestNode(t)
	defer node.Close()

	start := time.Now()
	resolved := node.GetServiceInfo("_http._tcp.local.", "ZOE._http._tcp.local.", 1500*time.Millisecond)
	elapsed := time.Since(start)

	if resolved != nil {
		t.Fatalf("expected nil for a nonexistent instance, got %+v", resolved)
	}
	if elapsed < 1500*time.Millisecond {
		t.Errorf("returned after %s, want at least 1500ms", elapsed)
	}
}

// TestBrowserObservesSelfRegisteredService covers the browser-convergence
// property: browsing for a type this same node registers should deliver an
// add callback naming the registered instance within 5s.
func TestBrowserObservesSelfRegisteredService(t *testing.T) {
	node := openTestNode(t)
	defer node.Close()

	info, err := NewServiceInfo(
		"_browsertest._tcp.local.",
		"Browser Target._browsertest._tcp.local.",
		net.ParseIP("127.0.0.1"),
		4321,
		"",
	)
	if err != nil {
		t.Fatalf("NewServiceInfo: %v", err)
	}

	added := make(chan string, 4)
	listener := funcServiceListener{
		added: func(n *Node, serviceType, name string) { added <- name },
	}
	browser := node.AddServiceListener("_browsertest._tcp.local.", listener)
	defer browser.Cancel()

	if err := node.RegisterService(info); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}
	defer node.UnregisterService(info)

	select {
	case name := <-added:
		if name != info.Name() {
			t.Errorf("added service = %q, want %q", name, info.Name())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("browser never observed the self-registered service")
	}
}

// TestNodeClose_IsIdempotent covers Close's documented idempotence: a
// second call must not panic or re-run the shutdown sequence.
func TestNodeClose_IsIdempotent(t *testing.T) {
	node := openTestNode(t)

	if err := node.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := node.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type funcServiceListener struct {
	added   func(node *Node, serviceType, name string)
	removed func(node *Node, serviceType, name string)
}

func (f funcServiceListener) ServiceAdded(node *Node, serviceType, name string) {
	if f.added != nil {
		f.added(node, serviceType, name)
	}
}

func (f funcServiceListener) ServiceRemoved(node *Node, serviceType, name string) {
	if f.removed != nil {
		f.removed(node, serviceType, name)
	}
}
