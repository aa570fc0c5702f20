package mdns

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/linklocal/mdns/internal/engine"
	"github.com/linklocal/mdns/internal/iface"
	"github.com/linklocal/mdns/internal/wire"
)

func TestOptions_ApplyToNode(t *testing.T) {
	n := &Node{}

	if err := WithLogger(logging.DefaultLogger)(n); err != nil {
		t.Fatalf("WithLogger: %v", err)
	}
	if n.logger != logging.DefaultLogger {
		t.Error("WithLogger did not set n.logger")
	}

	addrs := []net.IP{net.ParseIP("127.0.0.1")}
	if err := WithInterfaces(addrs)(n); err != nil {
		t.Fatalf("WithInterfaces: %v", err)
	}
	if n.interfaceChoice != ExplicitInterfaces || !reflect.DeepEqual(n.explicitAddrs, addrs) {
		t.Errorf("WithInterfaces: choice=%v addrs=%v", n.interfaceChoice, n.explicitAddrs)
	}

	if err := WithAllInterfaces()(n); err != nil {
		t.Fatalf("WithAllInterfaces: %v", err)
	}
	if n.interfaceChoice != AllInterfaces {
		t.Errorf("WithAllInterfaces: choice = %v, want AllInterfaces", n.interfaceChoice)
	}

	called := false
	filter := func(net.Interface) bool { called = true; return true }
	if err := WithInterfaceFilter(filter)(n); err != nil {
		t.Fatalf("WithInterfaceFilter: %v", err)
	}
	n.interfaceFilter(net.Interface{})
	if !called {
		t.Error("WithInterfaceFilter did not install the given filter")
	}
}

func TestResolveInterfaces_DispatchesOnChoice(t *testing.T) {
	n := &Node{interfaceChoice: ExplicitInterfaces, explicitAddrs: []net.IP{net.ParseIP("127.0.0.1")}}
	ifaces, err := n.resolveInterfaces()
	if err != nil {
		t.Fatalf("resolveInterfaces: %v", err)
	}
	if len(ifaces) == 0 {
		t.Error("expected loopback to resolve to at least one interface")
	}

	n2 := &Node{interfaceChoice: DefaultInterfaces, interfaceFilter: iface.AllFilter}
	if _, err := n2.resolveInterfaces(); err != nil {
		t.Fatalf("resolveInterfaces with an explicit filter: %v", err)
	}
}

func TestWaitOrShutdown_ReturnsFalseImmediatelyOnceClosed(t *testing.T) {
	n := &Node{cond: engine.NewCond()}

	n.cond.Lock()
	n.closed = true
	n.cond.Unlock()

	start := time.Now()
	n.cond.Lock()
	alive := n.waitOrShutdown(time.Hour)
	n.cond.Unlock()
	elapsed := time.Since(start)

	if alive {
		t.Error("expected waitOrShutdown to report !alive once the node is closed")
	}
	if elapsed > time.Second {
		t.Errorf("waitOrShutdown blocked for %s instead of returning immediately", elapsed)
	}
}

func TestIsClosed_ReflectsCloseState(t *testing.T) {
	n := &Node{cond: engine.NewCond()}
	if n.isClosed() {
		t.Fatal("fresh node should not report closed")
	}

	n.cond.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.cond.Unlock()

	if !n.isClosed() {
		t.Error("expected isClosed to report true after closed is set")
	}
}

func TestAddRemoveListener_SnapshotIsIndependentCopy(t *testing.T) {
	n := &Node{cond: engine.NewCond()}
	l1 := &Browser{}
	l2 := &Browser{}

	n.addListener(l1)
	n.addListener(l2)
	snap := n.snapshotListeners()
	if len(snap) != 2 {
		t.Fatalf("snapshotListeners() = %d entries, want 2", len(snap))
	}

	n.removeListener(l1)
	if len(n.listeners) != 1 {
		t.Fatalf("listeners after remove = %d, want 1", len(n.listeners))
	}
	if len(snap) != 2 {
		t.Error("earlier snapshot mutated by a later removeListener call")
	}
}

func TestSend_EmptyOutgoingIsANoOp(t *testing.T) {
	n := &Node{}
	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
	if err := n.send(out, nil); err != nil {
		t.Errorf("send(empty) = %v, want nil", err)
	}
}
