// Package iface is the network-interface enumeration collaborator: it
// returns the local IPv4 interfaces a node should join the mDNS multicast
// group on, and a default-interface sentinel. It is deliberately a thin,
// swappable layer — THE CORE depends only on the Filter type, the
// DefaultFilter/AllFilter predicates and the Resolve/ByAddrs functions,
// never on net directly.
package iface

import "net"

// Filter decides whether a candidate interface should be used for mDNS.
// Returning true includes the interface.
type Filter func(net.Interface) bool

// DefaultFilter accepts UP, MULTICAST, non-loopback interfaces that don't
// look like a VPN or container bridge. Generalized from a hardcoded
// exclusion list into a predicate so callers can supply their own via
// WithInterfaceFilter instead of patching a prefix table.
func DefaultFilter(i net.Interface) bool {
	if i.Flags&net.FlagUp == 0 {
		return false
	}
	if i.Flags&net.FlagMulticast == 0 {
		return false
	}
	if i.Flags&net.FlagLoopback != 0 {
		return false
	}
	return !isVPN(i.Name) && !isContainerBridge(i.Name)
}

// AllFilter accepts every UP, MULTICAST, non-loopback interface regardless
// of name, for InterfaceChoice=All.
func AllFilter(i net.Interface) bool {
	return i.Flags&net.FlagUp != 0 &&
		i.Flags&net.FlagMulticast != 0 &&
		i.Flags&net.FlagLoopback == 0
}

// Resolve lists system interfaces and returns those filter accepts.
func Resolve(filter Filter) ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]net.Interface, 0, len(all))
	for _, i := range all {
		if filter(i) {
			out = append(out, i)
		}
	}
	return out, nil
}

// LocalIPv4Addrs returns the IPv4 addresses bound to ifaces, one per
// interface that has one, in the same order.
func LocalIPv4Addrs(ifaces []net.Interface) ([]net.IP, error) {
	var ips []net.IP
	for _, i := range ifaces {
		addrs, err := i.Addrs()
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipNet.IP.To4()
			if v4 == nil {
				continue
			}
			ips = append(ips, v4)
			break
		}
	}
	return ips, nil
}

// ByAddrs returns the interfaces among all system interfaces that own one
// of the given IPv4 addresses, for an explicit InterfaceChoice list.
func ByAddrs(addrs []net.IP) ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		wanted[a.String()] = true
	}

	var out []net.Interface
	for _, i := range all {
		ifAddrs, err := i.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifAddrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil && wanted[v4.String()] {
				out = append(out, i)
				break
			}
		}
	}
	return out, nil
}

func isVPN(name string) bool {
	for _, prefix := range []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard"} {
		if hasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func isContainerBridge(name string) bool {
	if name == "docker0" {
		return true
	}
	for _, prefix := range []string{"veth", "br-"} {
		if hasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}
