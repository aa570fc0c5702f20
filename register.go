package mdns

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	mdnserrors "github.com/linklocal/mdns/internal/errors"
	"github.com/linklocal/mdns/internal/wire"
)

const (
	defaultTTL = 3600

	probeRounds    = 3
	probeInterval  = 175 * time.Millisecond
	announceRounds = 3
	announceDelay  = 225 * time.Millisecond
	goodbyeRounds  = 3
	goodbyeDelay   = 125 * time.Millisecond
)

// RegisterService probes the network for a conflicting name, announces
// the service three times on success, and begins answering queries on its
// behalf. ttl defaults to 3600s when omitted. RegisterService may mangle
// info's instance name once (appending an address/port-derived suffix) to
// resolve a collision before giving up with a NameConflictError.
func (n *Node) RegisterService(info *ServiceInfo, ttl ...uint32) error {
	recordTTL := uint32(defaultTTL)
	if len(ttl) > 0 {
		recordTTL = ttl[0]
	}

	if err := n.probeUnique(info); err != nil {
		return err
	}

	n.announce(info, recordTTL)

	n.cond.Lock()
	n.services[strings.ToLower(info.Name())] = &registeredService{info: info, ttl: recordTTL}
	n.typeRefs[strings.ToLower(info.Type())]++
	n.cond.Unlock()

	return nil
}

// probeUnique runs up to probeRounds uniqueness checks, renaming info's
// instance name once on the first collision if it has no hierarchical
// separator, and failing with NameConflictError otherwise.
func (n *Node) probeUnique(info *ServiceInfo) error {
	for round := 0; round < probeRounds; round++ {
		if conflict := n.findConflictingPTR(info); conflict {
			if err := n.renameOnConflict(info); err != nil {
				return err
			}
		}

		if err := n.send(probeMessage(info), nil); err != nil {
			logging.Log(n.logger, "mdns: probe send for %s failed: %s", info.Name(), err)
		}

		n.cond.Lock()
		alive := n.waitOrShutdown(probeInterval)
		n.cond.Unlock()
		if !alive {
			return &mdnserrors.NetworkError{Operation: "probe", Err: fmt.Errorf("node closed during registration")}
		}
	}
	return nil
}

func (n *Node) findConflictingPTR(info *ServiceInfo) bool {
	now := time.Now()
	for _, rec := range n.cache.EntriesWithName(info.Type()) {
		ptr, ok := rec.Data.(wire.PTRData)
		if !ok || rec.IsExpired(now) {
			continue
		}
		if strings.EqualFold(ptr.Target, info.Name()) {
			return true
		}
	}
	return false
}

func (n *Node) renameOnConflict(info *ServiceInfo) error {
	prefix := strings.TrimSuffix(strings.TrimSuffix(info.instanceName, info.serviceType), ".")
	if strings.Contains(prefix, ".") {
		return &mdnserrors.NameConflictError{Name: info.Name(), Type: info.Type()}
	}

	addr := "0.0.0.0"
	if a := info.Addr(); a != nil {
		addr = a.String()
	}
	info.instanceName = fmt.Sprintf("%s.[%s:%d].%s", prefix, addr, info.Port(), info.serviceType)
	return nil
}

// probeMessage builds one uniqueness-probe query: QR_QUERY|AA (RFC 6762
// §8.1), a PTR question on info's type, and info's proposed PTR record as
// an authority (not an answer) record. QR stays clear so this is still a
// query — setting it would route the probe through handleResponse on
// every receiver, which only reads the Answer section, never the
// Authority section this proposed record lives in.
func probeMessage(info *ServiceInfo) *wire.Outgoing {
	out := wire.NewOutgoing(wire.FlagAA, true)
	out.AddQuestion(wire.Question{Name: info.Type(), Type: wire.TypePTR, Class: wire.ClassIN})
	out.AddAuthority(&wire.Record{
		Name:  info.Type(),
		Class: wire.ClassIN,
		TTL:   0,
		Data:  wire.PTRData{Target: info.Name()},
	}, time.Time{})
	return out
}

// announce sends the three RFC 6762 §8.3 unsolicited announcements for
// info, spaced announceDelay apart.
func (n *Node) announce(info *ServiceInfo, ttl uint32) {
	for round := 0; round < announceRounds; round++ {
		_ = n.send(n.serviceAnnouncement(info, ttl), nil)

		if round < announceRounds-1 {
			n.cond.Lock()
			n.waitOrShutdown(announceDelay)
			n.cond.Unlock()
		}
	}
}

func (n *Node) serviceAnnouncement(info *ServiceInfo, ttl uint32) *wire.Outgoing {
	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
	now := time.Now()

	out.AddAnswer(ptrRecord(info.Type(), info.Name(), ttl), now)
	out.AddAnswer(srvRecord(info, ttl), now)
	out.AddAnswer(txtRecord(info, ttl), now)
	if addr := info.Addr(); addr != nil {
		out.AddAnswer(aRecord(info.Server(), addr, ttl), now)
	}
	return out
}

// UnregisterService withdraws a single previously registered service:
// three goodbye (TTL=0) bursts spaced goodbyeDelay apart.
func (n *Node) UnregisterService(info *ServiceInfo) error {
	n.cond.Lock()
	key := strings.ToLower(info.Name())
	svc, ok := n.services[key]
	if ok {
		delete(n.services, key)
		typeKey := strings.ToLower(info.Type())
		n.typeRefs[typeKey]--
		if n.typeRefs[typeKey] <= 0 {
			delete(n.typeRefs, typeKey)
		}
	}
	n.cond.Unlock()
	if !ok {
		return nil
	}

	n.goodbye([]*ServiceInfo{svc.info})
	return nil
}

// UnregisterAllServices withdraws every registered service in one
// multi-record goodbye burst per round.
func (n *Node) UnregisterAllServices() {
	n.cond.Lock()
	infos := make([]*ServiceInfo, 0, len(n.services))
	for _, svc := range n.services {
		infos = append(infos, svc.info)
	}
	n.services = make(map[string]*registeredService)
	n.typeRefs = make(map[string]int)
	n.cond.Unlock()

	if len(infos) == 0 {
		return
	}
	n.goodbye(infos)
}

func (n *Node) goodbye(infos []*ServiceInfo) {
	for round := 0; round < goodbyeRounds; round++ {
		out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, true)
		now := time.Now()
		for _, info := range infos {
			out.AddAnswer(ptrRecord(info.Type(), info.Name(), 0), now)
			out.AddAnswer(srvRecord(info, 0), now)
			out.AddAnswer(txtRecord(info, 0), now)
			if addr := info.Addr(); addr != nil {
				out.AddAnswer(aRecord(info.Server(), addr, 0), now)
			}
		}
		_ = n.send(out, nil)

		if round < goodbyeRounds-1 {
			n.cond.Lock()
			n.waitOrShutdown(goodbyeDelay)
			n.cond.Unlock()
		}
	}
}

func ptrRecord(serviceType, instanceName string, ttl uint32) *wire.Record {
	return &wire.Record{
		Name:  serviceType,
		Class: wire.ClassIN,
		TTL:   ttl,
		Data:  wire.PTRData{Target: instanceName},
	}
}

func srvRecord(info *ServiceInfo, ttl uint32) *wire.Record {
	return &wire.Record{
		Name:       info.Name(),
		Class:      wire.ClassIN,
		CacheFlush: true,
		TTL:        ttl,
		Data: wire.SRVData{
			Priority: info.Priority(),
			Weight:   info.Weight(),
			Port:     info.Port(),
			Target:   info.Server(),
		},
	}
}

func txtRecord(info *ServiceInfo, ttl uint32) *wire.Record {
	return &wire.Record{
		Name:       info.Name(),
		Class:      wire.ClassIN,
		CacheFlush: true,
		TTL:        ttl,
		Data:       wire.TXTData{Raw: info.TextBlob()},
	}
}

func aRecord(host string, addr net.IP, ttl uint32) *wire.Record {
	var a [4]byte
	copy(a[:], addr.To4())
	return &wire.Record{
		Name:       host,
		Class:      wire.ClassIN,
		CacheFlush: true,
		TTL:        ttl,
		Data:       wire.AData{Addr: a},
	}
}
