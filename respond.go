package mdns

import (
	"net"
	"strings"
	"time"

	"github.com/linklocal/mdns/internal/wire"
)

// defaultMetaTTL is the TTL used for "_services._dns-sd._udp.local."
// meta-query answers, matching the conventional DNS-SD browse-domain TTL
// (RFC 6763 §9 doesn't mandate a value; 4500s -- 75 minutes -- is the
// figure Bonjour and Avahi both use).
const defaultMetaTTL = 4500

// handleResponse folds every answer in msg into the cache and notifies
// every registered listener, in packet order, per spec.md §5's ordering
// guarantee.
func (n *Node) handleResponse(msg *wire.Message) {
	now := time.Now()
	listeners := n.snapshotListeners()

	for _, rec := range msg.Answers {
		canonical := n.foldIntoCache(rec, now)
		for _, l := range listeners {
			l.UpdateRecord(now, canonical)
		}
	}
}

func (n *Node) foldIntoCache(rec *wire.Record, now time.Time) *wire.Record {
	existing := n.cache.Get(rec)
	if existing == nil {
		stored, _ := n.cache.Add(rec)
		return stored
	}
	if rec.IsExpired(now) {
		n.cache.Remove(existing)
		return rec
	}
	existing.TTL = rec.TTL
	existing.Created = rec.Created
	return existing
}

// handleQuery answers msg on behalf of every registered service,
// suppressing any answer already present in msg's own answer section
// (known-answer suppression). multicast selects whether the response goes
// to the mDNS group (true) or back to src (false, echoing msg's
// questions, for legacy unicast clients).
func (n *Node) handleQuery(msg *wire.Message, src *net.UDPAddr, multicast bool) {
	out := wire.NewOutgoing(wire.FlagQR|wire.FlagAA, multicast)
	if !multicast {
		for _, q := range msg.Questions {
			out.AddQuestion(q)
		}
	}

	now := time.Now()
	services, typeRefs := n.snapshotServices()

	addIfNotSuppressed := func(rec *wire.Record) {
		for _, known := range msg.Answers {
			if rec.SuppressedBy(known) {
				return
			}
		}
		out.AddAnswer(rec, now)
	}

	for _, q := range msg.Questions {
		n.answerQuestion(q, services, typeRefs, addIfNotSuppressed, out, now)
	}

	if out.Empty() {
		return
	}
	out.ID = msg.Header.ID

	var dst *net.UDPAddr
	if !multicast {
		dst = src
	}
	_ = n.send(out, dst)
}

func (n *Node) answerQuestion(
	q wire.Question,
	services map[string]*registeredService,
	typeRefs map[string]int,
	addIfNotSuppressed func(*wire.Record),
	out *wire.Outgoing,
	now time.Time,
) {
	if strings.EqualFold(q.Name, servicesMetaQuery) {
		if q.Type == wire.TypePTR || q.Type == wire.TypeANY {
			for svcType := range typeRefs {
				addIfNotSuppressed(ptrRecord(servicesMetaQuery, svcType, defaultMetaTTL))
			}
		}
		return
	}

	if count, ok := typeRefs[strings.ToLower(q.Name)]; ok && count > 0 && (q.Type == wire.TypePTR || q.Type == wire.TypeANY) {
		for _, svc := range services {
			if strings.EqualFold(svc.info.Type(), q.Name) {
				addIfNotSuppressed(ptrRecord(svc.info.Type(), svc.info.Name(), svc.ttl))
			}
		}
	}

	if q.Type == wire.TypeA || q.Type == wire.TypeANY {
		for _, svc := range services {
			if addr := svc.info.Addr(); addr != nil && strings.EqualFold(svc.info.Server(), q.Name) {
				rec := aRecord(svc.info.Server(), addr, svc.ttl)
				rec.CacheFlush = true
				addIfNotSuppressed(rec)
			}
		}
	}

	for _, svc := range services {
		if !strings.EqualFold(svc.info.Name(), q.Name) {
			continue
		}
		if q.Type == wire.TypeSRV || q.Type == wire.TypeANY {
			addIfNotSuppressed(srvRecord(svc.info, svc.ttl))
		}
		if q.Type == wire.TypeTXT || q.Type == wire.TypeANY {
			addIfNotSuppressed(txtRecord(svc.info, svc.ttl))
		}
		if q.Type == wire.TypeSRV {
			if addr := svc.info.Addr(); addr != nil {
				out.AddAdditional(aRecord(svc.info.Server(), addr, svc.ttl), now)
			}
		}
	}
}

// snapshotServices returns a point-in-time copy of the registered-service
// and type-refcount maps, safe to range over without the node lock.
func (n *Node) snapshotServices() (map[string]*registeredService, map[string]int) {
	n.cond.Lock()
	defer n.cond.Unlock()

	services := make(map[string]*registeredService, len(n.services))
	for k, v := range n.services {
		services[k] = v
	}
	typeRefs := make(map[string]int, len(n.typeRefs))
	for k, v := range n.typeRefs {
		typeRefs[k] = v
	}
	return services, typeRefs
}
