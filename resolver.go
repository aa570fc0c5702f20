package mdns

import (
	"net"
	"strings"
	"time"

	"github.com/linklocal/mdns/internal/wire"
)

const (
	defaultResolveTimeout = 3 * time.Second
	initialResolveDelay   = 200 * time.Millisecond
)

// GetServiceInfo resolves a discovered instance name to its SRV/TXT/A
// details, blocking up to timeout (defaulting to 3s when <= 0). It
// returns nil, never an error, if the instance did not resolve in time.
func (n *Node) GetServiceInfo(serviceType, instanceName string, timeout time.Duration) *ServiceInfo {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}

	info, err := NewServiceInfo(serviceType, instanceName, nil, 0, instanceName)
	if err != nil {
		return nil
	}

	if info.Request(n, timeout) {
		return info
	}
	return nil
}

// Request is the synchronous, single-use resolver (spec.md §4.7): it
// registers itself as a listener for the instance name, issues SRV+TXT
// (and, once a server host is known, A) queries with exponential back-off
// and known-answer suppression, and returns true once server, address and
// text are all populated.
func (s *ServiceInfo) Request(n *Node, timeout time.Duration) bool {
	s.mu.Lock()
	s.reqNode = n
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.reqNode = nil
		s.mu.Unlock()
	}()

	n.addListener(s)
	defer n.removeListener(s)

	last := time.Now().Add(timeout)
	delay := initialResolveDelay
	nextSend := time.Now()

	for {
		now := time.Now()
		if !now.Before(last) {
			return false
		}
		if s.resolved() {
			return true
		}

		if !now.Before(nextSend) {
			s.query(n)
			nextSend = now.Add(delay)
			delay *= 2
		}

		wait := nextSend
		if last.Before(wait) {
			wait = last
		}

		n.cond.Lock()
		n.waitOrShutdown(wait.Sub(time.Now()))
		closed := n.closed
		n.cond.Unlock()
		if closed {
			return false
		}
	}
}

func (s *ServiceInfo) resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotSRV && s.gotTXT && s.gotA
}

func (s *ServiceInfo) query(n *Node) {
	now := time.Now()
	out := wire.NewOutgoing(0, true)
	out.AddQuestion(wire.Question{Name: s.Name(), Type: wire.TypeSRV, Class: wire.ClassIN})
	out.AddQuestion(wire.Question{Name: s.Name(), Type: wire.TypeTXT, Class: wire.ClassIN})

	if srv := n.cache.GetByDetails(s.Name(), wire.TypeSRV, wire.ClassIN); srv != nil && !srv.IsExpired(now) {
		out.AddAnswer(srv, now)
	}
	if txt := n.cache.GetByDetails(s.Name(), wire.TypeTXT, wire.ClassIN); txt != nil && !txt.IsExpired(now) {
		out.AddAnswer(txt, now)
	}

	if host := s.Server(); s.hasServer() {
		out.AddQuestion(wire.Question{Name: host, Type: wire.TypeA, Class: wire.ClassIN})
		if a := n.cache.GetByDetails(host, wire.TypeA, wire.ClassIN); a != nil && !a.IsExpired(now) {
			out.AddAnswer(a, now)
		}
	}

	_ = n.send(out, nil)
}

func (s *ServiceInfo) hasServer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotSRV
}

// UpdateRecord implements engine.Listener for the duration of a Request:
// it folds SRV, TXT and A records relevant to this instance into the
// ServiceInfo as they arrive.
func (s *ServiceInfo) UpdateRecord(now time.Time, rec *wire.Record) {
	if rec == nil {
		return
	}

	switch data := rec.Data.(type) {
	case wire.SRVData:
		if !strings.EqualFold(rec.Name, s.Name()) {
			return
		}
		s.setSRV(data.Priority, data.Weight, data.Port, data.Target)
		s.mu.Lock()
		s.gotSRV = true
		node := s.reqNode
		s.mu.Unlock()

		if node != nil {
			if a := node.cache.GetByDetails(data.Target, wire.TypeA, wire.ClassIN); a != nil && !a.IsExpired(now) {
				if addrData, ok := a.Data.(wire.AData); ok {
					s.setAddr(net.IP(addrData.Addr[:]))
					s.mu.Lock()
					s.gotA = true
					s.mu.Unlock()
				}
			}
		}

	case wire.TXTData:
		if !strings.EqualFold(rec.Name, s.Name()) {
			return
		}
		_ = s.SetTextBlob(data.Raw)
		s.mu.Lock()
		s.gotTXT = true
		s.mu.Unlock()

	case wire.AData:
		if !s.hasServer() || !strings.EqualFold(rec.Name, s.Server()) {
			return
		}
		s.setAddr(net.IP(data.Addr[:]))
		s.mu.Lock()
		s.gotA = true
		s.mu.Unlock()
	}
}
