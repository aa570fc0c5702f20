package mdns

import (
	"strings"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"

	"github.com/linklocal/mdns/internal/wire"
)

const (
	initialBrowseDelay = 500 * time.Millisecond
	maxBrowseDelay     = 20 * time.Second
)

// ServiceListener receives Browser discovery events. Added and Removed are
// delivered in FIFO order relative to the PTR records that triggered them.
type ServiceListener interface {
	ServiceAdded(node *Node, serviceType, instanceName string)
	ServiceRemoved(node *Node, serviceType, instanceName string)
}

type browseEvent struct {
	added bool
	name  string
}

// Browser is a per-service-type discovery state machine: it periodically
// issues PTR queries with exponential back-off and known-answer
// suppression, and delivers add/remove callbacks as matching PTR records
// arrive or expire.
type Browser struct {
	node        *Node
	serviceType string
	listener    ServiceListener

	mu       sync.Mutex
	entries  map[string]*wire.Record // lowercase alias -> the PTR record naming it
	nextTime time.Time
	delay    time.Duration
	pending  []browseEvent
	done     bool
}

// AddServiceListener starts browsing for serviceType, delivering events to
// listener until Cancel is called.
func (n *Node) AddServiceListener(serviceType string, listener ServiceListener) *Browser {
	b := &Browser{
		node:        n,
		serviceType: serviceType,
		listener:    listener,
		entries:     make(map[string]*wire.Record),
		nextTime:    time.Now(),
		delay:       initialBrowseDelay,
	}

	n.cond.Lock()
	n.browsers[b] = struct{}{}
	n.cond.Unlock()
	n.addListener(b)

	go b.run()
	return b
}

// Cancel stops the browser's goroutine and removes it from the node's
// listener and browser sets. Per the rewrite's resolution of spec.md §9's
// remove_service_listener ambiguity, this single call does both.
func (b *Browser) Cancel() {
	b.mu.Lock()
	alreadyDone := b.done
	b.done = true
	b.mu.Unlock()
	if alreadyDone {
		return
	}

	b.node.removeListener(b)
	b.node.cond.Lock()
	delete(b.node.browsers, b)
	b.node.cond.Broadcast()
	b.node.cond.Unlock()
}

func (b *Browser) isDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// UpdateRecord implements engine.Listener: it folds PTR records matching
// this browser's type into the known-entries set, schedules refreshes at
// 75% of TTL, and queues add/remove callbacks.
func (b *Browser) UpdateRecord(now time.Time, rec *wire.Record) {
	if rec == nil || rec.Data.Type() != wire.TypePTR || !strings.EqualFold(rec.Name, b.serviceType) {
		return
	}
	ptr, ok := rec.Data.(wire.PTRData)
	if !ok {
		return
	}
	alias := strings.ToLower(ptr.Target)

	b.mu.Lock()
	existing, known := b.entries[alias]
	if !known {
		if !rec.IsExpired(now) {
			b.entries[alias] = rec
			b.pending = append(b.pending, browseEvent{added: true, name: ptr.Target})
		}
	} else if !rec.IsExpired(now) {
		existing.TTL = rec.TTL
		existing.Created = rec.Created
	} else {
		delete(b.entries, alias)
		b.pending = append(b.pending, browseEvent{added: false, name: ptr.Target})
	}

	refreshAt := rec.ExpirationTime(75)
	if refreshAt.Before(b.nextTime) {
		b.nextTime = refreshAt
	}
	b.mu.Unlock()

	b.node.cond.Lock()
	b.node.cond.Broadcast()
	b.node.cond.Unlock()
}

func (b *Browser) run() {
	for {
		if b.isDone() || b.node.isClosed() {
			return
		}

		b.mu.Lock()
		hasPending := len(b.pending) > 0
		delay := time.Until(b.nextTime)
		b.mu.Unlock()

		if !hasPending && delay > 0 {
			b.node.cond.Lock()
			b.node.waitOrShutdown(delay)
			b.node.cond.Unlock()
		}

		if b.isDone() || b.node.isClosed() {
			return
		}

		b.mu.Lock()
		due := !time.Now().Before(b.nextTime)
		b.mu.Unlock()
		if due {
			b.query()
			b.mu.Lock()
			b.nextTime = time.Now().Add(b.delay)
			b.delay *= 2
			if b.delay > maxBrowseDelay {
				b.delay = maxBrowseDelay
			}
			b.mu.Unlock()
		}

		b.dispatchOne()
	}
}

func (b *Browser) query() {
	now := time.Now()
	out := wire.NewOutgoing(0, true)
	out.AddQuestion(wire.Question{Name: b.serviceType, Type: wire.TypePTR, Class: wire.ClassIN})

	b.mu.Lock()
	for _, rec := range b.entries {
		if !rec.IsExpired(now) {
			out.AddAnswer(rec, now)
		}
	}
	b.mu.Unlock()

	_ = b.node.send(out, nil)
}

func (b *Browser) dispatchOne() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	ev := b.pending[0]
	b.pending = b.pending[1:]
	b.mu.Unlock()

	if b.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Log(b.node.logger, "mdns: browser listener panic: %v", r)
		}
	}()
	if ev.added {
		b.listener.ServiceAdded(b.node, b.serviceType, ev.name)
	} else {
		b.listener.ServiceRemoved(b.node, b.serviceType, ev.name)
	}
}
