package engine

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"golang.org/x/net/ipv4"

	"github.com/linklocal/mdns/internal/socket"
)

// readDeadline bounds each ReadFrom call so the reader loop can notice a
// Close without blocking forever: Go has no portable select-over-sockets,
// so a polling deadline is the idiomatic substitute.
const readDeadline = 5 * time.Second

// Handler processes one datagram read off a registered socket. ifIndex is
// the interface the packet arrived on, or 0 if the kernel did not report
// one.
type Handler func(payload []byte, src net.Addr, ifIndex int)

// Engine is the single reader of every socket registered with it: per
// RFC 6762 §4, one thread owns the receive side so that cache updates and
// responder decisions stay serialized without a global lock. Each
// registered socket gets its own goroutine, polling with readDeadline so
// Close can unwind them promptly.
type Engine struct {
	logger logging.Logger

	mu       sync.Mutex
	handlers map[*ipv4.PacketConn]Handler

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns a ready-to-use Engine. logger may be nil; logging.Log and
// logging.DebugString are no-ops in that case.
func New(logger logging.Logger) *Engine {
	return &Engine{
		logger:   logger,
		handlers: make(map[*ipv4.PacketConn]Handler),
		done:     make(chan struct{}),
	}
}

// Register starts reading conn on a dedicated goroutine, dispatching every
// datagram to h until the Engine is closed or Deregister is called.
func (e *Engine) Register(conn *ipv4.PacketConn, h Handler) {
	e.mu.Lock()
	e.handlers[conn] = h
	e.mu.Unlock()

	e.wg.Add(1)
	go e.readLoop(conn, h)
}

// Deregister stops routing datagrams from conn to its handler. It does not
// close conn; the caller owns that.
func (e *Engine) Deregister(conn *ipv4.PacketConn) {
	e.mu.Lock()
	delete(e.handlers, conn)
	e.mu.Unlock()
}

func (e *Engine) readLoop(conn *ipv4.PacketConn, h Handler) {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		default:
		}

		buf := socket.GetBuffer()
		if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			socket.PutBuffer(buf)
			logging.Log(e.logger, "engine: set read deadline: %s", err)
			return
		}

		n, cm, src, err := conn.ReadFrom(*buf)
		if err != nil {
			socket.PutBuffer(buf)
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-e.done:
				return
			default:
			}
			logging.Log(e.logger, "engine: read error: %s", err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, (*buf)[:n])
		socket.PutBuffer(buf)

		e.mu.Lock()
		_, registered := e.handlers[conn]
		e.mu.Unlock()
		if !registered {
			return
		}

		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}

		e.dispatch(h, payload, src, ifIndex)
	}
}

func (e *Engine) dispatch(h Handler, payload []byte, src net.Addr, ifIndex int) {
	defer func() {
		if r := recover(); r != nil {
			logging.Log(e.logger, "engine: handler panic: %s", recoverMessage(r))
		}
	}()
	h(payload, src, ifIndex)
}

func recoverMessage(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", r)
}

// Close signals every reader goroutine to stop and waits for them to exit.
// It does not close the registered sockets; callers close those
// separately so ReadFrom unblocks without waiting out readDeadline.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	e.wg.Wait()
	return nil
}
