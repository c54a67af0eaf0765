package wire

import (
	"net"
	"sync"
	"time"

	"github.com/nodeforge/actorcore/engine"
)

// Endpoint is a runtime's network-facing half: a listener that serves
// incoming frames against the local engine, plus outbound operations that
// open a fresh connection per call, as the spec allows (no pooling).
type Endpoint struct {
	eng            *engine.Engine
	dialTimeout    time.Duration
	monitorTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
}

// NewEndpoint builds an Endpoint bound to eng, using dialTimeout for every
// outbound connection attempt.
func NewEndpoint(eng *engine.Engine, dialTimeout time.Duration) *Endpoint {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	return &Endpoint{eng: eng, dialTimeout: dialTimeout, monitorTimeout: 200 * time.Millisecond}
}

// Listen starts accepting connections on addr and serving them against
// the bound engine; it returns the resolved listen address (useful when
// addr uses port 0).
func (e *Endpoint) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &engine.Error{Kind: engine.ErrTransport, Op: "wire.listen"}
	}
	e.mu.Lock()
	e.listener = ln
	e.mu.Unlock()
	go e.acceptLoop(ln)
	return ln.Addr(), nil
}

// Close stops accepting new connections. In-flight connections are not
// interrupted.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	ln := e.listener
	e.listener = nil
	e.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (e *Endpoint) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go e.handleConn(conn)
	}
}

func (e *Endpoint) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		op, err := ReadOpcode(conn)
		if err != nil {
			return
		}
		switch op {
		case OpSend:
			frame, err := ReadSendBody(conn)
			if err != nil {
				return
			}
			_ = e.eng.Send(engine.PID(frame.PID), engine.UserMessage(frame.Payload), 0)
		case OpResolve:
			frame, err := ReadResolveBody(conn)
			if err != nil {
				return
			}
			pid, _ := e.eng.Resolve(frame.Name)
			if err := WriteResolveResponse(conn, uint64(pid)); err != nil {
				return
			}
		case OpMonitor:
			frame, err := ReadMonitorBody(conn)
			if err != nil {
				return
			}
			e.handleRemoteMonitor(conn, engine.PID(frame.PID))
			return
		default:
			return
		}
	}
}

// handleRemoteMonitor implements the responder side of monitor_remote: it
// registers a local proxy actor as a monitor of target and streams its
// eventual Exit back over conn as an OpExit frame. A peer-initiated close
// (detected via a background read) or target already being dead both
// unblock it without leaking the proxy actor.
func (e *Endpoint) handleRemoteMonitor(conn net.Conn, target engine.PID) {
	if !e.eng.IsAlive(target) {
		_ = WriteExit(conn, uint64(target), ReasonCode(engine.ReasonOther.ReasonCode()), "not_found")
		return
	}

	closed := make(chan struct{})
	var once sync.Once
	go func() {
		var buf [1]byte
		conn.Read(buf[:])
		once.Do(func() { close(closed) })
	}()

	pid, err := e.eng.SpawnPull(func(eng *engine.Engine, self engine.PID, mailbox *engine.MailboxReceiver) {
		for {
			select {
			case <-closed:
				return
			default:
			}
			msg, ok := mailbox.Recv(100 * time.Millisecond)
			if !ok {
				continue
			}
			if msg.Kind == engine.KindExit {
				_ = WriteExit(conn, uint64(msg.Sender), ReasonCode(msg.Reason.ReasonCode()), msg.Metadata)
				once.Do(func() { close(closed) })
				return
			}
		}
	})
	if err != nil {
		return
	}

	e.eng.Monitor(pid, target)
	<-closed
	_ = e.eng.Stop(pid)
}

// SendRemote opens a connection to addr and writes pid's payload as an
// OpSend frame; there is no response to wait for.
func (e *Endpoint) SendRemote(addr string, pid uint64, payload []byte) error {
	conn, err := net.DialTimeout("tcp", addr, e.dialTimeout)
	if err != nil {
		return &engine.Error{Kind: engine.ErrTransport, Op: "wire.send_remote"}
	}
	defer conn.Close()
	if err := WriteSend(conn, pid, payload); err != nil {
		return &engine.Error{Kind: engine.ErrTransport, Op: "wire.send_remote"}
	}
	return nil
}

// ResolveRemote asks addr to resolve name, returning 0 if it isn't
// registered there.
func (e *Endpoint) ResolveRemote(addr, name string) (uint64, error) {
	conn, err := net.DialTimeout("tcp", addr, e.dialTimeout)
	if err != nil {
		return 0, &engine.Error{Kind: engine.ErrTransport, Op: "wire.resolve_remote"}
	}
	defer conn.Close()
	if err := WriteResolveRequest(conn, name); err != nil {
		return 0, &engine.Error{Kind: engine.ErrTransport, Op: "wire.resolve_remote"}
	}
	pid, err := ReadResolveResponse(conn)
	if err != nil {
		return 0, &engine.Error{Kind: engine.ErrTransport, Op: "wire.resolve_remote"}
	}
	return pid, nil
}

// MonitorRemote asks addr to notify this endpoint when pid exits; the
// notification (or a synthetic one on disconnect) is delivered as an
// Exit message to localMonitor's mailbox. MonitorRemote itself returns as
// soon as the subscription request is sent.
func (e *Endpoint) MonitorRemote(addr string, pid uint64, localMonitor engine.PID) error {
	conn, err := net.DialTimeout("tcp", addr, e.dialTimeout)
	if err != nil {
		_ = e.eng.Send(localMonitor, engine.ExitMessage(engine.PID(pid), engine.ReasonOther, "disconnected"), 0)
		return &engine.Error{Kind: engine.ErrTransport, Op: "wire.monitor_remote"}
	}
	if err := WriteMonitor(conn, pid); err != nil {
		conn.Close()
		_ = e.eng.Send(localMonitor, engine.ExitMessage(engine.PID(pid), engine.ReasonOther, "disconnected"), 0)
		return &engine.Error{Kind: engine.ErrTransport, Op: "wire.monitor_remote"}
	}
	go e.awaitRemoteExit(conn, pid, localMonitor)
	return nil
}

func (e *Endpoint) awaitRemoteExit(conn net.Conn, pid uint64, localMonitor engine.PID) {
	defer conn.Close()
	op, err := ReadOpcode(conn)
	if err != nil || op != OpExit {
		_ = e.eng.Send(localMonitor, engine.ExitMessage(engine.PID(pid), engine.ReasonOther, "disconnected"), 0)
		return
	}
	frame, err := ReadExitBody(conn)
	if err != nil {
		_ = e.eng.Send(localMonitor, engine.ExitMessage(engine.PID(pid), engine.ReasonOther, "disconnected"), 0)
		return
	}
	_ = e.eng.Send(localMonitor, engine.ExitMessage(engine.PID(frame.PID), engine.ExitReason(frame.Reason), frame.Metadata), 0)
}
