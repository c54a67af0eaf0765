package wire

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/nodeforge/actorcore/engine"
)

// Dashboard streams periodic engine.Stats snapshots to every connected
// websocket client, in the same open-map-of-connections shape the rest
// of the stack uses for its websocket server.
type Dashboard struct {
	eng        *engine.Engine
	tickPeriod time.Duration
	logger     engine.Logger

	mu    sync.RWMutex
	conns map[*websocket.Conn]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewDashboard builds a Dashboard that polls eng every tickPeriod.
func NewDashboard(eng *engine.Engine, tickPeriod time.Duration) *Dashboard {
	if tickPeriod <= 0 {
		tickPeriod = 250 * time.Millisecond
	}
	return &Dashboard{
		eng:        eng,
		tickPeriod: tickPeriod,
		conns:      make(map[*websocket.Conn]bool),
		stopCh:     make(chan struct{}),
	}
}

// Handler is the websocket.Handler to mount on an http.ServeMux.
func (d *Dashboard) Handler() websocket.Handler {
	return func(ws *websocket.Conn) {
		d.open(ws)
		defer d.close(ws)
		// Keep the connection registered until the client disconnects;
		// this handler only ever writes, so reads exist solely to detect
		// that disconnect.
		var buf [1]byte
		for {
			if _, err := ws.Read(buf[:]); err != nil {
				return
			}
		}
	}
}

func (d *Dashboard) open(ws *websocket.Conn) {
	d.mu.Lock()
	d.conns[ws] = true
	d.mu.Unlock()
}

func (d *Dashboard) close(ws *websocket.Conn) {
	d.mu.Lock()
	delete(d.conns, ws)
	d.mu.Unlock()
	ws.Close()
}

// Run broadcasts a Stats snapshot every tickPeriod until Stop is called.
func (d *Dashboard) Run() {
	ticker := time.NewTicker(d.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.broadcast()
		}
	}
}

// Stop ends the broadcast loop started by Run.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *Dashboard) broadcast() {
	payload, err := json.Marshal(d.eng.Snapshot())
	if err != nil {
		return
	}

	d.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(d.conns))
	for ws := range d.conns {
		targets = append(targets, ws)
	}
	d.mu.RUnlock()

	for _, ws := range targets {
		if _, err := ws.Write(payload); err != nil {
			if d.logger != nil {
				d.logger.Printf("dashboard: write to %s failed: %v", ws.RemoteAddr(), err)
			}
			d.close(ws)
		}
	}
}

// WithLogger sets the logger used for write-failure diagnostics.
func (d *Dashboard) WithLogger(l engine.Logger) *Dashboard {
	d.logger = l
	return d
}
