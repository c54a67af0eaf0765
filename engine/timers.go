package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

type timerKind int

const (
	timerOneShot timerKind = iota
	timerInterval
)

// timerEntry is the runtime's bookkeeping for one armed timer. cancelled
// is checked right before firing so a race between cancel_timer and an
// about-to-fire timer resolves in favor of cancellation.
type timerEntry struct {
	id        TimerId
	target    PID
	payload   []byte
	kind      timerKind
	cancelled int32 // atomic bool
	timer     *time.Timer    // one-shot only
	stopCh    chan struct{}  // interval only
	stopOnce  sync.Once
}

func (t *timerEntry) cancel() {
	atomic.StoreInt32(&t.cancelled, 1)
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.stopCh != nil {
		t.stopOnce.Do(func() { close(t.stopCh) })
	}
}

// timerWheel owns every armed timer. It is deliberately its own lock
// domain, acquired independently of the actor table and the registry.
type timerWheel struct {
	mu    sync.Mutex
	byID  map[TimerId]*timerEntry
	byPID map[PID]map[TimerId]struct{}
}

func newTimerWheel() *timerWheel {
	return &timerWheel{
		byID:  make(map[TimerId]*timerEntry),
		byPID: make(map[PID]map[TimerId]struct{}),
	}
}

func (w *timerWheel) add(e *timerEntry) {
	w.mu.Lock()
	w.byID[e.id] = e
	set, ok := w.byPID[e.target]
	if !ok {
		set = make(map[TimerId]struct{})
		w.byPID[e.target] = set
	}
	set[e.id] = struct{}{}
	w.mu.Unlock()
}

func (w *timerWheel) remove(id TimerId) (*timerEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.byID[id]
	if !ok {
		return nil, false
	}
	delete(w.byID, id)
	if set, ok := w.byPID[e.target]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(w.byPID, e.target)
		}
	}
	return e, true
}

// removeAllFor removes and returns every timer targeting pid; called when
// an actor becomes not-alive, and the caller cancels the returned timers
// so no timer keeps a goroutine alive forever.
func (w *timerWheel) removeAllFor(pid PID) []*timerEntry {
	w.mu.Lock()
	set, ok := w.byPID[pid]
	if !ok {
		w.mu.Unlock()
		return nil
	}
	out := make([]*timerEntry, 0, len(set))
	for id := range set {
		if e, ok := w.byID[id]; ok {
			out = append(out, e)
			delete(w.byID, id)
		}
	}
	delete(w.byPID, pid)
	w.mu.Unlock()
	return out
}

// SendAfter arms a one-shot timer: once delay elapses, UserMessage(payload)
// is enqueued into pid's mailbox. If pid has already exited by then, the
// send is a silent no-op.
func (e *Engine) SendAfter(pid PID, delay time.Duration, payload []byte) TimerId {
	id := TimerId(e.timerIDs.next64())
	entry := &timerEntry{id: id, target: pid, payload: payload, kind: timerOneShot}
	entry.timer = time.AfterFunc(delay, func() {
		if _, ok := e.timers.remove(id); !ok {
			return
		}
		if atomic.LoadInt32(&entry.cancelled) == 1 {
			return
		}
		_ = e.Send(pid, UserMessage(payload), 0)
	})
	e.timers.add(entry)
	return id
}

// SendInterval arms a repeating timer: UserMessage(payload) is enqueued
// into pid's mailbox every period, until CancelTimer is called or pid
// exits.
func (e *Engine) SendInterval(pid PID, period time.Duration, payload []byte) TimerId {
	id := TimerId(e.timerIDs.next64())
	entry := &timerEntry{id: id, target: pid, payload: payload, kind: timerInterval, stopCh: make(chan struct{})}
	e.timers.add(entry)

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-entry.stopCh:
				return
			case <-ticker.C:
				if atomic.LoadInt32(&entry.cancelled) == 1 {
					return
				}
				if !e.IsAlive(pid) {
					e.timers.remove(id)
					return
				}
				_ = e.Send(pid, UserMessage(payload), 0)
			}
		}
	}()

	return id
}

// CancelTimer disarms a timer, returning true if it was still active.
func (e *Engine) CancelTimer(id TimerId) bool {
	entry, ok := e.timers.remove(id)
	if !ok {
		return false
	}
	entry.cancel()
	return true
}
