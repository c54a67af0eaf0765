package engine

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Option configures an Engine at construction time.
type Option func(*Engine)

// PullBody is the user-supplied loop for a pull actor: it owns mailbox,
// drives its own recv/selective_recv calls, and should return once it
// observes StopSignal(self) closed or an Exit from self in its mailbox
// (both are what Stop produces), or on its own accord, for Normal exit.
type PullBody func(e *Engine, self PID, mailbox *MailboxReceiver)

// Engine is the runtime: it owns the actor table, the name/path
// registries, the supervisor state and the timer wheel, and is the sole
// entry point callers use after obtaining a PID from a spawn call.
type Engine struct {
	mu     sync.RWMutex
	actors map[PID]*controlBlock

	pids     idAllocator
	timerIDs idAllocator

	registry         *registry
	globalSupervisor *supervisor
	timers           *timerWheel

	logger   Logger
	stopping int32 // atomic bool
	wg       sync.WaitGroup
}

// NewEngine constructs an empty Engine ready to spawn actors.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		actors:           make(map[PID]*controlBlock),
		registry:         newRegistry(),
		globalSupervisor: newSupervisor(),
		timers:           newTimerWheel(),
		logger:           stderrLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lookup(pid PID) (*controlBlock, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cb, ok := e.actors[pid]
	return cb, ok
}

func (e *Engine) isStopping() bool {
	return atomic.LoadInt32(&e.stopping) == 1
}

// --- spawning ---

// Spawn creates a push-actor from props and returns its PID.
func (e *Engine) Spawn(props *Props) (PID, error) {
	if e.isStopping() {
		return 0, newError("engine.spawn", ErrInvalidArgument)
	}
	pid := PID(e.pids.next64())

	var sender *MailboxSender
	var recv *MailboxReceiver
	if props.bounded {
		sender, recv = NewBoundedMailbox(props.capacity)
	} else {
		sender, recv = NewMailbox()
	}

	behavior := props.produce()
	cb := newControlBlock(pid, kindPush, sender, props.parent, behavior)
	if props.observed {
		cb.observed = newObservedBuffer()
	}

	e.mu.Lock()
	e.actors[pid] = cb
	e.mu.Unlock()

	if props.parent != 0 {
		if parentCB, ok := e.lookup(props.parent); ok {
			parentCB.addChild(pid)
		}
	}

	proc := newProcess(e, cb, recv, behavior, props.budget)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		proc.run()
	}()

	return pid, nil
}

// SpawnPush spawns an unbounded push-actor with the given reduction
// budget.
func (e *Engine) SpawnPush(producer Producer, budget int) (PID, error) {
	return e.Spawn(NewProps(producer).WithBudget(budget))
}

// SpawnPushBounded spawns a push-actor whose user mailbox drops new
// messages once it holds capacity of them.
func (e *Engine) SpawnPushBounded(producer Producer, budget, capacity int) (PID, error) {
	return e.Spawn(NewProps(producer).WithBudget(budget).WithBoundedMailbox(capacity))
}

// SpawnChild spawns a push-actor structurally owned by parent: parent's
// exit stops this actor too.
func (e *Engine) SpawnChild(parent PID, producer Producer, budget int) (PID, error) {
	return e.Spawn(NewProps(producer).WithBudget(budget).WithParent(parent))
}

// SpawnObserved spawns a push-actor that additionally records every
// received message into a rolling, operator-inspectable buffer.
func (e *Engine) SpawnObserved(producer Producer, budget int) (PID, error) {
	return e.Spawn(NewProps(producer).WithBudget(budget).Observed())
}

// SpawnPull spawns an actor whose receive loop is entirely driven by
// body; the engine only owns its control block and lifecycle
// propagation.
func (e *Engine) SpawnPull(body PullBody) (PID, error) {
	if e.isStopping() {
		return 0, newError("engine.spawn_pull", ErrInvalidArgument)
	}
	pid := PID(e.pids.next64())
	sender, recv := NewMailbox()
	cb := newControlBlock(pid, kindPull, sender, 0, nil)

	e.mu.Lock()
	e.actors[pid] = cb
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		reason := ReasonNormal
		metadata := ""
		defer func() {
			if r := recover(); r != nil {
				reason = ReasonPanic
				metadata = fmt.Sprintf("%v", r)
				e.log("actor %s panicked: %v\n%s", pid, r, debug.Stack())
			}
			if reason == ReasonNormal {
				select {
				case <-cb.stopCh:
					reason = ReasonKilled
				default:
				}
			}
			recv.Close()
			e.finalizeActor(cb, reason, metadata)
			e.wg.Done()
		}()
		body(e, pid, recv)
	}()

	return pid, nil
}

// StopSignal returns the channel a pull actor's body should select on to
// learn it has been asked to stop; it is already closed if pid is
// unknown.
func (e *Engine) StopSignal(pid PID) <-chan struct{} {
	cb, ok := e.lookup(pid)
	if !ok {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return cb.stopCh
}

// --- messaging ---

// deliverTo pushes msg into cb's mailbox without touching its Sender
// field, used for internally-attributed messages (Exit, HotSwap).
func (e *Engine) deliverTo(cb *controlBlock, msg Message) error {
	return cb.mailbox.Send(msg)
}

// Send delivers msg to pid, attributed to sender (0 for anonymous). A
// send to a dead or unknown PID is a silent no-op, per the NotFound
// error-handling contract.
func (e *Engine) Send(pid PID, msg Message, sender PID) error {
	cb, ok := e.lookup(pid)
	if !ok {
		return nil
	}
	return e.deliverTo(cb, msg.WithSender(sender))
}

// SendNamed resolves name through the flat registry and sends msg to the
// PID it maps to; an unknown name is a silent no-op.
func (e *Engine) SendNamed(name string, msg Message, sender PID) error {
	pid, ok := e.registry.resolve(name)
	if !ok {
		return nil
	}
	return e.Send(pid, msg, sender)
}

// HotSwap atomically replaces pid's current behavior before the next
// user message it processes.
func (e *Engine) HotSwap(pid PID, behavior Behavior) error {
	cb, ok := e.lookup(pid)
	if !ok {
		return newError("engine.hot_swap", ErrNotFound)
	}
	return e.deliverTo(cb, HotSwapMessage(behavior))
}

// Stop asynchronously asks pid to exit with ReasonKilled; it becomes
// not-alive once its current message finishes processing. For a pull
// actor it also enqueues an Exit{from: pid, reason: Killed} system
// message, so a body parked in Recv wakes up.
func (e *Engine) Stop(pid PID) error {
	cb, ok := e.lookup(pid)
	if !ok {
		return nil
	}
	cb.requestStop()
	if cb.kind == kindPull {
		_ = e.deliverTo(cb, ExitMessage(pid, ReasonKilled, ""))
	}
	return nil
}

// IsAlive reports whether pid still resolves to a live actor.
func (e *Engine) IsAlive(pid PID) bool {
	cb, ok := e.lookup(pid)
	return ok && cb.isAlive()
}

// MailboxSize returns the externally-visible user-queue depth for pid.
func (e *Engine) MailboxSize(pid PID) (int, error) {
	cb, ok := e.lookup(pid)
	if !ok {
		return 0, newError("engine.mailbox_size", ErrNotFound)
	}
	return cb.mailbox.Len(), nil
}

// --- links and monitors ---

// Link creates a symmetric exit-notification relation between a and b.
// A link between two already-dead PIDs is a no-op.
func (e *Engine) Link(a, b PID) error {
	cbA, okA := e.lookup(a)
	cbB, okB := e.lookup(b)
	if !okA && !okB {
		return nil
	}
	if okA {
		cbA.addLink(b)
	}
	if okB {
		cbB.addLink(a)
	}
	return nil
}

// Unlink removes the symmetric association between a and b.
func (e *Engine) Unlink(a, b PID) error {
	if cbA, ok := e.lookup(a); ok {
		cbA.removeLink(b)
	}
	if cbB, ok := e.lookup(b); ok {
		cbB.removeLink(a)
	}
	return nil
}

// Monitor makes watcher receive a one-way Exit notification when target
// exits; target exiting watcher generates no notification in return.
func (e *Engine) Monitor(watcher, target PID) error {
	cbT, ok := e.lookup(target)
	if !ok {
		return nil
	}
	cbT.addMonitor(watcher)
	return nil
}

// --- flat name registry ---

// Register binds name to pid, overwriting any previous binding.
func (e *Engine) Register(name string, pid PID) {
	if old, ok := e.registry.resolve(name); ok && old != pid {
		if cb, ok := e.lookup(old); ok && cb.registeredName() == name {
			cb.setName("")
		}
	}
	e.registry.register(name, pid)
	if cb, ok := e.lookup(pid); ok {
		cb.setName(name)
	}
}

// Unregister removes name; removing an unknown name is a no-op. If name
// is still the pid's registered name, the control block's record of it
// is cleared too.
func (e *Engine) Unregister(name string) {
	pid, ok := e.registry.resolve(name)
	e.registry.unregister(name)
	if !ok {
		return
	}
	if cb, ok := e.lookup(pid); ok && cb.registeredName() == name {
		cb.setName("")
	}
}

// Resolve returns the PID bound to name, if any.
func (e *Engine) Resolve(name string) (PID, bool) { return e.registry.resolve(name) }

// NameOf returns the flat name currently registered for pid, if any.
func (e *Engine) NameOf(pid PID) (string, bool) {
	cb, ok := e.lookup(pid)
	if !ok {
		return "", false
	}
	name := cb.registeredName()
	return name, name != ""
}

// --- hierarchical path registry ---

// RegisterPath binds a PID to a slash-delimited path, creating
// intermediate nodes as needed.
func (e *Engine) RegisterPath(path string, pid PID) {
	if old, ok := e.registry.whereisPath(path); ok && old != pid {
		if cb, ok := e.lookup(old); ok && cb.registeredPath() == path {
			cb.setPath("")
		}
	}
	e.registry.registerPath(path, pid)
	if cb, ok := e.lookup(pid); ok {
		cb.setPath(path)
	}
}

// PathOf returns the hierarchical path currently registered for pid, if
// any.
func (e *Engine) PathOf(pid PID) (string, bool) {
	cb, ok := e.lookup(pid)
	if !ok {
		return "", false
	}
	path := cb.registeredPath()
	return path, path != ""
}

// WhereisPath returns the PID registered exactly at path, if any.
func (e *Engine) WhereisPath(path string) (PID, bool) { return e.registry.whereisPath(path) }

// ListChildren returns every (path, pid) registered anywhere under prefix.
func (e *Engine) ListChildren(prefix string) []PathEntry {
	return e.registry.listChildren(prefix, false)
}

// ListChildrenDirect returns only the immediate children of prefix.
func (e *Engine) ListChildrenDirect(prefix string) []PathEntry {
	return e.registry.listChildren(prefix, true)
}

// WatchPath subscribes the caller to future add/remove events at or
// below prefix.
func (e *Engine) WatchPath(prefix string) <-chan PathEvent {
	return e.registry.watchPath(prefix)
}

// --- observed actors ---

// ObservedMessages returns a snapshot of every message pid has received,
// if pid was spawned as observed.
func (e *Engine) ObservedMessages(pid PID) ([]Message, error) {
	cb, ok := e.lookup(pid)
	if !ok {
		return nil, newError("engine.observed_messages", ErrNotFound)
	}
	if cb.observed == nil {
		return nil, newError("engine.observed_messages", ErrInvalidArgument)
	}
	return cb.observed.snapshot(), nil
}

// TakeObservedMessageMatching removes and returns the first observed
// message matching predicate, if any.
func (e *Engine) TakeObservedMessageMatching(pid PID, predicate func(Message) bool) (Message, bool, error) {
	cb, ok := e.lookup(pid)
	if !ok {
		return Message{}, false, newError("engine.take_observed_message_matching", ErrNotFound)
	}
	if cb.observed == nil {
		return Message{}, false, newError("engine.take_observed_message_matching", ErrInvalidArgument)
	}
	msg, ok := cb.observed.takeMatching(predicate)
	return msg, ok, nil
}

// --- lifecycle propagation ---

// finalizeActor runs once, synchronously, on the goroutine that drove the
// dying actor, implementing the exit-propagation contract: linked peers
// and monitors are notified, children are stopped, the supervisor (global
// or path-scoped) applies its restart strategy, and every registration or
// armed timer referencing the dead PID is cleared.
func (e *Engine) finalizeActor(cb *controlBlock, reason ExitReason, metadata string) {
	if !cb.markDead() {
		return
	}

	e.mu.Lock()
	delete(e.actors, cb.pid)
	e.mu.Unlock()

	e.registry.unregisterPID(cb.pid)
	e.registry.unregisterPathByPID(cb.pid)
	cb.setName("")
	cb.setPath("")

	for _, t := range e.timers.removeAllFor(cb.pid) {
		t.cancel()
	}

	exitMsg := ExitMessage(cb.pid, reason, metadata)
	linked, monitors := cb.snapshotPeers()
	for _, p := range linked {
		if peer, ok := e.lookup(p); ok {
			_ = e.deliverTo(peer, exitMsg)
			peer.removeLink(cb.pid)
		}
	}
	for _, p := range monitors {
		if peer, ok := e.lookup(p); ok {
			_ = e.deliverTo(peer, exitMsg)
		}
	}

	for _, child := range cb.snapshotChildren() {
		_ = e.Stop(child)
	}

	e.applyRestart(e.globalSupervisor, cb.pid)
	if sup := e.registry.pathSupervisorFor(cb.pid); sup != nil {
		e.registry.unbindPathSupervised(cb.pid)
		e.applyRestart(sup.supervisor, cb.pid)
		for _, p := range sup.pids() {
			e.registry.bindPathSupervised(p, sup)
		}
	}
}

// Stats is a point-in-time snapshot of engine occupancy, used by the
// operator dashboard and by tests asserting on steady-state shape.
type Stats struct {
	ActorCount         int
	SupervisedCount    int
	RegisteredNames    int
	TimerCount         int
}

// Snapshot returns the engine's current Stats.
func (e *Engine) Snapshot() Stats {
	e.mu.RLock()
	actorCount := len(e.actors)
	e.mu.RUnlock()

	e.registry.mu.RLock()
	names := len(e.registry.names)
	e.registry.mu.RUnlock()

	e.timers.mu.Lock()
	timers := len(e.timers.byID)
	e.timers.mu.Unlock()

	return Stats{
		ActorCount:      actorCount,
		SupervisedCount: e.globalSupervisor.count(),
		RegisteredNames: names,
		TimerCount:      timers,
	}
}

// Shutdown asks every live actor to stop and blocks until all of them
// have finalized or timeout elapses, whichever comes first.
func (e *Engine) Shutdown(timeout time.Duration) error {
	if !atomic.CompareAndSwapInt32(&e.stopping, 0, 1) {
		return nil
	}

	e.mu.RLock()
	pids := make([]PID, 0, len(e.actors))
	for pid := range e.actors {
		pids = append(pids, pid)
	}
	e.mu.RUnlock()

	for _, pid := range pids {
		_ = e.Stop(pid)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return newError("engine.shutdown", ErrTimeout)
	}
}
