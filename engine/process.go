package engine

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// process drives a single push-actor's receive loop: it owns the
// MailboxReceiver half of the actor's mailbox and the actor's current
// Behavior, dispatching messages one at a time and honoring the
// reduction budget between consecutive user messages.
type process struct {
	engine   *Engine
	cb       *controlBlock
	recv     *MailboxReceiver
	behavior Behavior
	budget   int
}

func newProcess(e *Engine, cb *controlBlock, recv *MailboxReceiver, behavior Behavior, budget int) *process {
	if budget <= 0 {
		budget = DefaultReductionBudget
	}
	return &process{engine: e, cb: cb, recv: recv, behavior: behavior, budget: budget}
}

// nextMessage blocks until a message is ready or the actor has been
// asked to stop, applying the mailbox's system-before-user priority via
// MailboxReceiver.drainReady.
func (p *process) nextMessage() (Message, bool) {
	for {
		if msg, ok := p.recv.drainReady(); ok {
			return msg, true
		}
		select {
		case <-p.cb.stopCh:
			return Message{}, false
		case <-p.recv.core.sysQ.notifyCh():
		case <-p.recv.core.userQ.notifyCh():
		}
	}
}

// run is the actor's goroutine body.
func (p *process) run() {
	reason := ReasonNormal
	metadata := ""

	defer func() {
		if r := recover(); r != nil {
			reason = ReasonPanic
			metadata = fmt.Sprintf("%v", r)
			p.engine.log("actor %s panicked: %v\n%s", p.cb.pid, r, debug.Stack())
		}
		p.recv.Close()
		p.engine.finalizeActor(p.cb, reason, metadata)
	}()

	processedSinceYield := 0
	for {
		msg, ok := p.nextMessage()
		if !ok {
			reason = ReasonKilled
			return
		}

		if msg.Kind == KindHotSwap {
			if b, okb := msg.Behavior.(Behavior); okb && b != nil {
				p.behavior = b
				p.cb.swapBehavior(b)
			}
			if p.cb.observed != nil {
				p.cb.observed.append(msg)
			}
			continue
		}

		p.deliver(msg)

		if p.cb.observed != nil {
			p.cb.observed.append(msg)
		}

		if !msg.IsSystem() {
			processedSinceYield++
			if processedSinceYield >= p.budget {
				processedSinceYield = 0
				runtime.Gosched()
			}
		}

		select {
		case <-p.cb.stopCh:
			reason = ReasonKilled
			return
		default:
		}
	}
}

func (p *process) deliver(msg Message) {
	ctx := &context{engine: p.engine, self: p.cb.pid, sender: msg.Sender, message: msg}
	p.behavior.Receive(ctx)
}
