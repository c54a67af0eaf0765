package engine

import (
	"sync/atomic"
	"time"
)

// mailboxCore is the shared state between a MailboxSender and its single
// MailboxReceiver: one FIFO for system messages, one (optionally bounded)
// FIFO for user messages, and the externally-visible depth counter.
type mailboxCore struct {
	sysQ    *queue
	userQ   *queue
	counter int64 // atomic: user messages in userQ + in the receiver's stash
	closed  int32 // atomic bool: set once the receiver is gone
}

// MailboxSender is the cloneable, concurrency-safe handle actors and the
// engine use to deliver messages. It is the only part of a mailbox stored
// in the actor control block.
type MailboxSender struct {
	core *mailboxCore
}

// MailboxReceiver is the single-owner half of a mailbox; structurally,
// only the goroutine running an actor's receive loop holds one.
type MailboxReceiver struct {
	core  *mailboxCore
	stash []Message
}

// NewMailbox creates an unbounded mailbox: (sender, receiver).
func NewMailbox() (*MailboxSender, *MailboxReceiver) {
	return newMailboxCore(false, 0)
}

// NewBoundedMailbox creates a mailbox whose user queue rejects new sends
// (drop-new policy) once capacity pending messages are queued. System
// messages remain unbounded.
func NewBoundedMailbox(capacity int) (*MailboxSender, *MailboxReceiver) {
	return newMailboxCore(true, capacity)
}

func newMailboxCore(bounded bool, capacity int) (*MailboxSender, *MailboxReceiver) {
	core := &mailboxCore{
		sysQ:  newQueue(false, 0),
		userQ: newQueue(bounded, capacity),
	}
	return &MailboxSender{core: core}, &MailboxReceiver{core: core}
}

// Send enqueues msg. User payloads are subject to the bounded drop-new
// policy; system messages are always unbounded. Once the receiver has
// closed the mailbox, every Send fails with ErrClosed and the original
// message is returned via the *Error.
func (s *MailboxSender) Send(msg Message) error {
	if atomic.LoadInt32(&s.core.closed) == 1 {
		return newSendError("mailbox.send", ErrClosed, msg)
	}

	if msg.IsSystem() {
		if !s.core.sysQ.push(msg) {
			return newSendError("mailbox.send", ErrClosed, msg)
		}
		return nil
	}

	atomic.AddInt64(&s.core.counter, 1)
	if !s.core.userQ.push(msg) {
		atomic.AddInt64(&s.core.counter, -1)
		return newSendError("mailbox.send", ErrQueueFull, msg)
	}
	return nil
}

// Len returns the number of user messages observable by future receives,
// including ones currently stashed by a selective receive.
func (s *MailboxSender) Len() int {
	return int(atomic.LoadInt64(&s.core.counter))
}

// Closed reports whether the receiver has closed this mailbox.
func (s *MailboxSender) Closed() bool {
	return atomic.LoadInt32(&s.core.closed) == 1
}

// Len mirrors MailboxSender.Len from the receiver side.
func (r *MailboxReceiver) Len() int {
	return int(atomic.LoadInt64(&r.core.counter))
}

// Close marks the mailbox as closed; every subsequent Send fails with
// ErrClosed. It does not wake a goroutine blocked in Recv — callers stop
// actors through the scheduler's stop signal, not by closing the mailbox
// out from under a running receive.
func (r *MailboxReceiver) Close() {
	atomic.StoreInt32(&r.core.closed, 1)
}

// stashSystemIndex returns the index of the first System message in the
// stash, or -1.
func (r *MailboxReceiver) stashSystemIndex() int {
	for i, m := range r.stash {
		if m.IsSystem() {
			return i
		}
	}
	return -1
}

func (r *MailboxReceiver) removeStash(i int) Message {
	msg := r.stash[i]
	r.stash = append(r.stash[:i], r.stash[i+1:]...)
	if !msg.IsSystem() {
		atomic.AddInt64(&r.core.counter, -1)
	}
	return msg
}

// Recv returns the next message, preferring system messages (from the
// stash, then the system channel) over user messages (from the stash,
// then the user channel), suspending the caller if none is available. A
// non-positive timeout blocks indefinitely; a positive one returns
// (Message{}, false) on expiry without consuming anything.
func (r *MailboxReceiver) Recv(timeout time.Duration) (Message, bool) {
	if msg, ok := r.drainReady(); ok {
		return msg, true
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-r.core.sysQ.notifyCh():
		case <-r.core.userQ.notifyCh():
		case <-timeoutCh:
			return Message{}, false
		}
		// A wakeup only means "something changed" on whichever queue
		// fired, and select picks a ready case at random: a system
		// message can be pending on sysQ while this wakeup came from
		// userQ. Re-run the full system-then-stash-then-channel
		// priority check instead of trusting which case fired.
		if msg, ok := r.drainReady(); ok {
			return msg, true
		}
	}
}

// TryRecv is the non-suspending analogue of Recv: it returns immediately.
func (r *MailboxReceiver) TryRecv() (Message, bool) {
	return r.drainReady()
}

// drainReady applies the system-then-stash-then-channel priority rule
// without blocking.
func (r *MailboxReceiver) drainReady() (Message, bool) {
	if i := r.stashSystemIndex(); i >= 0 {
		return r.removeStash(i), true
	}
	if msg, ok := r.core.sysQ.tryPop(); ok {
		return msg, true
	}
	if len(r.stash) > 0 {
		return r.removeStash(0), true
	}
	msg, ok := r.core.userQ.tryPop()
	if !ok {
		return Message{}, false
	}
	atomic.AddInt64(&r.core.counter, -1)
	return msg, true
}

// SelectiveRecv returns the first message (checked in stash order, then
// as messages arrive) for which predicate returns true. Every examined
// message that predicate rejects is appended to the stash, preserving
// the order in which it was first observed; later Recv/TryRecv/
// SelectiveRecv calls will surface it. predicate is evaluated exactly
// once per candidate. A non-positive timeout blocks indefinitely.
func (r *MailboxReceiver) SelectiveRecv(timeout time.Duration, predicate func(Message) bool) (Message, bool) {
	for i, m := range r.stash {
		if predicate(m) {
			return r.removeStash(i), true
		}
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		if msg, ok := r.core.sysQ.tryPop(); ok {
			if predicate(msg) {
				return msg, true
			}
			r.stash = append(r.stash, msg)
			continue
		}
		if msg, ok := r.core.userQ.tryPop(); ok {
			if predicate(msg) {
				atomic.AddInt64(&r.core.counter, -1)
				return msg, true
			}
			// Relocated from channel to stash: still counted, so the
			// counter is untouched.
			r.stash = append(r.stash, msg)
			continue
		}

		select {
		case <-r.core.sysQ.notifyCh():
			continue
		case <-r.core.userQ.notifyCh():
			continue
		case <-timeoutCh:
			return Message{}, false
		}
	}
}
