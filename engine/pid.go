package engine

import (
	"strconv"
	"sync/atomic"
)

// PID is an opaque, runtime-unique reference to an actor. The zero value
// means "no actor" / "unresolved" and is never handed out by Spawn.
type PID uint64

// String returns a human-readable form of the PID, e.g. "actor-42".
func (pid PID) String() string {
	if pid == 0 {
		return "pid-none"
	}
	return "actor-" + strconv.FormatUint(uint64(pid), 10)
}

// IsZero reports whether pid is the reserved "no actor" value.
func (pid PID) IsZero() bool { return pid == 0 }

// TimerId is an opaque reference to a scheduled send_after/send_interval
// timer. Unlike PID it may be reused once the timer it names has fired
// (one-shot) or been cancelled.
type TimerId uint64

// idAllocator hands out monotonically increasing 64-bit identifiers,
// reserving 0 as "none". One allocator backs PIDs, a second backs TimerIds.
type idAllocator struct {
	next uint64
}

// next64 returns the next non-zero identifier.
func (a *idAllocator) next64() uint64 {
	return atomic.AddUint64(&a.next, 1)
}
