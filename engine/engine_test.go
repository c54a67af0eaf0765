package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain enforces that no test leaks a goroutine behind it, matching the
// no-leak-shutdown property every Spawn/Shutdown path is expected to hold.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoBehavior struct {
	received chan Message
}

func (b *echoBehavior) Receive(ctx Context) {
	if ctx.Message().Kind != KindUser {
		return
	}
	b.received <- ctx.Message()
	if ctx.Sender() != 0 {
		_ = ctx.Engine().Send(ctx.Sender(), ctx.Message(), ctx.Self())
	}
}

func newEcho() (*echoBehavior, Producer) {
	b := &echoBehavior{received: make(chan Message, 16)}
	return b, func() Behavior { return b }
}

func TestEngine_SpawnSendReceive(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	behavior, producer := newEcho()
	pid, err := e.SpawnPush(producer, 10)
	require.NoError(t, err)
	assert.True(t, e.IsAlive(pid))

	require.NoError(t, e.Send(pid, UserMessage([]byte("hi")), 0))

	select {
	case msg := <-behavior.received:
		assert.Equal(t, []byte("hi"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestEngine_SendToUnknownPIDIsNoop(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	err := e.Send(PID(999999), UserMessage([]byte("x")), 0)
	assert.NoError(t, err)
}

func TestEngine_StopMakesActorNotAlive(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	_, producer := newEcho()
	pid, err := e.SpawnPush(producer, 10)
	require.NoError(t, err)

	require.NoError(t, e.Stop(pid))
	assert.Eventually(t, func() bool { return !e.IsAlive(pid) }, time.Second, 5*time.Millisecond)
}

func TestEngine_LinkIsSymmetric(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	// spawnRecorder spawns an actor that forwards user messages and Exit
	// notifications to separate channels.
	spawnRecorder := func() (PID, chan Message, chan Message) {
		users := make(chan Message, 4)
		exits := make(chan Message, 4)
		pid, err := e.SpawnPush(func() Behavior {
			return BehaviorFunc(func(ctx Context) {
				switch ctx.Message().Kind {
				case KindUser:
					users <- ctx.Message()
				case KindExit:
					exits <- ctx.Message()
				}
			})
		}, 10)
		require.NoError(t, err)
		return pid, users, exits
	}

	// Link(a, b) then a exits: b is notified.
	a, _, _ := spawnRecorder()
	b, bUsers, bExits := spawnRecorder()
	require.NoError(t, e.Link(a, b))
	require.NoError(t, e.Stop(a))

	select {
	case msg := <-bExits:
		assert.Equal(t, a, msg.Sender)
		assert.Equal(t, ReasonKilled, msg.Reason)
	case <-time.After(time.Second):
		t.Fatal("b never observed a's exit through the link")
	}
	select {
	case msg := <-bUsers:
		t.Fatalf("link should only deliver Exit, got user message %v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	// Link(c, d) then d exits: c is notified just the same.
	c, _, cExits := spawnRecorder()
	d, _, _ := spawnRecorder()
	require.NoError(t, e.Link(c, d))
	require.NoError(t, e.Stop(d))

	select {
	case msg := <-cExits:
		assert.Equal(t, d, msg.Sender)
	case <-time.After(time.Second):
		t.Fatal("c never observed d's exit through the link")
	}
}

func TestEngine_MonitorIsOneWay(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	var monitorExit Message
	var mu sync.Mutex
	exitSeen := make(chan struct{})

	target, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {})
	}, 10)
	require.NoError(t, err)

	watcher, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			if ctx.Message().Kind == KindExit {
				mu.Lock()
				monitorExit = ctx.Message()
				mu.Unlock()
				close(exitSeen)
			}
		})
	}, 10)
	require.NoError(t, err)

	require.NoError(t, e.Monitor(watcher, target))
	require.NoError(t, e.Stop(target))

	select {
	case <-exitSeen:
		mu.Lock()
		assert.Equal(t, target, monitorExit.Sender)
		assert.Equal(t, ReasonKilled, monitorExit.Reason)
		mu.Unlock()
	case <-time.After(time.Second):
		t.Fatal("watcher never observed target's exit")
	}

	require.NoError(t, e.Stop(watcher))
	assert.Eventually(t, func() bool { return !e.IsAlive(watcher) }, time.Second, 5*time.Millisecond)

	// Watcher exiting must not notify its target back (one-way): monitor a
	// live, exit-recording target and stop only the watcher.
	targetExits := make(chan Message, 1)
	target2, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			if ctx.Message().Kind == KindExit {
				targetExits <- ctx.Message()
			}
		})
	}, 10)
	require.NoError(t, err)
	watcher2, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {})
	}, 10)
	require.NoError(t, err)

	require.NoError(t, e.Monitor(watcher2, target2))
	require.NoError(t, e.Stop(watcher2))
	assert.Eventually(t, func() bool { return !e.IsAlive(watcher2) }, time.Second, 5*time.Millisecond)

	select {
	case msg := <-targetExits:
		t.Fatalf("target was notified of its watcher's exit: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngine_StructuredConcurrencyStopsChildren(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	parent, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {})
	}, 10)
	require.NoError(t, err)

	child, err := e.SpawnChild(parent, func() Behavior {
		return BehaviorFunc(func(ctx Context) {})
	}, 10)
	require.NoError(t, err)

	require.NoError(t, e.Stop(parent))
	assert.Eventually(t, func() bool { return !e.IsAlive(child) }, time.Second, 5*time.Millisecond)
}

func TestEngine_HotSwapChangesBehavior(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)

	pid, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			if ctx.Message().Kind == KindUser {
				first <- struct{}{}
			}
		})
	}, 10)
	require.NoError(t, err)

	require.NoError(t, e.Send(pid, UserMessage([]byte("1")), 0))
	<-first

	require.NoError(t, e.HotSwap(pid, BehaviorFunc(func(ctx Context) {
		if ctx.Message().Kind == KindUser {
			second <- struct{}{}
		}
	})))
	require.NoError(t, e.Send(pid, UserMessage([]byte("2")), 0))

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("hot-swapped behavior never ran")
	}
}

func TestEngine_BoundedMailboxDropsUnderLoad(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	gate := make(chan struct{})
	pid, err := e.SpawnPushBounded(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			<-gate
		})
	}, 10, 1)
	require.NoError(t, err)

	// First send is picked up immediately by the actor's loop, which takes
	// it out of the only mailbox slot and then blocks on gate; "b" refills
	// the slot and "c" finds it full.
	require.NoError(t, e.Send(pid, UserMessage([]byte("a")), 0))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, e.Send(pid, UserMessage([]byte("b")), 0))
	err = e.Send(pid, UserMessage([]byte("c")), 0)
	assert.Error(t, err)
	assert.True(t, IsKind(err, ErrQueueFull))

	close(gate)
}

func TestEngine_ObservedMessages(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	pid, err := e.SpawnObserved(func() Behavior {
		return BehaviorFunc(func(ctx Context) {})
	}, 10)
	require.NoError(t, err)

	require.NoError(t, e.Send(pid, UserMessage([]byte("observe-me")), 0))

	assert.Eventually(t, func() bool {
		msgs, err := e.ObservedMessages(pid)
		return err == nil && len(msgs) == 1
	}, time.Second, 5*time.Millisecond)

	msg, ok, err := e.TakeObservedMessageMatching(pid, func(m Message) bool {
		return string(m.Payload) == "observe-me"
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("observe-me"), msg.Payload)
}

func TestEngine_SpawnPullDrivesOwnLoop(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	got := make(chan Message, 1)
	pid, err := e.SpawnPull(func(e *Engine, self PID, mailbox *MailboxReceiver) {
		for {
			msg, ok := mailbox.Recv(0)
			if !ok {
				return
			}
			if msg.Kind == KindExit {
				return
			}
			got <- msg
			select {
			case <-e.StopSignal(self):
				return
			default:
			}
		}
	})
	require.NoError(t, err)

	require.NoError(t, e.Send(pid, UserMessage([]byte("pull")), 0))
	select {
	case msg := <-got:
		assert.Equal(t, []byte("pull"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("pull actor never received the message")
	}

	require.NoError(t, e.Stop(pid))
	assert.Eventually(t, func() bool { return !e.IsAlive(pid) }, time.Second, 5*time.Millisecond)
}

func TestEngine_PanicingActorExitsWithReasonPanic(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	target, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			if ctx.Message().Kind == KindUser {
				panic("boom")
			}
		})
	}, 10)
	require.NoError(t, err)

	exitSeen := make(chan Message, 1)
	watcher, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			if ctx.Message().Kind == KindExit {
				exitSeen <- ctx.Message()
			}
		})
	}, 10)
	require.NoError(t, err)
	require.NoError(t, e.Monitor(watcher, target))

	require.NoError(t, e.Send(target, UserMessage([]byte("trigger")), 0))

	select {
	case msg := <-exitSeen:
		assert.Equal(t, ReasonPanic, msg.Reason)
	case <-time.After(time.Second):
		t.Fatal("panic never propagated as an exit")
	}
}

func TestEngine_SupervisorRestartsOneOnExit(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	spawnCount := 0
	var spawn func() (PID, error)
	spawn = func() (PID, error) {
		spawnCount++
		pid, err := e.SpawnPush(func() Behavior {
			return BehaviorFunc(func(ctx Context) {})
		}, 10)
		if err != nil {
			return 0, err
		}
		e.Supervise(pid, ChildSpec{Factory: spawn, Strategy: RestartOne})
		return pid, nil
	}

	pid, err := spawn()
	require.NoError(t, err)
	require.NoError(t, e.Stop(pid))

	assert.Eventually(t, func() bool { return spawnCount == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return e.ChildrenCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestEngine_SupervisorRestartAllFansOutToSiblings(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	var mu sync.Mutex
	var spawned []PID

	var spawn func() (PID, error)
	spawn = func() (PID, error) {
		pid, err := e.SpawnPush(func() Behavior {
			return BehaviorFunc(func(ctx Context) {})
		}, 10)
		if err != nil {
			return 0, err
		}
		mu.Lock()
		spawned = append(spawned, pid)
		mu.Unlock()
		e.Supervise(pid, ChildSpec{Factory: spawn, Strategy: RestartAll})
		return pid, nil
	}

	a, err := spawn()
	require.NoError(t, err)
	b, err := spawn()
	require.NoError(t, err)

	require.NoError(t, e.Stop(a))

	assert.Eventually(t, func() bool { return !e.IsAlive(b) }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return e.ChildrenCount() == 2 }, time.Second, 5*time.Millisecond)
	// A fixed restart-all must settle at exactly 2 supervised children,
	// never re-entering and spawning extras for the same exit.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, e.ChildrenCount())
}

func TestEngine_RegisterResolve(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	pid, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
	require.NoError(t, err)

	e.Register("worker", pid)
	got, ok := e.Resolve("worker")
	assert.True(t, ok)
	assert.Equal(t, pid, got)

	require.NoError(t, e.Stop(pid))
	assert.Eventually(t, func() bool {
		_, ok := e.Resolve("worker")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_NameOfAndPathOfTrackRegistration(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	pid, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
	require.NoError(t, err)

	_, ok := e.NameOf(pid)
	assert.False(t, ok)

	e.Register("worker", pid)
	name, ok := e.NameOf(pid)
	assert.True(t, ok)
	assert.Equal(t, "worker", name)

	e.RegisterPath("workers/a", pid)
	path, ok := e.PathOf(pid)
	assert.True(t, ok)
	assert.Equal(t, "workers/a", path)

	e.Unregister("worker")
	_, ok = e.NameOf(pid)
	assert.False(t, ok)

	require.NoError(t, e.Stop(pid))
	assert.Eventually(t, func() bool {
		_, ok := e.PathOf(pid)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_PathRegistryListChildren(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	a, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
	require.NoError(t, err)
	b, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
	require.NoError(t, err)

	e.RegisterPath("workers/a", a)
	e.RegisterPath("workers/b", b)

	got, ok := e.WhereisPath("workers/a")
	assert.True(t, ok)
	assert.Equal(t, a, got)

	children := e.ListChildrenDirect("workers")
	assert.Len(t, children, 2)
}

func TestEngine_WatchPathNotifiesOnRegisterAndExit(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	events := e.WatchPath("workers")

	pid, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
	require.NoError(t, err)
	e.RegisterPath("workers/a", pid)

	select {
	case ev := <-events:
		assert.True(t, ev.Added)
		assert.Equal(t, pid, ev.PID)
	case <-time.After(time.Second):
		t.Fatal("watcher never saw the add event")
	}

	require.NoError(t, e.Stop(pid))

	select {
	case ev := <-events:
		assert.False(t, ev.Added)
	case <-time.After(time.Second):
		t.Fatal("watcher never saw the remove event")
	}
}

func TestEngine_TimersSendAfterAndInterval(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	got := make(chan Message, 8)
	pid, err := e.SpawnPush(func() Behavior {
		return BehaviorFunc(func(ctx Context) {
			if ctx.Message().Kind == KindUser {
				got <- ctx.Message()
			}
		})
	}, 10)
	require.NoError(t, err)

	e.SendAfter(pid, 10*time.Millisecond, []byte("once"))
	select {
	case msg := <-got:
		assert.Equal(t, []byte("once"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}

	id := e.SendInterval(pid, 10*time.Millisecond, []byte("tick"))
	<-got
	<-got
	assert.True(t, e.CancelTimer(id))
}

func TestEngine_TimersCancelledWhenActorExits(t *testing.T) {
	e := NewEngine()
	defer e.Shutdown(time.Second)

	pid, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
	require.NoError(t, err)

	e.SendInterval(pid, 5*time.Millisecond, []byte("tick"))
	require.NoError(t, e.Stop(pid))

	assert.Eventually(t, func() bool {
		return e.Snapshot().TimerCount == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_ShutdownIsIdempotentAndLeakFree(t *testing.T) {
	e := NewEngine()

	for i := 0; i < 5; i++ {
		_, err := e.SpawnPush(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }, 10)
		require.NoError(t, err)
	}

	require.NoError(t, e.Shutdown(time.Second))
	// A second Shutdown call must be a harmless no-op, not a second wait.
	require.NoError(t, e.Shutdown(time.Second))

	assert.Equal(t, 0, e.Snapshot().ActorCount)
}

func TestEngine_SpawnAfterShutdownFails(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Shutdown(time.Second))

	_, err := e.Spawn(NewProps(func() Behavior { return BehaviorFunc(func(ctx Context) {}) }))
	assert.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidArgument))
}
