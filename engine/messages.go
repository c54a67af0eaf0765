package engine

// MessageKind tags the variant carried by a Message envelope.
type MessageKind int

const (
	// KindUser carries an arbitrary, immutable user payload.
	KindUser MessageKind = iota
	// KindExit notifies of a linked/monitored peer's death.
	KindExit
	// KindHotSwap carries an opaque pointer to a new behavior.
	KindHotSwap
	// KindPing is a liveness probe.
	KindPing
	// KindPong answers a KindPing.
	KindPong
)

func (k MessageKind) String() string {
	switch k {
	case KindUser:
		return "User"
	case KindExit:
		return "Exit"
	case KindHotSwap:
		return "HotSwap"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// ExitReason classifies why an actor stopped being alive.
type ExitReason int

const (
	// ReasonNormal is used when an actor's body returns on its own.
	ReasonNormal ExitReason = iota
	// ReasonPanic is used when a panic unwound the actor's body.
	ReasonPanic
	// ReasonTimeout is used for a fatal scheduling/I-O timeout condition.
	ReasonTimeout
	// ReasonKilled is used for an explicit Stop() call.
	ReasonKilled
	// ReasonOom is used when a fatal resource-exhaustion condition fires.
	ReasonOom
	// ReasonOther carries a free-form string in Message.Metadata.
	ReasonOther
)

func (r ExitReason) String() string {
	switch r {
	case ReasonNormal:
		return "Normal"
	case ReasonPanic:
		return "Panic"
	case ReasonTimeout:
		return "Timeout"
	case ReasonKilled:
		return "Killed"
	case ReasonOom:
		return "Oom"
	case ReasonOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// ReasonCode is the single-byte wire encoding of an ExitReason, per the
// opcode 0x03 frame.
func (r ExitReason) ReasonCode() byte { return byte(r) }

// Message is the tagged envelope delivered through a Mailbox. Exactly one
// of the User or System shapes is populated, selected by Kind. Sender
// carries who the message is attributed to: the caller of Send for user
// messages (0 if anonymous), and the dead actor's PID for an Exit.
type Message struct {
	Kind   MessageKind
	Sender PID

	// User payload (KindUser only). Immutable by convention; callers must
	// not mutate a []byte handed to Send after the call returns.
	Payload []byte

	// Exit fields (KindExit only). From duplicates Sender for readability
	// at call sites that only care about Exit notifications.
	Reason   ExitReason
	Metadata string

	// HotSwap field (KindHotSwap only): opaque to the core, interpreted
	// only by whichever adapter spawned the actor.
	Behavior interface{}
}

// From returns the PID an Exit message is reporting on; it is an alias
// for Sender, kept for readability against the §3 Exit{from, ...} shape.
func (m Message) From() PID { return m.Sender }

// IsSystem reports whether the message is a system message, which is
// always prioritized over user messages at a receive point.
func (m Message) IsSystem() bool { return m.Kind != KindUser }

// UserMessage builds a User(payload) message with no attributed sender;
// use WithSender to attribute it when enqueuing through Engine.Send.
func UserMessage(payload []byte) Message {
	return Message{Kind: KindUser, Payload: payload}
}

// WithSender returns a copy of m attributed to sender.
func (m Message) WithSender(sender PID) Message {
	m.Sender = sender
	return m
}

// ExitMessage builds a System(Exit{from, reason, metadata}) message.
func ExitMessage(from PID, reason ExitReason, metadata string) Message {
	return Message{Kind: KindExit, Sender: from, Reason: reason, Metadata: metadata}
}

// HotSwapMessage builds a System(HotSwap(behavior)) message.
func HotSwapMessage(behavior interface{}) Message {
	return Message{Kind: KindHotSwap, Behavior: behavior}
}

// PingMessage builds a System(Ping) message.
func PingMessage() Message { return Message{Kind: KindPing} }

// PongMessage builds a System(Pong) message.
func PongMessage() Message { return Message{Kind: KindPong} }
