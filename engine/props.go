package engine

// Behavior is the interface a push-actor's state/logic implements. Receive
// is invoked once per dispatched message (user or system), except for
// HotSwap messages, which the scheduler applies itself by swapping in the
// new Behavior.
type Behavior interface {
	Receive(ctx Context)
}

// BehaviorFunc adapts a plain function to the Behavior interface, mirroring
// http.HandlerFunc.
type BehaviorFunc func(ctx Context)

// Receive implements Behavior.
func (f BehaviorFunc) Receive(ctx Context) { f(ctx) }

// Producer creates a fresh Behavior instance for a newly spawned actor.
type Producer func() Behavior

// Props configures how Spawn creates and drives a push-actor.
type Props struct {
	producer Producer
	budget   int
	bounded  bool
	capacity int
	parent   PID
	observed bool
}

// DefaultReductionBudget is used whenever a caller passes budget <= 0.
const DefaultReductionBudget = 100

// NewProps builds a Props for an unbounded, non-observed push-actor with
// the default reduction budget.
func NewProps(producer Producer) *Props {
	if producer == nil {
		panic("actorcore: producer cannot be nil")
	}
	return &Props{producer: producer, budget: DefaultReductionBudget}
}

// WithBudget overrides the reduction budget; values <= 0 fall back to
// DefaultReductionBudget.
func (p *Props) WithBudget(budget int) *Props {
	if budget <= 0 {
		budget = DefaultReductionBudget
	}
	p.budget = budget
	return p
}

// WithBoundedMailbox caps the user mailbox at capacity messages, applying
// the drop-new policy once full.
func (p *Props) WithBoundedMailbox(capacity int) *Props {
	p.bounded = true
	p.capacity = capacity
	return p
}

// WithParent records the spawning actor as this actor's parent, so the
// child is stopped when the parent exits (structured concurrency, §3).
func (p *Props) WithParent(parent PID) *Props {
	p.parent = parent
	return p
}

// Observed marks the actor as one whose received messages are also kept
// in a rolling, operator-inspectable buffer.
func (p *Props) Observed() *Props {
	p.observed = true
	return p
}

// produce creates a new Behavior instance using the configured producer.
func (p *Props) produce() Behavior {
	return p.producer()
}
