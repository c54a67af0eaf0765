package engine

// Context is handed to a push-actor's Behavior on every invocation of
// Receive. It exposes the engine the actor runs under, its own PID, the
// sender of the current message (zero if none), and the message itself.
type Context interface {
	// Engine returns the Engine driving this actor.
	Engine() *Engine
	// Self returns the PID of the actor processing the message.
	Self() PID
	// Sender returns the PID of whoever sent the current message, or 0.
	Sender() PID
	// Message returns the message currently being processed.
	Message() Message
}

// context is the concrete Context built fresh for each dispatched message.
type context struct {
	engine  *Engine
	self    PID
	sender  PID
	message Message
}

func (c *context) Engine() *Engine  { return c.engine }
func (c *context) Self() PID        { return c.self }
func (c *context) Sender() PID      { return c.sender }
func (c *context) Message() Message { return c.message }
