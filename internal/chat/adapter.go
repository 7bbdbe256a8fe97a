// Package chat bridges in-game chat to gepeto. Platform adapters deliver
// player messages as Events and post Replies back into the same channel.
package chat

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must
// satisfy. An adapter owns its connection and serializes its own writes.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events. The channel is closed when
	// the adapter is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Event, error)

	// Send posts a reply.
	Send(ctx context.Context, r Reply) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// Position is an in-world block position.
type Position struct {
	X, Y, Z float64
}

// Player identifies who wrote a chat message.
type Player struct {
	ID       string    // stable identity; keys the conversation history
	Name     string    // display name
	Position *Position // nil when the platform does not report one
	World    string    // dimension, e.g. "overworld", "the_nether"
}

// Event is one chat message received from the platform.
type Event struct {
	Platform  string // e.g. "console", "discord", "slack"
	ChannelID string // where the message was posted; replies go here
	Player    Player
	Message   string
	Timestamp time.Time
}

// Reply is a response to post. Adapters render Label in their own style.
type Reply struct {
	ChannelID string
	Label     string
	Text      string
}
