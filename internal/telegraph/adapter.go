// Package telegraph connects Taskline's dialogue pipeline to chat platforms
// (WhatsApp, Discord, Slack) and runs the reminder scheduler.
package telegraph

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and translates platform events
// into InboundMessage and VoteEvent values.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the adapter is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Votes returns a channel of poll selections. Votes arrive separately
	// from messages and carry only the voter handle and the chosen label.
	Votes(ctx context.Context) (<-chan VoteEvent, error)

	// Send delivers a text message to a handle.
	Send(ctx context.Context, msg OutboundMessage) error

	// SendPoll presents a fixed set of options to a handle.
	SendPoll(ctx context.Context, poll Poll) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// MediaFunc fetches the bytes of an attachment. Adapters fetch lazily so
// that plain text messages never download anything.
type MediaFunc func(ctx context.Context) ([]byte, error)

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // "whatsapp", "discord", "slack"
	Handle    string    // sender handle (phone number or platform user ID)
	UserName  string    // display name, may be empty
	Text      string    // message text or media caption
	MediaMIME string    // empty when the message has no attachment
	Media     MediaFunc // nil when the message has no attachment
	Timestamp time.Time
}

// HasMedia reports whether the message carries an attachment.
func (m InboundMessage) HasMedia() bool {
	return m.Media != nil
}

// VoteEvent is a poll selection made by a user.
type VoteEvent struct {
	Platform string
	Handle   string
	Option   string // the literal option label shown to the user
}

// OutboundMessage is a text message addressed to a handle.
type OutboundMessage struct {
	Handle string
	Text   string
}

// Poll is a question with selectable options addressed to a handle.
type Poll struct {
	Handle   string
	Question string
	Options  []string
}
