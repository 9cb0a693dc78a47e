package telegraph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockAdapter implements Adapter for testing. It records sent messages and
// polls, and allows simulating inbound messages and votes.
type MockAdapter struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan InboundMessage
	votes     chan VoteEvent
	sent      []OutboundMessage
	polls     []Poll
	sendErr   error
}

// NewMockAdapter creates a MockAdapter with buffered inbound channels.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan InboundMessage, 100),
		votes:   make(chan VoteEvent, 100),
	}
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound message channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Votes returns the vote channel. Must be called after Connect.
func (m *MockAdapter) Votes(ctx context.Context) (<-chan VoteEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.votes, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// SendPoll records the poll.
func (m *MockAdapter) SendPoll(ctx context.Context, poll Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.polls = append(m.polls, poll)
	return nil
}

// Close shuts down the mock adapter and closes both channels.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	close(m.votes)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends a message into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.inbound <- msg
}

// SimulateVote sends a vote into the vote channel.
func (m *MockAdapter) SimulateVote(v VoteEvent) {
	m.votes <- v
}

// FailSends makes every subsequent Send and SendPoll return err. A nil err
// restores normal behavior.
func (m *MockAdapter) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// LastSent returns the most recently sent outbound message.
// Returns zero value and false if no messages have been sent.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentText joins the text of every message sent so far, one per line.
func (m *MockAdapter) SentText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]string, len(m.sent))
	for i, s := range m.sent {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n")
}

// AllPolls returns a copy of all sent polls.
func (m *MockAdapter) AllPolls() []Poll {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Poll, len(m.polls))
	copy(out, m.polls)
	return out
}

// LastPoll returns the most recently sent poll.
func (m *MockAdapter) LastPoll() (Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.polls) == 0 {
		return Poll{}, false
	}
	return m.polls[len(m.polls)-1], true
}

// Reset clears recorded messages and polls.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.polls = nil
}
