package testhelper

import (
	"context"
	"sync"

	"github.com/dossierlabs/dossier-messaging/internal/domain/message"
	"github.com/dossierlabs/dossier-messaging/internal/domain/provider"
)

// MockChannelAdapter is a scripted channel adapter for tests. Results
// are consumed in order; when the script runs out the last result
// repeats. The zero value succeeds every call.
type MockChannelAdapter struct {
	mu       sync.Mutex
	Channels []message.Channel
	Results  []provider.SendResult
	calls    []*message.OutboundMessage
	next     int
}

func (m *MockChannelAdapter) Supports(ch message.Channel) bool {
	if len(m.Channels) == 0 {
		return true
	}
	for _, c := range m.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

func (m *MockChannelAdapter) Send(_ context.Context, msg *message.OutboundMessage) provider.SendResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, msg)
	if len(m.Results) == 0 {
		return provider.Ok("mock-ref")
	}
	result := m.Results[m.next]
	if m.next < len(m.Results)-1 {
		m.next++
	}
	return result
}

// Calls returns the messages passed to Send, in order.
func (m *MockChannelAdapter) Calls() []*message.OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*message.OutboundMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockChannelAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
