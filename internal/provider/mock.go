// internal/provider/mock.go
package provider

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// MockSender simulates a channel provider for development and tests. It
// records everything it "sends" and fails a configurable fraction of calls.
type MockSender struct {
	mu          sync.Mutex
	sent        []SendRequest
	failureRate float64
	rng         *rand.Rand
}

func NewMockSender(failureRate float64) *MockSender {
	return &MockSender{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (m *MockSender) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failureRate > 0 && m.rng.Float64() < m.failureRate {
		return nil, fmt.Errorf("mock sending failed")
	}

	m.sent = append(m.sent, req)
	return &SendResult{ProviderMessageID: "mock-" + uuid.NewString()}, nil
}

// Sent returns a copy of everything sent so far.
func (m *MockSender) Sent() []SendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ Sender = (*MockSender)(nil)
