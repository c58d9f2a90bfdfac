package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/antonkk/formpilot/internal/llmclient"
)

// MockReasoner mocks llmclient.Reasoner.
type MockReasoner struct {
	mock.Mock
}

var _ llmclient.Reasoner = (*MockReasoner)(nil)

func (m *MockReasoner) Ask(ctx context.Context, q llmclient.Question) (*llmclient.Reply, error) {
	args := m.Called(ctx, q)
	if reply, ok := args.Get(0).(*llmclient.Reply); ok {
		return reply, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReasoner) SuggestRemediation(ctx context.Context, fc llmclient.FailureContext) (*llmclient.Remediation, error) {
	args := m.Called(ctx, fc)
	if rem, ok := args.Get(0).(*llmclient.Remediation); ok {
		return rem, args.Error(1)
	}
	return nil, args.Error(1)
}
