package inference

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/tensai/internal/conversation"
)

// MockProvider returns deterministic local replies when no model backend is
// configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	last := ""
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == conversation.RoleUser {
			last = strings.TrimSpace(req.Turns[i].Content)
			break
		}
	}
	if last == "" {
		return "Hello! May I have your name and mobile number?", nil
	}
	return fmt.Sprintf("I heard you: %s", last), nil
}
