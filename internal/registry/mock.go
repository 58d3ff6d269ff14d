package registry

import (
	"context"
	"log/slog"
)

// MockRegistry logs transfer calls and never replies. Useful for exercising
// the indefinite-pending path and for running a node without a registry.
type MockRegistry struct{}

var _ Registry = (*MockRegistry)(nil)

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{}
}

func (m *MockRegistry) Transfer(ctx context.Context, call TransferCall) error {
	slog.Info("MOCK REGISTRY: Transfer",
		slog.String("call_id", call.CallID),
		slog.Uint64("token_id", uint64(call.TokenID)),
		slog.String("to", string(call.To)),
	)
	return nil
}
