package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dutch_auction/internal/event"
	"dutch_auction/pkg/chain"
)

// InProcRegistry is an in-process asset registry used by the integration
// binary and tests. It owns a token table and answers transfer calls
// asynchronously through the deliver callback, the way a real registry
// program's reply would land on the auction inbox as a fresh message.
type InProcRegistry struct {
	id      chain.ActorID
	deliver func(event.Message)
	delay   time.Duration

	mu        sync.Mutex
	owners    map[chain.TokenID]chain.ActorID
	operators map[chain.TokenID]chain.ActorID
}

var _ Registry = (*InProcRegistry)(nil)

// NewInProcRegistry creates a registry that pushes replies through deliver.
func NewInProcRegistry(id chain.ActorID, deliver func(event.Message)) *InProcRegistry {
	return &InProcRegistry{
		id:        id,
		deliver:   deliver,
		delay:     time.Millisecond,
		owners:    make(map[chain.TokenID]chain.ActorID),
		operators: make(map[chain.TokenID]chain.ActorID),
	}
}

// Mint records a token and its owner.
func (r *InProcRegistry) Mint(token chain.TokenID, owner chain.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[token] = owner
}

// Approve allows an operator program to transfer the token on the owner's
// behalf. The auction program must be approved before the sale can settle.
func (r *InProcRegistry) Approve(token chain.TokenID, operator chain.ActorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[token] = operator
}

// Revoke withdraws an approval. Lets tests force a transfer failure the same
// way an out-of-band ownership change would.
func (r *InProcRegistry) Revoke(token chain.TokenID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.operators, token)
}

// Owner returns the current owner of a token.
func (r *InProcRegistry) Owner(token chain.TokenID) chain.ActorID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owners[token]
}

// Transfer applies the ownership change and delivers the reply after a short
// delay, off the caller's goroutine.
func (r *InProcRegistry) Transfer(ctx context.Context, call TransferCall) error {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.delay):
		}

		ok, detail := r.apply(call)
		r.deliver(&event.TransferReplyMessage{
			BaseMessage: event.BaseMessage{
				Ts:     chain.Timestamp(time.Now().UnixMilli()),
				Source: r.id,
			},
			CallID: call.CallID,
			OK:     ok,
			Detail: detail,
		})
	}()
	return nil
}

func (r *InProcRegistry) apply(call TransferCall) (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, exists := r.owners[call.TokenID]
	if !exists {
		return false, "unknown token"
	}
	if r.operators[call.TokenID] != call.From && owner != call.From {
		return false, "caller is not approved for this token"
	}

	r.owners[call.TokenID] = call.To
	delete(r.operators, call.TokenID)

	slog.Info("REGISTRY_TRANSFER_APPLIED",
		slog.Uint64("token_id", uint64(call.TokenID)),
		slog.String("from", string(owner)),
		slog.String("to", string(call.To)),
	)
	return true, ""
}
