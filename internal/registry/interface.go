package registry

import (
	"context"

	"dutch_auction/pkg/chain"
)

// TransferCall asks the asset registry to reassign token ownership to the
// buyer. CallID correlates the eventual reply with the pending settlement.
type TransferCall struct {
	CallID   string        `json:"call_id"`
	From     chain.ActorID `json:"from"`
	Registry chain.ActorID `json:"registry"`
	TokenID  chain.TokenID `json:"token_id"`
	To       chain.ActorID `json:"to"`
}

// Registry is the boundary to the asset-registry program.
//
// Transfer only reports whether the call could be issued. The outcome arrives
// later as a TransferReplyMessage on the handler inbox; the reply is the sole
// authority on whether ownership changed. A call that never produces a reply
// leaves the settlement pending indefinitely: there is no timer primitive to
// resolve it, and guessing either outcome could double-sell the asset or
// strand the payment.
type Registry interface {
	Transfer(ctx context.Context, call TransferCall) error
}
